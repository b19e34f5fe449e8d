package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// DNSConfig enables resolving the carbon host through explicit resolvers
// instead of only the system one. All configured resolvers are queried
// concurrently and the first answer wins.
type DNSConfig struct {
	Enable       bool
	CacheTTL     time.Duration
	Timeout      time.Duration
	UDPServers   []string // e.g. ["1.1.1.1:53", "8.8.8.8:53"]
	TLSServers   []string // e.g. ["1.1.1.1:853", "9.9.9.9:853"]
	DoHEndpoints []string // e.g. ["https://cloudflare-dns.com/dns-query"]
	// SkipSystem leaves the system resolver out of the race.
	SkipSystem bool
}

type dnsCacheEntry struct {
	ips []string
	ttl time.Time
}

// resolver looks up A records for the carbon host and caches them.
type resolver struct {
	cfg    DNSConfig
	logger *zap.Logger
	clock  clock.Clock

	mutex sync.Mutex
	cache map[string]dnsCacheEntry
}

func newResolver(cfg DNSConfig, logger *zap.Logger, clk clock.Clock) *resolver {
	cfg.CacheTTL = pickDuration(cfg.CacheTTL, 10*time.Minute)
	cfg.Timeout = pickDuration(cfg.Timeout, 800*time.Millisecond)
	cfg.UDPServers = append([]string(nil), cfg.UDPServers...)
	cfg.TLSServers = append([]string(nil), cfg.TLSServers...)
	cfg.DoHEndpoints = append([]string(nil), cfg.DoHEndpoints...)
	return &resolver{
		cfg:    cfg,
		logger: logger,
		clock:  clk,
		cache:  make(map[string]dnsCacheEntry),
	}
}

// lookup returns the addresses of host, from cache when still fresh.
func (r *resolver) lookup(ctx context.Context, host string) ([]string, error) {
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}

	now := r.clock.Now()
	r.mutex.Lock()
	ce, ok := r.cache[host]
	r.mutex.Unlock()
	if ok && now.Before(ce.ttl) {
		return ce.ips, nil
	}

	ips, err := r.resolveFastest(ctx, host)
	if err != nil || len(ips) == 0 {
		r.logger.Warn("DNS lookup failed", zap.String("host", host), zap.Error(err))
		if ok {
			// A stale answer beats none.
			return ce.ips, nil
		}
		if err == nil {
			err = fmt.Errorf("no dns result for %s", host)
		}
		return nil, err
	}

	r.mutex.Lock()
	r.cache[host] = dnsCacheEntry{ips: ips, ttl: now.Add(r.cfg.CacheTTL)}
	r.mutex.Unlock()

	r.logger.Debug("resolved carbon host", zap.String("host", host), zap.Strings("ips", ips))
	return ips, nil
}

// invalidate drops the cached answer for host so the next lookup queries
// the resolvers again.
func (r *resolver) invalidate(host string) {
	r.mutex.Lock()
	delete(r.cache, host)
	r.mutex.Unlock()
}

// resolveFastest queries all configured resolvers concurrently and returns first success
func (r *resolver) resolveFastest(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	type result struct {
		ips []string
		err error
	}

	var queries []func() ([]string, error)
	for _, srv := range r.cfg.UDPServers {
		s := srv
		queries = append(queries, func() ([]string, error) { return resolveUDP(ctx, host, s, r.cfg.Timeout) })
	}
	for _, srv := range r.cfg.TLSServers {
		s := srv
		queries = append(queries, func() ([]string, error) { return resolveTLS(ctx, host, s, r.cfg.Timeout) })
	}
	for _, ep := range r.cfg.DoHEndpoints {
		e := ep
		queries = append(queries, func() ([]string, error) { return resolveDoH(ctx, host, e) })
	}
	if !r.cfg.SkipSystem || len(queries) == 0 {
		queries = append(queries, func() ([]string, error) { return resolveSystem(ctx, host) })
	}

	// One slot per query, senders never block.
	ch := make(chan result, len(queries))
	for _, q := range queries {
		go func(q func() ([]string, error)) {
			ips, err := q()
			ch <- result{ips, err}
		}(q)
	}

	var firstErr error
	for range queries {
		select {
		case res := <-ch:
			if res.err == nil && len(res.ips) > 0 {
				return res.ips, nil
			}
			if firstErr == nil {
				firstErr = res.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if firstErr == nil {
		firstErr = errors.New("no dns result")
	}
	return nil, firstErr
}

func resolveSystem(ctx context.Context, host string) ([]string, error) {
	netIPs, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(netIPs))
	for _, ip := range netIPs {
		ips = append(ips, ip.String())
	}
	return ips, nil
}

func resolveUDP(ctx context.Context, host, server string, timeout time.Duration) ([]string, error) {
	return exchange(ctx, host, server, &dns.Client{Net: "udp", Timeout: timeout})
}

func resolveTLS(ctx context.Context, host, server string, timeout time.Duration) ([]string, error) {
	return exchange(ctx, host, server, &dns.Client{Net: "tcp-tls", Timeout: timeout})
}

func exchange(ctx context.Context, host, server string, c *dns.Client) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("%s dns %s: %w", c.Net, server, err)
	}
	if r == nil || r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s dns %s: bad response", c.Net, server)
	}
	return answerIPs(r), nil
}

func resolveDoH(ctx context.Context, host, endpoint string) ([]string, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(host), dns.TypeA)
	payload, err := q.Pack()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var r dns.Msg
	if err := r.Unpack(body); err != nil {
		return nil, err
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("doh rcode: %d", r.Rcode)
	}
	return answerIPs(&r), nil
}

func answerIPs(r *dns.Msg) []string {
	ips := make([]string, 0, len(r.Answer))
	for _, ans := range r.Answer {
		if a, ok := ans.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips
}
