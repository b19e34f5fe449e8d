package monitor

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// dnsServer answers every A question with 127.0.0.1 unless failing is set.
type dnsServer struct {
	addr    string
	queries atomic.Int32
	failing atomic.Bool
}

func (s *dnsServer) reply(r *dns.Msg) *dns.Msg {
	s.queries.Add(1)
	m := new(dns.Msg)
	m.SetReply(r)
	if s.failing.Load() {
		m.Rcode = dns.RcodeServerFailure
		return m
	}
	for _, q := range r.Question {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP("127.0.0.1"),
		})
	}
	return m
}

func newDNSServer(t *testing.T) *dnsServer {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &dnsServer{addr: pc.LocalAddr().String()}
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			_ = w.WriteMsg(s.reply(r))
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })
	return s
}

func newTestResolver(s *dnsServer, clk clock.Clock) *resolver {
	return newResolver(DNSConfig{
		Enable:     true,
		CacheTTL:   time.Minute,
		Timeout:    2 * time.Second,
		UDPServers: []string{s.addr},
		SkipSystem: true,
	}, zap.NewNop(), clk)
}

func TestResolver_IPLiteral(t *testing.T) {
	r := newResolver(DNSConfig{Enable: true}, zap.NewNop(), clock.NewMock())
	ips, err := r.lookup(context.Background(), "10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.2.3"}, ips)
}

func TestResolver_UDPAndCache(t *testing.T) {
	srv := newDNSServer(t)
	mock := clock.NewMock()
	r := newTestResolver(srv, mock)

	ips, err := r.lookup(context.Background(), "carbon.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, ips)

	_, err = r.lookup(context.Background(), "carbon.test")
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.queries.Load())

	mock.Add(2 * time.Minute)
	_, err = r.lookup(context.Background(), "carbon.test")
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.queries.Load())

	r.invalidate("carbon.test")
	_, err = r.lookup(context.Background(), "carbon.test")
	require.NoError(t, err)
	assert.Equal(t, int32(3), srv.queries.Load())
}

func TestResolver_StaleFallback(t *testing.T) {
	srv := newDNSServer(t)
	mock := clock.NewMock()
	r := newTestResolver(srv, mock)

	_, err := r.lookup(context.Background(), "carbon.test")
	require.NoError(t, err)

	srv.failing.Store(true)
	mock.Add(2 * time.Minute)

	ips, err := r.lookup(context.Background(), "carbon.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, ips)
	assert.Equal(t, int32(2), srv.queries.Load())
}

func TestResolver_FailureWithoutCache(t *testing.T) {
	srv := newDNSServer(t)
	srv.failing.Store(true)
	r := newTestResolver(srv, clock.NewMock())

	_, err := r.lookup(context.Background(), "carbon.test")
	assert.Error(t, err)
}

func TestResolveDoH(t *testing.T) {
	dnsSrv := &dnsServer{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "application/dns-message", req.Header.Get("Content-Type"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)

		var q dns.Msg
		require.NoError(t, q.Unpack(body))
		out, err := dnsSrv.reply(&q).Pack()
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(out)
	}))
	defer ts.Close()

	ips, err := resolveDoH(context.Background(), "carbon.test", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, ips)
}

func TestCarbonReporter_ResolvesThroughDNS(t *testing.T) {
	lines := newLineServer(t)
	srv := newDNSServer(t)
	_, port, err := net.SplitHostPort(lines.addr())
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Unix(1700000000, 0))
	r := NewCarbonReporter("test", net.JoinHostPort("carbon.test", port), "app", 0, CarbonOptions{
		Clock: mock,
		DNS: DNSConfig{
			Enable:     true,
			Timeout:    2 * time.Second,
			UDPServers: []string{srv.addr},
			SkipSystem: true,
		},
	})
	defer r.Close()
	require.NoError(t, r.Add("x", NewCounter()))

	require.NoError(t, r.Report(context.Background()))
	assert.Equal(t, []string{"app.x 0 1700000000"}, lines.read(t, 1))
	assert.Equal(t, int32(1), srv.queries.Load())
}
