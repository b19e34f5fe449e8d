package monitor

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the connection state of a carbon transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// DialFunc opens a stream connection to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// transport owns the stream connection to the carbon backend. It moves to
// StateConnected on a successful dial and back to StateDisconnected on any
// write failure or Close.
type transport struct {
	addr         string
	writeTimeout time.Duration
	dial         DialFunc
	resolver     *resolver // nil unless DNS resolution is enabled
	logger       *zap.Logger

	mutex sync.Mutex
	conn  net.Conn
}

func newTransport(addr string, dial DialFunc, writeTimeout time.Duration, res *resolver, logger *zap.Logger) *transport {
	return &transport{
		addr:         addr,
		writeTimeout: writeTimeout,
		dial:         dial,
		resolver:     res,
		logger:       logger,
	}
}

func (t *transport) state() State {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.conn != nil {
		return StateConnected
	}
	return StateDisconnected
}

// connect dials the backend unless already connected.
func (t *transport) connect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.conn != nil {
		return nil
	}

	targets, err := t.targets(ctx)
	if err != nil {
		return &ConnectionError{Addr: t.addr, Err: err}
	}

	var lastErr error
	for _, target := range targets {
		conn, err := t.dial(ctx, "tcp", target)
		if err != nil {
			lastErr = err
			continue
		}
		t.conn = conn
		t.logger.Info("connected to carbon", zap.String("addr", t.addr), zap.String("remote", target))
		return nil
	}

	if t.resolver != nil {
		host, _, _ := net.SplitHostPort(t.addr)
		t.resolver.invalidate(host)
	}
	return &ConnectionError{Addr: t.addr, Err: lastErr}
}

// targets returns the host:port candidates to dial, in order.
func (t *transport) targets(ctx context.Context) ([]string, error) {
	if t.resolver == nil {
		return []string{t.addr}, nil
	}
	host, port, err := net.SplitHostPort(t.addr)
	if err != nil {
		return nil, err
	}
	ips, err := t.resolver.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(ips))
	for _, ip := range ips {
		targets = append(targets, net.JoinHostPort(ip, port))
	}
	return targets, nil
}

// write sends p in full. Any failure drops the connection.
func (t *transport) write(ctx context.Context, p []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.conn == nil {
		return &WriteError{Addr: t.addr, Err: net.ErrClosed}
	}

	// Socket deadlines are wall-clock.
	deadline := time.Time{}
	if t.writeTimeout > 0 {
		deadline = time.Now().Add(t.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		t.dropLocked()
		return &WriteError{Addr: t.addr, Err: err}
	}

	n, err := t.conn.Write(p)
	if err != nil {
		t.dropLocked()
		return &WriteError{Addr: t.addr, Written: n, Err: err}
	}
	return nil
}

func (t *transport) close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// dropLocked must be called with t.mutex held.
func (t *transport) dropLocked() {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close()
	t.conn = nil
	t.logger.Warn("disconnected from carbon", zap.String("addr", t.addr))
}
