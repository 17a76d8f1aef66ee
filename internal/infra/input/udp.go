// Package input reads exchange broadcast datagrams from the network.
package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/engine"
	"feed_go/internal/event"
	"feed_go/internal/infra"
)

const maxRetries = 10

// Config describes the feeds to join.
type Config struct {
	Primary       infra.Endpoint
	Secondary     infra.Endpoint
	LocalIP       string // interface address for the multicast join
	SourceIP      string // when set, datagrams from other senders are dropped
	AutoSwitch    bool
	SwitchTimeout time.Duration
	ReadBuffer    int
}

// ConfigFrom extracts the input settings.
func ConfigFrom(cfg *infra.Config) Config {
	return Config{
		Primary:       cfg.Input.Primary,
		Secondary:     cfg.Input.Secondary,
		LocalIP:       cfg.Input.LocalIP,
		SourceIP:      cfg.Input.SourceIP,
		AutoSwitch:    cfg.Input.AutoSwitch,
		SwitchTimeout: cfg.SwitchTimeout(),
		ReadBuffer:    cfg.Input.ReadBuffer,
	}
}

// Reader copies datagrams into pooled packets and pushes them onto the
// ingestion queue. Only one feed is read at a time; on silence or error
// it fails over to the other one when auto switch is enabled.
type Reader struct {
	cfg     Config
	out     *engine.Queue[*domain.Packet]
	metrics *infra.Metrics
	source  net.IP

	mu     sync.Mutex
	conn   *net.UDPConn
	active int // 0 primary, 1 secondary

	cancel context.CancelFunc
	wg     sync.WaitGroup
	errc   chan error
}

// NewReader validates the source filter and returns an idle reader.
func NewReader(cfg Config, out *engine.Queue[*domain.Packet], metrics *infra.Metrics) (*Reader, error) {
	r := &Reader{cfg: cfg, out: out, metrics: metrics, errc: make(chan error, 1)}
	if cfg.SourceIP != "" {
		r.source = net.ParseIP(cfg.SourceIP)
		if r.source == nil {
			return nil, &domain.ConfigError{Field: "input.source_ip", Err: fmt.Errorf("invalid address %q", cfg.SourceIP)}
		}
	}
	if r.cfg.SwitchTimeout <= 0 {
		r.cfg.SwitchTimeout = 5 * time.Second
	}
	return r, nil
}

// Start runs the read loop in the background.
func (r *Reader) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.connectionLoop(ctx)

	// unblock a pending read on shutdown
	go func() {
		<-ctx.Done()
		r.closeConnection()
	}()
}

// Close stops the reader and waits for the loop to exit.
func (r *Reader) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Err delivers the error that stopped the reader for good, such as a feed
// address that can never be joined. It never fires on a normal Close.
func (r *Reader) Err() <-chan error {
	return r.errc
}

// Active returns the endpoint currently being read.
func (r *Reader) Active() infra.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoint(r.active)
}

func (r *Reader) endpoint(i int) infra.Endpoint {
	if i == 1 {
		return r.cfg.Secondary
	}
	return r.cfg.Primary
}

func (r *Reader) canSwitch() bool {
	return r.cfg.AutoSwitch && r.cfg.Secondary.IP != ""
}

func (r *Reader) connectionLoop(ctx context.Context) {
	defer r.wg.Done()
	retryCount := 0
	readFailures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		ep := r.Active()
		conn, err := r.open(ep)
		if err != nil {
			if !domain.IsRetriable(err) {
				slog.Error("Feed cannot be joined", slog.String("feed", ep.String()), slog.Any("error", err))
				r.errc <- fmt.Errorf("join %s: %w", ep, err)
				return
			}
			slog.Warn("Feed join failed", slog.String("feed", ep.String()), slog.Any("error", err), slog.Int("retry", retryCount))
			if r.canSwitch() {
				r.failover()
			}
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		if ctx.Err() != nil {
			r.closeConnection()
			return
		}
		slog.Info("Feed joined", slog.String("feed", ep.String()))

		got, err := r.readLoop(ctx, conn)
		r.closeConnection()
		if ctx.Err() != nil {
			return
		}
		if r.canSwitch() {
			slog.Warn("Feed lost, switching", slog.String("feed", ep.String()), slog.Any("error", err))
			r.failover()
			continue
		}

		if got {
			readFailures = 0
		}
		delay := infra.CalculateBackoff(readFailures)
		readFailures = min(readFailures+1, maxRetries)
		slog.Warn("Feed read failed, rejoining", slog.String("feed", ep.String()), slog.Any("error", err), slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (r *Reader) failover() {
	r.mu.Lock()
	r.active ^= 1
	r.mu.Unlock()
	r.metrics.RecordFailover()
}

// readLoop returns when the feed goes silent for the switch timeout (only
// with auto switch) or the socket fails. got reports whether any datagram
// was accepted.
func (r *Reader) readLoop(ctx context.Context, conn *net.UDPConn) (got bool, err error) {
	buf := make([]byte, 65536)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(r.cfg.SwitchTimeout)); err != nil {
			return got, err
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && !r.canSwitch() && ctx.Err() == nil {
				continue
			}
			return got, err
		}
		if r.source != nil && !from.IP.Equal(r.source) {
			r.metrics.RecordFiltered()
			continue
		}
		if n > domain.BufSize {
			slog.Debug("Datagram truncated", slog.Int("size", n))
		}
		got = true
		r.metrics.RecordUDPPacket()
		r.out.Push(event.ClonePacket(buf[:n]))
	}
}

func (r *Reader) open(ep infra.Endpoint) (*net.UDPConn, error) {
	ip := net.ParseIP(ep.IP)
	if ip == nil {
		return nil, domain.NewFatalNetworkError("parse "+ep.String(), fmt.Errorf("invalid address %q", ep.IP))
	}
	addr := &net.UDPAddr{IP: ip, Port: ep.Port}

	var conn *net.UDPConn
	var err error
	if ip.IsMulticast() {
		var ifi *net.Interface
		ifi, err = interfaceByIP(r.cfg.LocalIP)
		if err != nil {
			return nil, domain.NewFatalNetworkError("interface", err)
		}
		conn, err = net.ListenMulticastUDP("udp4", ifi, addr)
	} else {
		conn, err = net.ListenUDP("udp4", addr)
	}
	if err != nil {
		return nil, domain.NewNetworkError("join "+ep.String(), err)
	}
	if r.cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(r.cfg.ReadBuffer); err != nil {
			slog.Warn("Could not size socket buffer", slog.Int("bytes", r.cfg.ReadBuffer), slog.Any("error", err))
		}
	}
	return conn, nil
}

func (r *Reader) closeConnection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// interfaceByIP finds the interface owning ip. An empty ip selects the
// system default.
func interfaceByIP(ip string) (*net.Interface, error) {
	if ip == "" {
		return nil, nil
	}
	want := net.ParseIP(ip)
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && n.IP.Equal(want) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", ip)
}
