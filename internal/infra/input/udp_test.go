package input

import (
	"context"
	"net"
	"testing"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/engine"
	"feed_go/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeEndpoint(t *testing.T) infra.Endpoint {
	t.Helper()
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return infra.Endpoint{IP: "127.0.0.1", Port: port}
}

func sender(t *testing.T, ep infra.Endpoint) *net.UDPConn {
	t.Helper()
	c, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP(ep.IP), Port: ep.Port})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// sendUntil keeps sending until the queue holds a packet; the reader may
// still be joining when the first datagrams go out.
func sendUntil(t *testing.T, c *net.UDPConn, q *engine.Queue[*domain.Packet], payload []byte) *domain.Packet {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_, _ = c.Write(payload)
		time.Sleep(10 * time.Millisecond)
		if p, ok := q.Pop(); ok {
			return p
		}
	}
	t.Fatal("no packet received")
	return nil
}

func TestReader_PushesDatagrams(t *testing.T) {
	ep := freeEndpoint(t)
	q := engine.NewQueue[*domain.Packet]()
	m := infra.NewMetrics()

	r, err := NewReader(Config{Primary: ep, SwitchTimeout: 50 * time.Millisecond}, q, m)
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	p := sendUntil(t, sender(t, ep), q, []byte("datagram"))
	assert.Equal(t, "datagram", string(p.Bytes()))
	assert.GreaterOrEqual(t, m.Snapshot().UDPPackets, uint64(1))
	assert.Equal(t, uint64(0), m.Snapshot().Failovers)
}

func TestReader_FailsOverToSecondary(t *testing.T) {
	primary, secondary := freeEndpoint(t), freeEndpoint(t)
	q := engine.NewQueue[*domain.Packet]()
	m := infra.NewMetrics()

	r, err := NewReader(Config{
		Primary:       primary,
		Secondary:     secondary,
		AutoSwitch:    true,
		SwitchTimeout: 30 * time.Millisecond,
	}, q, m)
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	p := sendUntil(t, sender(t, secondary), q, []byte("backup"))
	assert.Equal(t, "backup", string(p.Bytes()))
	assert.GreaterOrEqual(t, m.Snapshot().Failovers, uint64(1))
}

func TestReader_SourceFilter(t *testing.T) {
	ep := freeEndpoint(t)
	q := engine.NewQueue[*domain.Packet]()
	m := infra.NewMetrics()

	r, err := NewReader(Config{Primary: ep, SourceIP: "10.99.99.99", SwitchTimeout: 50 * time.Millisecond}, q, m)
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	c := sender(t, ep)
	require.Eventually(t, func() bool {
		_, _ = c.Write([]byte("foreign"))
		return m.Snapshot().FilteredPackets > 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(0), m.Snapshot().UDPPackets)
}

func TestNewReader_InvalidSource(t *testing.T) {
	_, err := NewReader(Config{SourceIP: "not-an-ip"}, engine.NewQueue[*domain.Packet](), infra.NewMetrics())
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestReader_CloseWithoutTraffic(t *testing.T) {
	r, err := NewReader(Config{Primary: freeEndpoint(t), SwitchTimeout: time.Hour}, engine.NewQueue[*domain.Packet](), infra.NewMetrics())
	require.NoError(t, err)
	r.Start(context.Background())

	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a pending read")
	}
}

func TestReader_ReportsFatalJoinError(t *testing.T) {
	r, err := NewReader(Config{Primary: infra.Endpoint{IP: "not-an-ip", Port: 1}}, engine.NewQueue[*domain.Packet](), infra.NewMetrics())
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	select {
	case err := <-r.Err():
		var netErr *domain.NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.False(t, netErr.IsRetriable())
	case <-time.After(2 * time.Second):
		t.Fatal("reader kept retrying a malformed address")
	}
}

func TestReader_NoErrorOnClose(t *testing.T) {
	r, err := NewReader(Config{Primary: freeEndpoint(t), SwitchTimeout: time.Hour}, engine.NewQueue[*domain.Packet](), infra.NewMetrics())
	require.NoError(t, err)
	r.Start(context.Background())
	r.Close()

	select {
	case err := <-r.Err():
		t.Fatalf("unexpected reader error: %v", err)
	default:
	}
}

func TestReader_BacksOffAfterSocketError(t *testing.T) {
	ep := freeEndpoint(t)
	r, err := NewReader(Config{Primary: ep, SwitchTimeout: time.Hour}, engine.NewQueue[*domain.Packet](), infra.NewMetrics())
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	joined := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.conn != nil
	}
	require.Eventually(t, joined, 2*time.Second, 5*time.Millisecond)

	// closing the socket under the reader fails the pending read
	r.closeConnection()

	assert.Never(t, joined, 500*time.Millisecond, 10*time.Millisecond, "rejoined without backoff")
	assert.Eventually(t, joined, 3*time.Second, 10*time.Millisecond, "never rejoined")
}

func TestReader_StopsOnFatalJoinError(t *testing.T) {
	r, err := NewReader(Config{Primary: infra.Endpoint{IP: "not-an-ip", Port: 1}}, engine.NewQueue[*domain.Packet](), infra.NewMetrics())
	require.NoError(t, err)
	r.Start(context.Background())

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader kept retrying a malformed address")
	}
	r.Close()
}
