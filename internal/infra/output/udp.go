package output

import (
	"fmt"
	"net"

	"feed_go/internal/domain"
)

// UDPSink republishes record payloads as datagrams.
type UDPSink struct {
	conn *net.UDPConn
}

// NewUDPSink dials addr ("ip:port").
func NewUDPSink(addr string) (*UDPSink, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, domain.NewFatalNetworkError("resolve "+addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, domain.NewNetworkError("dial "+addr, err)
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) Name() string { return "udp" }

// Write sends the payload as one datagram. Raw records with no payload
// are skipped.
func (s *UDPSink) Write(rec *domain.Record) error {
	if len(rec.Payload) == 0 {
		return nil
	}
	if _, err := s.conn.Write(rec.Payload); err != nil {
		return fmt.Errorf("udp send %d bytes: %w", len(rec.Payload), err)
	}
	return nil
}

func (s *UDPSink) Close() error { return s.conn.Close() }
