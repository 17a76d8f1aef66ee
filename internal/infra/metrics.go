package infra

import (
	"sync/atomic"
	"time"
)

// Metrics holds the feed handler counters. All methods are safe for
// concurrent use; one instance is created by the bootstrap and shared.
type Metrics struct {
	// Input
	udpPackets      atomic.Uint64
	filteredPackets atomic.Uint64
	failovers       atomic.Uint64

	// Classification
	mbpPackets   atomic.Uint64 // 7200 / 7208 / 18705 and exchange equivalents
	otherPackets atomic.Uint64
	decodeErrors atomic.Uint64

	// Dispatch
	coalesced  atomic.Uint64
	staleDrops atomic.Uint64
	requeues   atomic.Uint64
	executed   atomic.Uint64
	panics     atomic.Uint64

	// Output
	recordsOut atomic.Uint64
	sinkErrors atomic.Uint64

	// Processing latency
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	wsClients atomic.Int32
}

// NewMetrics returns a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordUDPPacket counts one datagram read from the network.
func (m *Metrics) RecordUDPPacket() { m.udpPackets.Add(1) }

// RecordFiltered counts a datagram dropped by the source filter.
func (m *Metrics) RecordFiltered() { m.filteredPackets.Add(1) }

// RecordFailover counts a switch between primary and secondary feeds.
func (m *Metrics) RecordFailover() { m.failovers.Add(1) }

// RecordMBP counts a market-by-price message.
func (m *Metrics) RecordMBP() { m.mbpPackets.Add(1) }

// RecordOther counts a message that is not market-by-price.
func (m *Metrics) RecordOther() { m.otherPackets.Add(1) }

// RecordOtherN counts n messages that are not market-by-price.
func (m *Metrics) RecordOtherN(n int) {
	if n > 0 {
		m.otherPackets.Add(uint64(n))
	}
}

// RecordDecodeError counts a dropped undecodable message.
func (m *Metrics) RecordDecodeError() { m.decodeErrors.Add(1) }

// RecordCoalesced counts a packet displaced by a newer one for the same key.
func (m *Metrics) RecordCoalesced() { m.coalesced.Add(1) }

// RecordStale counts an update dropped by sequence fencing.
func (m *Metrics) RecordStale() { m.staleDrops.Add(1) }

// RecordRequeue counts a work item handed back for fairness.
func (m *Metrics) RecordRequeue() { m.requeues.Add(1) }

// RecordPanic counts a recovered processing panic.
func (m *Metrics) RecordPanic() { m.panics.Add(1) }

// RecordSinkError counts a failed sink write.
func (m *Metrics) RecordSinkError() { m.sinkErrors.Add(1) }

// RecordRecord counts one record written to output.
func (m *Metrics) RecordRecord() { m.recordsOut.Add(1) }

// RecordWork records one executed work item with its latency.
func (m *Metrics) RecordWork(latencyNs int64) {
	m.executed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// IncrementClients increments connected websocket clients by 1.
func (m *Metrics) IncrementClients() { m.wsClients.Add(1) }

// DecrementClients decrements connected websocket clients by 1.
func (m *Metrics) DecrementClients() { m.wsClients.Add(-1) }

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	UDPPackets      uint64
	FilteredPackets uint64
	Failovers       uint64
	MBPPackets      uint64
	OtherPackets    uint64
	DecodeErrors    uint64
	Coalesced       uint64
	StaleDrops      uint64
	Requeues        uint64
	WorkExecuted    uint64
	Panics          uint64
	RecordsOut      uint64
	SinkErrors      uint64
	AvgLatencyNs    int64
	WSClients       int32
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		UDPPackets:      m.udpPackets.Load(),
		FilteredPackets: m.filteredPackets.Load(),
		Failovers:       m.failovers.Load(),
		MBPPackets:      m.mbpPackets.Load(),
		OtherPackets:    m.otherPackets.Load(),
		DecodeErrors:    m.decodeErrors.Load(),
		Coalesced:       m.coalesced.Load(),
		StaleDrops:      m.staleDrops.Load(),
		Requeues:        m.requeues.Load(),
		WorkExecuted:    m.executed.Load(),
		Panics:          m.panics.Load(),
		RecordsOut:      m.recordsOut.Load(),
		SinkErrors:      m.sinkErrors.Load(),
		AvgLatencyNs:    avgLatency,
		WSClients:       m.wsClients.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.udpPackets, &m.filteredPackets, &m.failovers, &m.mbpPackets, &m.otherPackets,
		&m.decodeErrors, &m.coalesced, &m.staleDrops, &m.requeues, &m.executed,
		&m.panics, &m.recordsOut, &m.sinkErrors, &m.latencyCount,
	} {
		c.Store(0)
	}
	m.latencySumNs.Store(0)
	m.wsClients.Store(0)
}
