package output

import (
	"io"
	"os"

	"feed_go/internal/domain"

	"github.com/sugawarayuuta/sonnet"
)

// StdoutSink prints one JSON line per record.
type StdoutSink struct {
	enc    *sonnet.Encoder
	lookup domain.InstrumentLookup
}

// NewStdoutSink writes to os.Stdout when w is nil.
func NewStdoutSink(w io.Writer, lookup domain.InstrumentLookup) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{enc: sonnet.NewEncoder(w), lookup: lookup}
}

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Write(rec *domain.Record) error {
	return s.enc.Encode(viewOf(rec, s.lookup))
}

func (s *StdoutSink) Close() error { return nil }
