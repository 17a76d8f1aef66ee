package domain

// Output receives finished records. Implementations must be safe for
// concurrent use; Write must not block the caller for long.
type Output interface {
	Write(rec *Record)
}

// Sink is one downstream target behind the output fan-out.
type Sink interface {
	Name() string
	Write(rec *Record) error
	Close() error
}

// InstrumentLookup resolves a token to its trading symbol.
type InstrumentLookup interface {
	Symbol(token int64) (string, bool)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(rec *Record)

func (f OutputFunc) Write(rec *Record) { f(rec) }
