package fast

import "github.com/shopspring/decimal"

// Group holds the decoded fields of a message, sequence element or group.
// Absent optional fields have no key. Values are uint64, int64,
// decimal.Decimal, string, []byte, []Group or Group.
type Group map[string]any

// Message is one decoded template instance.
type Message struct {
	TemplateID uint32
	Name       string
	Fields     Group
}

// Uint returns an unsigned field.
func (g Group) Uint(name string) (uint64, bool) {
	v, ok := g[name].(uint64)
	return v, ok
}

// Int returns a signed field.
func (g Group) Int(name string) (int64, bool) {
	v, ok := g[name].(int64)
	return v, ok
}

// Decimal returns a decimal field.
func (g Group) Decimal(name string) (decimal.Decimal, bool) {
	v, ok := g[name].(decimal.Decimal)
	return v, ok
}

// String returns a string field.
func (g Group) String(name string) (string, bool) {
	v, ok := g[name].(string)
	return v, ok
}

// Bytes returns a byte vector field.
func (g Group) Bytes(name string) ([]byte, bool) {
	v, ok := g[name].([]byte)
	return v, ok
}

// Sequence returns the elements of a sequence field.
func (g Group) Sequence(name string) []Group {
	v, _ := g[name].([]Group)
	return v
}

// Group returns a nested group.
func (g Group) Group(name string) (Group, bool) {
	v, ok := g[name].(Group)
	return v, ok
}
