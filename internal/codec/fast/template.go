// Package fast decodes FAST 1.1 encoded market data streams driven by an
// XML template definition.
package fast

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind is the wire type of an instruction.
type Kind uint8

const (
	KindUInt32 Kind = iota
	KindInt32
	KindUInt64
	KindInt64
	KindDecimal
	KindASCII
	KindUnicode
	KindBytes
	KindSequence
	KindGroup
)

func (k Kind) unsigned() bool { return k == KindUInt32 || k == KindUInt64 }
func (k Kind) signed() bool   { return k == KindInt32 || k == KindInt64 }

// Operator is a field encoding operator.
type Operator uint8

const (
	OpNone Operator = iota
	OpConstant
	OpDefault
	OpCopy
	OpIncrement
	OpDelta
	OpTail
)

// Instruction is one field of a template, sequence or group.
type Instruction struct {
	Name     string
	Kind     Kind
	Optional bool
	Op       Operator
	Key      string
	Initial  any

	// Composite decimal parts; nil for single-operator decimals.
	Exponent *Instruction
	Mantissa *Instruction

	// Sequence length and the fields of a sequence element or group.
	Length *Instruction
	Fields []*Instruction
	pmap   bool

	ref string
}

// usesBit reports whether the instruction consumes a bit of the enclosing
// presence map.
func (in *Instruction) usesBit() bool {
	switch in.Kind {
	case KindSequence:
		return in.Length.usesBit()
	case KindGroup:
		return in.Optional
	case KindDecimal:
		if in.Exponent != nil {
			return in.Exponent.usesBit() || in.Mantissa.usesBit()
		}
	}
	switch in.Op {
	case OpConstant:
		return in.Optional
	case OpDefault, OpCopy, OpIncrement, OpTail:
		return true
	}
	return false
}

// Template is a decodable message layout.
type Template struct {
	ID     uint32
	Name   string
	Fields []*Instruction
}

// Templates is a parsed template set.
type Templates struct {
	byID   map[uint32]*Template
	byName map[string]*Template
}

// Lookup returns the template with the given id.
func (ts *Templates) Lookup(id uint32) (*Template, bool) {
	t, ok := ts.byID[id]
	return t, ok
}

// Len returns the number of templates.
func (ts *Templates) Len() int { return len(ts.byID) }

// LoadTemplates reads a template file.
func LoadTemplates(path string) (*Templates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()
	return ParseTemplates(f)
}

type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
}

func (n *node) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ParseTemplates parses a FAST 1.1 template document.
func ParseTemplates(r io.Reader) (*Templates, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	ts := &Templates{byID: map[uint32]*Template{}, byName: map[string]*Template{}}
	var tmpls []node
	switch root.XMLName.Local {
	case "templates":
		tmpls = root.Nodes
	case "template":
		tmpls = []node{root}
	default:
		return nil, fmt.Errorf("unexpected root element %q", root.XMLName.Local)
	}

	for i := range tmpls {
		n := &tmpls[i]
		if n.XMLName.Local != "template" {
			continue
		}
		id, err := strconv.ParseUint(n.attr("id"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("template %q: bad id: %w", n.attr("name"), err)
		}
		fields, err := parseFields(n.Nodes)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", n.attr("name"), err)
		}
		t := &Template{ID: uint32(id), Name: n.attr("name"), Fields: fields}
		ts.byID[t.ID] = t
		if t.Name != "" {
			ts.byName[t.Name] = t
		}
	}

	for _, t := range ts.byID {
		fields, err := ts.inline(t.Fields, 0)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		t.Fields = fields
	}
	return ts, nil
}

// inline replaces static template references with the referenced fields.
func (ts *Templates) inline(fields []*Instruction, depth int) ([]*Instruction, error) {
	if depth > 16 {
		return nil, fmt.Errorf("template reference cycle")
	}
	out := make([]*Instruction, 0, len(fields))
	for _, f := range fields {
		if f.ref != "" {
			t, ok := ts.byName[f.ref]
			if !ok {
				return nil, fmt.Errorf("unknown templateRef %q", f.ref)
			}
			sub, err := ts.inline(t.Fields, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if f.Kind == KindSequence || f.Kind == KindGroup {
			sub, err := ts.inline(f.Fields, depth+1)
			if err != nil {
				return nil, err
			}
			f.Fields = sub
			f.pmap = needsPmap(sub)
		}
		out = append(out, f)
	}
	return out, nil
}

func needsPmap(fields []*Instruction) bool {
	for _, f := range fields {
		if f.usesBit() {
			return true
		}
	}
	return false
}

var kinds = map[string]Kind{
	"uInt32":     KindUInt32,
	"int32":      KindInt32,
	"uInt64":     KindUInt64,
	"int64":      KindInt64,
	"decimal":    KindDecimal,
	"string":     KindASCII,
	"byteVector": KindBytes,
	"sequence":   KindSequence,
	"group":      KindGroup,
}

var operators = map[string]Operator{
	"constant":  OpConstant,
	"default":   OpDefault,
	"copy":      OpCopy,
	"increment": OpIncrement,
	"delta":     OpDelta,
	"tail":      OpTail,
}

func parseFields(nodes []node) ([]*Instruction, error) {
	var out []*Instruction
	for i := range nodes {
		n := &nodes[i]
		switch n.XMLName.Local {
		case "templateRef":
			out = append(out, &Instruction{ref: n.attr("name")})
			continue
		case "length", "typeRef":
			continue
		}
		in, err := parseInstruction(n)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func parseInstruction(n *node) (*Instruction, error) {
	kind, ok := kinds[n.XMLName.Local]
	if !ok {
		return nil, fmt.Errorf("unsupported element %q", n.XMLName.Local)
	}
	in := &Instruction{
		Name:     n.attr("name"),
		Kind:     kind,
		Optional: n.attr("presence") == "optional",
	}
	if kind == KindASCII && n.attr("charset") == "unicode" {
		in.Kind = KindUnicode
	}

	switch kind {
	case KindSequence:
		in.Length = &Instruction{Name: in.Name + "Length", Kind: KindUInt32, Optional: in.Optional}
		for i := range n.Nodes {
			c := &n.Nodes[i]
			if c.XMLName.Local != "length" {
				continue
			}
			if name := c.attr("name"); name != "" {
				in.Length.Name = name
			}
			if err := applyOperator(in.Length, c.Nodes); err != nil {
				return nil, err
			}
		}
		in.Length.Key = keyOr(in.Length.Key, in.Length.Name)
		fields, err := parseFields(n.Nodes)
		if err != nil {
			return nil, fmt.Errorf("sequence %q: %w", in.Name, err)
		}
		in.Fields = fields
		return in, nil
	case KindGroup:
		fields, err := parseFields(n.Nodes)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", in.Name, err)
		}
		in.Fields = fields
		return in, nil
	case KindDecimal:
		for i := range n.Nodes {
			c := &n.Nodes[i]
			switch c.XMLName.Local {
			case "exponent":
				in.Exponent = &Instruction{Name: in.Name + ".exponent", Kind: KindInt32, Optional: in.Optional}
				if err := applyOperator(in.Exponent, c.Nodes); err != nil {
					return nil, err
				}
				in.Exponent.Key = keyOr(in.Exponent.Key, in.Exponent.Name)
			case "mantissa":
				in.Mantissa = &Instruction{Name: in.Name + ".mantissa", Kind: KindInt64}
				if err := applyOperator(in.Mantissa, c.Nodes); err != nil {
					return nil, err
				}
				in.Mantissa.Key = keyOr(in.Mantissa.Key, in.Mantissa.Name)
			}
		}
		if in.Exponent != nil && in.Mantissa == nil {
			in.Mantissa = &Instruction{Name: in.Name + ".mantissa", Kind: KindInt64, Key: in.Name + ".mantissa"}
		}
		if in.Mantissa != nil && in.Exponent == nil {
			in.Exponent = &Instruction{Name: in.Name + ".exponent", Kind: KindInt32, Optional: in.Optional, Key: in.Name + ".exponent"}
		}
	}

	if err := applyOperator(in, n.Nodes); err != nil {
		return nil, fmt.Errorf("field %q: %w", in.Name, err)
	}
	in.Key = keyOr(in.Key, in.Name)
	return in, nil
}

func keyOr(key, name string) string {
	if key != "" {
		return key
	}
	return name
}

func applyOperator(in *Instruction, children []node) error {
	for i := range children {
		c := &children[i]
		op, ok := operators[c.XMLName.Local]
		if !ok {
			continue
		}
		in.Op = op
		in.Key = c.attr("key")
		for _, a := range c.Attrs {
			if a.Name.Local != "value" {
				continue
			}
			v, err := initialValue(in.Kind, a.Value)
			if err != nil {
				return err
			}
			in.Initial = v
		}
		if op == OpConstant && in.Initial == nil {
			return fmt.Errorf("constant operator without value")
		}
		return nil
	}
	return nil
}

func initialValue(k Kind, s string) (any, error) {
	switch {
	case k.unsigned():
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return v, nil
	case k.signed():
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return v, nil
	case k == KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return decValue{exp: int64(d.Exponent()), mant: d.Coefficient().Int64()}, nil
	case k == KindBytes:
		return []byte(s), nil
	default:
		return s, nil
	}
}
