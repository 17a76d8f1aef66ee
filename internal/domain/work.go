package domain

import "fmt"

// WorkKind is the closed set of packet classifications.
type WorkKind uint8

const (
	BseCompressed WorkKind = iota
	BseUncompressed
	NseUncompressed
	SegmentWise
	TokenWise
	McxDepth
)

// QueueCount is the size of the FIFO lane array: three fixed lanes plus
// one lane per possible segment byte.
const QueueCount = 3 + 256

var kindNames = [...]string{
	BseCompressed:   "bse_compressed",
	BseUncompressed: "bse_uncompressed",
	NseUncompressed: "nse_uncompressed",
	SegmentWise:     "segment_wise",
	TokenWise:       "token_wise",
	McxDepth:        "mcx_depth",
}

func (k WorkKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("work_kind(%d)", k)
}

// WorkType classifies what arrived. Segment is meaningful only for
// SegmentWise, Token only for TokenWise, Security only for McxDepth.
type WorkType struct {
	Kind     WorkKind
	Segment  uint8
	Token    int32
	Security int64
}

// Segment returns the SegmentWise work type for a segment id.
func Segment(id uint8) WorkType {
	return WorkType{Kind: SegmentWise, Segment: id}
}

// Token returns the TokenWise work type for an instrument token.
func Token(token int32) WorkType {
	return WorkType{Kind: TokenWise, Token: token}
}

// Security returns the McxDepth work type for an MCX security id.
func Security(id int64) WorkType {
	return WorkType{Kind: McxDepth, Security: id}
}

// Of returns a work type for one of the fixed FIFO kinds.
func Of(kind WorkKind) WorkType {
	return WorkType{Kind: kind}
}

// Coalescing reports whether the type is keyed in the registry rather
// than routed to a FIFO lane.
func (w WorkType) Coalescing() bool {
	return w.Kind == TokenWise || w.Kind == McxDepth
}

// QueueID maps FIFO kinds to their lane index. The second result is false
// for registry-keyed kinds.
func (w WorkType) QueueID() (int, bool) {
	switch w.Kind {
	case BseCompressed:
		return 0, true
	case BseUncompressed:
		return 1, true
	case NseUncompressed:
		return 2, true
	case SegmentWise:
		return 3 + int(w.Segment), true
	default:
		return 0, false
	}
}

func (w WorkType) String() string {
	switch w.Kind {
	case SegmentWise:
		return fmt.Sprintf("%s(%d)", w.Kind, w.Segment)
	case TokenWise:
		return fmt.Sprintf("%s(%d)", w.Kind, w.Token)
	case McxDepth:
		return fmt.Sprintf("%s(%d)", w.Kind, w.Security)
	default:
		return w.Kind.String()
	}
}
