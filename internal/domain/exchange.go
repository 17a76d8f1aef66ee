package domain

import (
	"fmt"
	"strings"
)

// Exchange selects the feed codec at startup.
type Exchange string

const (
	NEQ Exchange = "NEQ"
	NFO Exchange = "NFO"
	NCD Exchange = "NCD"
	BSE Exchange = "BSE"
	MCX Exchange = "MCX"
)

// ParseExchange accepts the exchange name in any case.
func ParseExchange(s string) (Exchange, error) {
	switch ex := Exchange(strings.ToUpper(strings.TrimSpace(s))); ex {
	case NEQ, NFO, NCD, BSE, MCX:
		return ex, nil
	default:
		return "", fmt.Errorf("unknown exchange %q", s)
	}
}

// IsNSE reports whether the exchange uses the NSE broadcast framing.
func (e Exchange) IsNSE() bool {
	return e == NEQ || e == NFO || e == NCD
}

// DisplayCodes lists the message codes that carry a market picture for
// this exchange.
func (e Exchange) DisplayCodes() []int32 {
	switch e {
	case BSE:
		return []int32{CodeBseMBP}
	case NEQ, NFO, NCD:
		return []int32{CodeNseOnlyMBP, CodeNseOnlyMBPEq, CodeNseMboMbp}
	case MCX:
		return []int32{CodeMcxSnapshot}
	default:
		return nil
	}
}
