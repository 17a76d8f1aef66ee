package domain

import "fmt"

// Record is what the pipeline hands to Output. Payload is the wire form
// republished by byte-oriented sinks; Picture is set when the record is a
// market picture.
type Record struct {
	Exchange Exchange
	Code     int32
	Token    int64
	Payload  []byte
	Picture  *MarketPicture
}

// NewPictureRecord encodes pic and wraps it in a Record.
func NewPictureRecord(ex Exchange, pic *MarketPicture) (*Record, error) {
	payload, err := pic.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode picture %d: %w", pic.Token, err)
	}
	return &Record{
		Exchange: ex,
		Code:     pic.Header.MessageCode,
		Token:    pic.Token,
		Payload:  payload,
		Picture:  pic,
	}, nil
}

// NewRawRecord wraps an already normalized payload. The payload is copied
// so the source packet can be recycled.
func NewRawRecord(ex Exchange, code int32, payload []byte) *Record {
	return &Record{
		Exchange: ex,
		Code:     code,
		Payload:  append([]byte(nil), payload...),
	}
}
