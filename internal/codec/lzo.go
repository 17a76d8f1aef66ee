package codec

import (
	"bytes"
	"fmt"

	"feed_go/internal/domain"

	lzo "github.com/rasky/go-lzo"
)

// DecompressLZO decodes an LZO1X block into dst and returns the written
// prefix of dst. Output that does not fit dst is an error.
func DecompressLZO(src, dst []byte) (out []byte, err error) {
	if len(src) < 3 {
		return nil, fmt.Errorf("%w: input too short", domain.ErrDecompress)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", domain.ErrDecompress, r)
		}
	}()

	raw, err := lzo.Decompress1X(bytes.NewReader(src), len(src), len(dst))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecompress, err)
	}
	if len(raw) > len(dst) {
		return nil, fmt.Errorf("%w: output overrun", domain.ErrDecompress)
	}
	return dst[:copy(dst, raw)], nil
}
