// Package compressors implements core.Compressor for the codecs a record
// log may be written with.
package compressors

import (
	"fmt"

	"github.com/INLOpen/nexustrace/core"
)

// ForType returns the compressor registered for t.
func ForType(t core.CompressionType) (core.Compressor, error) {
	switch t {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return &SnappyCompressor{}, nil
	case core.CompressionLZ4:
		return &LZ4Compressor{}, nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: unknown compression type %d", core.ErrCorrupted, t)
	}
}
