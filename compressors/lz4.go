package compressors

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/nexustrace/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements the Compressor interface using LZ4 blocks.
// The block format does not carry the original length, so every compressed
// payload is prefixed with it as a uvarint.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

// maxLZ4Payload bounds the size announced by a (possibly corrupt) prefix.
const maxLZ4Payload = 64 * 1024 * 1024

func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	core.WriteUvarint(dst, uint64(len(src)))
	if len(src) == 0 {
		return nil
	}
	tmp := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, tmp, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		// Incompressible input: CompressBlock reports 0 and the caller stores raw bytes.
		dst.WriteByte(0)
		dst.Write(src)
		return nil
	}
	dst.WriteByte(1)
	dst.Write(tmp[:n])
	return nil
}

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("lz4 decompress error: bad length prefix")
	}
	if size > maxLZ4Payload {
		return nil, fmt.Errorf("lz4 decompress error: payload of %d bytes exceeds limit", size)
	}
	data = data[n:]
	if size == 0 {
		return []byte{}, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("lz4 decompress error: missing block flag")
	}
	flag, body := data[0], data[1:]
	if flag == 0 {
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("lz4 decompress error: raw block is %d bytes, want %d", len(body), size)
		}
		return append([]byte(nil), body...), nil
	}
	out := make([]byte, size)
	m, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if uint64(m) != size {
		return nil, fmt.Errorf("lz4 decompress error: got %d bytes, want %d", m, size)
	}
	return out, nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
