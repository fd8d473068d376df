package core

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeHeader(t *testing.T, h FileHeader) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	return buf.Bytes()
}

func TestFileHeader_RoundTrip(t *testing.T) {
	h := NewFileHeader(RecordLogMagicNumber, CompressionLZ4)
	data := encodeHeader(t, h)
	assert.Len(t, data, FileHeaderSize)

	got, err := DecodeFileHeader(data, RecordLogMagicNumber)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, h.CreatedAt, got.Created().UnixNano())
}

func TestDecodeFileHeader_Invalid(t *testing.T) {
	valid := NewFileHeader(RecordLogMagicNumber, CompressionNone)

	testCases := []struct {
		name string
		data func() []byte
	}{
		{"Truncated", func() []byte { return encodeHeader(t, valid)[:FileHeaderSize-1] }},
		{"WrongMagic", func() []byte {
			h := valid
			h.Magic = CheckpointMagicNumber
			return encodeHeader(t, h)
		}},
		{"FutureVersion", func() []byte {
			h := valid
			h.Version = FormatVersion + 1
			return encodeHeader(t, h)
		}},
		{"UnknownCompression", func() []byte {
			h := valid
			h.Compression = CompressionZSTD + 1
			return encodeHeader(t, h)
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFileHeader(tc.data(), RecordLogMagicNumber)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupted)
		})
	}
}
