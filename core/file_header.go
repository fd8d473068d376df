package core

import (
	"encoding/binary"
	"fmt"
	"time"
)

// FileHeader opens every record log. It is encoded little-endian with
// encoding/binary, so every field must keep a fixed size.
type FileHeader struct {
	Magic       uint32
	Version     uint8
	Compression CompressionType
	CreatedAt   int64 // UnixNano
}

// FileHeaderSize is the encoded size of a FileHeader.
var FileHeaderSize = binary.Size(FileHeader{})

// NewFileHeader stamps a header for a file created now.
func NewFileHeader(magic uint32, compression CompressionType) FileHeader {
	return FileHeader{
		Magic:       magic,
		Version:     FormatVersion,
		Compression: compression,
		CreatedAt:   time.Now().UnixNano(),
	}
}

// Created returns the creation time recorded in the header.
func (h FileHeader) Created() time.Time {
	return time.Unix(0, h.CreatedAt)
}

// Validate checks the magic number, format version and compression.
func (h FileHeader) Validate(magic uint32) error {
	if h.Magic != magic {
		return fmt.Errorf("%w: invalid magic number: got %x, want %x", ErrCorrupted, h.Magic, magic)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d (want %d)", ErrCorrupted, h.Version, FormatVersion)
	}
	if h.Compression > CompressionZSTD {
		return fmt.Errorf("%w: unknown compression %d", ErrCorrupted, h.Compression)
	}
	return nil
}

// DecodeFileHeader decodes buf and validates it against magic.
func DecodeFileHeader(buf []byte, magic uint32) (FileHeader, error) {
	var h FileHeader
	if len(buf) < FileHeaderSize {
		return h, fmt.Errorf("%w: header truncated to %d bytes", ErrCorrupted, len(buf))
	}
	if _, err := binary.Decode(buf, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: undecodable header: %v", ErrCorrupted, err)
	}
	return h, h.Validate(magic)
}
