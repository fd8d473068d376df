// Package recordlog implements the append-only file that holds every
// interval record of a store in insertion order.
//
// Layout: a core.FileHeader followed by records framed as
//
//	length (4 bytes) | data (variable) | checksum (4 bytes, CRC32 IEEE of data)
//
// Records are addressed by the byte offset of their length prefix.
package recordlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/sys"
)

// MaxRecordSize bounds the length prefix accepted when reading.
const MaxRecordSize = 16 * 1024 * 1024

// HeaderSize is the size of the file header preceding the first record.
var HeaderSize = int64(core.FileHeaderSize)

// ErrChecksumMismatch is returned when a record's CRC does not match its data.
var ErrChecksumMismatch = errors.New("record checksum mismatch")

// Writer appends records to a log file.
type Writer struct {
	file   sys.FileHandle
	path   string
	writer *bufio.Writer
	offset int64 // logical end of the log, including buffered bytes
	header core.FileHeader
}

// Create creates a new, empty log at path with the given compression recorded in its header.
func Create(path string, compression core.CompressionType) (*Writer, error) {
	file, err := sys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create record log %s: %w", path, err)
	}

	header := core.NewFileHeader(core.RecordLogMagicNumber, compression)
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write record log header to %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to sync record log header to %s: %w", path, err)
	}

	return &Writer{
		file:   file,
		path:   path,
		writer: bufio.NewWriterSize(file, 64*1024),
		offset: HeaderSize,
		header: header,
	}, nil
}

// OpenForAppend reopens an existing log, discards everything after
// validOffset (bytes written after the last durable checkpoint) and
// positions the writer there.
func OpenForAppend(path string, validOffset int64) (*Writer, error) {
	file, err := sys.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record log %s for append: %w", path, err)
	}
	header, err := readHeader(file, path)
	if err != nil {
		file.Close()
		return nil, err
	}
	if validOffset < HeaderSize {
		file.Close()
		return nil, fmt.Errorf("%w: offset %d is inside the header of %s", core.ErrCorrupted, validOffset, path)
	}
	if err := file.Truncate(validOffset); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate record log %s to %d: %w", path, validOffset, err)
	}
	if _, err := file.Seek(validOffset, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek record log %s: %w", path, err)
	}
	return &Writer{
		file:   file,
		path:   path,
		writer: bufio.NewWriterSize(file, 64*1024),
		offset: validOffset,
		header: header,
	}, nil
}

// WriteRecord buffers one record and returns the offset it starts at.
func (w *Writer) WriteRecord(data []byte) (int64, error) {
	if w.file == nil {
		return 0, os.ErrClosed
	}
	if len(data) > MaxRecordSize {
		return 0, fmt.Errorf("record of %d bytes exceeds limit %d", len(data), MaxRecordSize)
	}
	start := w.offset

	var frame [core.LengthSize]byte
	binary.LittleEndian.PutUint32(frame[:], uint32(len(data)))
	if _, err := w.writer.Write(frame[:]); err != nil {
		return 0, fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write record data: %w", err)
	}
	binary.LittleEndian.PutUint32(frame[:], crc32.ChecksumIEEE(data))
	if _, err := w.writer.Write(frame[:]); err != nil {
		return 0, fmt.Errorf("failed to write record checksum: %w", err)
	}

	w.offset += int64(len(data)) + core.RecordOverhead
	return start, nil
}

// Flush hands buffered records to the operating system so that readers
// sharing the file can see them.
func (w *Writer) Flush() error {
	if w.file == nil {
		return os.ErrClosed
	}
	return w.writer.Flush()
}

// Sync flushes the buffered writer and syncs the file to disk.
func (w *Writer) Sync() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Offset returns the logical end of the log.
func (w *Writer) Offset() int64 {
	return w.offset
}

// Header returns the header the log was created with.
func (w *Writer) Header() core.FileHeader {
	return w.header
}

// Path returns the file path of the log.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the log file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Reader gives random access to records by offset. It is safe for
// concurrent use because it only issues positioned reads.
type Reader struct {
	file   sys.FileHandle
	path   string
	header core.FileHeader
}

// OpenReader opens path and validates its header.
func OpenReader(path string) (*Reader, error) {
	file, err := sys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record log for reading %s: %w", path, err)
	}
	header, err := readHeader(file, path)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Reader{file: file, path: path, header: header}, nil
}

func readHeader(file sys.FileHandle, path string) (core.FileHeader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return core.FileHeader{}, fmt.Errorf("%w: record log %s is empty or truncated at header", core.ErrCorrupted, path)
		}
		return core.FileHeader{}, fmt.Errorf("failed to read record log header from %s: %w", path, err)
	}
	header, err := core.DecodeFileHeader(buf, core.RecordLogMagicNumber)
	if err != nil {
		return header, fmt.Errorf("record log %s: %w", path, err)
	}
	return header, nil
}

// Header returns the validated file header.
func (r *Reader) Header() core.FileHeader {
	return r.header
}

// ReadAt reads the record starting at off and returns its data and the
// offset of the following record.
func (r *Reader) ReadAt(off int64) ([]byte, int64, error) {
	if r.file == nil {
		return nil, 0, os.ErrClosed
	}
	var frame [core.LengthSize]byte
	if _, err := r.file.ReadAt(frame[:], off); err != nil {
		return nil, 0, err
	}
	length := binary.LittleEndian.Uint32(frame[:])
	if length > MaxRecordSize {
		return nil, 0, fmt.Errorf("%w: record at %d claims %d bytes", core.ErrCorrupted, off, length)
	}

	body := make([]byte, int(length)+core.ChecksumSize)
	if _, err := r.file.ReadAt(body, off+core.LengthSize); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}
	data := body[:length]
	want := binary.LittleEndian.Uint32(body[length:])
	if got := crc32.ChecksumIEEE(data); got != want {
		return nil, 0, fmt.Errorf("%w at offset %d: got %08x, want %08x", ErrChecksumMismatch, off, got, want)
	}
	return data, off + int64(length) + core.RecordOverhead, nil
}

// Scan calls fn for every record in [HeaderSize, limit) in order. It stops
// at the first read error, which is returned wrapped in core.ErrCorrupted
// when the log is shorter than limit or a checksum fails.
func (r *Reader) Scan(limit int64, fn func(off int64, data []byte) error) error {
	off := HeaderSize
	for off < limit {
		data, next, err := r.ReadAt(off)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrChecksumMismatch) {
				return fmt.Errorf("%w: record log %s: %v", core.ErrCorrupted, r.path, err)
			}
			return err
		}
		if next > limit {
			return fmt.Errorf("%w: record at %d crosses committed offset %d", core.ErrCorrupted, off, limit)
		}
		if err := fn(off, data); err != nil {
			return err
		}
		off = next
	}
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
