// Package checkpoint persists the durable commit point of an interval store.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/sys"
)

// FileName and TempFileName are the names used inside a store directory.
var (
	FileName     = core.CheckpointFileName
	TempFileName = core.FormatTempFilename(core.CheckpointFileName, "tmp")
	MagicNumber  = core.CheckpointMagicNumber
)

// Checkpoint is re-exported for callers that only deal with this package.
type Checkpoint = core.Checkpoint

// encodedSize: magic, version, committed, offset, complete, crc.
const encodedSize = 4 + 1 + 8 + 8 + 1 + 4

func encode(cp Checkpoint) []byte {
	buf := make([]byte, encodedSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicNumber)
	buf[4] = core.FormatVersion
	binary.LittleEndian.PutUint64(buf[5:13], cp.Committed)
	binary.LittleEndian.PutUint64(buf[13:21], uint64(cp.DataOffset))
	if cp.Complete {
		buf[21] = 1
	}
	binary.LittleEndian.PutUint32(buf[22:26], crc32.ChecksumIEEE(buf[:22]))
	return buf
}

// Write atomically writes the checkpoint data to a file in the given directory
// using write-to-temp, fsync, rename.
func Write(dir string, cp Checkpoint) error {
	tempPath := filepath.Join(dir, TempFileName)
	file, err := sys.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}

	if _, err := file.Write(encode(cp)); err != nil {
		file.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temp checkpoint file: %w", err)
	}
	// Close before rename for Windows.
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp checkpoint file before rename: %w", err)
	}

	finalPath := filepath.Join(dir, FileName)
	if err := sys.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to rename temp checkpoint file to final name: %w", err)
	}
	return nil
}

// Read reads the checkpoint data from the file in the given directory.
// It returns the checkpoint data and a boolean indicating if the file existed.
// If the file does not exist, it returns a zero-value Checkpoint and no error.
// A file that exists but fails validation yields an error wrapping core.ErrCorrupted.
func Read(dir string) (Checkpoint, bool, error) {
	path := filepath.Join(dir, FileName)
	file, err := sys.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, encodedSize)
	if _, err := io.ReadFull(file, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Checkpoint{}, true, fmt.Errorf("%w: truncated checkpoint file", core.ErrCorrupted)
		}
		return Checkpoint{}, true, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != MagicNumber {
		return Checkpoint{}, true, fmt.Errorf("%w: invalid checkpoint magic number: got %x, want %x", core.ErrCorrupted, magic, MagicNumber)
	}
	if buf[4] != core.FormatVersion {
		return Checkpoint{}, true, fmt.Errorf("%w: unsupported checkpoint version %d", core.ErrCorrupted, buf[4])
	}
	if got, want := crc32.ChecksumIEEE(buf[:22]), binary.LittleEndian.Uint32(buf[22:26]); got != want {
		return Checkpoint{}, true, fmt.Errorf("%w: checkpoint checksum mismatch", core.ErrCorrupted)
	}

	return Checkpoint{
		Committed:  binary.LittleEndian.Uint64(buf[5:13]),
		DataOffset: int64(binary.LittleEndian.Uint64(buf[13:21])),
		Complete:   buf[21] == 1,
	}, true, nil
}
