package core

import "fmt"

// This file centralizes constants related to file formats, magic numbers,
// and file names used by persisted interval stores.

// --- Magic Numbers ---
const (
	// RecordLogMagicNumber identifies an interval record log file.
	RecordLogMagicNumber uint32 = 0x49565243 // "IVRC"
	// CheckpointMagicNumber identifies a store durability checkpoint.
	CheckpointMagicNumber uint32 = 0x54504B43
)

// --- File Names ---
const (
	// RecordLogFileName is the file holding every interval record in insertion order.
	RecordLogFileName = "intervals.log"
	// CheckpointFileName is the name of the file storing checkpoint information.
	CheckpointFileName = "CHECKPOINT"
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version for all persistent file formats.
	FormatVersion uint8 = 1
)

const (
	// DefaultBatchSize is the number of appends between two durability checkpoints.
	DefaultBatchSize = 10000
	// DefaultPageSize is the number of closed intervals per page checkpoint.
	DefaultPageSize = 10000
)

// Checkpoint stores the state of the last durable commit of a store.
type Checkpoint struct {
	// Committed is the number of intervals known to be on disk.
	Committed uint64
	// DataOffset is the record log size covering exactly Committed records.
	DataOffset int64
	// Complete is set once the producer reported the end of construction.
	Complete bool
}

func FormatTempFilename(prefix, postfix string) string {
	return fmt.Sprintf("%s.%s", prefix, postfix)
}
