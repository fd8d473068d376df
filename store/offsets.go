package store

import "sync/atomic"

const tableChunkSize = 4096

// table is an array indexed from zero that grows one chunk at a time.
// Only the writer calls set; readers call get for indexes below the
// published count, so every slot they touch was written before the count
// was published. Chunks are never moved, so growing never races a reader.
type table[T any] struct {
	chunks atomic.Pointer[[]*[tableChunkSize]T]
}

func (t *table[T]) set(i uint64, v T) {
	c := i / tableChunkSize
	var tbl []*[tableChunkSize]T
	if p := t.chunks.Load(); p != nil {
		tbl = *p
	}
	if c >= uint64(len(tbl)) {
		grown := make([]*[tableChunkSize]T, len(tbl), len(tbl)+1)
		copy(grown, tbl)
		grown = append(grown, new([tableChunkSize]T))
		t.chunks.Store(&grown)
		tbl = grown
	}
	tbl[c][i%tableChunkSize] = v
}

func (t *table[T]) get(i uint64) T {
	tbl := *t.chunks.Load()
	return tbl[i/tableChunkSize][i%tableChunkSize]
}
