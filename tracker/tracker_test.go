package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_BeginEnd(t *testing.T) {
	tr := New[int, string](Overwrite)

	_, displaced := tr.Begin(1, 100, "read")
	assert.False(t, displaced)
	assert.Equal(t, 1, tr.Len())

	e, ok := tr.End(1)
	require.True(t, ok)
	assert.Equal(t, Entry[int, string]{Key: 1, Start: 100, Partial: "read"}, e)
	assert.Equal(t, 0, tr.Len())

	_, ok = tr.End(1)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), tr.Stats().Misses)
}

func TestTracker_DuplicatePolicies(t *testing.T) {
	testCases := []struct {
		name          string
		policy        DuplicatePolicy
		wantStart     int64
		wantDisplaced bool
	}{
		{name: "Overwrite", policy: Overwrite, wantStart: 20},
		{name: "RejectDuplicate", policy: RejectDuplicate, wantStart: 10},
		{name: "EmitTruncated", policy: EmitTruncated, wantStart: 20, wantDisplaced: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := New[string, int](tc.policy)
			tr.Begin("tid-7", 10, 1)
			displaced, ok := tr.Begin("tid-7", 20, 2)

			assert.Equal(t, tc.wantDisplaced, ok)
			if tc.wantDisplaced {
				assert.Equal(t, int64(10), displaced.Start)
				assert.Equal(t, 1, displaced.Partial)
			}
			e, found := tr.Peek("tid-7")
			require.True(t, found)
			assert.Equal(t, tc.wantStart, e.Start)
			assert.Equal(t, uint64(1), tr.Stats().Duplicates)
			assert.Equal(t, 1, tr.Len())
		})
	}
}

func TestTracker_Discard(t *testing.T) {
	tr := New[int, struct{}](Overwrite)
	tr.Begin(1, 1, struct{}{})
	tr.Begin(2, 2, struct{}{})

	assert.Equal(t, 2, tr.Discard())
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, uint64(2), tr.Stats().Abandoned)
	assert.Equal(t, 0, tr.Discard())
}

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{
		"":          Overwrite,
		"overwrite": Overwrite,
		"Reject":    RejectDuplicate,
		" truncate": EmitTruncated,
	} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if in != "" {
			assert.Equal(t, want.String(), got.String())
		}
	}
	_, err := ParseDuplicatePolicy("merge")
	assert.Error(t, err)
}
