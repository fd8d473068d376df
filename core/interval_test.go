package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInterval_RejectsInvertedRange(t *testing.T) {
	_, err := NewInterval(10, 5, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInterval))

	iv, err := NewInterval(5, 5, "point")
	require.NoError(t, err)
	assert.Equal(t, int64(0), iv.Duration())
}

func TestInterval_ContainsAndOverlaps(t *testing.T) {
	iv := Interval[int]{Start: 10, End: 20}

	assert.True(t, iv.Contains(10), "start boundary is inclusive")
	assert.True(t, iv.Contains(20), "end boundary is inclusive")
	assert.False(t, iv.Contains(9))
	assert.False(t, iv.Contains(21))

	assert.True(t, iv.Overlaps(0, 10))
	assert.True(t, iv.Overlaps(20, 30))
	assert.True(t, iv.Overlaps(12, 15))
	assert.False(t, iv.Overlaps(21, 30))
	assert.Equal(t, int64(10), iv.Duration())
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(nil))
	assert.True(t, IsRecoverable(&ValidationError{Field: "tid"}))
	assert.True(t, IsRecoverable(ErrCorrupted))
	assert.False(t, IsRecoverable(ErrStoreDisposed))
	assert.False(t, IsRecoverable(ErrIndexOutOfRange))
}
