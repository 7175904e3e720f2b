package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypingStartStop(t *testing.T) {
	agg := NewTypingAggregator()

	assert.ElementsMatch(t, []int64{1}, agg.Start("room", 1))
	assert.ElementsMatch(t, []int64{1, 2}, agg.Start("room", 2))

	// Starting twice does not duplicate
	assert.ElementsMatch(t, []int64{1, 2}, agg.Start("room", 1))

	assert.ElementsMatch(t, []int64{2}, agg.Stop("room", 1))
	assert.Nil(t, agg.Stop("room", 2))
	assert.Nil(t, agg.Snapshot("room"))
}

func TestTypingStopUnknownRoom(t *testing.T) {
	agg := NewTypingAggregator()
	assert.Nil(t, agg.Stop("nowhere", 1))
}

func TestTypingRoomsAreIndependent(t *testing.T) {
	agg := NewTypingAggregator()
	agg.Start("a", 1)
	agg.Start("b", 1)
	agg.Start("b", 2)

	assert.ElementsMatch(t, []int64{1}, agg.Snapshot("a"))
	assert.ElementsMatch(t, []int64{1, 2}, agg.Snapshot("b"))
}

func TestTypingPurgeUser(t *testing.T) {
	agg := NewTypingAggregator()
	agg.Start("a", 1)
	agg.Start("b", 1)
	agg.Start("b", 2)
	agg.Start("c", 3)

	// A disconnect clears the user everywhere and reports affected rooms
	affected := agg.PurgeUser(1)

	assert.Len(t, affected, 2)
	assert.Nil(t, affected["a"])
	assert.ElementsMatch(t, []int64{2}, affected["b"])
	assert.NotContains(t, affected, "c")

	assert.Nil(t, agg.Snapshot("a"))
	assert.ElementsMatch(t, []int64{2}, agg.Snapshot("b"))
}
