package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChoiceQueue_SingleLiveChoice(t *testing.T) {
	var q ChoiceQueue
	first := &Choice{ID: "1", Kind: ChoiceOversplit}
	second := &Choice{ID: "2", Kind: ChoiceRetry}
	third := &Choice{ID: "3", Kind: ChoiceRetry}

	assert.True(t, q.Schedule(first))
	assert.False(t, q.Schedule(second))
	assert.False(t, q.Schedule(third))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 2, q.Queued())
	assert.Same(t, first, q.Current())

	assert.Nil(t, q.Promote(), "promote must not replace a live choice")

	assert.Same(t, first, q.Resolve())
	assert.Nil(t, q.Current())

	require.Same(t, second, q.Promote())
	assert.Same(t, second, q.Current())
	assert.Equal(t, 1, q.Queued())

	q.Resolve()
	require.Same(t, third, q.Promote())
	q.Resolve()

	assert.Nil(t, q.Promote())
	assert.Equal(t, 0, q.Len())
}

func TestChoiceQueue_Clear(t *testing.T) {
	var q ChoiceQueue
	q.Schedule(&Choice{ID: "1"})
	q.Schedule(&Choice{ID: "2"})

	q.Clear()

	assert.Nil(t, q.Current())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Resolve())
}
