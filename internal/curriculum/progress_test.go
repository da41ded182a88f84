package curriculum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentComplete(t *testing.T) {
	seq := []string{"a", "b", "c", "d"}

	assert.Equal(t, 0, PercentComplete(seq, nil))
	assert.Equal(t, 25, PercentComplete(seq, map[string]bool{"a": true}))
	assert.Equal(t, 100, PercentComplete(seq, map[string]bool{"a": true, "b": true, "c": true, "d": true}))
	assert.Equal(t, 0, PercentComplete(nil, map[string]bool{"a": true}))
	assert.Equal(t, 67, PercentComplete([]string{"a", "b", "c"}, map[string]bool{"a": true, "b": true}))
	assert.Equal(t, 25, PercentComplete(seq, map[string]bool{"a": true, "gone": true}), "completions outside the sequence are ignored")
}

func TestNeighbors(t *testing.T) {
	seq := []string{"a", "b", "c"}

	tests := []struct {
		current, prev, next string
	}{
		{"b", "a", "c"},
		{"a", "", "b"},
		{"c", "b", ""},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			prev, next, err := Neighbors(seq, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.prev, prev)
			assert.Equal(t, tt.next, next)
		})
	}

	_, _, err := Neighbors(seq, "course-1")
	assert.Equal(t, ErrLessonNotInSequence, err)

	prev, next, err := Neighbors([]string{"a"}, "a")
	require.NoError(t, err)
	assert.Empty(t, prev)
	assert.Empty(t, next)
}

// racingStore reports the completion as missing once, then as already existing
type racingStore struct {
	winner  *CompletionModel
	lookups int
}

func (s *racingStore) FindCompletion(ctx context.Context, learnerID, lessonID string) (*CompletionModel, error) {
	s.lookups++
	if s.lookups == 1 {
		return nil, nil
	}
	return s.winner, nil
}

func (s *racingStore) CreateCompletion(ctx context.Context, c *CompletionModel) (bool, error) {
	return false, nil
}

func TestProgressTracker_CompleteLesson(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		repo := NewMemoryRepository()
		pt := NewProgressTracker(repo)

		first, err := pt.CompleteLesson(ctx, "u1", "l1")
		require.NoError(t, err)
		assert.True(t, first.Created)

		second, err := pt.CompleteLesson(ctx, "u1", "l1")
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.Completion.CreatedAt, second.Completion.CreatedAt)
		assert.Len(t, repo.completions, 1)
	})

	t.Run("lost race returns the existing record", func(t *testing.T) {
		store := &racingStore{winner: &CompletionModel{LearnerID: "u1", LessonID: "l1"}}
		pt := NewProgressTracker(store)

		result, err := pt.CompleteLesson(ctx, "u1", "l1")
		require.NoError(t, err)
		assert.False(t, result.Created)
		assert.Same(t, store.winner, result.Completion)
	})
}
