package curriculum

import (
	"context"
	"math"
	"time"
)

// PercentComplete share of sequence completed, rounded to an integer in 0..100.
// Completed ids outside the sequence are ignored.
func PercentComplete(sequence []string, completed map[string]bool) int {
	if len(sequence) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(countCompleted(sequence, completed)) / float64(len(sequence))))
}

func countCompleted(sequence []string, completed map[string]bool) int {
	n := 0
	for _, id := range sequence {
		if completed[id] {
			n++
		}
	}
	return n
}

// Neighbors previous and next lesson of current by position, empty at the boundaries
func Neighbors(sequence []string, current string) (prev, next string, err error) {
	for i, id := range sequence {
		if id != current {
			continue
		}
		if i > 0 {
			prev = sequence[i-1]
		}
		if i < len(sequence)-1 {
			next = sequence[i+1]
		}
		return prev, next, nil
	}
	return "", "", ErrLessonNotInSequence
}

// ProgressTracker records lesson completions
type ProgressTracker struct {
	store CompletionStore
	now   func() time.Time
}

// NewProgressTracker .
func NewProgressTracker(store CompletionStore) *ProgressTracker {
	return &ProgressTracker{store: store, now: time.Now}
}

// CompleteLesson marks the lesson complete for the learner. Completing twice
// returns the existing record. Later lessons are never locked.
func (pt *ProgressTracker) CompleteLesson(ctx context.Context, learnerID, lessonID string) (*CompletionResult, error) {
	existing, err := pt.store.FindCompletion(ctx, learnerID, lessonID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &CompletionResult{Completion: existing}, nil
	}

	c := &CompletionModel{LearnerID: learnerID, LessonID: lessonID, CreatedAt: pt.now()}
	created, err := pt.store.CreateCompletion(ctx, c)
	if err != nil {
		return nil, err
	}
	if !created {
		// lost a race against a concurrent completion
		existing, err = pt.store.FindCompletion(ctx, learnerID, lessonID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			c = existing
		}
	}
	return &CompletionResult{Completion: c, Created: created}, nil
}
