package curriculum

import (
	"fmt"
	"time"

	"github.com/pot-code/curriculum/internal/domain"
)

// Event course lifecycle event
type Event int

// lifecycle events
const (
	EventPublish Event = iota
	EventUnpublish
)

// Transition computes the state reached from `from` on ev.
// Publishing requires at least one lesson whatever the current state.
func Transition(from Status, ev Event, lessonCount int) (Status, error) {
	switch ev {
	case EventPublish:
		if lessonCount < 1 {
			return from, ErrPublishPrecondition
		}
		return StatusPublished, nil
	case EventUnpublish:
		return StatusDraft, nil
	}
	return from, fmt.Errorf("unknown course event %d", int(ev))
}

// Publish moves c to Published and bumps UpdatedAt, c is untouched on error
func Publish(c *CourseModel, lessonCount int, at time.Time) error {
	to, err := Transition(c.Status, EventPublish, lessonCount)
	if err != nil {
		return err
	}
	c.Status = to
	c.UpdatedAt = at
	return nil
}

// Unpublish moves c to Draft, it is a no-op on a Draft course
func Unpublish(c *CourseModel, at time.Time) (changed bool) {
	if c.Status == StatusDraft {
		return false
	}
	c.Status, _ = Transition(c.Status, EventUnpublish, 0)
	c.UpdatedAt = at
	return true
}

// CanEnroll only published courses accept enrollments
func CanEnroll(c *CourseModel) error {
	if c.Status != StatusPublished {
		return ErrCourseNotAvailable
	}
	return nil
}

// CanView admins see every course, learners only published ones
func CanView(c *CourseModel, actor domain.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return CanEnroll(c)
}
