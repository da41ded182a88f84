package curriculum

import "errors"

var (
	// ErrInvalidReorderSet submitted sequence is not a permutation of the course lessons
	ErrInvalidReorderSet = errors.New("lesson sequence is not a permutation of the course lessons")
	// ErrPublishPrecondition course without lessons can not be published
	ErrPublishPrecondition = errors.New("course has no lessons")
	// ErrCourseNotAvailable course is not published
	ErrCourseNotAvailable = errors.New("course is not available")
	// ErrNotEnrolled learner is not enrolled in the lesson's course
	ErrNotEnrolled = errors.New("not enrolled in course")
	// ErrLessonNotInSequence lesson is absent from the course sequence
	ErrLessonNotInSequence = errors.New("lesson is not in the course sequence")
	// ErrInvalidOrder lesson orders start at 1
	ErrInvalidOrder = errors.New("lesson order must be positive")
	// ErrOrderConflict order value is taken by another lesson of the course
	ErrOrderConflict = errors.New("lesson order is taken")
	// ErrCourseNotFound .
	ErrCourseNotFound = errors.New("no such course")
	// ErrLessonNotFound .
	ErrLessonNotFound = errors.New("no such lesson")
)
