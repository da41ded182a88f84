// Package curriculum implements course authoring and learner progression:
// lesson ordering, the course publication lifecycle and per-lesson completion.
package curriculum

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pot-code/curriculum/internal/domain"
)

// Status course lifecycle state
type Status int

// course states
const (
	StatusDraft Status = iota
	StatusPublished
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText renders the status as its name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText .
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus parse a status name, case insensitive
func ParseStatus(name string) (Status, error) {
	switch strings.ToLower(name) {
	case "draft":
		return StatusDraft, nil
	case "published":
		return StatusPublished, nil
	}
	return 0, fmt.Errorf("unknown course status %q", name)
}

// CourseModel .
type CourseModel struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Cover       string    `json:"cover"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LessonModel a lesson of a course. Order is unique within a course.
type LessonModel struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Media     string    `json:"media"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnrollmentModel pairs a learner with a course
type EnrollmentModel struct {
	LearnerID string    `json:"learner_id"`
	CourseID  string    `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CompletionModel its existence means the lesson is complete for the learner
type CompletionModel struct {
	LearnerID string    `json:"learner_id"`
	LessonID  string    `json:"lesson_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CompletionResult outcome of completing a lesson, Created is false when the completion already existed
type CompletionResult struct {
	Completion *CompletionModel `json:"completion"`
	Created    bool             `json:"created"`
}

// CourseQuery course search conditions
type CourseQuery struct {
	Status   *Status
	Keyword  string
	Page     int
	PageSize int
}

// CoursePage one page of search result
type CoursePage struct {
	Items    []*CourseModel `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// CourseSummary course with its counters, Enrolled and PercentComplete are for the caller
type CourseSummary struct {
	Course          *CourseModel `json:"course"`
	LessonCount     int          `json:"lesson_count"`
	EnrollmentCount int          `json:"enrollment_count"`
	Enrolled        bool         `json:"enrolled"`
	PercentComplete int          `json:"percent_complete"`
}

// LessonView lesson as seen by a caller
type LessonView struct {
	*LessonModel
	IsCompleted bool   `json:"is_completed"`
	Previous    string `json:"previous,omitempty"`
	Next        string `json:"next,omitempty"`
}

// ProgressModel learner progress over a course
type ProgressModel struct {
	CourseID        string `json:"course_id"`
	Total           int    `json:"total"`
	Completed       int    `json:"completed"`
	PercentComplete int    `json:"percent_complete"`
}

// CourseStat enrollment figures of one course
type CourseStat struct {
	CourseID       string  `json:"course_id"`
	Title          string  `json:"title"`
	Enrollments    int     `json:"enrollments"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// DashboardStats admin overview
type DashboardStats struct {
	Users       int           `json:"users"`
	Enrollments int           `json:"enrollments"`
	Completions int           `json:"completions"`
	TopCourses  []*CourseStat `json:"top_courses"`
}

// CompletionStore persistence used by ProgressTracker
type CompletionStore interface {
	// FindCompletion returns nil when the lesson is not completed by the learner
	FindCompletion(ctx context.Context, learnerID, lessonID string) (*CompletionModel, error)
	// CreateCompletion returns false when the record already exists
	CreateCompletion(ctx context.Context, c *CompletionModel) (bool, error)
}

// Repository persistence of courses, lessons, enrollments and completions.
// Find* methods return nil, nil when the record does not exist.
type Repository interface {
	CompletionStore

	CreateCourse(ctx context.Context, c *CourseModel) error
	UpdateCourse(ctx context.Context, c *CourseModel) error
	// DeleteCourse removes the course with its lessons, enrollments and completions
	DeleteCourse(ctx context.Context, id string) error
	FindCourse(ctx context.Context, id string) (*CourseModel, error)
	SearchCourses(ctx context.Context, q *CourseQuery) ([]*CourseModel, int, error)

	// ListLessons returns the lessons of a course ordered by order ascending
	ListLessons(ctx context.Context, courseID string) ([]*LessonModel, error)
	CountLessons(ctx context.Context, courseID string) (int, error)
	FindLesson(ctx context.Context, id string) (*LessonModel, error)
	// CreateLesson fails with ErrOrderConflict when the order is taken
	CreateLesson(ctx context.Context, l *LessonModel) error
	// UpdateLesson fails with ErrOrderConflict when the order is taken
	UpdateLesson(ctx context.Context, l *LessonModel) error
	// DeleteLesson removes the lesson and its completions, remaining orders are kept
	DeleteLesson(ctx context.Context, id string) error
	// WriteOrders applies all order assignments of a course atomically. The
	// assignment keys must be exactly the course lessons, else ErrInvalidReorderSet.
	WriteOrders(ctx context.Context, courseID string, orders map[string]int, at time.Time) error

	// CreateEnrollment returns false when the learner is already enrolled
	CreateEnrollment(ctx context.Context, e *EnrollmentModel) (bool, error)
	IsEnrolled(ctx context.Context, learnerID, courseID string) (bool, error)
	CountEnrollments(ctx context.Context, courseID string) (int, error)

	// ProgressSnapshot reads the course lessons, ordered like ListLessons, and the
	// ids of those completed by the learner from one consistent view
	ProgressSnapshot(ctx context.Context, learnerID, courseID string) ([]*LessonModel, map[string]bool, error)
	// Stats fills everything but Users, with at most top courses
	Stats(ctx context.Context, top int) (*DashboardStats, error)
}

// UserCounter counts registered accounts
type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

// Notifier publishes course events to subscribers
type Notifier interface {
	Publish(topic string, v interface{})
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, interface{}) {}

// course event types
const (
	EventLessonsChanged = "lessons.changed"
	EventStatusChanged  = "course.status_changed"
	EventCourseDeleted  = "course.deleted"
)

// CourseEvent payload published on a course topic
type CourseEvent struct {
	Type     string    `json:"type"`
	CourseID string    `json:"course_id"`
	Status   *Status   `json:"status,omitempty"`
	At       time.Time `json:"at"`
}

// CourseTopic topic name on which events of a course are published
func CourseTopic(courseID string) string {
	return "course:" + courseID
}

// UseCase curriculum operations, every call carries the acting user explicitly
type UseCase interface {
	CreateCourse(ctx context.Context, actor domain.Actor, c *CourseModel) (*CourseModel, error)
	UpdateCourse(ctx context.Context, actor domain.Actor, c *CourseModel) (*CourseModel, error)
	DeleteCourse(ctx context.Context, actor domain.Actor, courseID string) error
	GetCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error)
	SearchCourses(ctx context.Context, actor domain.Actor, q *CourseQuery) (*CoursePage, error)
	CourseSummary(ctx context.Context, actor domain.Actor, courseID string) (*CourseSummary, error)
	PublishCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error)
	UnpublishCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error)

	// AddLesson appends the lesson when its Order is 0, otherwise uses Order as is
	AddLesson(ctx context.Context, actor domain.Actor, l *LessonModel) (*LessonModel, error)
	// EditLesson updates title, body and media, and order when it is not 0
	EditLesson(ctx context.Context, actor domain.Actor, l *LessonModel) (*LessonModel, error)
	RemoveLesson(ctx context.Context, actor domain.Actor, lessonID string) error
	ReorderLessons(ctx context.Context, actor domain.Actor, courseID string, lessonIDs []string) ([]*LessonModel, error)
	ListLessons(ctx context.Context, actor domain.Actor, courseID string) ([]*LessonView, error)
	GetLesson(ctx context.Context, actor domain.Actor, lessonID string) (*LessonView, error)

	Enroll(ctx context.Context, actor domain.Actor, courseID string) error
	CompleteLesson(ctx context.Context, actor domain.Actor, lessonID string) (*CompletionResult, error)
	Progress(ctx context.Context, actor domain.Actor, courseID string) (*ProgressModel, error)
	DashboardStats(ctx context.Context, actor domain.Actor) (*DashboardStats, error)
}
