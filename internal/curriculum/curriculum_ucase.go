package curriculum

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/infrastructure/logging"
	"github.com/pot-code/curriculum/internal/infrastructure/uuid"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// Config use case tunables
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	TopCourses      int
}

// UseCaseImpl coordinates ordering, lifecycle and progress rules against the Repository
type UseCaseImpl struct {
	Repository    Repository
	UUIDGenerator uuid.Generator
	UserCounter   UserCounter
	Notifier      Notifier
	Tracker       *ProgressTracker

	cfg Config
	now func() time.Time
}

var _ UseCase = &UseCaseImpl{}

// NewUseCase create a curriculum use case, UserCounter and Notifier may be nil
func NewUseCase(
	Repository Repository,
	UUIDGenerator uuid.Generator,
	UserCounter UserCounter,
	Notifier Notifier,
	cfg *Config,
) *UseCaseImpl {
	if Notifier == nil {
		Notifier = noopNotifier{}
	}
	c := Config{DefaultPageSize: 20, MaxPageSize: 100, TopCourses: 5}
	if cfg != nil {
		if cfg.DefaultPageSize > 0 {
			c.DefaultPageSize = cfg.DefaultPageSize
		}
		if cfg.MaxPageSize > 0 {
			c.MaxPageSize = cfg.MaxPageSize
		}
		if cfg.TopCourses > 0 {
			c.TopCourses = cfg.TopCourses
		}
	}
	return &UseCaseImpl{
		Repository:    Repository,
		UUIDGenerator: UUIDGenerator,
		UserCounter:   UserCounter,
		Notifier:      Notifier,
		Tracker:       NewProgressTracker(Repository),
		cfg:           c,
		now:           time.Now,
	}
}

// CreateCourse create a course in Draft
func (cu *UseCaseImpl) CreateCourse(ctx context.Context, actor domain.Actor, c *CourseModel) (*CourseModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.CreateCourse", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	id, err := cu.UUIDGenerator.Generate()
	if err != nil {
		return nil, errors.Wrap(err, "generate course id")
	}
	now := cu.now()
	course := &CourseModel{
		ID:          id,
		Title:       c.Title,
		Description: c.Description,
		Cover:       c.Cover,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := cu.Repository.CreateCourse(ctx, course); err != nil {
		return nil, errors.Wrap(err, "create course")
	}
	return course, nil
}

// UpdateCourse edit title, description and cover, status is left as is
func (cu *UseCaseImpl) UpdateCourse(ctx context.Context, actor domain.Actor, c *CourseModel) (*CourseModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.UpdateCourse", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	course, err := cu.loadCourse(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	course.Title = c.Title
	course.Description = c.Description
	course.Cover = c.Cover
	course.UpdatedAt = cu.now()
	if err := cu.Repository.UpdateCourse(ctx, course); err != nil {
		return nil, errors.Wrap(err, "update course")
	}
	return course, nil
}

// DeleteCourse delete a course with its lessons and learner records
func (cu *UseCaseImpl) DeleteCourse(ctx context.Context, actor domain.Actor, courseID string) error {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.DeleteCourse", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if _, err := cu.loadCourse(ctx, courseID); err != nil {
		return err
	}
	if err := cu.Repository.DeleteCourse(ctx, courseID); err != nil {
		return errors.Wrap(err, "delete course")
	}
	cu.notify(EventCourseDeleted, courseID, nil)
	return nil
}

// GetCourse .
func (cu *UseCaseImpl) GetCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.GetCourse", "service")
	defer apmSpan.End()

	return cu.viewCourse(ctx, actor, courseID)
}

// SearchCourses learners only ever search published courses
func (cu *UseCaseImpl) SearchCourses(ctx context.Context, actor domain.Actor, q *CourseQuery) (*CoursePage, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.SearchCourses", "service")
	defer apmSpan.End()

	query := *q
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = cu.cfg.DefaultPageSize
	}
	if query.PageSize > cu.cfg.MaxPageSize {
		query.PageSize = cu.cfg.MaxPageSize
	}
	if !actor.IsAdmin() {
		published := StatusPublished
		query.Status = &published
	}

	items, total, err := cu.Repository.SearchCourses(ctx, &query)
	if err != nil {
		return nil, errors.Wrap(err, "search courses")
	}
	if items == nil {
		items = []*CourseModel{}
	}
	return &CoursePage{Items: items, Total: total, Page: query.Page, PageSize: query.PageSize}, nil
}

// CourseSummary course counters plus the caller's own enrollment and progress
func (cu *UseCaseImpl) CourseSummary(ctx context.Context, actor domain.Actor, courseID string) (*CourseSummary, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.CourseSummary", "service")
	defer apmSpan.End()

	course, err := cu.viewCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	summary := &CourseSummary{Course: course}
	if summary.EnrollmentCount, err = cu.Repository.CountEnrollments(ctx, courseID); err != nil {
		return nil, errors.Wrap(err, "count enrollments")
	}
	if summary.Enrolled, err = cu.Repository.IsEnrolled(ctx, actor.ID, courseID); err != nil {
		return nil, errors.Wrap(err, "find enrollment")
	}

	lessons, completed, err := cu.Repository.ProgressSnapshot(ctx, actor.ID, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "read progress")
	}
	summary.LessonCount = len(lessons)
	if summary.Enrolled {
		summary.PercentComplete = PercentComplete(Sequence(lessons), completed)
	}
	return summary, nil
}

// PublishCourse publish a course that has at least one lesson
func (cu *UseCaseImpl) PublishCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.PublishCourse", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	course, err := cu.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	count, err := cu.Repository.CountLessons(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "count lessons")
	}
	if err := Publish(course, count, cu.now()); err != nil {
		return nil, err
	}
	if err := cu.Repository.UpdateCourse(ctx, course); err != nil {
		return nil, errors.Wrap(err, "publish course")
	}

	logging.ExtractLoggerFromContext(ctx).Info("course published",
		zap.String("course.id", courseID), zap.Int("course.lessons", count))
	cu.notify(EventStatusChanged, courseID, &course.Status)
	return course, nil
}

// UnpublishCourse move a course back to Draft, no-op when already Draft
func (cu *UseCaseImpl) UnpublishCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.UnpublishCourse", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	course, err := cu.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !Unpublish(course, cu.now()) {
		return course, nil
	}
	if err := cu.Repository.UpdateCourse(ctx, course); err != nil {
		return nil, errors.Wrap(err, "unpublish course")
	}

	logging.ExtractLoggerFromContext(ctx).Info("course unpublished", zap.String("course.id", courseID))
	cu.notify(EventStatusChanged, courseID, &course.Status)
	return course, nil
}

// AddLesson add a lesson to a course. Without an order the lesson goes last,
// a requested order must not be taken. Existing orders are never touched.
func (cu *UseCaseImpl) AddLesson(ctx context.Context, actor domain.Actor, l *LessonModel) (*LessonModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.AddLesson", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if l.Order < 0 {
		return nil, ErrInvalidOrder
	}
	if _, err := cu.loadCourse(ctx, l.CourseID); err != nil {
		return nil, err
	}
	lessons, err := cu.Repository.ListLessons(ctx, l.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "list lessons")
	}

	orders := lessonOrders(lessons)
	order := l.Order
	if order == 0 {
		order = NextOrderForInsert(orders)
	} else if !ValidateSequence(append(orders, order)) {
		return nil, ErrOrderConflict
	}

	id, err := cu.UUIDGenerator.Generate()
	if err != nil {
		return nil, errors.Wrap(err, "generate lesson id")
	}
	now := cu.now()
	lesson := &LessonModel{
		ID:        id,
		CourseID:  l.CourseID,
		Title:     l.Title,
		Body:      l.Body,
		Media:     l.Media,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := cu.Repository.CreateLesson(ctx, lesson); err != nil {
		return nil, errors.Wrap(err, "create lesson")
	}
	cu.notify(EventLessonsChanged, lesson.CourseID, nil)
	return lesson, nil
}

// EditLesson update lesson content, and its order when l.Order is set
func (cu *UseCaseImpl) EditLesson(ctx context.Context, actor domain.Actor, l *LessonModel) (*LessonModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.EditLesson", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if l.Order < 0 {
		return nil, ErrInvalidOrder
	}
	lesson, err := cu.loadLesson(ctx, l.ID)
	if err != nil {
		return nil, err
	}

	if l.Order != 0 && l.Order != lesson.Order {
		lessons, err := cu.Repository.ListLessons(ctx, lesson.CourseID)
		if err != nil {
			return nil, errors.Wrap(err, "list lessons")
		}
		orders := []int{l.Order}
		for _, other := range lessons {
			if other.ID != lesson.ID {
				orders = append(orders, other.Order)
			}
		}
		if !ValidateSequence(orders) {
			return nil, ErrOrderConflict
		}
		lesson.Order = l.Order
	}
	lesson.Title = l.Title
	lesson.Body = l.Body
	lesson.Media = l.Media
	lesson.UpdatedAt = cu.now()
	if err := cu.Repository.UpdateLesson(ctx, lesson); err != nil {
		return nil, errors.Wrap(err, "update lesson")
	}
	cu.notify(EventLessonsChanged, lesson.CourseID, nil)
	return lesson, nil
}

// RemoveLesson delete a lesson, the orders of the remaining lessons keep their gaps
func (cu *UseCaseImpl) RemoveLesson(ctx context.Context, actor domain.Actor, lessonID string) error {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.RemoveLesson", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	lesson, err := cu.loadLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if err := cu.Repository.DeleteLesson(ctx, lessonID); err != nil {
		return errors.Wrap(err, "delete lesson")
	}
	cu.notify(EventLessonsChanged, lesson.CourseID, nil)
	return nil
}

// ReorderLessons renumber the course lessons 1..N following lessonIDs, which
// must be a permutation of the current lessons. The write is all-or-nothing.
func (cu *UseCaseImpl) ReorderLessons(ctx context.Context, actor domain.Actor, courseID string, lessonIDs []string) ([]*LessonModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.ReorderLessons", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if _, err := cu.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}
	lessons, err := cu.Repository.ListLessons(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "list lessons")
	}
	assignments, err := ApplyReorder(Sequence(lessons), lessonIDs)
	if err != nil {
		return nil, err
	}
	if !ValidateSequence(assignedOrders(assignments)) {
		return nil, ErrInvalidReorderSet
	}
	if err := cu.Repository.WriteOrders(ctx, courseID, assignments, cu.now()); err != nil {
		return nil, errors.Wrap(err, "reorder lessons")
	}

	reordered, err := cu.Repository.ListLessons(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "list lessons")
	}
	logging.ExtractLoggerFromContext(ctx).Debug("lessons reordered",
		zap.String("course.id", courseID), zap.Strings("lesson.ids", lessonIDs))
	cu.notify(EventLessonsChanged, courseID, nil)
	return reordered, nil
}

// ListLessons course lessons in order, flagged with the caller's completions
func (cu *UseCaseImpl) ListLessons(ctx context.Context, actor domain.Actor, courseID string) ([]*LessonView, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.ListLessons", "service")
	defer apmSpan.End()

	if _, err := cu.viewCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	lessons, completed, err := cu.Repository.ProgressSnapshot(ctx, actor.ID, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "read progress")
	}
	views := make([]*LessonView, len(lessons))
	for i, l := range lessons {
		views[i] = &LessonView{LessonModel: l, IsCompleted: completed[l.ID]}
	}
	return views, nil
}

// GetLesson lesson with the caller's completion and its neighbors in the course
func (cu *UseCaseImpl) GetLesson(ctx context.Context, actor domain.Actor, lessonID string) (*LessonView, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.GetLesson", "service")
	defer apmSpan.End()

	lesson, err := cu.loadLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if _, err := cu.viewCourse(ctx, actor, lesson.CourseID); err != nil {
		return nil, err
	}
	lessons, completed, err := cu.Repository.ProgressSnapshot(ctx, actor.ID, lesson.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "read progress")
	}
	prev, next, err := Neighbors(Sequence(lessons), lessonID)
	if err != nil {
		return nil, err
	}
	for _, l := range lessons {
		if l.ID == lessonID {
			lesson = l
			break
		}
	}
	return &LessonView{
		LessonModel: lesson,
		IsCompleted: completed[lessonID],
		Previous:    prev,
		Next:        next,
	}, nil
}

// Enroll enroll the caller in a published course with lessons, enrolling twice is a no-op
func (cu *UseCaseImpl) Enroll(ctx context.Context, actor domain.Actor, courseID string) error {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.Enroll", "service")
	defer apmSpan.End()

	course, err := cu.loadCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if err := CanEnroll(course); err != nil {
		return err
	}
	// a published course can lose its last lesson
	count, err := cu.Repository.CountLessons(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "count lessons")
	}
	if count == 0 {
		return ErrCourseNotAvailable
	}
	created, err := cu.Repository.CreateEnrollment(ctx, &EnrollmentModel{
		LearnerID: actor.ID,
		CourseID:  courseID,
		CreatedAt: cu.now(),
	})
	if err != nil {
		return errors.Wrap(err, "enroll")
	}
	if created {
		logging.ExtractLoggerFromContext(ctx).Debug("learner enrolled",
			zap.String("user.id", actor.ID), zap.String("course.id", courseID))
	}
	return nil
}

// CompleteLesson mark a lesson complete for the caller, who must be enrolled in its
// course and able to view it
func (cu *UseCaseImpl) CompleteLesson(ctx context.Context, actor domain.Actor, lessonID string) (*CompletionResult, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.CompleteLesson", "service")
	defer apmSpan.End()

	lesson, err := cu.loadLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if _, err := cu.viewCourse(ctx, actor, lesson.CourseID); err != nil {
		return nil, err
	}
	enrolled, err := cu.Repository.IsEnrolled(ctx, actor.ID, lesson.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "find enrollment")
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}
	result, err := cu.Tracker.CompleteLesson(ctx, actor.ID, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "complete lesson")
	}
	return result, nil
}

// Progress caller's progress over a course, read from a single snapshot
func (cu *UseCaseImpl) Progress(ctx context.Context, actor domain.Actor, courseID string) (*ProgressModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.Progress", "service")
	defer apmSpan.End()

	if _, err := cu.viewCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	lessons, completed, err := cu.Repository.ProgressSnapshot(ctx, actor.ID, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "read progress")
	}
	sequence := Sequence(lessons)
	return &ProgressModel{
		CourseID:        courseID,
		Total:           len(sequence),
		Completed:       countCompleted(sequence, completed),
		PercentComplete: PercentComplete(sequence, completed),
	}, nil
}

// DashboardStats platform wide counters for admins
func (cu *UseCaseImpl) DashboardStats(ctx context.Context, actor domain.Actor) (*DashboardStats, error) {
	apmSpan, _ := apm.StartSpan(ctx, "CurriculumUseCase.DashboardStats", "service")
	defer apmSpan.End()

	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	stats, err := cu.Repository.Stats(ctx, cu.cfg.TopCourses)
	if err != nil {
		return nil, errors.Wrap(err, "read stats")
	}
	if cu.UserCounter != nil {
		if stats.Users, err = cu.UserCounter.CountUsers(ctx); err != nil {
			return nil, errors.Wrap(err, "count users")
		}
	}
	if stats.TopCourses == nil {
		stats.TopCourses = []*CourseStat{}
	}
	for _, cs := range stats.TopCourses {
		if cs.Enrollments > 0 {
			cs.CompletionRate = float64(cs.Completed) / float64(cs.Enrollments)
		}
	}
	return stats, nil
}

func (cu *UseCaseImpl) loadCourse(ctx context.Context, courseID string) (*CourseModel, error) {
	course, err := cu.Repository.FindCourse(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "find course")
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	return course, nil
}

func (cu *UseCaseImpl) viewCourse(ctx context.Context, actor domain.Actor, courseID string) (*CourseModel, error) {
	course, err := cu.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := CanView(course, actor); err != nil {
		return nil, err
	}
	return course, nil
}

func (cu *UseCaseImpl) loadLesson(ctx context.Context, lessonID string) (*LessonModel, error) {
	lesson, err := cu.Repository.FindLesson(ctx, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "find lesson")
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	return lesson, nil
}

func (cu *UseCaseImpl) notify(event, courseID string, status *Status) {
	if status != nil {
		s := *status
		status = &s
	}
	cu.Notifier.Publish(CourseTopic(courseID), &CourseEvent{
		Type:     event,
		CourseID: courseID,
		Status:   status,
		At:       cu.now(),
	})
}
