package curriculum

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type enrollmentKey struct{ learnerID, courseID string }

type completionKey struct{ learnerID, lessonID string }

// MemoryRepository process local Repository, every method runs under one lock
type MemoryRepository struct {
	mu          sync.RWMutex
	courses     map[string]*CourseModel
	lessons     map[string]*LessonModel
	enrollments map[enrollmentKey]*EnrollmentModel
	completions map[completionKey]*CompletionModel
}

var _ Repository = &MemoryRepository{}

// NewMemoryRepository .
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		courses:     make(map[string]*CourseModel),
		lessons:     make(map[string]*LessonModel),
		enrollments: make(map[enrollmentKey]*EnrollmentModel),
		completions: make(map[completionKey]*CompletionModel),
	}
}

func (repo *MemoryRepository) CreateCourse(ctx context.Context, c *CourseModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	cp := *c
	repo.courses[c.ID] = &cp
	return nil
}

func (repo *MemoryRepository) UpdateCourse(ctx context.Context, c *CourseModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.courses[c.ID]; !ok {
		return nil
	}
	cp := *c
	repo.courses[c.ID] = &cp
	return nil
}

func (repo *MemoryRepository) DeleteCourse(ctx context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for lid, l := range repo.lessons {
		if l.CourseID == id {
			repo.deleteLesson(lid)
		}
	}
	for k := range repo.enrollments {
		if k.courseID == id {
			delete(repo.enrollments, k)
		}
	}
	delete(repo.courses, id)
	return nil
}

func (repo *MemoryRepository) FindCourse(ctx context.Context, id string) (*CourseModel, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if c, ok := repo.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (repo *MemoryRepository) SearchCourses(ctx context.Context, q *CourseQuery) ([]*CourseModel, int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	keyword := strings.ToLower(q.Keyword)
	var matched []*CourseModel
	for _, c := range repo.courses {
		if q.Status != nil && c.Status != *q.Status {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(c.Title), keyword) &&
			!strings.Contains(strings.ToLower(c.Description), keyword) {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (repo *MemoryRepository) ListLessons(ctx context.Context, courseID string) ([]*LessonModel, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return repo.listLessons(courseID), nil
}

// listLessons must be called with mu held
func (repo *MemoryRepository) listLessons(courseID string) []*LessonModel {
	var lessons []*LessonModel
	for _, l := range repo.lessons {
		if l.CourseID == courseID {
			cp := *l
			lessons = append(lessons, &cp)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	return lessons
}

func (repo *MemoryRepository) CountLessons(ctx context.Context, courseID string) (int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	n := 0
	for _, l := range repo.lessons {
		if l.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (repo *MemoryRepository) FindLesson(ctx context.Context, id string) (*LessonModel, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if l, ok := repo.lessons[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

// orderTaken must be called with mu held
func (repo *MemoryRepository) orderTaken(l *LessonModel) bool {
	for _, other := range repo.lessons {
		if other.CourseID == l.CourseID && other.ID != l.ID && other.Order == l.Order {
			return true
		}
	}
	return false
}

func (repo *MemoryRepository) CreateLesson(ctx context.Context, l *LessonModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if repo.orderTaken(l) {
		return ErrOrderConflict
	}
	cp := *l
	repo.lessons[l.ID] = &cp
	return nil
}

func (repo *MemoryRepository) UpdateLesson(ctx context.Context, l *LessonModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.lessons[l.ID]; !ok {
		return nil
	}
	if repo.orderTaken(l) {
		return ErrOrderConflict
	}
	cp := *l
	repo.lessons[l.ID] = &cp
	return nil
}

func (repo *MemoryRepository) DeleteLesson(ctx context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.deleteLesson(id)
	return nil
}

// deleteLesson must be called with mu held
func (repo *MemoryRepository) deleteLesson(id string) {
	for k := range repo.completions {
		if k.lessonID == id {
			delete(repo.completions, k)
		}
	}
	delete(repo.lessons, id)
}

func (repo *MemoryRepository) WriteOrders(ctx context.Context, courseID string, orders map[string]int, at time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	current := repo.listLessons(courseID)
	if len(current) != len(orders) {
		return ErrInvalidReorderSet
	}
	for _, l := range current {
		if _, ok := orders[l.ID]; !ok {
			return ErrInvalidReorderSet
		}
	}
	for id, o := range orders {
		l := repo.lessons[id]
		l.Order = o
		l.UpdatedAt = at
	}
	return nil
}

func (repo *MemoryRepository) CreateEnrollment(ctx context.Context, e *EnrollmentModel) (bool, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	key := enrollmentKey{e.LearnerID, e.CourseID}
	if _, ok := repo.enrollments[key]; ok {
		return false, nil
	}
	cp := *e
	repo.enrollments[key] = &cp
	return true, nil
}

func (repo *MemoryRepository) IsEnrolled(ctx context.Context, learnerID, courseID string) (bool, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	_, ok := repo.enrollments[enrollmentKey{learnerID, courseID}]
	return ok, nil
}

func (repo *MemoryRepository) CountEnrollments(ctx context.Context, courseID string) (int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	n := 0
	for k := range repo.enrollments {
		if k.courseID == courseID {
			n++
		}
	}
	return n, nil
}

func (repo *MemoryRepository) FindCompletion(ctx context.Context, learnerID, lessonID string) (*CompletionModel, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if c, ok := repo.completions[completionKey{learnerID, lessonID}]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (repo *MemoryRepository) CreateCompletion(ctx context.Context, c *CompletionModel) (bool, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	key := completionKey{c.LearnerID, c.LessonID}
	if _, ok := repo.completions[key]; ok {
		return false, nil
	}
	cp := *c
	repo.completions[key] = &cp
	return true, nil
}

func (repo *MemoryRepository) ProgressSnapshot(ctx context.Context, learnerID, courseID string) ([]*LessonModel, map[string]bool, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	lessons := repo.listLessons(courseID)
	completed := make(map[string]bool)
	for _, l := range lessons {
		if _, ok := repo.completions[completionKey{learnerID, l.ID}]; ok {
			completed[l.ID] = true
		}
	}
	return lessons, completed, nil
}

func (repo *MemoryRepository) Stats(ctx context.Context, top int) (*DashboardStats, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	stats := &DashboardStats{
		Enrollments: len(repo.enrollments),
		Completions: len(repo.completions),
	}
	perCourse := make(map[string]*CourseStat)
	for k := range repo.enrollments {
		cs, ok := perCourse[k.courseID]
		if !ok {
			course := repo.courses[k.courseID]
			if course == nil {
				continue
			}
			cs = &CourseStat{CourseID: course.ID, Title: course.Title}
			perCourse[k.courseID] = cs
		}
		cs.Enrollments++

		lessons := repo.listLessons(k.courseID)
		done := len(lessons) > 0
		for _, l := range lessons {
			if _, ok := repo.completions[completionKey{k.learnerID, l.ID}]; !ok {
				done = false
				break
			}
		}
		if done {
			cs.Completed++
		}
	}

	for _, cs := range perCourse {
		stats.TopCourses = append(stats.TopCourses, cs)
	}
	sort.Slice(stats.TopCourses, func(i, j int) bool {
		a, b := stats.TopCourses[i], stats.TopCourses[j]
		if a.Enrollments == b.Enrollments {
			return a.CourseID < b.CourseID
		}
		return a.Enrollments > b.Enrollments
	})
	if len(stats.TopCourses) > top {
		stats.TopCourses = stats.TopCourses[:top]
	}
	return stats, nil
}
