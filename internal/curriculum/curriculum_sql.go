package curriculum

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pot-code/curriculum/internal/infrastructure/driver"
)

const courseColumns = `id, title, description, cover, status, created_at, updated_at`

const lessonColumns = `id, course_id, title, body, media, "order", created_at, updated_at`

// SQLRepository Repository backed by mysql or postgres
type SQLRepository struct {
	Conn driver.ITransactionalDB
}

var _ Repository = &SQLRepository{}

// NewSQLRepository .
func NewSQLRepository(Conn driver.ITransactionalDB) *SQLRepository {
	return &SQLRepository{Conn: Conn}
}

func scanCourse(rows driver.ISQLRows) (*CourseModel, error) {
	c := new(CourseModel)
	err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Cover, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanLesson(rows driver.ISQLRows) (*LessonModel, error) {
	l := new(LessonModel)
	err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Body, &l.Media, &l.Order, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func queryInt(ctx context.Context, conn driver.ITransactionalDB, query string, args ...interface{}) (int, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func queryLessons(ctx context.Context, conn driver.ITransactionalDB, courseID string) ([]*LessonModel, error) {
	rows, err := conn.QueryContext(ctx, `SELECT `+lessonColumns+`
	FROM "lesson"
	WHERE course_id = $1
	ORDER BY "order" ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*LessonModel
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (repo *SQLRepository) CreateCourse(ctx context.Context, c *CourseModel) error {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO "course"(`+courseColumns+`)
	VALUES($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Title, c.Description, c.Cover, int(c.Status), c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return err
}

func (repo *SQLRepository) UpdateCourse(ctx context.Context, c *CourseModel) error {
	_, err := repo.Conn.ExecContext(ctx, `UPDATE "course"
	SET title = $1,
		description = $2,
		cover = $3,
		status = $4,
		updated_at = $5
	WHERE id = $6`, c.Title, c.Description, c.Cover, int(c.Status), c.UpdatedAt.UTC(), c.ID)
	return err
}

func (repo *SQLRepository) DeleteCourse(ctx context.Context, id string) error {
	return driver.WithTx(ctx, repo.Conn, &driver.TxOptions{}, func(tx driver.ITransactionalDB) error {
		stmts := []string{
			`DELETE FROM "completion" WHERE lesson_id IN (SELECT id FROM "lesson" WHERE course_id = $1)`,
			`DELETE FROM "enrollment" WHERE course_id = $1`,
			`DELETE FROM "lesson" WHERE course_id = $1`,
			`DELETE FROM "course" WHERE id = $1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (repo *SQLRepository) FindCourse(ctx context.Context, id string) (*CourseModel, error) {
	rows, err := repo.Conn.QueryContext(ctx, `SELECT `+courseColumns+` FROM "course" WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		return scanCourse(rows)
	}
	return nil, rows.Err()
}

// likeEscaper makes LIKE match the keyword literally. '!' is the escape character
// since a backslash reads differently in mysql and postgres string literals
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// courseFilter builds the WHERE clause of a search, placeholders are numbered from 1
func courseFilter(q *CourseQuery) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Status != nil {
		args = append(args, int(*q.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.Keyword != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(q.Keyword)) + "%"
		args = append(args, pattern, pattern)
		conds = append(conds, fmt.Sprintf("(LOWER(title) LIKE $%d ESCAPE '!' OR LOWER(description) LIKE $%d ESCAPE '!')", len(args)-1, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (repo *SQLRepository) SearchCourses(ctx context.Context, q *CourseQuery) ([]*CourseModel, int, error) {
	where, args := courseFilter(q)
	total, err := queryInt(ctx, repo.Conn, `SELECT COUNT(*) FROM "course"`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := repo.Conn.QueryContext(ctx, fmt.Sprintf(`SELECT `+courseColumns+` FROM "course"%s
	ORDER BY updated_at DESC, id ASC
	LIMIT $%d OFFSET $%d`, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*CourseModel
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

func (repo *SQLRepository) ListLessons(ctx context.Context, courseID string) ([]*LessonModel, error) {
	return queryLessons(ctx, repo.Conn, courseID)
}

func (repo *SQLRepository) CountLessons(ctx context.Context, courseID string) (int, error) {
	return queryInt(ctx, repo.Conn, `SELECT COUNT(*) FROM "lesson" WHERE course_id = $1`, courseID)
}

func (repo *SQLRepository) FindLesson(ctx context.Context, id string) (*LessonModel, error) {
	rows, err := repo.Conn.QueryContext(ctx, `SELECT `+lessonColumns+` FROM "lesson" WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		return scanLesson(rows)
	}
	return nil, rows.Err()
}

func (repo *SQLRepository) CreateLesson(ctx context.Context, l *LessonModel) error {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO "lesson"(`+lessonColumns+`)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.CourseID, l.Title, l.Body, l.Media, l.Order, l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if driver.IsDuplicateKey(err) {
		return ErrOrderConflict
	}
	return err
}

func (repo *SQLRepository) UpdateLesson(ctx context.Context, l *LessonModel) error {
	_, err := repo.Conn.ExecContext(ctx, `UPDATE "lesson"
	SET title = $1,
		body = $2,
		media = $3,
		"order" = $4,
		updated_at = $5
	WHERE id = $6`, l.Title, l.Body, l.Media, l.Order, l.UpdatedAt.UTC(), l.ID)
	if driver.IsDuplicateKey(err) {
		return ErrOrderConflict
	}
	return err
}

func (repo *SQLRepository) DeleteLesson(ctx context.Context, id string) error {
	return driver.WithTx(ctx, repo.Conn, &driver.TxOptions{}, func(tx driver.ITransactionalDB) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "completion" WHERE lesson_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM "lesson" WHERE id = $1`, id)
		return err
	})
}

// WriteOrders stages every assignment as its negative before flipping the sign,
// so UNIQUE(course_id, order) never sees two lessons sharing a value mid-batch
func (repo *SQLRepository) WriteOrders(ctx context.Context, courseID string, orders map[string]int, at time.Time) error {
	opts := &driver.TxOptions{Isolation: sql.LevelRepeatableRead}
	return driver.WithTx(ctx, repo.Conn, opts, func(tx driver.ITransactionalDB) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM "lesson" WHERE course_id = $1 FOR UPDATE`, courseID)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(ids) != len(orders) {
			return ErrInvalidReorderSet
		}
		for _, id := range ids {
			if _, ok := orders[id]; !ok {
				return ErrInvalidReorderSet
			}
		}

		for id, order := range orders {
			if _, err := tx.ExecContext(ctx, `UPDATE "lesson" SET "order" = $1 WHERE id = $2`, -order, id); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE "lesson"
		SET "order" = -"order",
			updated_at = $1
		WHERE course_id = $2 AND "order" < 0`, at.UTC(), courseID)
		return err
	})
}

func (repo *SQLRepository) CreateEnrollment(ctx context.Context, e *EnrollmentModel) (bool, error) {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO "enrollment"(learner_id, course_id, created_at)
	VALUES($1, $2, $3)`, e.LearnerID, e.CourseID, e.CreatedAt.UTC())
	if driver.IsDuplicateKey(err) {
		return false, nil
	}
	return err == nil, err
}

func (repo *SQLRepository) IsEnrolled(ctx context.Context, learnerID, courseID string) (bool, error) {
	n, err := queryInt(ctx, repo.Conn, `SELECT COUNT(*) FROM "enrollment"
	WHERE learner_id = $1 AND course_id = $2`, learnerID, courseID)
	return n > 0, err
}

func (repo *SQLRepository) CountEnrollments(ctx context.Context, courseID string) (int, error) {
	return queryInt(ctx, repo.Conn, `SELECT COUNT(*) FROM "enrollment" WHERE course_id = $1`, courseID)
}

func (repo *SQLRepository) FindCompletion(ctx context.Context, learnerID, lessonID string) (*CompletionModel, error) {
	rows, err := repo.Conn.QueryContext(ctx, `SELECT learner_id, lesson_id, created_at
	FROM "completion"
	WHERE learner_id = $1 AND lesson_id = $2`, learnerID, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		c := new(CompletionModel)
		if err := rows.Scan(&c.LearnerID, &c.LessonID, &c.CreatedAt); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, rows.Err()
}

func (repo *SQLRepository) CreateCompletion(ctx context.Context, c *CompletionModel) (bool, error) {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO "completion"(learner_id, lesson_id, created_at)
	VALUES($1, $2, $3)`, c.LearnerID, c.LessonID, c.CreatedAt.UTC())
	if driver.IsDuplicateKey(err) {
		return false, nil
	}
	return err == nil, err
}

// ProgressSnapshot reads lessons and completions in one read-only repeatable read transaction
func (repo *SQLRepository) ProgressSnapshot(ctx context.Context, learnerID, courseID string) (lessons []*LessonModel, completed map[string]bool, err error) {
	opts := &driver.TxOptions{Isolation: sql.LevelRepeatableRead, AccessMode: driver.AccessReadOnly}
	err = driver.WithTx(ctx, repo.Conn, opts, func(tx driver.ITransactionalDB) error {
		ls, err := queryLessons(ctx, tx, courseID)
		if err != nil {
			return err
		}
		lessons = ls

		rows, err := tx.QueryContext(ctx, `SELECT c.lesson_id
		FROM "completion" c
			JOIN "lesson" l ON (l.id = c.lesson_id)
		WHERE c.learner_id = $1 AND l.course_id = $2`, learnerID, courseID)
		if err != nil {
			return err
		}
		defer rows.Close()

		completed = make(map[string]bool)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			completed[id] = true
		}
		return rows.Err()
	})
	return
}

func (repo *SQLRepository) Stats(ctx context.Context, top int) (*DashboardStats, error) {
	conn := repo.Conn
	stats := new(DashboardStats)
	var err error
	if stats.Enrollments, err = queryInt(ctx, conn, `SELECT COUNT(*) FROM "enrollment"`); err != nil {
		return nil, err
	}
	if stats.Completions, err = queryInt(ctx, conn, `SELECT COUNT(*) FROM "completion"`); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT c.id, c.title, COUNT(e.learner_id) AS enrollments
	FROM "course" c
		JOIN "enrollment" e ON (e.course_id = c.id)
	GROUP BY c.id, c.title
	ORDER BY enrollments DESC, c.id ASC
	LIMIT $1`, top)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		cs := new(CourseStat)
		if err := rows.Scan(&cs.CourseID, &cs.Title, &cs.Enrollments); err != nil {
			rows.Close()
			return nil, err
		}
		stats.TopCourses = append(stats.TopCourses, cs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cs := range stats.TopCourses {
		cs.Completed, err = queryInt(ctx, conn, `SELECT COUNT(*) FROM (
			SELECT e.learner_id
			FROM "enrollment" e
				JOIN "lesson" l ON (l.course_id = e.course_id)
				JOIN "completion" cp ON (cp.lesson_id = l.id AND cp.learner_id = e.learner_id)
			WHERE e.course_id = $1
			GROUP BY e.learner_id
			HAVING COUNT(*) = (SELECT COUNT(*) FROM "lesson" WHERE course_id = $2)
		) done`, cs.CourseID, cs.CourseID)
		if err != nil {
			return nil, err
		}
	}
	return stats, nil
}
