package curriculum

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeRows struct {
	data [][]interface{}
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.data[r.i-1]
	for j, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[j]))
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeExec struct {
	query string
	args  []interface{}
}

// fakeDB records statements, every query pops the next result set
type fakeDB struct {
	results    [][][]interface{}
	execs      []fakeExec
	queries    []fakeExec
	execErr    error
	failAt     int
	txOpts     *driver.TxOptions
	committed  bool
	rolledBack bool
}

var _ driver.ITransactionalDB = &fakeDB{}

func (db *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db.execs = append(db.execs, fakeExec{query, args})
	if db.execErr != nil && (db.failAt == 0 || db.failAt == len(db.execs)) {
		return nil, db.execErr
	}
	return fakeResult{}, nil
}

func (db *fakeDB) QueryContext(ctx context.Context, query string, args ...interface{}) (driver.ISQLRows, error) {
	db.queries = append(db.queries, fakeExec{query, args})
	rows := &fakeRows{}
	if len(db.results) > 0 {
		rows.data = db.results[0]
		db.results = db.results[1:]
	}
	return rows, nil
}

func (db *fakeDB) BeginTx(ctx context.Context, opts *driver.TxOptions) (driver.ITransactionalDB, error) {
	db.txOpts = opts
	return db, nil
}

func (db *fakeDB) Commit(ctx context.Context) error {
	db.committed = true
	return nil
}

func (db *fakeDB) Rollback(ctx context.Context) error {
	db.rolledBack = true
	return nil
}

func (db *fakeDB) Close(ctx context.Context) error { return nil }
func (db *fakeDB) Ping() error                     { return nil }

func idRows(ids ...string) [][]interface{} {
	rows := make([][]interface{}, len(ids))
	for i, id := range ids {
		rows[i] = []interface{}{id}
	}
	return rows
}

func TestSQLRepository_WriteOrders(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)

	t.Run("stages negative orders then flips them", func(t *testing.T) {
		db := &fakeDB{results: [][][]interface{}{idRows("a", "b", "c")}}
		repo := NewSQLRepository(db)

		err := repo.WriteOrders(ctx, "course", map[string]int{"c": 1, "a": 2, "b": 3}, at)
		require.NoError(t, err)
		assert.True(t, db.committed)
		assert.False(t, db.rolledBack)
		assert.Equal(t, sql.LevelRepeatableRead, db.txOpts.Isolation)

		require.Len(t, db.execs, 4)
		staged := make(map[string]int)
		for _, e := range db.execs[:3] {
			staged[e.args[1].(string)] = e.args[0].(int)
		}
		assert.Equal(t, map[string]int{"c": -1, "a": -2, "b": -3}, staged)
		assert.Contains(t, db.execs[3].query, `-"order"`)
		assert.Equal(t, []interface{}{at, "course"}, db.execs[3].args)
	})

	t.Run("rejects a stale set without writing", func(t *testing.T) {
		db := &fakeDB{results: [][][]interface{}{idRows("a", "b", "c")}}
		repo := NewSQLRepository(db)

		err := repo.WriteOrders(ctx, "course", map[string]int{"a": 1, "b": 2}, at)
		assert.Equal(t, ErrInvalidReorderSet, err)
		assert.Empty(t, db.execs)
		assert.True(t, db.rolledBack)
		assert.False(t, db.committed)

		db = &fakeDB{results: [][][]interface{}{idRows("a", "b")}}
		err = NewSQLRepository(db).WriteOrders(ctx, "course", map[string]int{"a": 1, "x": 2}, at)
		assert.Equal(t, ErrInvalidReorderSet, err)
		assert.Empty(t, db.execs)
	})

	t.Run("rolls back on a failed write", func(t *testing.T) {
		boom := errors.New("boom")
		db := &fakeDB{results: [][][]interface{}{idRows("a", "b")}, execErr: boom, failAt: 2}
		repo := NewSQLRepository(db)

		err := repo.WriteOrders(ctx, "course", map[string]int{"a": 2, "b": 1}, at)
		assert.Equal(t, boom, err)
		assert.True(t, db.rolledBack)
		assert.False(t, db.committed)
	})
}

func TestSQLRepository_DuplicateKeys(t *testing.T) {
	ctx := context.Background()

	db := &fakeDB{execErr: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}}
	created, err := NewSQLRepository(db).CreateEnrollment(ctx, &EnrollmentModel{LearnerID: "u", CourseID: "c"})
	assert.NoError(t, err)
	assert.False(t, created)

	db = &fakeDB{execErr: &pgconn.PgError{Code: "23505"}}
	created, err = NewSQLRepository(db).CreateCompletion(ctx, &CompletionModel{LearnerID: "u", LessonID: "l"})
	assert.NoError(t, err)
	assert.False(t, created)

	db = &fakeDB{execErr: &pgconn.PgError{Code: "23505"}}
	err = NewSQLRepository(db).CreateLesson(ctx, &LessonModel{ID: "l", CourseID: "c", Order: 1})
	assert.Equal(t, ErrOrderConflict, err)

	boom := errors.New("boom")
	db = &fakeDB{execErr: boom}
	created, err = NewSQLRepository(db).CreateEnrollment(ctx, &EnrollmentModel{LearnerID: "u", CourseID: "c"})
	assert.Equal(t, boom, err)
	assert.False(t, created)

	db = &fakeDB{}
	created, err = NewSQLRepository(db).CreateCompletion(ctx, &CompletionModel{LearnerID: "u", LessonID: "l"})
	assert.NoError(t, err)
	assert.True(t, created)
}

func TestSQLRepository_ProgressSnapshot(t *testing.T) {
	now := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)
	lesson := func(id string, order int) []interface{} {
		return []interface{}{id, "course", id, "", "", order, now, now}
	}
	db := &fakeDB{results: [][][]interface{}{
		{lesson("a", 1), lesson("b", 3)},
		idRows("b"),
	}}

	lessons, completed, err := NewSQLRepository(db).ProgressSnapshot(context.Background(), "u", "course")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, Sequence(lessons))
	assert.Equal(t, map[string]bool{"b": true}, completed)
	assert.Equal(t, driver.AccessReadOnly, db.txOpts.AccessMode)
	assert.Equal(t, sql.LevelRepeatableRead, db.txOpts.Isolation)
	assert.True(t, db.committed)
}

func TestSQLRepository_DeleteLesson(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewSQLRepository(db).DeleteLesson(context.Background(), "l"))

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0].query, `"completion"`)
	assert.Contains(t, db.execs[1].query, `"lesson"`)
	for _, e := range db.execs {
		assert.NotContains(t, strings.ToUpper(e.query), "UPDATE", "remaining lessons are not renumbered")
	}
	assert.True(t, db.committed)
}

func TestCourseFilter(t *testing.T) {
	where, args := courseFilter(&CourseQuery{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	published := StatusPublished
	where, args = courseFilter(&CourseQuery{Status: &published, Keyword: "Go"})
	assert.Equal(t, " WHERE status = $1 AND (LOWER(title) LIKE $2 ESCAPE '!' OR LOWER(description) LIKE $3 ESCAPE '!')", where)
	assert.Equal(t, []interface{}{1, "%go%", "%go%"}, args)

	where, args = courseFilter(&CourseQuery{Keyword: "x"})
	assert.Equal(t, " WHERE (LOWER(title) LIKE $1 ESCAPE '!' OR LOWER(description) LIKE $2 ESCAPE '!')", where)
	assert.Len(t, args, 2)

	_, args = courseFilter(&CourseQuery{Keyword: "50%_Off!"})
	assert.Equal(t, []interface{}{"%50!%!_off!!%", "%50!%!_off!!%"}, args)
}

func TestSchema(t *testing.T) {
	for _, d := range []string{"mysql", "postgres"} {
		stmts := Schema(d)
		require.Len(t, stmts, 4)
		for _, s := range stmts {
			assert.NotContains(t, s, "{ts}")
		}
	}
	assert.Contains(t, Schema("mysql")[0], "DATETIME(6)")
	assert.Contains(t, Schema("postgres")[1], `UNIQUE (course_id, "order")`)
}

func TestSQLRepository_SearchCourses(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{results: [][][]interface{}{
		{{11}},
		{{"c1", "Go", "basics", "", StatusPublished, at, at}},
	}}
	repo := NewSQLRepository(db)

	published := StatusPublished
	courses, total, err := repo.SearchCourses(ctx, &CourseQuery{Status: &published, Keyword: "Go", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)
	assert.Equal(t, StatusPublished, courses[0].Status)

	require.Len(t, db.queries, 2)
	count, page := db.queries[0], db.queries[1]
	assert.True(t, strings.HasPrefix(count.query, `SELECT COUNT(*) FROM "course" WHERE status = $1`), count.query)
	assert.Equal(t, []interface{}{1, "%go%", "%go%"}, count.args)
	assert.Contains(t, page.query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []interface{}{1, "%go%", "%go%", 10, 10}, page.args)

	db = &fakeDB{results: [][][]interface{}{{{0}}, {}}}
	_, _, err = NewSQLRepository(db).SearchCourses(ctx, &CourseQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Contains(t, db.queries[1].query, "LIMIT $1 OFFSET $2")
	assert.Equal(t, []interface{}{20, 0}, db.queries[1].args)
}

func TestSQLRepository_Stats(t *testing.T) {
	db := &fakeDB{results: [][][]interface{}{
		{{3}},
		{{2}},
		{{"c1", "Go", 2}, {"c2", "Rust", 1}},
		{{1}},
		{{0}},
	}}
	repo := NewSQLRepository(db)

	stats, err := repo.Stats(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Enrollments)
	assert.Equal(t, 2, stats.Completions)
	require.Len(t, stats.TopCourses, 2)
	assert.Equal(t, &CourseStat{CourseID: "c1", Title: "Go", Enrollments: 2, Completed: 1}, stats.TopCourses[0])
	assert.Equal(t, 0, stats.TopCourses[1].Completed)

	require.Len(t, db.queries, 5)
	assert.Contains(t, db.queries[2].query, "LIMIT $1")
	assert.Equal(t, []interface{}{5}, db.queries[2].args)
	for i, id := range []string{"c1", "c2"} {
		q := db.queries[3+i]
		assert.Contains(t, q.query, `HAVING COUNT(*) = (SELECT COUNT(*) FROM "lesson" WHERE course_id = $2)`)
		assert.Equal(t, []interface{}{id, id}, q.args)
	}
}
