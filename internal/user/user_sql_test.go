package user

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pot-code/curriculum/internal/domain"
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

type statement struct {
	query string
	args  []interface{}
}

// fakeDB records statements, every query pops the next result set
type fakeDB struct {
	results [][][]interface{}
	execs   []statement
	queries []statement
	execErr error
}

var _ driver.ITransactionalDB = &fakeDB{}

func (db *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db.execs = append(db.execs, statement{query, args})
	if db.execErr != nil {
		return nil, db.execErr
	}
	return fakeResult{}, nil
}

func (db *fakeDB) QueryContext(ctx context.Context, query string, args ...interface{}) (driver.ISQLRows, error) {
	db.queries = append(db.queries, statement{query, args})
	rows := &fakeRows{}
	if len(db.results) > 0 {
		rows.data = db.results[0]
		db.results = db.results[1:]
	}
	return rows, nil
}

func (db *fakeDB) BeginTx(ctx context.Context, opts *driver.TxOptions) (driver.ITransactionalDB, error) {
	return db, nil
}

func (db *fakeDB) Commit(ctx context.Context) error   { return nil }
func (db *fakeDB) Rollback(ctx context.Context) error { return nil }
func (db *fakeDB) Close(ctx context.Context) error    { return nil }
func (db *fakeDB) Ping() error                        { return nil }

func TestUserSQL_FindByCredential(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db := &fakeDB{results: [][][]interface{}{
			{{"u1", "alice", "alice@example.com", "hash", domain.RoleAdmin, (*time.Time)(nil), created}},
		}}
		u, err := NewUserRepository(db).FindByCredential(ctx, "alice", "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, domain.RoleAdmin, u.Role)
		assert.Nil(t, u.LastLogin)
		assert.Equal(t, created, u.CreatedAt)

		require.Len(t, db.queries, 1)
		assert.Contains(t, db.queries[0].query, "WHERE username = $1 OR email = $2")
		assert.Equal(t, []interface{}{"alice", "alice@example.com"}, db.queries[0].args)
	})

	t.Run("missing", func(t *testing.T) {
		u, err := NewUserRepository(&fakeDB{}).FindByCredential(ctx, "bob", "")
		assert.NoError(t, err)
		assert.Nil(t, u)
	})
}

func TestUserSQL_SaveUser(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2020, 12, 1, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))
	u := &UserModel{ID: "u1", Username: "alice", Email: "alice@example.com", Password: "hash", Role: domain.RoleLearner, CreatedAt: created}

	db := &fakeDB{}
	require.NoError(t, NewUserRepository(db).SaveUser(ctx, u))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].query, `INSERT INTO "user"(id, username, email, password, role, created_at)`)
	assert.Equal(t, []interface{}{"u1", "alice", "alice@example.com", "hash", "learner", created.UTC()}, db.execs[0].args)

	db = &fakeDB{execErr: &mysql.MySQLError{Number: 1062}}
	assert.Equal(t, ErrDuplicatedUser, NewUserRepository(db).SaveUser(ctx, u))
}

func TestUserSQL_Updates(t *testing.T) {
	ctx := context.Background()
	login := time.Date(2020, 12, 2, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{}
	repo := NewUserRepository(db)

	require.NoError(t, repo.UpdateLogin(ctx, &UserModel{ID: "u1", LastLogin: &login}))
	require.NoError(t, repo.UpdateRole(ctx, "u1", domain.RoleAdmin))

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0].query, "SET last_login = $1")
	assert.Equal(t, []interface{}{login, "u1"}, db.execs[0].args)
	assert.Equal(t, `UPDATE "user" SET role = $1 WHERE id = $2`, db.execs[1].query)
	assert.Equal(t, []interface{}{"admin", "u1"}, db.execs[1].args)
}

func TestUserSQL_CountUsers(t *testing.T) {
	db := &fakeDB{results: [][][]interface{}{{{7}}}}
	n, err := NewUserRepository(db).CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, `SELECT COUNT(*) FROM "user"`, db.queries[0].query)
}

func TestSchema(t *testing.T) {
	assert.Contains(t, Schema("mysql")[0], "DATETIME(6)")
	assert.Contains(t, Schema("postgres")[0], "last_login TIMESTAMP NULL")
	assert.Contains(t, Schema("postgres")[0], "CONSTRAINT uq_user_email UNIQUE (email)")
}
