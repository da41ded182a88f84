package user

import (
	"context"

	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
)

// Schema DDL of the user table for the given driver
func Schema(driverName string) []string {
	ts := "TIMESTAMP"
	if driverName == "mysql" {
		ts = "DATETIME(6)"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS "user" (
			id VARCHAR(32) NOT NULL PRIMARY KEY,
			username VARCHAR(32) NOT NULL,
			email VARCHAR(128) NOT NULL,
			password VARCHAR(72) NOT NULL,
			role VARCHAR(16) NOT NULL,
			last_login ` + ts + ` NULL,
			created_at ` + ts + ` NOT NULL,
			CONSTRAINT uq_user_username UNIQUE (username),
			CONSTRAINT uq_user_email UNIQUE (email)
		)`,
	}
}

// UserSQL UserRepository backed by mysql or postgres
type UserSQL struct {
	Conn driver.ITransactionalDB
}

var _ UserRepository = &UserSQL{}

// NewUserRepository .
func NewUserRepository(Conn driver.ITransactionalDB) *UserSQL {
	return &UserSQL{Conn}
}

// FindByCredential query user with provided credential
func (repo *UserSQL) FindByCredential(ctx context.Context, username, email string) (*UserModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `SELECT id, username, email, password, role, last_login, created_at
	FROM "user"
	WHERE username = $1 OR email = $2`, username, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		user := new(UserModel)
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.Role, &user.LastLogin, &user.CreatedAt); err != nil {
			return nil, err
		}
		return user, nil
	}
	return nil, rows.Err()
}

func (repo *UserSQL) SaveUser(ctx context.Context, u *UserModel) error {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO "user"(id, username, email, password, role, created_at)
	VALUES($1, $2, $3, $4, $5, $6)`, u.ID, u.Username, u.Email, u.Password, string(u.Role), u.CreatedAt.UTC())
	if driver.IsDuplicateKey(err) {
		return ErrDuplicatedUser
	}
	return err
}

func (repo *UserSQL) UpdateLogin(ctx context.Context, u *UserModel) error {
	_, err := repo.Conn.ExecContext(ctx, `UPDATE "user"
	SET last_login = $1
	WHERE id = $2`, u.LastLogin.UTC(), u.ID)
	return err
}

func (repo *UserSQL) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	_, err := repo.Conn.ExecContext(ctx, `UPDATE "user" SET role = $1 WHERE id = $2`, string(role), id)
	return err
}

func (repo *UserSQL) CountUsers(ctx context.Context) (int, error) {
	rows, err := repo.Conn.QueryContext(ctx, `SELECT COUNT(*) FROM "user"`)
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
