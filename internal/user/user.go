package user

import (
	"context"
	"errors"
	"time"

	"github.com/pot-code/curriculum/internal/domain"
)

var (
	// ErrDuplicatedUser username or email is taken
	ErrDuplicatedUser = errors.New("user already exists")
	// ErrNoSuchUser unknown user or wrong password
	ErrNoSuchUser = errors.New("no such user or wrong password")
	// ErrTooManyRetry account is locked after too many failed logins
	ErrTooManyRetry = errors.New("too many failed login attempts, retry later")
)

// UserModel .
type UserModel struct {
	ID        string      `json:"id"`
	Username  string      `json:"username" validate:"required,min=3,max=32"`
	Email     string      `json:"email" validate:"required,email,max=128"`
	Password  string      `json:"password,omitempty" validate:"required,min=8,max=64"`
	Role      domain.Role `json:"role"`
	LastLogin *time.Time  `json:"last_login,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Actor .
func (u *UserModel) Actor() domain.Actor {
	return domain.Actor{ID: u.ID, Role: u.Role}
}

// UserRepository Find* methods return nil, nil when no user matches
type UserRepository interface {
	// FindByCredential matches username or email
	FindByCredential(ctx context.Context, username, email string) (*UserModel, error)
	// SaveUser fails with ErrDuplicatedUser when username or email is taken
	SaveUser(ctx context.Context, u *UserModel) error
	UpdateLogin(ctx context.Context, u *UserModel) error
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	CountUsers(ctx context.Context) (int, error)
}

// UserUseCase .
type UserUseCase interface {
	SignUp(ctx context.Context, post *UserModel) (*UserModel, error)
	SignIn(ctx context.Context, credential, password string) (*UserModel, error)
	Exists(ctx context.Context, username, email string) (bool, error)
	// EnsureAdmin creates the admin account, or promotes the existing user
	EnsureAdmin(ctx context.Context, post *UserModel) error
	CountUsers(ctx context.Context) (int, error)
}
