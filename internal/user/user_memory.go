package user

import (
	"context"
	"sync"

	"github.com/pot-code/curriculum/internal/domain"
)

// UserMemory process local UserRepository
type UserMemory struct {
	mu    sync.RWMutex
	users map[string]*UserModel
}

var _ UserRepository = &UserMemory{}

// NewUserMemory .
func NewUserMemory() *UserMemory {
	return &UserMemory{users: make(map[string]*UserModel)}
}

func (repo *UserMemory) FindByCredential(ctx context.Context, username, email string) (*UserModel, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, u := range repo.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (repo *UserMemory) SaveUser(ctx context.Context, u *UserModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, other := range repo.users {
		if other.Username == u.Username || other.Email == u.Email {
			return ErrDuplicatedUser
		}
	}
	cp := *u
	repo.users[u.ID] = &cp
	return nil
}

func (repo *UserMemory) UpdateLogin(ctx context.Context, u *UserModel) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if stored, ok := repo.users[u.ID]; ok {
		stored.LastLogin = u.LastLogin
	}
	return nil
}

func (repo *UserMemory) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if stored, ok := repo.users[id]; ok {
		stored.Role = role
	}
	return nil
}

func (repo *UserMemory) CountUsers(ctx context.Context) (int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return len(repo.users), nil
}
