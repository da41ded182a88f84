package user

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
	"github.com/pot-code/curriculum/internal/infrastructure/logging"
	"github.com/pot-code/curriculum/internal/infrastructure/uuid"
	"go.elastic.co/apm"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LockoutConfig failed login policy
type LockoutConfig struct {
	MaxAttempts  int
	RetryTimeout time.Duration
}

// UserUseCaseImpl ...
type UserUseCaseImpl struct {
	UserRepository UserRepository
	UUIDGenerator  uuid.Generator
	KVStore        driver.KeyValueDB

	lockout LockoutConfig
	cost    int
	now     func() time.Time
}

var _ UserUseCase = &UserUseCaseImpl{}

// NewUserUseCase ...
func NewUserUseCase(
	UserRepository UserRepository,
	UUIDGenerator uuid.Generator,
	KVStore driver.KeyValueDB,
	lockout LockoutConfig,
) *UserUseCaseImpl {
	return &UserUseCaseImpl{
		UserRepository: UserRepository,
		UUIDGenerator:  UUIDGenerator,
		KVStore:        KVStore,
		lockout:        lockout,
		cost:           bcrypt.DefaultCost,
		now:            time.Now,
	}
}

// SignUp create a learner account
func (uu *UserUseCaseImpl) SignUp(ctx context.Context, post *UserModel) (*UserModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.SignUp", "service")
	defer apmSpan.End()

	return uu.create(ctx, post, domain.RoleLearner)
}

func (uu *UserUseCaseImpl) create(ctx context.Context, post *UserModel, role domain.Role) (*UserModel, error) {
	ur := uu.UserRepository
	// search for existence
	if m, err := ur.FindByCredential(ctx, post.Username, post.Email); err != nil {
		return nil, errors.Wrap(err, "find user")
	} else if m != nil {
		return nil, ErrDuplicatedUser
	}

	id, err := uu.UUIDGenerator.Generate()
	if err != nil {
		return nil, errors.Wrap(err, "generate user id")
	}
	password, err := bcrypt.GenerateFromPassword([]byte(post.Password), uu.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	user := &UserModel{
		ID:        id,
		Username:  post.Username,
		Email:     post.Email,
		Password:  string(password),
		Role:      role,
		CreatedAt: uu.now(),
	}
	if err := ur.SaveUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicatedUser) {
			return nil, ErrDuplicatedUser
		}
		return nil, errors.Wrap(err, "save user")
	}
	user.Password = ""
	return user, nil
}

func attemptsKey(credential string) string {
	return "login_attempts:" + credential
}

// SignIn check credential, which is either the username or the email. The
// account is locked for RetryTimeout after MaxAttempts failures.
func (uu *UserUseCaseImpl) SignIn(ctx context.Context, credential, password string) (*UserModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.SignIn", "service")
	defer apmSpan.End()

	kv := uu.KVStore
	key := attemptsKey(credential)
	if uu.lockout.MaxAttempts > 0 {
		attempts, err := kv.Get(ctx, key)
		if err != nil && !errors.Is(err, driver.ErrKeyNotFound) {
			return nil, errors.Wrap(err, "read login attempts")
		}
		if n, _ := strconv.Atoi(attempts); n >= uu.lockout.MaxAttempts {
			return nil, ErrTooManyRetry
		}
	}

	user, err := uu.UserRepository.FindByCredential(ctx, credential, credential)
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	if user == nil {
		return nil, ErrNoSuchUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		if err != bcrypt.ErrMismatchedHashAndPassword {
			return nil, errors.Wrap(err, "compare password")
		}
		if uu.lockout.MaxAttempts > 0 {
			n, err := kv.Incr(ctx, key, uu.lockout.RetryTimeout)
			if err != nil {
				return nil, errors.Wrap(err, "count login attempts")
			}
			logging.ExtractLoggerFromContext(ctx).Warn("failed login",
				zap.String("user.id", user.ID), zap.Int64("login.attempts", n))
		}
		return nil, ErrNoSuchUser
	}

	if err := kv.Del(ctx, key); err != nil {
		return nil, errors.Wrap(err, "reset login attempts")
	}
	now := uu.now()
	user.LastLogin = &now
	if err := uu.UserRepository.UpdateLogin(ctx, user); err != nil {
		return nil, errors.Wrap(err, "update last login")
	}
	user.Password = ""
	return user, nil
}

// Exists find if username or email is taken
func (uu *UserUseCaseImpl) Exists(ctx context.Context, username, email string) (bool, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.Exists", "service")
	defer apmSpan.End()

	user, err := uu.UserRepository.FindByCredential(ctx, username, email)
	if err != nil {
		return false, errors.Wrap(err, "find user")
	}
	return user != nil, nil
}

// EnsureAdmin seed the admin account
func (uu *UserUseCaseImpl) EnsureAdmin(ctx context.Context, post *UserModel) error {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.EnsureAdmin", "service")
	defer apmSpan.End()

	logger := logging.ExtractLoggerFromContext(ctx)
	existing, err := uu.UserRepository.FindByCredential(ctx, post.Username, post.Email)
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	if existing == nil {
		admin, err := uu.create(ctx, post, domain.RoleAdmin)
		if err != nil {
			return err
		}
		logger.Info("admin account created", zap.String("user.id", admin.ID), zap.String("user.name", admin.Username))
		return nil
	}
	if existing.Role == domain.RoleAdmin {
		return nil
	}
	if err := uu.UserRepository.UpdateRole(ctx, existing.ID, domain.RoleAdmin); err != nil {
		return errors.Wrap(err, "promote user")
	}
	logger.Info("user promoted to admin", zap.String("user.id", existing.ID), zap.String("user.name", existing.Username))
	return nil
}

// CountUsers .
func (uu *UserUseCaseImpl) CountUsers(ctx context.Context) (int, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.CountUsers", "service")
	defer apmSpan.End()

	return uu.UserRepository.CountUsers(ctx)
}
