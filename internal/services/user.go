package services

import (
	"context"
	"time"

	"github.com/palaver-chat/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetRole(ctx context.Context, id int, role types.Role) (types.User, error)
	Suspend(ctx context.Context, id int, s types.Suspension) (types.User, error)
	Unsuspend(ctx context.Context, id int, at time.Time) (types.User, error)
}

// UserReader is the lookup subset of UserRepository.
type UserReader interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// UserService encapsulates account use-cases outside the moderation core:
// registration, lookup and bootstrapping roles.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	user.Role = types.RoleUser
	user.Suspended = false
	return s.repo.Create(ctx, user)
}

// Promote sets the role of the named user. It is an operator action and
// performs no guard checks.
func (s *UserService) Promote(ctx context.Context, username string, role types.Role) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.SetRole(ctx, user.ID, role)
}
