package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/utils"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrCannotDeleteSelf = errors.New("cannot delete your own account")
)

// UserUpdate holds the optional fields of an admin edit; nil means unchanged
type UserUpdate struct {
	Username *string
	Password *string
	Role     *string
}

// UserService is the admin-side account management
type UserService struct {
	userRepo *repository.UserRepository
	auth     *AuthService
}

func NewUserService(userRepo *repository.UserRepository, auth *AuthService) *UserService {
	return &UserService{userRepo: userRepo, auth: auth}
}

// ListUsers returns every account, newest first
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.userRepo.GetAllUsers(ctx)
	if err != nil {
		logger.Log.Error("Failed to fetch all users", zap.Error(err))
		return nil, err
	}

	logger.Log.Debug("Fetched all users", zap.Int("count", len(users)))
	return users, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	user, err := s.userRepo.GetUserByID(ctx, uid)
	if err != nil {
		logger.Log.Error("Failed to get user",
			zap.String("user_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// CreateUser follows the same rules as public registration
func (s *UserService) CreateUser(ctx context.Context, username, password, role string) (*models.User, error) {
	return s.auth.Register(ctx, username, password, role)
}

func (s *UserService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	start := time.Now()

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		validateUsername(verr, username)
		if username != user.Username && verr.OrNil() == nil {
			existing, err := s.userRepo.GetUserByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, ErrUsernameTaken
			}
		}
		user.Username = username
	}
	if upd.Role != nil {
		// An explicit empty role keeps the current one
		if strings.TrimSpace(*upd.Role) != "" {
			role, err := ParseRole(*upd.Role)
			if err != nil {
				verr.Add("role", "must be one of admin, editor, viewer")
			} else {
				user.Role = role
			}
		}
	}
	if upd.Password != nil && *upd.Password != "" {
		validatePassword(verr, *upd.Password)
		if verr.OrNil() == nil {
			hash, err := utils.HashPassword(*upd.Password)
			if err != nil {
				logger.Log.Error("Failed to hash password", zap.Error(err))
				return nil, err
			}
			user.PasswordHash = hash
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		logger.Log.Error("Failed to update user",
			zap.String("user_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Info("User updated",
		zap.String("user_id", id),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
		zap.Bool("password_changed", upd.Password != nil && *upd.Password != ""),
		zap.Duration("duration", time.Since(start)),
	)
	return user, nil
}

// DeleteUser removes an account; actorID is the admin performing it
func (s *UserService) DeleteUser(ctx context.Context, actorID uuid.UUID, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	if uid == actorID {
		return ErrCannotDeleteSelf
	}

	deleted, err := s.userRepo.DeleteUser(ctx, uid)
	if err != nil {
		logger.Log.Error("Failed to delete user",
			zap.String("user_id", id),
			zap.Error(err),
		)
		return err
	}
	if !deleted {
		return ErrUserNotFound
	}

	logger.Log.Info("User deleted",
		zap.String("user_id", id),
		zap.String("admin_id", actorID.String()),
	)
	return nil
}
