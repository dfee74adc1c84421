package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/utils"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// unknownUserHash is verified against when the username does not exist so
// that the response takes as long as a wrong password would.
var unknownUserHash = sync.OnceValue(func() string {
	h, err := utils.HashPassword("unknown-user-placeholder")
	if err != nil {
		panic(err)
	}
	return h
})

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	passwordMinLen = 6
	passwordMaxLen = 128
)

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// ParseRole maps user input to a role. Empty input yields DefaultRole.
func ParseRole(raw string) (models.Role, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return models.DefaultRole, nil
	}
	role := models.Role(raw)
	if !role.Valid() {
		return "", fieldError("role", "must be one of admin, editor, viewer")
	}
	return role, nil
}

// Register creates a user; an existing username fails without writing
func (s *AuthService) Register(ctx context.Context, username, password, role string) (*models.User, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	logger.Log.Debug("Processing user registration",
		zap.String("username", username),
	)

	parsedRole, err := validateCredentials(username, password, role)
	if err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, err
	}

	existingUser, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		logger.Log.Error("Failed to check username existence",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, err
	}
	if existingUser != nil {
		logger.Log.Warn("Username already exists",
			zap.String("username", username),
		)
		return nil, ErrUsernameTaken
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, err
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         parsedRole,
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		logger.Log.Error("Failed to create user in database",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Info("User registered successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", username),
		zap.String("role", string(user.Role)),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, nil
}

// Login returns the user and a signed token. Unknown user and wrong
// password both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	logger.Log.Debug("Processing user login",
		zap.String("username", username),
	)

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		logger.Log.Error("Failed to get user by username",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, "", err
	}
	if user == nil {
		_, _ = utils.VerifyPassword(password, unknownUserHash())
		logger.Log.Warn("Login failed: user not found",
			zap.String("username", username),
		)
		return nil, "", ErrInvalidCredentials
	}

	verifyStart := time.Now()
	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		// A corrupt stored hash is an operator problem, not a caller one
		logger.Log.Error("Failed to verify password",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", ErrInvalidCredentials
	}
	verifyDuration := time.Since(verifyStart)

	if !valid {
		logger.Log.Warn("Login failed: invalid password",
			zap.String("user_id", user.ID.String()),
		)
		return nil, "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", err
	}

	logger.Log.Info("User logged in successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Duration("password_verify_duration", verifyDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, token, nil
}

// Verify decodes a token without touching the database
func (s *AuthService) Verify(token string) (*utils.Claims, error) {
	return utils.ValidateToken(token, s.jwtSecret)
}

func validateCredentials(username, password, role string) (models.Role, error) {
	verr := &ValidationError{}
	validateUsername(verr, username)
	validatePassword(verr, password)

	parsedRole, err := ParseRole(role)
	if err != nil {
		verr.Add("role", "must be one of admin, editor, viewer")
	}
	return parsedRole, verr.OrNil()
}

func validateUsername(verr *ValidationError, username string) {
	n := utf8.RuneCountInString(username)
	switch {
	case n < usernameMinLen:
		verr.Add("username", "must be at least 3 characters")
	case n > usernameMaxLen:
		verr.Add("username", "must be at most 50 characters")
	}
}

func validatePassword(verr *ValidationError, password string) {
	n := utf8.RuneCountInString(password)
	switch {
	case n < passwordMinLen:
		verr.Add("password", "must be at least 6 characters")
	case n > passwordMaxLen:
		verr.Add("password", "must be at most 128 characters")
	}
}
