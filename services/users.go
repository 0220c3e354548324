package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campus-eats-api/auth"
	"campus-eats-api/models"
	"campus-eats-api/repository"

	"go.uber.org/zap"
)

// RegisterInput is a self-service student signup.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	FullName string
}

// Session is a logged-in user with their access token.
type Session struct {
	Token string       `json:"access_token"`
	Type  string       `json:"token_type"`
	User  *models.User `json:"user"`
}

type UserService struct {
	repo   repository.Repository
	tokens *auth.TokenIssuer
	logger *zap.SugaredLogger
}

func NewUserService(repo repository.Repository, tokens *auth.TokenIssuer, logger *zap.SugaredLogger) *UserService {
	return &UserService{repo: repo, tokens: tokens, logger: logger}
}

// Register creates a student account and logs it in.
func (u *UserService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := u.Create(ctx, in.Username, in.Password, models.RoleStudent, in.Email, in.FullName)
	if err != nil {
		return nil, err
	}
	return u.session(user)
}

// Create adds a user with any role. Staff accounts are only created this way.
func (u *UserService) Create(ctx context.Context, username, password string, role models.UserRole, email, fullName string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 50 {
		return nil, invalid("username", "must be between 3 and 50 characters")
	}
	if len(password) < 6 {
		return nil, invalid("password", "must be at least 6 characters")
	}
	switch role {
	case models.RoleStudent, models.RoleKitchen, models.RoleAdmin:
	default:
		return nil, invalid("role", "must be student, kitchen or admin")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		FullName:     fullName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := u.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("username already registered: %w", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	u.logger.Infow("user created", "user_id", user.ID, "role", role)
	return user, nil
}

// Login checks credentials and issues a token.
func (u *UserService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := u.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account is disabled: %w", ErrForbidden)
	}
	return u.session(user)
}

func (u *UserService) session(user *models.User) (*Session, error) {
	token, err := u.tokens.Issue(user.Username, user.Role, user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, Type: "bearer", User: user}, nil
}

func (u *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	user, err := u.repo.GetUser(ctx, id)
	return user, translate(err, "user")
}

func (u *UserService) List(ctx context.Context, role models.UserRole) ([]models.User, error) {
	return u.repo.ListUsers(ctx, role)
}
