package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/rs/zerolog"
)

var (
	// ErrEmailTaken is returned when registering with an email that
	// already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// UserService handles account lookup and registration.
type UserService struct {
	users *repository.UserRepository
	log   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users *repository.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		log:   log.With().Str("component", "user_service").Logger(),
	}
}

// Register creates a new account with an already-hashed password.
func (s *UserService) Register(ctx context.Context, name, email, passwordHash string, role model.Role) (*model.User, error) {
	u := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}

	if err := s.users.Create(ctx, u); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int("user_id", u.ID).Str("role", string(u.Role)).Msg("Account registered")
	return u, nil
}

// GetByEmail looks up an account by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByID looks up an account by id.
func (s *UserService) GetByID(ctx context.Context, id int) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
