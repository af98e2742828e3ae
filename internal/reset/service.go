// Package reset implements the email-based password reset workflow.
package reset

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/memberdesk/memberdesk/internal/mail"
	"github.com/memberdesk/memberdesk/internal/shared"
	"github.com/memberdesk/memberdesk/internal/users"
)

const tokenBytes = 32

// RepositoryPort is the slice of account persistence the workflow needs.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByResetToken(ctx context.Context, token string) (*users.User, error)
	SetResetToken(ctx context.Context, id int64, token string, expiry time.Time) error
	CompleteReset(ctx context.Context, id int64, passwordHash string) error
}

// Service issues and consumes single-use reset tokens.
type Service struct {
	repo    RepositoryPort
	mailer  mail.Sender
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, mailer mail.Sender, baseURL string, ttl time.Duration) *Service {
	return &Service{
		repo:    repo,
		mailer:  mailer,
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Request issues a token for the account holding the email and hands the
// reset link to the mailer. The token is persisted before delivery is
// attempted, so a delivery failure leaves a usable token behind.
func (s *Service) Request(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := generateToken()
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.ttl)
	if err := s.repo.SetResetToken(ctx, user.ID, token, expiry); err != nil {
		return err
	}

	link := s.baseURL + "/reset_password/" + token
	if err := s.mailer.SendPasswordReset(user.Email, user.FirstName, link); err != nil {
		return errors.Join(shared.ErrMailDelivery, err)
	}
	return nil
}

// Validate checks that a token exists and has not expired.
func (s *Service) Validate(ctx context.Context, token string) error {
	_, err := s.lookup(ctx, token)
	return err
}

// Consume exchanges a valid token for a new credential hash. The token
// fields are cleared in the same statement, so a replay fails the lookup.
func (s *Service) Consume(ctx context.Context, token, newPassword string) error {
	user, err := s.lookup(ctx, token)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.CompleteReset(ctx, user.ID, string(hash))
}

func (s *Service) lookup(ctx context.Context, token string) (*users.User, error) {
	if token == "" {
		return nil, shared.ErrTokenInvalid
	}
	user, err := s.repo.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrTokenInvalid
		}
		return nil, err
	}
	// Valid while now <= expiry.
	if user.ResetTokenExpiry == nil || s.now().After(*user.ResetTokenExpiry) {
		return nil, shared.ErrTokenInvalid
	}
	return user, nil
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
