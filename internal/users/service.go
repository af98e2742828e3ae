package users

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/memberdesk/memberdesk/internal/shared"
)

// RepositoryPort defines the data access methods the service depends on.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByLoginID(ctx context.Context, loginID string) (*User, error)
	FindByLoginIDOrEmail(ctx context.Context, loginID, email string) (*User, error)
	FindByEmailExcluding(ctx context.Context, email string, excludeID int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	Recent(ctx context.Context, limit int) ([]User, error)
	Create(ctx context.Context, user *User) error
	UpdateProfile(ctx context.Context, user *User) error
	ToggleAdmin(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context) (Stats, error)
}

// Service wraps account business rules.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Register creates an account from validated registration input. The
// pre-check produces the friendly message; a constraint violation racing past
// it surfaces as the same conflict errors.
func (s *Service) Register(ctx context.Context, form RegistrationForm) (*User, error) {
	existing, err := s.repo.FindByLoginIDOrEmail(ctx, form.LoginID, form.Email)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.LoginID == form.LoginID {
			return nil, shared.ErrLoginIDTaken
		}
		return nil, shared.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		LoginID:      form.LoginID,
		PasswordHash: string(hash),
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Address:      form.Address,
		Gender:       form.Gender,
		Phone:        form.Phone,
		Email:        form.Email,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate validates login id/password credentials. A missing account and
// a wrong password produce the same error.
func (s *Service) Authenticate(ctx context.Context, loginID, password string) (*User, error) {
	user, err := s.repo.FindByLoginID(ctx, loginID)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Get loads an account by internal id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Recent returns the newest accounts.
func (s *Service) Recent(ctx context.Context, limit int) ([]User, error) {
	return s.repo.Recent(ctx, limit)
}

// EditProfile applies validated profile fields to the target account. The
// email conflict check excludes the target so keeping an unchanged address
// never conflicts with itself.
func (s *Service) EditProfile(ctx context.Context, targetID int64, form ProfileForm) (*User, error) {
	user, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if form.Email != user.Email {
		other, err := s.repo.FindByEmailExcluding(ctx, form.Email, targetID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if other != nil {
			return nil, shared.ErrEmailTaken
		}
	}
	user.FirstName = form.FirstName
	user.LastName = form.LastName
	user.Address = form.Address
	user.Gender = form.Gender
	user.Phone = form.Phone
	user.Email = form.Email
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ToggleAdmin flips the admin flag on the target and returns the new value.
func (s *Service) ToggleAdmin(ctx context.Context, targetID int64) (bool, error) {
	return s.repo.ToggleAdmin(ctx, targetID)
}

// Stats aggregates dashboard figures.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}
