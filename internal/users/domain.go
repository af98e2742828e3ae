package users

import "time"

// User is the persisted account record. PasswordHash is never rendered or
// logged. ResetToken and ResetTokenExpiry are set and cleared together.
type User struct {
	ID               int64
	LoginID          string
	PasswordHash     string
	FirstName        string
	LastName         string
	Address          string
	Gender           string
	Phone            string
	Email            string
	IsAdmin          bool
	ResetToken       *string
	ResetTokenExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullName returns the display name shown in listings and the session.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Stats aggregates account figures for the admin dashboard.
type Stats struct {
	TotalUsers int64
	AdminCount int64
	ByGender   map[string]int64
}
