package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberdesk/memberdesk/internal/platform/db"
	"github.com/memberdesk/memberdesk/internal/shared"
)

const userColumns = `id, login_id, password_hash, first_name, last_name, address, gender, phone, email, is_admin, reset_token, reset_token_expiry, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID fetches a user by internal id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByLoginID fetches a user by login identifier.
func (r *Repository) FindByLoginID(ctx context.Context, loginID string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE login_id = $1`, loginID)
}

// FindByEmail fetches a user by email address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByLoginIDOrEmail returns a user colliding with either field. When both
// collide on different rows the login id match is returned, so the caller
// reports the login id conflict first.
func (r *Repository) FindByLoginIDOrEmail(ctx context.Context, loginID, email string) (*User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE login_id = $1 OR email = $2 ORDER BY (login_id = $1) DESC LIMIT 1`,
		loginID, email)
}

// FindByEmailExcluding returns a user holding the email other than the given
// id. Lets a profile edit keep its own unchanged address.
func (r *Repository) FindByEmailExcluding(ctx context.Context, email string, excludeID int64) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND id <> $2`, email, excludeID)
}

// FindByResetToken fetches a user by its current reset token.
func (r *Repository) FindByResetToken(ctx context.Context, token string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token = $1`, token)
}

// List returns all users ordered by id.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// Recent returns the newest accounts for the dashboard.
func (r *Repository) Recent(ctx context.Context, limit int) ([]User, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

// Create inserts a new account. Unique violations are mapped to the
// field-specific conflict errors; the database constraint is the
// authoritative check, pre-lookups only improve the message.
func (r *Repository) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login_id, password_hash, first_name, last_name, address, gender, phone, email, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 RETURNING id, created_at, updated_at`,
		user.LoginID, user.PasswordHash, user.FirstName, user.LastName, user.Address,
		user.Gender, user.Phone, user.Email, user.IsAdmin, now,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return conflictError(err)
	}
	return nil
}

// UpdateProfile applies the editable profile fields atomically.
func (r *Repository) UpdateProfile(ctx context.Context, user *User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET first_name = $1, last_name = $2, address = $3, gender = $4, phone = $5, email = $6, updated_at = $7
		 WHERE id = $8`,
		user.FirstName, user.LastName, user.Address, user.Gender, user.Phone, user.Email,
		time.Now().UTC(), user.ID,
	)
	if err != nil {
		return conflictError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ToggleAdmin flips the admin flag in a row-locked read-modify-write and
// returns the new value.
func (r *Repository) ToggleAdmin(ctx context.Context, id int64) (bool, error) {
	var isAdmin bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT is_admin FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&isAdmin); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		isAdmin = !isAdmin
		_, err := tx.Exec(ctx, `UPDATE users SET is_admin = $1, updated_at = $2 WHERE id = $3`, isAdmin, time.Now().UTC(), id)
		return err
	})
	return isAdmin, err
}

// SetResetToken stores a reset token and its expiry on the account.
func (r *Repository) SetResetToken(ctx context.Context, id int64, token string, expiry time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token = $1, reset_token_expiry = $2, updated_at = $3 WHERE id = $4`,
		token, expiry.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return conflictError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CompleteReset replaces the credential hash and clears both token fields in
// one statement, making the token single-use.
func (r *Repository) CompleteReset(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, reset_token = NULL, reset_token_expiry = NULL, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Stats aggregates account counts for the dashboard.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByGender: make(map[string]int64)}
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_admin) FROM users`,
	).Scan(&stats.TotalUsers, &stats.AdminCount); err != nil {
		return Stats{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT gender, COUNT(*) FROM users GROUP BY gender`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var gender string
		var count int64
		if err := rows.Scan(&gender, &count); err != nil {
			return Stats{}, err
		}
		stats.ByGender[gender] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&user.ID, &user.LoginID, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.Address, &user.Gender, &user.Phone, &user.Email, &user.IsAdmin,
		&user.ResetToken, &user.ResetTokenExpiry, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) findMany(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.LoginID, &user.PasswordHash, &user.FirstName, &user.LastName,
			&user.Address, &user.Gender, &user.Phone, &user.Email, &user.IsAdmin,
			&user.ResetToken, &user.ResetTokenExpiry, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// conflictError maps PostgreSQL unique violations onto the shared conflict
// errors by constraint name.
func conflictError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_login_id_key":
			return shared.ErrLoginIDTaken
		case "users_email_key":
			return shared.ErrEmailTaken
		default:
			return shared.ErrConflict
		}
	}
	return err
}
