package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/consultease/central/internal/errs"
)

// Admin is a row in the admins table.
type Admin struct {
	ID                  int64
	Username            string
	PasswordHash        string
	Salt                string
	HashScheme          string
	ForcePasswordChange bool
	PasswordChangedAt   time.Time
	Active              bool
	CreatedAt           time.Time
}

const adminColumns = `id, username, password_hash, salt, hash_scheme, force_password_change,
	password_changed_at, active, created_at`

func scanAdmin(row pgx.Row) (Admin, error) {
	var a Admin
	var salt *string
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &salt, &a.HashScheme, &a.ForcePasswordChange,
		&a.PasswordChangedAt, &a.Active, &a.CreatedAt)
	if salt != nil {
		a.Salt = *salt
	}
	return a, err
}

// AdminStore provides database operations for admin accounts and their
// login-attempt history.
type AdminStore struct {
	db DBTX
}

func NewAdminStore(db DBTX) *AdminStore { return &AdminStore{db: db} }

type AdminCreateParams struct {
	Username            string
	PasswordHash        string
	Salt                string
	HashScheme          string
	ForcePasswordChange bool
}

func (s *AdminStore) Create(ctx context.Context, p AdminCreateParams) (Admin, error) {
	query := `INSERT INTO admins (username, password_hash, salt, hash_scheme, force_password_change)
	VALUES ($1, $2, $3, $4, $5) RETURNING ` + adminColumns
	row := s.db.QueryRow(ctx, query, p.Username, p.PasswordHash, nullIfEmpty(p.Salt), p.HashScheme, p.ForcePasswordChange)
	a, err := scanAdmin(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Admin{}, errs.New(errs.KindConflict, "duplicate_username", "an admin with this username already exists")
		}
		return Admin{}, errs.Wrap(errs.KindTransient, "admin_create", fmt.Errorf("creating admin: %w", err))
	}
	return a, nil
}

func (s *AdminStore) GetByUsername(ctx context.Context, username string) (Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE username = $1`
	row := s.db.QueryRow(ctx, query, username)
	a, err := scanAdmin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admin{}, errs.New(errs.KindNotFound, "admin_not_found", "admin does not exist")
		}
		return Admin{}, errs.Wrap(errs.KindTransient, "admin_get_by_username", fmt.Errorf("fetching admin: %w", err))
	}
	return a, nil
}

func (s *AdminStore) GetByID(ctx context.Context, id int64) (Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`
	row := s.db.QueryRow(ctx, query, id)
	a, err := scanAdmin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admin{}, errs.New(errs.KindNotFound, "admin_not_found", "admin does not exist")
		}
		return Admin{}, errs.Wrap(errs.KindTransient, "admin_get", fmt.Errorf("fetching admin: %w", err))
	}
	return a, nil
}

// CountActive reports how many active admin accounts exist, recomputed
// fresh on every first-run-setup check rather than cached.
func (s *AdminStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM admins WHERE active`).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransient, "admin_count_active", fmt.Errorf("counting admins: %w", err))
	}
	return n, nil
}

func (s *AdminStore) List(ctx context.Context) ([]Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins ORDER BY username`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "admin_list", fmt.Errorf("listing admins: %w", err))
	}
	defer rows.Close()
	var out []Admin
	for rows.Next() {
		var a Admin
		var salt *string
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &salt, &a.HashScheme, &a.ForcePasswordChange,
			&a.PasswordChangedAt, &a.Active, &a.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.KindTransient, "admin_list_scan", fmt.Errorf("scanning admin row: %w", err))
		}
		if salt != nil {
			a.Salt = *salt
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdatePassword rewrites an admin's password hash, used both for a normal
// password change and for transparent rehash-on-successful-legacy-verify.
// Rewriting always clears salt: the modern bcrypt family embeds its own salt
// in the hash, so the legacy salt column only ever holds a value for rows
// still on SchemeLegacySHA.
func (s *AdminStore) UpdatePassword(ctx context.Context, id int64, hash, scheme string, forceChange bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE admins SET password_hash = $2, salt = NULL, hash_scheme = $3, force_password_change = $4, password_changed_at = now()
		WHERE id = $1`, id, hash, scheme, forceChange)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "admin_update_password", fmt.Errorf("updating admin password: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "admin_not_found", "admin does not exist")
	}
	return nil
}

// SetActive enables or disables an admin account. Callers must independently
// enforce the last-active-admin-deactivation refusal rule before calling this
// with active=false.
func (s *AdminStore) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE admins SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "admin_set_active", fmt.Errorf("updating admin active flag: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "admin_not_found", "admin does not exist")
	}
	return nil
}

// RecordLoginAttempt appends a login attempt to the durable attempt record.
// Lockout decisions do not read this table; they use the in-memory
// auth.FailedAttempts tracker.
func (s *AdminStore) RecordLoginAttempt(ctx context.Context, adminID int64, success bool) error {
	_, err := s.db.Exec(ctx, `INSERT INTO admin_login_attempts (admin_id, success) VALUES ($1, $2)`, adminID, success)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "admin_record_attempt", fmt.Errorf("recording login attempt: %w", err))
	}
	return nil
}
