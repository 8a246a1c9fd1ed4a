package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/persistence"
)

// AdminAuthResult is returned by a successful admin authentication.
type AdminAuthResult struct {
	Admin        persistence.Admin
	Session      *Session
	ForceChange  bool // set if admin.force_password_change, or the password is past its rotation age
}

// AdminAuthenticator implements §4.7's admin credential verification:
// lockout check, password-family verification (bcrypt preferred, legacy
// salted-SHA256 accepted and transparently rehashed), session issuance, and
// uniform password-age rotation enforcement.
type AdminAuthenticator struct {
	admins   *persistence.AdminStore
	sessions *SessionManager
	failed   *FailedAttempts
	audit    *audit.Writer
	logger   *slog.Logger

	bcryptCost     int
	rotationPeriod time.Duration
}

// NewAdminAuthenticator creates an AdminAuthenticator.
func NewAdminAuthenticator(admins *persistence.AdminStore, sessions *SessionManager, failed *FailedAttempts,
	auditWriter *audit.Writer, logger *slog.Logger, bcryptCost int, rotationDays int) *AdminAuthenticator {
	return &AdminAuthenticator{
		admins:         admins,
		sessions:       sessions,
		failed:         failed,
		audit:          auditWriter,
		logger:         logger,
		bcryptCost:     bcryptCost,
		rotationPeriod: time.Duration(rotationDays) * 24 * time.Hour,
	}
}

// Authenticate runs the full §4.7 admin login sequence.
func (a *AdminAuthenticator) Authenticate(ctx context.Context, username, password, sourceAddr string) (AdminAuthResult, error) {
	if locked, remaining := a.failed.Locked(username); locked {
		a.audit.LogOutcome("admin:"+username, "admin_login", "", audit.OutcomeFailure, sourceAddr,
			audit.Detailf(map[string]any{"reason": "locked", "remaining_seconds": remaining}))
		return AdminAuthResult{}, errs.Locked(remaining)
	}

	admin, err := a.admins.GetByUsername(ctx, username)
	if err != nil || !admin.Active {
		a.failed.Record(username, sourceAddr)
		if admin.ID != 0 {
			_ = a.admins.RecordLoginAttempt(ctx, admin.ID, false)
		}
		a.audit.LogOutcome("admin:"+username, "admin_login", "", audit.OutcomeFailure, sourceAddr, nil)
		return AdminAuthResult{}, errs.New(errs.KindUnauthorized, "invalid", "invalid username or password")
	}

	ok, needsRehash := VerifyPassword(password, admin.PasswordHash, admin.Salt, admin.HashScheme)
	if !ok {
		a.failed.Record(username, sourceAddr)
		_ = a.admins.RecordLoginAttempt(ctx, admin.ID, false)
		a.audit.LogOutcome("admin:"+username, "admin_login", fmt.Sprintf("admin:%d", admin.ID),
			audit.OutcomeFailure, sourceAddr, nil)
		return AdminAuthResult{}, errs.New(errs.KindUnauthorized, "invalid", "invalid username or password")
	}

	if needsRehash {
		if newHash, herr := HashPassword(password, a.bcryptCost); herr == nil {
			if err := a.admins.UpdatePassword(ctx, admin.ID, newHash, SchemeBcrypt, admin.ForcePasswordChange); err != nil {
				a.logger.Error("rehashing legacy admin password", "admin_id", admin.ID, "error", err)
			} else {
				admin.PasswordHash = newHash
				admin.HashScheme = SchemeBcrypt
			}
		}
	}

	a.failed.Clear(username)
	_ = a.admins.RecordLoginAttempt(ctx, admin.ID, true)

	session := a.sessions.Create(admin.ID, SubjectAdmin, sourceAddr, "")
	a.audit.Log("admin:"+username, "admin_login", fmt.Sprintf("admin:%d", admin.ID), nil)

	forceChange := admin.ForcePasswordChange || time.Since(admin.PasswordChangedAt) > a.rotationPeriod
	return AdminAuthResult{Admin: admin, Session: session, ForceChange: forceChange}, nil
}

// ChangePassword validates the new password against policy, hashes it, and
// persists it, clearing force_password_change and invalidating other
// sessions for the account.
func (a *AdminAuthenticator) ChangePassword(ctx context.Context, adminID int64, newPassword string) error {
	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, a.bcryptCost)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "password_hash", err)
	}
	if err := a.admins.UpdatePassword(ctx, adminID, hash, SchemeBcrypt, false); err != nil {
		return err
	}
	a.sessions.InvalidateAllFor(adminID, SubjectAdmin)
	a.audit.Log(fmt.Sprintf("admin:%d", adminID), "admin_password_changed", fmt.Sprintf("admin:%d", adminID), nil)
	return nil
}
