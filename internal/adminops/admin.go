package adminops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/auth"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/persistence"
)

// AdminOps provides admin account CRUD, the last-active-admin guard, and
// the first-time setup entry point (§4.8).
type AdminOps struct {
	store      *persistence.AdminStore
	sessions   *auth.SessionManager
	audit      *audit.Writer
	logger     *slog.Logger
	bcryptCost int
}

func NewAdminOps(store *persistence.AdminStore, sessions *auth.SessionManager, auditWriter *audit.Writer,
	logger *slog.Logger, bcryptCost int) *AdminOps {
	return &AdminOps{store: store, sessions: sessions, audit: auditWriter, logger: logger, bcryptCost: bcryptCost}
}

// Create registers a new admin account, enforcing the §4.7 password policy.
func (o *AdminOps) Create(ctx context.Context, username, password string, actorID int64) (persistence.Admin, error) {
	if err := auth.ValidatePasswordPolicy(password); err != nil {
		return persistence.Admin{}, err
	}
	hash, err := auth.HashPassword(password, o.bcryptCost)
	if err != nil {
		return persistence.Admin{}, errs.Wrap(errs.KindTransient, "password_hash", err)
	}
	admin, err := o.store.Create(ctx, persistence.AdminCreateParams{
		Username: username, PasswordHash: hash, HashScheme: auth.SchemeBcrypt, ForcePasswordChange: false,
	})
	if err != nil {
		return persistence.Admin{}, err
	}
	o.audit.Log(fmt.Sprintf("admin:%d", actorID), "admin_created", fmt.Sprintf("admin:%d", admin.ID), nil)
	return admin, nil
}

// SetupFirstAdmin is the one-shot entry point described in §4.8: it is only
// usable while zero active admin accounts exist, computed fresh on each call
// rather than a cached "setup complete" flag. Inactive admin accounts are
// not counted, so setup reopens once every admin is deactivated.
func (o *AdminOps) SetupFirstAdmin(ctx context.Context, username, password string) (persistence.Admin, error) {
	count, err := o.store.CountActive(ctx)
	if err != nil {
		return persistence.Admin{}, err
	}
	if count > 0 {
		return persistence.Admin{}, errs.New(errs.KindConflict, "setup_already_complete", "an admin account already exists")
	}
	admin, err := o.Create(ctx, username, password, 0)
	if err != nil {
		return persistence.Admin{}, err
	}
	o.audit.Log("system", "first_admin_created", fmt.Sprintf("admin:%d", admin.ID), nil)
	return admin, nil
}

// NeedsFirstTimeSetup reports whether the system has zero active admin
// accounts; inactive accounts are not counted.
func (o *AdminOps) NeedsFirstTimeSetup(ctx context.Context) (bool, error) {
	count, err := o.store.CountActive(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (o *AdminOps) List(ctx context.Context) ([]persistence.Admin, error) {
	return o.store.List(ctx)
}

// SetActive activates or deactivates an admin account, refusing to
// deactivate the last active admin per §3/§4.8.
func (o *AdminOps) SetActive(ctx context.Context, id int64, active bool, actorID int64) error {
	if !active {
		count, err := o.store.CountActive(ctx)
		if err != nil {
			return err
		}
		target, err := o.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if target.Active && count <= 1 {
			return errs.New(errs.KindConflict, "last_admin", "cannot deactivate the last active admin account")
		}
	}
	if err := o.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		o.sessions.InvalidateAllFor(id, auth.SubjectAdmin)
	}
	action := "admin_deactivated"
	if active {
		action = "admin_activated"
	}
	o.audit.Log(fmt.Sprintf("admin:%d", actorID), action, fmt.Sprintf("admin:%d", id), nil)
	return nil
}
