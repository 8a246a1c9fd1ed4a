package adminops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/presence"
)

// FacultyOps provides faculty CRUD and beacon-assignment operations for
// the admin dashboard.
type FacultyOps struct {
	store    *persistence.FacultyStore
	presence *presence.Tracker
	audit    *audit.Writer
	logger   *slog.Logger
}

// NewFacultyOps creates a FacultyOps.
func NewFacultyOps(store *persistence.FacultyStore, tracker *presence.Tracker, auditWriter *audit.Writer, logger *slog.Logger) *FacultyOps {
	return &FacultyOps{store: store, presence: tracker, audit: auditWriter, logger: logger}
}

// CreateFacultyParams describes a new faculty member.
type CreateFacultyParams struct {
	Name          string
	Email         string
	Department    string
	BeaconID      string
	AlwaysPresent bool
	ActorID       int64
}

// Create registers a new faculty member, normalizing the beacon id if one
// is supplied.
func (o *FacultyOps) Create(ctx context.Context, p CreateFacultyParams) (persistence.Faculty, error) {
	beacon, err := NormalizeBeaconID(p.BeaconID)
	if err != nil {
		return persistence.Faculty{}, err
	}
	f, err := o.store.Create(ctx, persistence.FacultyCreateParams{
		Name: p.Name, Email: p.Email, Department: p.Department,
		BeaconID: beacon, AlwaysPresent: p.AlwaysPresent,
	})
	if err != nil {
		return persistence.Faculty{}, err
	}
	o.audit.Log(fmt.Sprintf("admin:%d", p.ActorID), "faculty_created", fmt.Sprintf("faculty:%d", f.ID), nil)
	return f, nil
}

// UpdateFacultyParams describes an admin-initiated faculty edit.
type UpdateFacultyParams struct {
	ID         int64
	Name       string
	Email      string
	Department string
	Active     bool
	ActorID    int64
}

func (o *FacultyOps) Update(ctx context.Context, p UpdateFacultyParams) (persistence.Faculty, error) {
	f, err := o.store.Update(ctx, persistence.FacultyUpdateParams{
		ID: p.ID, Name: p.Name, Email: p.Email, Department: p.Department, Active: p.Active,
	})
	if err != nil {
		return persistence.Faculty{}, err
	}
	o.audit.Log(fmt.Sprintf("admin:%d", p.ActorID), "faculty_updated", fmt.Sprintf("faculty:%d", f.ID), nil)
	return f, nil
}

// SetAlwaysPresent toggles a faculty member's always-present override and
// drives the corresponding presence transition (§4.4).
func (o *FacultyOps) SetAlwaysPresent(ctx context.Context, facultyID int64, always bool, actorID int64) (persistence.Faculty, error) {
	f, err := o.store.SetAlwaysPresent(ctx, facultyID, always)
	if err != nil {
		return persistence.Faculty{}, err
	}
	o.presence.Submit(ctx, presence.Event{FacultyID: facultyID, Kind: presence.AlwaysPresent, Present: always})
	o.audit.Log(fmt.Sprintf("admin:%d", actorID), "faculty_always_present_toggled",
		fmt.Sprintf("faculty:%d", facultyID), audit.Detailf(map[string]any{"always_present": always}))
	return f, nil
}

// AssignBeacon validates and normalizes beaconID, detects reassignment from
// another faculty member, persists the new assignment, and then drives the
// presence tracker's reassignment tie-break (§4.3/§4.4).
func (o *FacultyOps) AssignBeacon(ctx context.Context, facultyID int64, beaconID string, actorID int64) (persistence.Faculty, error) {
	normalized, err := NormalizeBeaconID(beaconID)
	if err != nil {
		return persistence.Faculty{}, err
	}

	var previousOwnerID int64
	if normalized != "" {
		if existing, gerr := o.store.GetByBeaconID(ctx, normalized); gerr == nil && existing.ID != facultyID {
			previousOwnerID = existing.ID
		} else if gerr != nil && !errs.Is(gerr, errs.KindNotFound) {
			return persistence.Faculty{}, gerr
		}
	}

	updated, err := o.store.AssignBeacon(ctx, facultyID, normalized)
	if err != nil {
		return persistence.Faculty{}, err
	}

	if normalized != "" {
		o.presence.ReassignBeacon(ctx, previousOwnerID, facultyID)
	}

	o.audit.Log(fmt.Sprintf("admin:%d", actorID), "faculty_beacon_assigned", fmt.Sprintf("faculty:%d", facultyID),
		audit.Detailf(map[string]any{"beacon_id": normalized, "reassigned_from": previousOwnerID}))
	return updated, nil
}

func (o *FacultyOps) List(ctx context.Context) ([]persistence.Faculty, error) {
	return o.store.List(ctx)
}

func (o *FacultyOps) Get(ctx context.Context, id int64) (persistence.Faculty, error) {
	return o.store.GetByID(ctx, id)
}

// SetActive activates or deactivates a faculty member (soft, per §3).
func (o *FacultyOps) SetActive(ctx context.Context, id int64, active bool, actorID int64) (persistence.Faculty, error) {
	f, err := o.store.GetByID(ctx, id)
	if err != nil {
		return persistence.Faculty{}, err
	}
	f, err = o.store.Update(ctx, persistence.FacultyUpdateParams{
		ID: id, Name: f.Name, Email: f.Email, Department: f.Department, Active: active,
	})
	if err != nil {
		return persistence.Faculty{}, err
	}
	action := "faculty_deactivated"
	if active {
		action = "faculty_activated"
	}
	o.audit.Log(fmt.Sprintf("admin:%d", actorID), action, fmt.Sprintf("faculty:%d", id), nil)
	return f, nil
}
