package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/consultease/central/internal/errs"
)

// FacultyPresenceStatus mirrors the presence tracker's state machine values.
type FacultyPresenceStatus string

const (
	PresenceUnavailable FacultyPresenceStatus = "unavailable"
	PresenceAvailable   FacultyPresenceStatus = "available"
	PresenceBusy        FacultyPresenceStatus = "busy"
)

// SyncState reflects the desk unit's last reported keychain/connectivity
// state for a faculty member, updated independently of presence.
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncSynced   SyncState = "synced"
	SyncDegraded SyncState = "degraded"
)

// Faculty is a row in the faculty table.
type Faculty struct {
	ID            int64
	Name          string
	Email         string
	Department    string
	BeaconID      string
	Status        FacultyPresenceStatus
	AlwaysPresent bool
	Active        bool
	LastSeen      *time.Time
	GraceActive   bool
	SyncState     SyncState
	ImageRef      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ObservedPresent implements §3's observed-availability formula:
// always_present OR (present AND not grace-expired). The grace expiry
// itself is enforced by the presence tracker's timer, so a persisted
// Status of PresenceAvailable already reflects the not-yet-expired case.
func (f Faculty) ObservedPresent() bool {
	if f.AlwaysPresent {
		return true
	}
	return f.Status == PresenceAvailable
}

const facultyColumns = `id, name, email, department, beacon_id, status, always_present, active,
	last_seen, grace_active, sync_state, image_ref, created_at, updated_at`

func scanFacultyRow(scan func(dest ...any) error) (Faculty, error) {
	var f Faculty
	var department, beaconID, imageRef *string
	err := scan(&f.ID, &f.Name, &f.Email, &department, &beaconID, &f.Status,
		&f.AlwaysPresent, &f.Active, &f.LastSeen, &f.GraceActive, &f.SyncState, &imageRef,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Faculty{}, err
	}
	if department != nil {
		f.Department = *department
	}
	if beaconID != nil {
		f.BeaconID = *beaconID
	}
	if imageRef != nil {
		f.ImageRef = *imageRef
	}
	return f, nil
}

func scanFaculty(row pgx.Row) (Faculty, error) {
	return scanFacultyRow(row.Scan)
}

func scanFacultyRows(rows pgx.Rows) (Faculty, error) {
	return scanFacultyRow(rows.Scan)
}

// FacultyStore provides database operations for faculty.
type FacultyStore struct {
	db DBTX
}

func NewFacultyStore(db DBTX) *FacultyStore { return &FacultyStore{db: db} }

type FacultyCreateParams struct {
	Name          string
	Email         string
	Department    string
	BeaconID      string
	AlwaysPresent bool
}

func (s *FacultyStore) Create(ctx context.Context, p FacultyCreateParams) (Faculty, error) {
	query := `INSERT INTO faculty (name, email, department, beacon_id, always_present)
	VALUES ($1, $2, $3, $4, $5) RETURNING ` + facultyColumns
	row := s.db.QueryRow(ctx, query, p.Name, p.Email, nullIfEmpty(p.Department), nullIfEmpty(p.BeaconID), p.AlwaysPresent)
	f, err := scanFaculty(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Faculty{}, errs.New(errs.KindConflict, "duplicate_faculty", "a faculty member with this email or beacon already exists")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_create", fmt.Errorf("creating faculty: %w", err))
	}
	return f, nil
}

func (s *FacultyStore) GetByID(ctx context.Context, id int64) (Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty WHERE id = $1`
	row := s.db.QueryRow(ctx, query, id)
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_get", fmt.Errorf("fetching faculty: %w", err))
	}
	return f, nil
}

// GetByBeaconID looks up the faculty member currently assigned to a beacon
// MAC/UUID, used to resolve reassignment ties in the presence tracker.
func (s *FacultyStore) GetByBeaconID(ctx context.Context, beaconID string) (Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty WHERE beacon_id = $1`
	row := s.db.QueryRow(ctx, query, beaconID)
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "no faculty assigned to this beacon")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_get_by_beacon", fmt.Errorf("fetching faculty by beacon: %w", err))
	}
	return f, nil
}

func (s *FacultyStore) List(ctx context.Context) ([]Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty ORDER BY name`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "faculty_list", fmt.Errorf("listing faculty: %w", err))
	}
	defer rows.Close()
	var out []Faculty
	for rows.Next() {
		f, err := scanFacultyRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "faculty_list_scan", fmt.Errorf("scanning faculty row: %w", err))
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListAvailable returns active faculty currently in the available state.
func (s *FacultyStore) ListAvailable(ctx context.Context) ([]Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty WHERE status = $1 AND active ORDER BY name`
	rows, err := s.db.Query(ctx, query, PresenceAvailable)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "faculty_list_available", fmt.Errorf("listing available faculty: %w", err))
	}
	defer rows.Close()
	var out []Faculty
	for rows.Next() {
		f, err := scanFacultyRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "faculty_list_available_scan", fmt.Errorf("scanning faculty row: %w", err))
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type FacultyUpdateParams struct {
	ID         int64
	Name       string
	Email      string
	Department string
	Active     bool
}

func (s *FacultyStore) Update(ctx context.Context, p FacultyUpdateParams) (Faculty, error) {
	query := `UPDATE faculty SET name = $2, email = $3, department = $4, active = $5, updated_at = now()
	WHERE id = $1 RETURNING ` + facultyColumns
	row := s.db.QueryRow(ctx, query, p.ID, p.Name, p.Email, nullIfEmpty(p.Department), p.Active)
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_update", fmt.Errorf("updating faculty: %w", err))
	}
	return f, nil
}

// AssignBeacon sets or clears a faculty member's beacon id, used after MAC
// normalization and reassignment-conflict resolution in internal/adminops.
func (s *FacultyStore) AssignBeacon(ctx context.Context, id int64, beaconID string) (Faculty, error) {
	query := `UPDATE faculty SET beacon_id = $2, updated_at = now() WHERE id = $1 RETURNING ` + facultyColumns
	row := s.db.QueryRow(ctx, query, id, nullIfEmpty(beaconID))
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
		}
		if isUniqueViolation(err) {
			return Faculty{}, errs.New(errs.KindConflict, "beacon_in_use", "this beacon is already assigned to another faculty member")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_assign_beacon", fmt.Errorf("assigning beacon: %w", err))
	}
	return f, nil
}

// SetStatus transitions a faculty member's presence status and grace flag,
// called by the presence tracker under its per-faculty serialized
// processing. last_seen is stamped whenever status becomes available or a
// grace period is armed, matching the §4.4 transition rules.
func (s *FacultyStore) SetStatus(ctx context.Context, id int64, status FacultyPresenceStatus, graceActive bool, touchLastSeen bool) (Faculty, error) {
	var query string
	var row pgx.Row
	if touchLastSeen {
		query = `UPDATE faculty SET status = $2, grace_active = $3, last_seen = now(), updated_at = now()
		WHERE id = $1 RETURNING ` + facultyColumns
		row = s.db.QueryRow(ctx, query, id, status, graceActive)
	} else {
		query = `UPDATE faculty SET status = $2, grace_active = $3, updated_at = now()
		WHERE id = $1 RETURNING ` + facultyColumns
		row = s.db.QueryRow(ctx, query, id, status, graceActive)
	}
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_set_status", fmt.Errorf("setting faculty status: %w", err))
	}
	return f, nil
}

// SetSyncState updates only the desk unit's last-reported sync state,
// independent of presence (§4.4's "desk-unit sync report" transition).
func (s *FacultyStore) SetSyncState(ctx context.Context, id int64, state SyncState) (Faculty, error) {
	query := `UPDATE faculty SET sync_state = $2, updated_at = now() WHERE id = $1 RETURNING ` + facultyColumns
	row := s.db.QueryRow(ctx, query, id, state)
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_set_sync_state", fmt.Errorf("setting faculty sync state: %w", err))
	}
	return f, nil
}

// SetAlwaysPresent toggles the admin-controlled always-present override.
func (s *FacultyStore) SetAlwaysPresent(ctx context.Context, id int64, always bool) (Faculty, error) {
	query := `UPDATE faculty SET always_present = $2, updated_at = now() WHERE id = $1 RETURNING ` + facultyColumns
	row := s.db.QueryRow(ctx, query, id, always)
	f, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
		}
		return Faculty{}, errs.Wrap(errs.KindTransient, "faculty_set_always_present", fmt.Errorf("setting always_present: %w", err))
	}
	return f, nil
}

func (s *FacultyStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM faculty WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "faculty_delete", fmt.Errorf("deleting faculty: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "faculty_not_found", "faculty does not exist")
	}
	return nil
}
