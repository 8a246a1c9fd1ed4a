package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/consultease/central/internal/errs"
)

// ConsultationStatus is a state in the consultation request lifecycle.
type ConsultationStatus string

const (
	ConsultationPending   ConsultationStatus = "pending"
	ConsultationAccepted  ConsultationStatus = "accepted"
	ConsultationBusy      ConsultationStatus = "busy"
	ConsultationCompleted ConsultationStatus = "completed"
	ConsultationCancelled ConsultationStatus = "cancelled"
)

// Consultation is a row in the consultations table.
type Consultation struct {
	ID               int64
	StudentID        int64
	FacultyID        int64
	RequestText      string
	CourseCode       string
	Status           ConsultationStatus
	DispatchAttempts int
	RequestedAt      time.Time
	RespondedAt      *time.Time
	CompletedAt      *time.Time
}

const consultationColumns = `id, student_id, faculty_id, request_text, course_code, status,
	dispatch_attempts, requested_at, responded_at, completed_at`

func scanConsultation(row pgx.Row) (Consultation, error) {
	var c Consultation
	var courseCode *string
	err := row.Scan(&c.ID, &c.StudentID, &c.FacultyID, &c.RequestText, &courseCode, &c.Status,
		&c.DispatchAttempts, &c.RequestedAt, &c.RespondedAt, &c.CompletedAt)
	if err != nil {
		return Consultation{}, err
	}
	if courseCode != nil {
		c.CourseCode = *courseCode
	}
	return c, nil
}

func scanConsultationRows(rows pgx.Rows) (Consultation, error) {
	var c Consultation
	var courseCode *string
	err := rows.Scan(&c.ID, &c.StudentID, &c.FacultyID, &c.RequestText, &courseCode, &c.Status,
		&c.DispatchAttempts, &c.RequestedAt, &c.RespondedAt, &c.CompletedAt)
	if err != nil {
		return Consultation{}, err
	}
	if courseCode != nil {
		c.CourseCode = *courseCode
	}
	return c, nil
}

// ConsultationStore provides database operations for consultation requests.
type ConsultationStore struct {
	db DBTX
}

func NewConsultationStore(db DBTX) *ConsultationStore { return &ConsultationStore{db: db} }

type ConsultationCreateParams struct {
	StudentID   int64
	FacultyID   int64
	RequestText string
	CourseCode  string
}

func (s *ConsultationStore) Create(ctx context.Context, p ConsultationCreateParams) (Consultation, error) {
	query := `INSERT INTO consultations (student_id, faculty_id, request_text, course_code)
	VALUES ($1, $2, $3, $4) RETURNING ` + consultationColumns
	row := s.db.QueryRow(ctx, query, p.StudentID, p.FacultyID, p.RequestText, nullIfEmpty(p.CourseCode))
	c, err := scanConsultation(row)
	if err != nil {
		return Consultation{}, errs.Wrap(errs.KindTransient, "consultation_create", fmt.Errorf("creating consultation: %w", err))
	}
	return c, nil
}

func (s *ConsultationStore) GetByID(ctx context.Context, id int64) (Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`
	row := s.db.QueryRow(ctx, query, id)
	c, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consultation{}, errs.New(errs.KindNotFound, "consultation_not_found", "consultation does not exist")
		}
		return Consultation{}, errs.Wrap(errs.KindTransient, "consultation_get", fmt.Errorf("fetching consultation: %w", err))
	}
	return c, nil
}

// HasActiveRequest reports whether the student already has a pending or
// accepted request with the given faculty member, enforcing the
// duplicate-request rejection rule.
func (s *ConsultationStore) HasActiveRequest(ctx context.Context, studentID, facultyID int64) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM consultations
		WHERE student_id = $1 AND faculty_id = $2 AND status IN ($3, $4)
	)`
	var exists bool
	err := s.db.QueryRow(ctx, query, studentID, facultyID, ConsultationPending, ConsultationAccepted).Scan(&exists)
	if err != nil {
		return false, errs.Wrap(errs.KindTransient, "consultation_has_active", fmt.Errorf("checking active consultation: %w", err))
	}
	return exists, nil
}

// ListPendingAndAccepted returns rows the coordinator must reload into the
// consultation engine and sweeper on startup.
func (s *ConsultationStore) ListPendingAndAccepted(ctx context.Context) ([]Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations
	WHERE status IN ($1, $2) ORDER BY requested_at`
	rows, err := s.db.Query(ctx, query, ConsultationPending, ConsultationAccepted)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "consultation_list_active", fmt.Errorf("listing active consultations: %w", err))
	}
	defer rows.Close()
	var out []Consultation
	for rows.Next() {
		c, err := scanConsultationRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "consultation_list_active_scan", fmt.Errorf("scanning consultation row: %w", err))
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByStudent returns a student's own consultation requests, most recent
// first, backed by the composite (student_id, status) index (§4.2).
func (s *ConsultationStore) ListByStudent(ctx context.Context, studentID int64) ([]Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations
	WHERE student_id = $1 ORDER BY requested_at DESC`
	rows, err := s.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "consultation_list_by_student", fmt.Errorf("listing consultations: %w", err))
	}
	defer rows.Close()
	var out []Consultation
	for rows.Next() {
		c, err := scanConsultationRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "consultation_list_by_student_scan", fmt.Errorf("scanning consultation row: %w", err))
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConsultationStore) ListByFaculty(ctx context.Context, facultyID int64) ([]Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations
	WHERE faculty_id = $1 ORDER BY requested_at DESC`
	rows, err := s.db.Query(ctx, query, facultyID)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "consultation_list_by_faculty", fmt.Errorf("listing consultations: %w", err))
	}
	defer rows.Close()
	var out []Consultation
	for rows.Next() {
		c, err := scanConsultationRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "consultation_list_by_faculty_scan", fmt.Errorf("scanning consultation row: %w", err))
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// allowedTransitions encodes the monotonic state machine from spec §4.5:
// pending->accepted->completed, accepted->busy->cancelled, pending->cancelled.
var allowedTransitions = map[ConsultationStatus][]ConsultationStatus{
	ConsultationPending:  {ConsultationAccepted, ConsultationCancelled},
	ConsultationAccepted: {ConsultationCompleted, ConsultationBusy},
	ConsultationBusy:     {ConsultationCancelled},
}

// Transition moves a consultation to a new status, rejecting any move not
// present in allowedTransitions and stamping responded_at/completed_at as
// appropriate. The read-modify-write is expected to run under a single
// per-consultation-id owner (internal/consultation), so no row lock is taken
// here beyond the implicit row version from the WHERE clause.
func (s *ConsultationStore) Transition(ctx context.Context, id int64, to ConsultationStatus) (Consultation, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Consultation{}, err
	}

	allowed := false
	for _, next := range allowedTransitions[current.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return Consultation{}, errs.New(errs.KindConflict, "invalid_transition",
			fmt.Sprintf("cannot transition consultation from %s to %s", current.Status, to))
	}

	var query string
	switch to {
	case ConsultationAccepted, ConsultationBusy:
		query = `UPDATE consultations SET status = $2, responded_at = COALESCE(responded_at, now())
		WHERE id = $1 AND status = $3 RETURNING ` + consultationColumns
	case ConsultationCompleted, ConsultationCancelled:
		query = `UPDATE consultations SET status = $2, responded_at = COALESCE(responded_at, now()), completed_at = now()
		WHERE id = $1 AND status = $3 RETURNING ` + consultationColumns
	default:
		query = `UPDATE consultations SET status = $2 WHERE id = $1 AND status = $3 RETURNING ` + consultationColumns
	}

	row := s.db.QueryRow(ctx, query, id, to, current.Status)
	updated, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consultation{}, errs.New(errs.KindConflict, "concurrent_transition", "consultation state changed concurrently")
		}
		return Consultation{}, errs.Wrap(errs.KindTransient, "consultation_transition", fmt.Errorf("transitioning consultation: %w", err))
	}
	return updated, nil
}

// IncrementDispatchAttempts bumps the retry counter for the sweeper,
// returning the updated attempt count.
func (s *ConsultationStore) IncrementDispatchAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := s.db.QueryRow(ctx,
		`UPDATE consultations SET dispatch_attempts = dispatch_attempts + 1 WHERE id = $1 RETURNING dispatch_attempts`,
		id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.New(errs.KindNotFound, "consultation_not_found", "consultation does not exist")
		}
		return 0, errs.Wrap(errs.KindTransient, "consultation_increment_attempts", fmt.Errorf("incrementing dispatch attempts: %w", err))
	}
	return attempts, nil
}
