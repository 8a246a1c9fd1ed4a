package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/consultease/central/internal/errs"
)

// Student is a row in the students table.
type Student struct {
	ID         int64
	RFIDUID    string
	Name       string
	Department string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const studentColumns = `id, rfid_uid, name, department, active, created_at, updated_at`

func scanStudent(row pgx.Row) (Student, error) {
	var s Student
	var department *string
	err := row.Scan(&s.ID, &s.RFIDUID, &s.Name, &department, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Student{}, err
	}
	if department != nil {
		s.Department = *department
	}
	return s, nil
}

// StudentStore provides database operations for students.
type StudentStore struct {
	db DBTX
}

func NewStudentStore(db DBTX) *StudentStore { return &StudentStore{db: db} }

// StudentCreateParams holds fields required to register a new student.
type StudentCreateParams struct {
	RFIDUID    string
	Name       string
	Department string
}

func (s *StudentStore) Create(ctx context.Context, p StudentCreateParams) (Student, error) {
	query := `INSERT INTO students (rfid_uid, name, department) VALUES ($1, $2, $3)
	RETURNING ` + studentColumns
	row := s.db.QueryRow(ctx, query, p.RFIDUID, p.Name, nullIfEmpty(p.Department))
	student, err := scanStudent(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Student{}, errs.New(errs.KindConflict, "duplicate_rfid_uid", "a student with this RFID UID already exists")
		}
		return Student{}, errs.Wrap(errs.KindTransient, "student_create", fmt.Errorf("creating student: %w", err))
	}
	return student, nil
}

// GetByRFID looks up a student by RFID UID, first with an exact match and
// then, if unmatched, case-insensitively, matching the dual-pass lookup the
// kiosk authentication flow relies on.
func (s *StudentStore) GetByRFID(ctx context.Context, uid string) (Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE rfid_uid = $1`
	row := s.db.QueryRow(ctx, query, uid)
	student, err := scanStudent(row)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Student{}, errs.Wrap(errs.KindTransient, "student_get_by_rfid", fmt.Errorf("looking up student by rfid: %w", err))
	}

	query = `SELECT ` + studentColumns + ` FROM students WHERE lower(rfid_uid) = lower($1)`
	row = s.db.QueryRow(ctx, query, uid)
	student, err = scanStudent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, errs.New(errs.KindNotFound, "unknown_card", "no student is registered for this card")
		}
		return Student{}, errs.Wrap(errs.KindTransient, "student_get_by_rfid_ci", fmt.Errorf("looking up student by rfid case-insensitively: %w", err))
	}
	return student, nil
}

func (s *StudentStore) GetByID(ctx context.Context, id int64) (Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	row := s.db.QueryRow(ctx, query, id)
	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, errs.New(errs.KindNotFound, "student_not_found", "student does not exist")
		}
		return Student{}, errs.Wrap(errs.KindTransient, "student_get", fmt.Errorf("fetching student: %w", err))
	}
	return student, nil
}

func (s *StudentStore) List(ctx context.Context) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students ORDER BY name`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "student_list", fmt.Errorf("listing students: %w", err))
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		st, err := scanStudentRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "student_list_scan", fmt.Errorf("scanning student row: %w", err))
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStudentRows(rows pgx.Rows) (Student, error) {
	var s Student
	var department *string
	err := rows.Scan(&s.ID, &s.RFIDUID, &s.Name, &department, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Student{}, err
	}
	if department != nil {
		s.Department = *department
	}
	return s, nil
}

type StudentUpdateParams struct {
	ID         int64
	Name       string
	Department string
}

func (s *StudentStore) Update(ctx context.Context, p StudentUpdateParams) (Student, error) {
	query := `UPDATE students SET name = $2, department = $3, updated_at = now()
	WHERE id = $1 RETURNING ` + studentColumns
	row := s.db.QueryRow(ctx, query, p.ID, p.Name, nullIfEmpty(p.Department))
	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, errs.New(errs.KindNotFound, "student_not_found", "student does not exist")
		}
		return Student{}, errs.Wrap(errs.KindTransient, "student_update", fmt.Errorf("updating student: %w", err))
	}
	return student, nil
}

// SetActive enables or disables a student's RFID credential without a hard
// delete, matching the soft-deactivation preference in §3.
func (s *StudentStore) SetActive(ctx context.Context, id int64, active bool) (Student, error) {
	query := `UPDATE students SET active = $2, updated_at = now() WHERE id = $1 RETURNING ` + studentColumns
	row := s.db.QueryRow(ctx, query, id, active)
	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, errs.New(errs.KindNotFound, "student_not_found", "student does not exist")
		}
		return Student{}, errs.Wrap(errs.KindTransient, "student_set_active", fmt.Errorf("updating student active flag: %w", err))
	}
	return student, nil
}

func (s *StudentStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "student_delete", fmt.Errorf("deleting student: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "student_not_found", "student does not exist")
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
