package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/rfid"
)

// StudentLoginResult is returned by a successful or failed RFID login
// attempt for callers (kiosk UI) to render.
type StudentLoginResult struct {
	Student persistence.Student
	Session *Session
}

// StudentAuthenticator implements rfid.OnScan: every completed scan is
// resolved to a student record and, on success, opens a session.
type StudentAuthenticator struct {
	students *persistence.StudentStore
	sessions *SessionManager
	audit    *audit.Writer
	logger   *slog.Logger

	onResult func(StudentLoginResult, error)
}

// NewStudentAuthenticator creates a StudentAuthenticator. onResult is
// invoked with the outcome of every scan, successful or not, so the kiosk
// layer can react without polling.
func NewStudentAuthenticator(students *persistence.StudentStore, sessions *SessionManager,
	auditWriter *audit.Writer, logger *slog.Logger, onResult func(StudentLoginResult, error)) *StudentAuthenticator {
	return &StudentAuthenticator{
		students: students,
		sessions: sessions,
		audit:    auditWriter,
		logger:   logger,
		onResult: onResult,
	}
}

// Scanned implements rfid.OnScan, looking up the scanned UID (exact match,
// then case-insensitive) and opening a session for an active student.
func (a *StudentAuthenticator) Scanned(result rfid.ScanResult) {
	ctx := context.Background()
	student, err := a.students.GetByRFID(ctx, result.UID)
	if err == nil && !student.Active {
		err = errs.New(errs.KindNotFound, "unknown_card", "no student is registered for this card")
	}
	if err != nil {
		a.audit.LogOutcome("kiosk", "rfid_login", fmt.Sprintf("uid:%s", result.UID),
			audit.OutcomeFailure, "", audit.Detailf(map[string]any{"reason": errs.KindOf(err)}))
		a.onResult(StudentLoginResult{}, err)
		return
	}

	session := a.sessions.Create(student.ID, SubjectStudent, "", "")
	a.audit.Log("student", "rfid_login", fmt.Sprintf("student:%d", student.ID),
		audit.Detailf(map[string]any{"uid": result.UID}))
	a.onResult(StudentLoginResult{Student: student, Session: session}, nil)
}

// DeviceLost implements rfid.OnScan, surfacing adapter-level device loss to
// the same result callback so the kiosk UI can display it.
func (a *StudentAuthenticator) DeviceLost(err error) {
	a.logger.Warn("rfid device lost", "error", err)
	a.onResult(StudentLoginResult{}, errs.Wrap(errs.KindTransient, "rfid_device_lost", err))
}
