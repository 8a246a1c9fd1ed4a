// Package consultation implements the consultation request lifecycle: intake
// validation, dispatch to the assigned faculty member over the bus, and a
// background sweeper that retries undelivered dispatches up to a bounded
// attempt count.
package consultation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/bus"
	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/telemetry"
)

const maxRequestTextLength = 1000

// Engine owns the consultation request lifecycle: validated intake,
// bus dispatch, and the retry sweeper. Each consultation id is only ever
// mutated from the sweeper tick or a direct caller, serialized per id via
// the per-id mutexes in locks (see lockFor) so two callers can never race the same row's state machine.
type Engine struct {
	store   *persistence.ConsultationStore
	faculty *persistence.FacultyStore
	student *persistence.StudentStore
	bus     *bus.Client
	audit   *audit.Writer
	logger  *slog.Logger

	reattemptInterval time.Duration
	maxAttempts       int

	mu     sync.Mutex
	locks  map[int64]*sync.Mutex
}

// New creates an Engine. reattemptInterval and maxAttempts come from
// SecurityConfig.ReattemptIntervalSec/MaxDispatchAttempts.
func New(store *persistence.ConsultationStore, faculty *persistence.FacultyStore,
	student *persistence.StudentStore, busClient *bus.Client, auditWriter *audit.Writer,
	logger *slog.Logger, sec config.SecurityConfig) *Engine {

	reattempt := time.Duration(sec.ReattemptIntervalSec) * time.Second
	if reattempt <= 0 {
		reattempt = 60 * time.Second
	}
	maxAttempts := sec.MaxDispatchAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Engine{
		store:             store,
		faculty:           faculty,
		student:           student,
		bus:               busClient,
		audit:             auditWriter,
		logger:            logger,
		reattemptInterval: reattempt,
		maxAttempts:       maxAttempts,
		locks:             make(map[int64]*sync.Mutex),
	}
}

func (e *Engine) lockFor(id int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// RequestParams describes a new consultation request from a student kiosk.
type RequestParams struct {
	StudentID   int64
	FacultyID   int64
	RequestText string
	CourseCode  string
}

// Request validates and creates a new consultation, dispatching it to the
// assigned faculty member immediately.
func (e *Engine) Request(ctx context.Context, p RequestParams) (persistence.Consultation, error) {
	if len(p.RequestText) == 0 {
		return persistence.Consultation{}, errs.New(errs.KindValidation, "request_text_required", "a request message is required")
	}
	if len(p.RequestText) > maxRequestTextLength {
		return persistence.Consultation{}, errs.New(errs.KindValidation, "request_text_too_long",
			fmt.Sprintf("request message must be %d characters or fewer", maxRequestTextLength))
	}

	student, err := e.student.GetByID(ctx, p.StudentID)
	if err != nil {
		return persistence.Consultation{}, err
	}
	facultyRow, err := e.faculty.GetByID(ctx, p.FacultyID)
	if err != nil {
		return persistence.Consultation{}, err
	}
	if !facultyRow.Active {
		return persistence.Consultation{}, errs.New(errs.KindValidation, "faculty_inactive", "this faculty member is not accepting requests")
	}

	active, err := e.store.HasActiveRequest(ctx, p.StudentID, p.FacultyID)
	if err != nil {
		return persistence.Consultation{}, err
	}
	if active {
		return persistence.Consultation{}, errs.New(errs.KindConflict, "duplicate_request", "you already have a pending or accepted request with this faculty member")
	}

	created, err := e.store.Create(ctx, persistence.ConsultationCreateParams{
		StudentID:   p.StudentID,
		FacultyID:   p.FacultyID,
		RequestText: p.RequestText,
		CourseCode:  p.CourseCode,
	})
	if err != nil {
		return persistence.Consultation{}, err
	}

	e.dispatch(ctx, created, student.Name)
	e.audit.Log("student", "consultation_requested", fmt.Sprintf("consultation:%d", created.ID),
		audit.Detailf(map[string]any{"faculty_id": created.FacultyID, "student_id": created.StudentID}))
	return created, nil
}

// Respond applies a faculty response (accepted/busy/completed/cancelled) to
// a consultation, enforcing the monotonic state machine at the store layer.
func (e *Engine) Respond(ctx context.Context, id int64, to persistence.ConsultationStatus) (persistence.Consultation, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	updated, err := e.store.Transition(ctx, id, to)
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			e.audit.LogOutcome("faculty", "consultation_transition_rejected", fmt.Sprintf("consultation:%d", id),
				audit.OutcomeWarning, "", audit.Detailf(map[string]any{"attempted": string(to)}))
		}
		return persistence.Consultation{}, err
	}
	e.audit.Log("faculty", "consultation_"+string(to), fmt.Sprintf("consultation:%d", id), nil)
	return updated, nil
}

// requestPayload mirrors the §6 wire schema for
// consultease/faculty/{id}/requests: {consultation_id, student_name,
// course_code, message, requested_at}.
type requestPayload struct {
	ConsultationID int64     `json:"consultation_id"`
	StudentName    string    `json:"student_name"`
	CourseCode     string    `json:"course_code"`
	Message        string    `json:"message"`
	RequestedAt    time.Time `json:"requested_at"`
}

func (e *Engine) dispatch(ctx context.Context, c persistence.Consultation, studentName string) {
	if studentName == "" {
		if student, err := e.student.GetByID(ctx, c.StudentID); err == nil {
			studentName = student.Name
		}
	}
	payload, err := json.Marshal(requestPayload{
		ConsultationID: c.ID,
		StudentName:    studentName,
		CourseCode:     c.CourseCode,
		Message:        c.RequestText,
		RequestedAt:    c.RequestedAt,
	})
	if err != nil {
		e.logger.Error("marshaling consultation dispatch payload", "consultation_id", c.ID, "error", err)
		return
	}
	topic := bus.FacultyRequestsTopic(c.FacultyID)
	e.bus.Publish(topic, payload, false)

	if _, err := e.store.IncrementDispatchAttempts(ctx, c.ID); err != nil {
		e.logger.Error("incrementing dispatch attempts", "consultation_id", c.ID, "error", err)
	}
}

// RunSweeper periodically re-dispatches pending consultations that have
// not yet been accepted, up to maxAttempts, logging a warning audit record
// (never auto-cancelling) once exhausted.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.reattemptInterval)
	defer ticker.Stop()

	e.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	pending, err := e.store.ListPendingAndAccepted(ctx)
	if err != nil {
		e.logger.Error("listing pending consultations for sweep", "error", err)
		return
	}
	pendingCount := 0
	for _, c := range pending {
		if c.Status == persistence.ConsultationPending {
			pendingCount++
		}
	}
	telemetry.ConsultationsPending.Set(float64(pendingCount))

	for _, c := range pending {
		if c.Status != persistence.ConsultationPending {
			continue
		}
		if c.DispatchAttempts >= e.maxAttempts {
			e.audit.LogOutcome("system", "consultation_dispatch_exhausted", fmt.Sprintf("consultation:%d", c.ID),
				audit.OutcomeWarning, "", audit.Detailf(map[string]any{"attempts": c.DispatchAttempts}))
			continue
		}
		e.dispatch(ctx, c, "")
	}
}

// LoadPending reloads the in-flight consultation set on coordinator
// startup, used only to validate the database is reachable before the
// sweeper's first tick; the sweeper itself re-lists on every run.
func (e *Engine) LoadPending(ctx context.Context) ([]persistence.Consultation, error) {
	return e.store.ListPendingAndAccepted(ctx)
}
