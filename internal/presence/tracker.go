// Package presence implements the faculty presence tracker: it turns raw
// Bluetooth beacon sightings and desk-unit sync reports into debounced
// availability transitions (§4.4), persists each transition in its own
// short transaction, and emits FacultyStateChanged events for the bus and
// HTTP layers to broadcast.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/consultease/central/internal/persistence"
)

// EventKind classifies an inbound presence signal.
type EventKind string

const (
	BeaconPresent  EventKind = "beacon_present"
	BeaconAbsent   EventKind = "beacon_absent"
	AlwaysPresent  EventKind = "always_present_toggle"
	DeskUnitSync   EventKind = "desk_unit_sync"
)

// Event is a single presence signal for one faculty member.
type Event struct {
	FacultyID int64
	Kind      EventKind
	// Present is only meaningful for AlwaysPresent, carrying the new
	// always-present setting.
	Present bool
	At      time.Time
}

// StateChange is emitted whenever a faculty member's persisted status changes.
type StateChange struct {
	FacultyID   int64
	Status      persistence.FacultyPresenceStatus
	GraceActive bool
	At          time.Time
}

// Listener receives presence state changes for fan-out (bus, websocket, etc).
type Listener func(StateChange)

type facultyState struct {
	events    chan Event
	graceTimer *time.Timer
}

// Tracker owns one serialized goroutine per faculty member, arms/cancels a
// grace-period timer on beacon-absent signals, and persists each resulting
// transition inside its own transaction.
type Tracker struct {
	faculty *persistence.FacultyStore
	logger  *slog.Logger
	grace   time.Duration

	mu        sync.Mutex
	states    map[int64]*facultyState
	listeners []Listener

	wg sync.WaitGroup
}

// New creates a Tracker. grace is the debounce interval between a
// beacon-absent sighting and the resulting transition to unavailable.
func New(faculty *persistence.FacultyStore, logger *slog.Logger, grace time.Duration) *Tracker {
	return &Tracker{
		faculty: faculty,
		logger:  logger,
		grace:   grace,
		states:  make(map[int64]*facultyState),
	}
}

// OnStateChange registers a listener for persisted status transitions.
func (t *Tracker) OnStateChange(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Submit enqueues a presence event for processing on the faculty member's
// own serialized goroutine, starting it lazily on first use.
func (t *Tracker) Submit(ctx context.Context, ev Event) {
	t.mu.Lock()
	st, ok := t.states[ev.FacultyID]
	if !ok {
		st = &facultyState{events: make(chan Event, 32)}
		t.states[ev.FacultyID] = st
		t.wg.Add(1)
		go t.run(ctx, ev.FacultyID, st)
	}
	t.mu.Unlock()

	select {
	case st.events <- ev:
	case <-ctx.Done():
	}
}

// Shutdown waits for all per-faculty goroutines to drain, used during the
// coordinator's graceful shutdown sequence.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	for _, st := range t.states {
		close(st.events)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context, facultyID int64, st *facultyState) {
	defer t.wg.Done()
	for {
		select {
		case ev, ok := <-st.events:
			if !ok {
				t.cancelGrace(st)
				return
			}
			t.handle(ctx, facultyID, st, ev)
		case <-ctx.Done():
			t.cancelGrace(st)
			return
		}
	}
}

func (t *Tracker) handle(ctx context.Context, facultyID int64, st *facultyState, ev Event) {
	faculty, err := t.faculty.GetByID(ctx, facultyID)
	if err != nil {
		t.logger.Error("presence event for unknown faculty", "faculty_id", facultyID, "error", err)
		return
	}
	if faculty.AlwaysPresent && ev.Kind != AlwaysPresent {
		// Always-present faculty ignore beacon/desk-unit signals entirely.
		return
	}

	switch ev.Kind {
	case BeaconPresent:
		t.cancelGrace(st)
		t.transition(ctx, facultyID, persistence.PresenceAvailable, false, true)
	case BeaconAbsent:
		t.armGrace(ctx, facultyID, st)
	case DeskUnitSync:
		if _, err := t.faculty.SetSyncState(ctx, facultyID, persistence.SyncSynced); err != nil {
			t.logger.Error("persisting desk-unit sync state", "faculty_id", facultyID, "error", err)
		}
	case AlwaysPresent:
		if _, err := t.faculty.SetAlwaysPresent(ctx, facultyID, ev.Present); err != nil {
			t.logger.Error("persisting always_present toggle", "faculty_id", facultyID, "error", err)
			return
		}
		if ev.Present {
			t.cancelGrace(st)
			t.transition(ctx, facultyID, persistence.PresenceAvailable, false, true)
		} else {
			// Reverting to the beacon-derived value: leave status as-is,
			// the next beacon signal (or its absence) will correct it.
		}
	}
}

// armGrace starts (or restarts) the grace-period timer, transitioning the
// faculty member into the grace_active=true/present=true state immediately
// per §4.4; if it fires without an intervening BeaconPresent event (or an
// always-present toggle to true), the faculty member transitions to
// unavailable. DeskUnitSync events do not cancel it.
func (t *Tracker) armGrace(ctx context.Context, facultyID int64, st *facultyState) {
	t.cancelGrace(st)
	t.transition(ctx, facultyID, persistence.PresenceAvailable, true, false)
	st.graceTimer = time.AfterFunc(t.grace, func() {
		t.transition(ctx, facultyID, persistence.PresenceUnavailable, false, false)
	})
}

func (t *Tracker) cancelGrace(st *facultyState) {
	if st.graceTimer != nil {
		st.graceTimer.Stop()
		st.graceTimer = nil
	}
}

func (t *Tracker) transition(ctx context.Context, facultyID int64, status persistence.FacultyPresenceStatus, graceActive, touchLastSeen bool) {
	updated, err := t.faculty.SetStatus(ctx, facultyID, status, graceActive, touchLastSeen)
	if err != nil {
		t.logger.Error("persisting presence transition", "faculty_id", facultyID, "status", status, "error", err)
		return
	}
	change := StateChange{FacultyID: facultyID, Status: status, GraceActive: graceActive, At: time.Now()}

	t.mu.Lock()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()
	for _, l := range listeners {
		l(change)
	}
}

// LoadDurableState re-arms grace timers for faculty members whose last
// persisted state was mid-grace when the process previously stopped. The
// in-memory timer itself can't survive a restart, so §3's "derived state,
// rebuilt from durable fields on start" is satisfied by restarting the full
// grace window rather than trying to recover elapsed time.
func (t *Tracker) LoadDurableState(ctx context.Context) error {
	all, err := t.faculty.List(ctx)
	if err != nil {
		return err
	}
	for _, f := range all {
		if f.GraceActive && !f.AlwaysPresent {
			t.Submit(ctx, Event{FacultyID: f.ID, Kind: BeaconAbsent, At: time.Now()})
		}
	}
	return nil
}

// ReassignBeacon handles a beacon being moved from one faculty member to
// another: the prior owner is synthesized a beacon-absent event and the new
// owner a beacon-present event, resolving the reassignment tie-break
// described in §4.4.
func (t *Tracker) ReassignBeacon(ctx context.Context, previousFacultyID, newFacultyID int64) {
	if previousFacultyID != 0 {
		t.Submit(ctx, Event{FacultyID: previousFacultyID, Kind: BeaconAbsent, At: time.Now()})
	}
	t.Submit(ctx, Event{FacultyID: newFacultyID, Kind: BeaconPresent, At: time.Now()})
}
