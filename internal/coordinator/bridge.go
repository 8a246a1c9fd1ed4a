package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/consultease/central/internal/bus"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/presence"
)

// statusPayload values for consultease/faculty/{id}/status, per §6.
const (
	statusKeychainConnected    = "keychain_connected"
	statusKeychainDisconnected = "keychain_disconnected"
	statusFacultyPresent       = "faculty_present"
	statusFacultyAbsent        = "faculty_absent"
)

// macStatusPayload mirrors §6's consultease/faculty/{id}/mac_status JSON body.
type macStatusPayload struct {
	Status string    `json:"status"`
	MAC    string    `json:"mac"`
	At     time.Time `json:"at"`
}

// responsePayload mirrors §6's consultease/faculty/{id}/responses JSON body.
type responsePayload struct {
	ConsultationID int64     `json:"consultation_id"`
	Action         string    `json:"action"`
	At             time.Time `json:"at"`
}

// registerBusHandlers subscribes the coordinator to every topic the central
// system consumes (§6) and routes each to the presence tracker or
// consultation engine.
func (c *Coordinator) registerBusHandlers() {
	c.busClient.Subscribe("consultease/faculty/+/status", c.handleStatusMessage)
	c.busClient.Subscribe("consultease/faculty/+/mac_status", c.handleMACStatusMessage)
	c.busClient.Subscribe("consultease/faculty/+/responses", c.handleResponseMessage)
	c.busClient.Subscribe("professor/status", c.handleStatusMessage)
	c.busClient.Subscribe("professor/messages", c.handleLegacyMessage)
}

// handleStatusMessage applies the primary beacon presence signal carried on
// a faculty's status topic (or its legacy professor/status equivalent) to
// the presence tracker.
func (c *Coordinator) handleStatusMessage(topic string, payload []byte) {
	facultyID, ok := bus.ResolveFacultyID(topic)
	if !ok {
		c.logger.Warn("status message on unresolvable topic", "topic", topic)
		return
	}
	kind, ok := statusToEventKind(string(payload))
	if !ok {
		c.logger.Warn("unrecognized faculty status payload", "topic", topic, "payload", string(payload))
		return
	}
	c.presenceTracker.Submit(context.Background(), presence.Event{
		FacultyID: facultyID, Kind: kind, At: time.Now(),
	})
}

// handleMACStatusMessage treats the mac_status topic as a desk-unit sync
// confirmation (§4.3's "desk-unit sync report" -> sync_state only): it
// names which beacon MAC the desk unit itself currently sees, which is
// diagnostic information layered on top of (not a replacement for) the
// authoritative status topic's beacon_present/beacon_absent signal.
func (c *Coordinator) handleMACStatusMessage(topic string, payload []byte) {
	facultyID, ok := bus.ResolveFacultyID(topic)
	if !ok {
		c.logger.Warn("mac_status message on unresolvable topic", "topic", topic)
		return
	}
	var p macStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("invalid mac_status payload", "topic", topic, "error", err)
		return
	}
	c.presenceTracker.Submit(context.Background(), presence.Event{
		FacultyID: facultyID, Kind: presence.DeskUnitSync, At: time.Now(),
	})
}

// handleResponseMessage applies a desk unit's accept/busy/complete action to
// the corresponding consultation's state machine.
func (c *Coordinator) handleResponseMessage(topic string, payload []byte) {
	var p responsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("invalid consultation response payload", "topic", topic, "error", err)
		return
	}
	status, ok := responseActionToStatus(p.Action)
	if !ok {
		c.logger.Warn("unrecognized consultation response action", "topic", topic, "action", p.Action)
		return
	}
	ctx := context.Background()
	if _, err := c.consultations.Respond(ctx, p.ConsultationID, status); err != nil {
		if errs.Is(err, errs.KindConflict) || errs.Is(err, errs.KindNotFound) {
			c.logger.Warn("rejected consultation response", "consultation_id", p.ConsultationID,
				"action", p.Action, "error", err)
			return
		}
		c.logger.Error("applying consultation response", "consultation_id", p.ConsultationID, "error", err)
	}
}

// handleLegacyMessage logs receipt of the legacy professor/messages topic.
// The original single-faculty deployment used it only as a central->desk
// notification channel; nothing subscribes to act on an inbound message
// here beyond visibility, per SPEC_FULL.md's Open Question on legacy
// multi-faculty semantics.
func (c *Coordinator) handleLegacyMessage(topic string, payload []byte) {
	c.logger.Info("legacy professor/messages received", "payload", string(payload))
}

func statusToEventKind(payload string) (presence.EventKind, bool) {
	switch payload {
	case statusKeychainConnected, statusFacultyPresent:
		return presence.BeaconPresent, true
	case statusKeychainDisconnected, statusFacultyAbsent:
		return presence.BeaconAbsent, true
	default:
		return "", false
	}
}

func responseActionToStatus(action string) (persistence.ConsultationStatus, bool) {
	switch action {
	case "accept":
		return persistence.ConsultationAccepted, true
	case "busy":
		return persistence.ConsultationBusy, true
	case "complete":
		return persistence.ConsultationCompleted, true
	default:
		return "", false
	}
}

// publishPresenceChange fans a persisted presence transition out onto the
// system notifications topic so kiosk clients watching for availability
// updates don't need to poll (§6, "central -> all" notifications).
func (c *Coordinator) publishPresenceChange(change presence.StateChange) {
	payload, err := json.Marshal(map[string]any{
		"kind":       "faculty_presence_changed",
		"faculty_id": change.FacultyID,
		"status":     string(change.Status),
		"grace":      change.GraceActive,
		"at":         change.At,
	})
	if err != nil {
		c.logger.Error("marshaling presence notification", "error", err)
		return
	}
	c.busClient.Publish(bus.SystemNotificationsTopic(), payload, false)
}
