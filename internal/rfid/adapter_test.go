package rfid

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/consultease/central/internal/config"
)

type recordingHandler struct {
	scans       []ScanResult
	deviceLosts int
}

func (r *recordingHandler) Scanned(result ScanResult) { r.scans = append(r.scans, result) }
func (r *recordingHandler) DeviceLost(error)           { r.deviceLosts++ }

func testAdapter(cfg config.RFIDConfig) (*Adapter, *recordingHandler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(cfg, logger)
	h := &recordingHandler{}
	a.SetHandler(h)
	return a, h
}

func TestAdapter_SimulateDeliversScan(t *testing.T) {
	a, h := testAdapter(config.RFIDConfig{DuplicateWindowSec: 2})
	a.Simulate("0004AABBCC")

	if len(h.scans) != 1 {
		t.Fatalf("got %d scans, want 1", len(h.scans))
	}
	if h.scans[0].UID != "0004AABBCC" {
		t.Errorf("UID = %q, want 0004AABBCC", h.scans[0].UID)
	}
}

func TestAdapter_SuppressesDuplicateWithinWindow(t *testing.T) {
	a, h := testAdapter(config.RFIDConfig{DuplicateWindowSec: 2})

	a.Simulate("UID1")
	a.Simulate("UID1")

	if len(h.scans) != 1 {
		t.Fatalf("got %d scans, want 1 (second should be suppressed)", len(h.scans))
	}
}

func TestAdapter_AllowsDuplicateAfterWindowElapses(t *testing.T) {
	a, h := testAdapter(config.RFIDConfig{DuplicateWindowSec: 1})
	a.emit("UID1", time.Now().Add(-2*time.Second))
	a.emit("UID1", time.Now())

	if len(h.scans) != 2 {
		t.Errorf("got %d scans, want 2 (duplicate window should have elapsed)", len(h.scans))
	}
}

func TestAdapter_DifferentUIDsNeverSuppressed(t *testing.T) {
	a, h := testAdapter(config.RFIDConfig{DuplicateWindowSec: 10})
	a.Simulate("UID1")
	a.Simulate("UID2")

	if len(h.scans) != 2 {
		t.Errorf("got %d scans, want 2", len(h.scans))
	}
}

func TestAdapter_NoHandlerDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(config.RFIDConfig{DuplicateWindowSec: 1}, logger)
	a.Simulate("UID1") // should log a warning, not panic
}
