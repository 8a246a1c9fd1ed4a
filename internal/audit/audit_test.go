package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetailf(t *testing.T) {
	raw := Detailf(map[string]any{"rfid_uid": "ABC123", "result": "ok"})

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Detailf produced invalid JSON: %v", err)
	}
	if decoded["rfid_uid"] != "ABC123" {
		t.Errorf("rfid_uid = %v, want ABC123", decoded["rfid_uid"])
	}
}

func TestNullableString(t *testing.T) {
	if got := nullableString(""); got != nil {
		t.Errorf("nullableString(\"\") = %v, want nil", got)
	}
	got := nullableString("faculty:1")
	if got == nil || *got != "faculty:1" {
		t.Errorf("nullableString(\"faculty:1\") = %v, want pointer to faculty:1", got)
	}
}

func TestWriter_LogDropsWhenBufferFull(t *testing.T) {
	w := &Writer{entries: make(chan Entry, 1), logger: testLogger()}
	w.Log("admin:1", "login", "", nil)
	// Buffer now full; this call must not block.
	done := make(chan struct{})
	go func() {
		w.Log("admin:1", "login", "", nil)
		close(done)
	}()
	<-done
}
