package coordinator

import (
	"testing"

	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/presence"
)

func TestStatusToEventKind(t *testing.T) {
	cases := []struct {
		payload string
		want    presence.EventKind
		wantOK  bool
	}{
		{"keychain_connected", presence.BeaconPresent, true},
		{"faculty_present", presence.BeaconPresent, true},
		{"keychain_disconnected", presence.BeaconAbsent, true},
		{"faculty_absent", presence.BeaconAbsent, true},
		{"garbage", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := statusToEventKind(tc.payload)
		if ok != tc.wantOK {
			t.Errorf("statusToEventKind(%q) ok = %v, want %v", tc.payload, ok, tc.wantOK)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("statusToEventKind(%q) = %v, want %v", tc.payload, got, tc.want)
		}
	}
}

func TestResponseActionToStatus(t *testing.T) {
	cases := []struct {
		action string
		want   persistence.ConsultationStatus
		wantOK bool
	}{
		{"accept", persistence.ConsultationAccepted, true},
		{"busy", persistence.ConsultationBusy, true},
		{"complete", persistence.ConsultationCompleted, true},
		{"cancel", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := responseActionToStatus(tc.action)
		if ok != tc.wantOK {
			t.Errorf("responseActionToStatus(%q) ok = %v, want %v", tc.action, ok, tc.wantOK)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("responseActionToStatus(%q) = %v, want %v", tc.action, got, tc.want)
		}
	}
}
