package persistence

import "testing"

func TestAllowedTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    ConsultationStatus
		to      ConsultationStatus
		allowed bool
	}{
		{"pending to accepted", ConsultationPending, ConsultationAccepted, true},
		{"pending to cancelled", ConsultationPending, ConsultationCancelled, true},
		{"pending to completed directly", ConsultationPending, ConsultationCompleted, false},
		{"accepted to completed", ConsultationAccepted, ConsultationCompleted, true},
		{"accepted to busy", ConsultationAccepted, ConsultationBusy, true},
		{"accepted to pending", ConsultationAccepted, ConsultationPending, false},
		{"busy to cancelled", ConsultationBusy, ConsultationCancelled, true},
		{"busy to accepted", ConsultationBusy, ConsultationAccepted, false},
		{"completed to anything", ConsultationCompleted, ConsultationCancelled, false},
		{"cancelled to anything", ConsultationCancelled, ConsultationPending, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			allowed := false
			for _, next := range allowedTransitions[tc.from] {
				if next == tc.to {
					allowed = true
				}
			}
			if allowed != tc.allowed {
				t.Errorf("transition %s->%s allowed = %v, want %v", tc.from, tc.to, allowed, tc.allowed)
			}
		})
	}
}

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Errorf("nullIfEmpty(\"\") = %v, want nil", got)
	}
	got := nullIfEmpty("x")
	if got == nil || *got != "x" {
		t.Errorf("nullIfEmpty(\"x\") = %v, want pointer to \"x\"", got)
	}
}
