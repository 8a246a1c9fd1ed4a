package bus

import "testing"

func TestResolveFacultyID(t *testing.T) {
	cases := []struct {
		topic  string
		wantID int64
		wantOK bool
	}{
		{"consultease/faculty/7/responses", 7, true},
		{"consultease/faculty/42/mac_status", 42, true},
		{"professor/status", legacyFacultyID, true},
		{"professor/messages", legacyFacultyID, true},
		{"consultease/system/notifications", 0, false},
		{"consultease/faculty/notanumber/responses", 0, false},
		{"garbage", 0, false},
	}

	for _, tc := range cases {
		id, ok := ResolveFacultyID(tc.topic)
		if ok != tc.wantOK {
			t.Errorf("ResolveFacultyID(%q) ok = %v, want %v", tc.topic, ok, tc.wantOK)
			continue
		}
		if ok && id != tc.wantID {
			t.Errorf("ResolveFacultyID(%q) id = %d, want %d", tc.topic, id, tc.wantID)
		}
	}
}

func TestIsLegacyTopic(t *testing.T) {
	if !IsLegacyTopic("professor/status") {
		t.Errorf("professor/status should be legacy")
	}
	if IsLegacyTopic("consultease/faculty/1/status") {
		t.Errorf("consultease/faculty/1/status should not be legacy")
	}
}

func TestFacultyTopicHelpers(t *testing.T) {
	if got := FacultyStatusTopic(3); got != "consultease/faculty/3/status" {
		t.Errorf("FacultyStatusTopic(3) = %q", got)
	}
	if got := FacultyResponsesTopic(3); got != "consultease/faculty/3/responses" {
		t.Errorf("FacultyResponsesTopic(3) = %q", got)
	}
}
