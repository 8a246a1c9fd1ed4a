package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		name    string
		pass    string
		wantErr bool
	}{
		{"too short", "Ab1!", true},
		{"no special", "Abcdefg1", true},
		{"no digit", "Abcdefg!", true},
		{"no upper", "abcdefg1!", true},
		{"denied fragment", "ConsultEase1!", true},
		{"strong", "Tr0ub4dor&3", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidatePasswordPolicy(c.pass)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidatePasswordPolicy(%q) error = %v, wantErr %v", c.pass, err, c.wantErr)
			}
		})
	}
}

func TestHashAndVerifyPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("Tr0ub4dor&3", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	ok, needsRehash := VerifyPassword("Tr0ub4dor&3", hash, "", SchemeBcrypt)
	if !ok {
		t.Fatal("VerifyPassword() = false for correct password")
	}
	if needsRehash {
		t.Fatal("VerifyPassword() needsRehash = true for bcrypt scheme")
	}
	ok, _ = VerifyPassword("wrong", hash, "", SchemeBcrypt)
	if ok {
		t.Fatal("VerifyPassword() = true for wrong password")
	}
}

func TestVerifyPassword_LegacySHA256(t *testing.T) {
	salt := "pepper"
	sum := sha256.Sum256([]byte(salt + "Tr0ub4dor&3"))
	hexHash := hex.EncodeToString(sum[:])

	ok, needsRehash := VerifyPassword("Tr0ub4dor&3", hexHash, salt, SchemeLegacySHA)
	if !ok {
		t.Fatal("VerifyPassword() = false for correct legacy password")
	}
	if !needsRehash {
		t.Fatal("a successful legacy verification should request a rehash to the modern scheme")
	}

	ok, needsRehash = VerifyPassword("wrong-password", hexHash, salt, SchemeLegacySHA)
	if ok {
		t.Fatal("VerifyPassword() = true for mismatched legacy hash")
	}
	if needsRehash {
		t.Fatal("a failed legacy verification should not request a rehash")
	}
}

func TestFailedAttempts_LockoutAfterThreshold(t *testing.T) {
	fa := NewFailedAttempts(3, time.Minute)
	for i := 0; i < 2; i++ {
		fa.Record("alice", "10.0.0.1")
	}
	if locked, _ := fa.Locked("alice"); locked {
		t.Fatal("should not be locked before reaching threshold")
	}
	fa.Record("alice", "10.0.0.1")
	locked, remaining := fa.Locked("alice")
	if !locked {
		t.Fatal("should be locked at threshold")
	}
	if remaining <= 0 || remaining > 60 {
		t.Errorf("remaining = %d, want in (0,60]", remaining)
	}
}

func TestFailedAttempts_ClearResetsCounter(t *testing.T) {
	fa := NewFailedAttempts(2, time.Minute)
	fa.Record("bob", "")
	fa.Record("bob", "")
	if locked, _ := fa.Locked("bob"); !locked {
		t.Fatal("expected lockout before Clear")
	}
	fa.Clear("bob")
	if locked, _ := fa.Locked("bob"); locked {
		t.Fatal("expected lockout cleared after Clear")
	}
}

func TestFailedAttempts_OldEntriesPruned(t *testing.T) {
	fa := NewFailedAttempts(2, 20*time.Millisecond)
	fa.Record("carol", "")
	time.Sleep(30 * time.Millisecond)
	fa.Record("carol", "")
	// The first entry aged out, so only one remains -- below threshold.
	if locked, _ := fa.Locked("carol"); locked {
		t.Fatal("expected stale entries to be pruned out of the lockout window")
	}
}

func TestSessionManager_ValidateRejectsIdleExpired(t *testing.T) {
	sm := NewSessionManager(20*time.Millisecond, false)
	s := sm.Create(1, SubjectStudent, "", "")
	time.Sleep(30 * time.Millisecond)
	ok, _ := sm.Validate(s.ID)
	if ok {
		t.Fatal("expected idle-expired session to fail validation")
	}
}

func TestSessionManager_InvalidateAllFor(t *testing.T) {
	sm := NewSessionManager(time.Minute, false)
	s1 := sm.Create(1, SubjectAdmin, "", "")
	s2 := sm.Create(1, SubjectAdmin, "", "")
	s3 := sm.Create(2, SubjectAdmin, "", "")
	sm.InvalidateAllFor(1, SubjectAdmin)

	if ok, _ := sm.Validate(s1.ID); ok {
		t.Error("expected s1 invalidated")
	}
	if ok, _ := sm.Validate(s2.ID); ok {
		t.Error("expected s2 invalidated")
	}
	if ok, _ := sm.Validate(s3.ID); !ok {
		t.Error("expected s3 (different subject) to remain valid")
	}
}

func TestSessionManager_RotateCsrfChangesToken(t *testing.T) {
	sm := NewSessionManager(time.Minute, false)
	s := sm.Create(1, SubjectStudent, "", "")
	original := s.CSRFToken
	next, err := sm.RotateCsrf(s.ID)
	if err != nil {
		t.Fatalf("RotateCsrf() error = %v", err)
	}
	if next == original {
		t.Fatal("expected CSRF token to change")
	}
}
