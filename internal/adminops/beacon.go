// Package adminops implements the admin-facing operations of §4.8: faculty
// and student CRUD, beacon-to-faculty assignment (with MAC/UUID validation
// and presence-tracker reassignment handling), admin account lifecycle
// (including the last-active-admin guard), and first-time setup.
package adminops

import (
	"regexp"
	"strings"

	"github.com/consultease/central/internal/errs"
)

var (
	macRe  = regexp.MustCompile(`^(?i)([0-9a-f]{2}:){5}[0-9a-f]{2}$`)
	uuidRe = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// NormalizeBeaconID validates beaconID against the MAC or UUID syntactic
// rule from §4.8 and normalizes MAC addresses to uppercase colon form.
// UUIDs are normalized to lowercase, their conventional form.
func NormalizeBeaconID(beaconID string) (string, error) {
	trimmed := strings.TrimSpace(beaconID)
	if trimmed == "" {
		return "", nil
	}
	if macRe.MatchString(trimmed) {
		return strings.ToUpper(trimmed), nil
	}
	if uuidRe.MatchString(trimmed) {
		return strings.ToLower(trimmed), nil
	}
	return "", errs.New(errs.KindValidation, "invalid_beacon_id", "beacon id must be a MAC address or UUID")
}
