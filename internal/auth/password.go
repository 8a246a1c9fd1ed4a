package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/consultease/central/internal/errs"
)

// Hash schemes recorded alongside an admin's password_hash column (§4.7).
const (
	SchemeBcrypt     = "bcrypt"
	SchemeLegacySHA  = "legacy_sha256" // salted SHA-256, kept for migration only
)

// deniedFragments are common/known-weak fragments rejected case-insensitively
// in any password, per original_source's security.py deny-list.
var deniedFragments = []string{"consultease", "password", "admin123", "changeme"}

// HashPassword hashes a plaintext password with bcrypt at the configured
// cost, the "modern adaptive hash" family from §4.7.
func HashPassword(plain string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks plain against a stored hash of the given scheme.
// For a successful legacy verification it signals that the caller should
// transparently rehash and persist the modern form.
func VerifyPassword(plain, hash, salt, scheme string) (ok bool, needsRehash bool) {
	switch scheme {
	case SchemeLegacySHA:
		verified := verifyLegacySHA256(plain, hash, salt)
		return verified, verified
	default:
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
		return err == nil, false
	}
}

// verifyLegacySHA256 reproduces the original deployment's salted-SHA256
// scheme (sha256(salt + password), hex-encoded) purely to authenticate
// pre-migration admin accounts; no new hashes are ever created this way.
func verifyLegacySHA256(plain, hexHash, salt string) bool {
	sum := sha256.Sum256([]byte(salt + plain))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hexHash)) == 1
}

// ValidatePasswordPolicy enforces §4.7's password policy: length >= 8,
// containing upper/lower/digit/special classes, and not containing any
// well-known weak fragment from deniedFragments (case-insensitive).
func ValidatePasswordPolicy(plain string) error {
	if len(plain) < 8 {
		return errs.New(errs.KindValidation, "password_too_short", "password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return errs.New(errs.KindValidation, "password_too_weak",
			"password must contain upper, lower, digit, and special characters")
	}
	lower := strings.ToLower(plain)
	for _, frag := range deniedFragments {
		if strings.Contains(lower, frag) {
			return errs.New(errs.KindValidation, "password_denied_fragment",
				"password must not contain a common or predictable fragment")
		}
	}
	return nil
}
