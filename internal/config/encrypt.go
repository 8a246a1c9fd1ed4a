package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 200_000
	pbkdf2KeyLen     = 32 // AES-256
	saltLen          = 16
)

// loadOrGenerateMasterSecret reads the master secret used to derive the
// blob encryption key, generating and persisting a new random one with
// owner-only permissions if none exists yet.
func loadOrGenerateMasterSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		decoded, derr := base64.StdEncoding.DecodeString(string(raw))
		if derr == nil && len(decoded) >= 32 {
			return decoded, nil
		}
		// Fall through and regenerate a fresh secret if the file is corrupt.
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating master secret: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(secret)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("persisting master secret: %w", err)
	}
	return secret, nil
}

// deriveKey derives an AES-256 key from the master secret and a random salt
// using PBKDF2-HMAC-SHA256, matching the original deployment's key-stretching
// scheme but with a fresh salt per blob instead of a fixed one.
func deriveKey(master, salt []byte) []byte {
	return pbkdf2.Key(master, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}

// encryptBlob encrypts plaintext under a key derived from master, using a
// freshly generated salt and nonce. Layout: salt || nonce || ciphertext+tag.
func encryptBlob(plaintext, master []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := deriveKey(master, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM mode: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// decryptBlob reverses encryptBlob, returning an error (treated as a
// corrupt-blob condition by the caller) if authentication fails.
func decryptBlob(blob, master []byte) ([]byte, error) {
	if len(blob) < saltLen {
		return nil, fmt.Errorf("blob too short")
	}
	salt, rest := blob[:saltLen], blob[saltLen:]
	key := deriveKey(master, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM mode: %w", err)
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("blob missing nonce")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting blob: %w", err)
	}
	return plaintext, nil
}

// EncryptValue encrypts a single sensitive string value for storage, used
// when a caller wants to inspect or migrate an individual field rather than
// the whole blob.
func EncryptValue(value string, master []byte) (string, error) {
	blob, err := encryptBlob([]byte(value), master)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptValue reverses EncryptValue.
func DecryptValue(encoded string, master []byte) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding value: %w", err)
	}
	plaintext, err := decryptBlob(blob, master)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
