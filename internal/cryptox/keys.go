// Package cryptox holds the client-side key manager and the AES-256-GCM
// encryption engine, plus the field-level sealing used by the server for
// audit PII. Nothing in here talks to the network.
package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the per-file KDF salt length in bytes.
	SaltSize = 32

	// MinIterations is the lowest PBKDF2 iteration count accepted anywhere.
	MinIterations = 100_000
	// DefaultIterations is what the client uses for new password-protected shares.
	DefaultIterations = 210_000

	// Argon2id cost, matching the master-key derivation used elsewhere in the
	// project: the iteration field carries the time parameter.
	argon2Memory       = 64 * 1024
	argon2Threads      = 4
	maxArgon2Time      = 10
	DefaultArgon2Time  = 3
	verifierLabel      = "uploadhaven/share-access/v1"
	passwordVerifierSz = 32
)

// Supported key derivation functions.
const (
	KDFPBKDF2SHA512 = "pbkdf2-sha512"
	KDFArgon2id     = "argon2id"
)

// GenerateKey returns a fresh random 256-bit key for embedded-key shares.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns a fresh random 256-bit salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 256-bit key from password using PBKDF2-HMAC-SHA-512.
// An empty password, a short salt or a low iteration count fails with
// common.ErrInvalidInput rather than producing a weak key.
func DeriveKey(password, salt []byte, iterations int) ([]byte, error) {
	return DeriveKeyWithKDF(KDFPBKDF2SHA512, password, salt, iterations)
}

// DeriveKeyWithKDF is DeriveKey with an explicit KDF name. For argon2id the
// iterations argument is the argon2 time parameter.
func DeriveKeyWithKDF(kdf string, password, salt []byte, iterations int) ([]byte, error) {
	if err := ValidateKDFParams(kdf, salt, iterations); err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("empty password: %w", common.ErrInvalidInput)
	}

	switch kdf {
	case KDFArgon2id:
		return argon2.IDKey(password, salt, uint32(iterations), argon2Memory, argon2Threads, KeySize), nil
	default:
		return pbkdf2.Key(password, salt, iterations, KeySize, sha512.New), nil
	}
}

// ValidateKDFParams checks the public derivation parameters that travel
// with a password-protected share. The server uses it on upload.
func ValidateKDFParams(kdf string, salt []byte, iterations int) error {
	if len(salt) < SaltSize {
		return fmt.Errorf("salt must be %d bytes: %w", SaltSize, common.ErrInvalidInput)
	}

	switch kdf {
	case KDFPBKDF2SHA512:
		if iterations < MinIterations {
			return fmt.Errorf("iterations must be at least %d: %w", MinIterations, common.ErrInvalidInput)
		}
	case KDFArgon2id:
		if iterations < 1 || iterations > maxArgon2Time {
			return fmt.Errorf("argon2id time must be within 1..%d: %w", maxArgon2Time, common.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("unsupported kdf %q: %w", kdf, common.ErrInvalidInput)
	}
	return nil
}

// PasswordVerifier turns a password-derived key into the value the server
// gates downloads with. It is a one-way function of the key, so the server
// never sees the password or the key itself.
func PasswordVerifier(key []byte) string {
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(verifierLabel))
	return hex.EncodeToString(mac.Sum(nil)[:passwordVerifierSz])
}

// WipeBytes zeroes key material in place.
func WipeBytes(b []byte) {
	common.WipeByteArray(b)
}
