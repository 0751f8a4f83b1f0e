package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
)

const (
	// IVSize is the GCM nonce length. 128 bits instead of the usual 96 so
	// random IVs stay collision-safe for very large numbers of messages.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// Sealed is the output of Seal: the IV, the ciphertext and the tag kept
// apart so callers can store them in separate fields.
type Sealed struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes: %w", KeySize, common.ErrInvalidInput)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(plaintext, key []byte) (*Sealed, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("iv generation failed: %w", err)
	}

	out := aead.Seal(nil, iv, plaintext, nil)
	split := len(out) - TagSize

	return &Sealed{IV: iv, Ciphertext: out[:split], Tag: out[split:]}, nil
}

// Open authenticates and decrypts s. A wrong key, a flipped bit anywhere,
// or malformed parameters all yield an error wrapping common.ErrIntegrity.
func Open(s *Sealed, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if s == nil || len(s.IV) != IVSize || len(s.Tag) != TagSize {
		return nil, fmt.Errorf("malformed sealed message: %w", common.ErrIntegrity)
	}

	buf := make([]byte, 0, len(s.Ciphertext)+TagSize)
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := aead.Open(nil, s.IV, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", common.ErrIntegrity)
	}
	return plaintext, nil
}
