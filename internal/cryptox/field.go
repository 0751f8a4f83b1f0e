package cryptox

import (
	"encoding/base64"
	"fmt"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
)

// SealField encrypts a single string value under a server-held key and
// returns base64(iv || ciphertext || tag).
func SealField(value string, key []byte) (string, error) {
	s, err := Seal([]byte(value), key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}

	raw := make([]byte, 0, IVSize+len(s.Ciphertext)+TagSize)
	raw = append(raw, s.IV...)
	raw = append(raw, s.Ciphertext...)
	raw = append(raw, s.Tag...)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// OpenField reverses SealField.
func OpenField(encoded string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < IVSize+TagSize {
		return "", fmt.Errorf("malformed field: %w", common.ErrIntegrity)
	}

	plain, err := Open(&Sealed{
		IV:         raw[:IVSize],
		Ciphertext: raw[IVSize : len(raw)-TagSize],
		Tag:        raw[len(raw)-TagSize:],
	}, key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
