package cryptox

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
)

const (
	// AlgorithmStream names the chunked file format produced by EncryptStream.
	AlgorithmStream = "AES-256-GCM-STREAM"
	// ChunkSize is the plaintext size of every chunk except the last.
	ChunkSize = 64 * 1024
)

// chunkNonce xors the chunk index into the low 8 bytes of the base IV.
func chunkNonce(iv []byte, index uint64) []byte {
	nonce := make([]byte, IVSize)
	copy(nonce, iv)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], index)
	for i := range ctr {
		nonce[IVSize-8+i] ^= ctr[i]
	}
	return nonce
}

// chunkAAD binds position and the final marker, so dropping, reordering or
// appending chunks breaks authentication.
func chunkAAD(index uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, index)
	if final {
		aad[8] = 1
	}
	return aad
}

// EncryptedSize returns the ciphertext length EncryptStream produces for a
// plaintext of the given size.
func EncryptedSize(plainSize int64) int64 {
	chunks := plainSize / ChunkSize
	if plainSize%ChunkSize != 0 || plainSize == 0 {
		chunks++
	}
	return plainSize + chunks*TagSize
}

// NewIV returns a random stream IV.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("iv generation failed: %w", err)
	}
	return iv, nil
}

// EncryptStream encrypts src into dst under a fresh IV and returns the IV
// with the number of ciphertext bytes written.
func EncryptStream(dst io.Writer, src io.Reader, key []byte) ([]byte, int64, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, 0, err
	}
	n, err := EncryptStreamWithIV(dst, src, key, iv)
	if err != nil {
		return nil, n, err
	}
	return iv, n, nil
}

// EncryptStreamWithIV is EncryptStream for callers that must publish the IV
// before the ciphertext, such as a streaming upload. The IV must come from
// NewIV and must never be reused with the same key.
func EncryptStreamWithIV(dst io.Writer, src io.Reader, key, iv []byte) (int64, error) {
	if len(iv) != IVSize {
		return 0, fmt.Errorf("iv must be %d bytes: %w", IVSize, common.ErrInvalidInput)
	}
	aead, err := newGCM(key)
	if err != nil {
		return 0, err
	}

	br := bufio.NewReaderSize(src, ChunkSize)
	buf := make([]byte, ChunkSize)
	out := make([]byte, 0, ChunkSize+TagSize)
	var written int64

	for index := uint64(0); ; index++ {
		n, rerr := io.ReadFull(br, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return written, fmt.Errorf("read plaintext: %w", rerr)
		}

		final := rerr != nil
		if !final {
			if final, err = atEOF(br); err != nil {
				return written, fmt.Errorf("read plaintext: %w", err)
			}
		}

		out = aead.Seal(out[:0], chunkNonce(iv, index), buf[:n], chunkAAD(index, final))
		m, werr := dst.Write(out)
		written += int64(m)
		if werr != nil {
			return written, fmt.Errorf("write ciphertext: %w", werr)
		}

		if final {
			return written, nil
		}
	}
}

// DecryptStream is the inverse of EncryptStream. Every chunk is verified
// before its plaintext is written; any authentication failure, including a
// truncated or extended stream, returns an error wrapping
// common.ErrIntegrity. Callers writing to a file must discard it on error.
func DecryptStream(dst io.Writer, src io.Reader, key, iv []byte) (int64, error) {
	aead, err := newGCM(key)
	if err != nil {
		return 0, err
	}
	if len(iv) != IVSize {
		return 0, fmt.Errorf("iv must be %d bytes: %w", IVSize, common.ErrIntegrity)
	}

	br := bufio.NewReaderSize(src, ChunkSize+TagSize)
	buf := make([]byte, ChunkSize+TagSize)
	plain := make([]byte, 0, ChunkSize)
	var written int64

	for index := uint64(0); ; index++ {
		n, rerr := io.ReadFull(br, buf)
		switch {
		case errors.Is(rerr, io.EOF):
			return written, fmt.Errorf("stream truncated at chunk %d: %w", index, common.ErrIntegrity)
		case rerr != nil && !errors.Is(rerr, io.ErrUnexpectedEOF):
			return written, fmt.Errorf("read ciphertext: %w", rerr)
		}

		final := rerr != nil
		if !final {
			if final, err = atEOF(br); err != nil {
				return written, fmt.Errorf("read ciphertext: %w", err)
			}
		}

		if n < TagSize {
			return written, fmt.Errorf("chunk %d too short: %w", index, common.ErrIntegrity)
		}

		plain, err = aead.Open(plain[:0], chunkNonce(iv, index), buf[:n], chunkAAD(index, final))
		if err != nil {
			return written, fmt.Errorf("chunk %d: %w", index, common.ErrIntegrity)
		}

		m, werr := dst.Write(plain)
		written += int64(m)
		if werr != nil {
			return written, fmt.Errorf("write plaintext: %w", werr)
		}

		if final {
			return written, nil
		}
	}
}

func atEOF(br *bufio.Reader) (bool, error) {
	_, err := br.Peek(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
