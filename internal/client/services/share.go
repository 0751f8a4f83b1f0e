package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/repositories/uploads"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/transport"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/cryptox"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/filex"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/sharelink"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/timex"
)

// Transport is the subset of the HTTP client the share service needs.
type Transport interface {
	Upload(ctx context.Context, meta shared.UploadMetadata, ciphertext io.Reader) (*shared.UploadResponse, error)
	Info(ctx context.Context, shareID string) (*shared.FileInfo, error)
	Download(ctx context.Context, shareID, verifier string) (*transport.Download, error)
	VerifyPassword(ctx context.Context, shareID, verifier string) error
	Delete(ctx context.Context, shareID, deleteToken string) error
}

type UploadOptions struct {
	// Password switches the share to password mode. The key is then derived
	// from it and the link carries no fragment.
	Password     string
	ExpiresIn    time.Duration
	MaxDownloads *int
	// KDF and Iterations override the derivation defaults in password mode.
	KDF        string
	Iterations int
}

type UploadResult struct {
	ShareID           string
	Link              string
	DeleteToken       string
	ExpiresAt         time.Time
	PasswordProtected bool
}

type DownloadResult struct {
	Path string
	Size int64
}

type ShareService interface {
	Upload(ctx context.Context, path string, opts UploadOptions) (*UploadResult, error)
	Download(ctx context.Context, link, password, dst string) (*DownloadResult, error)
	Info(ctx context.Context, link string) (*shared.FileInfo, error)
	VerifyPassword(ctx context.Context, link, password string) error
	// Delete falls back to the token in the upload history when deleteToken
	// is empty.
	Delete(ctx context.Context, link, deleteToken string) error
	// History lists this client's unexpired uploads.
	History(ctx context.Context) ([]models.Upload, error)
}

type shareService struct {
	transport Transport
	history   uploads.Repository
	logger    logging.Logger
	now       func() time.Time
}

// NewShareService returns the client share service. history may be nil,
// in which case nothing is remembered between runs.
func NewShareService(t Transport, history uploads.Repository, logger logging.Logger) ShareService {
	return &shareService{
		transport: t,
		history:   history,
		logger:    logger.With("module", "shares"),
		now:       time.Now,
	}
}

type passwordKey struct {
	key        []byte
	salt       []byte
	kdf        string
	iterations int
}

func derivePasswordKey(password string, kdf string, iterations int) (*passwordKey, error) {
	if kdf == "" {
		kdf = cryptox.KDFPBKDF2SHA512
	}
	if iterations == 0 {
		iterations = cryptox.DefaultIterations
		if kdf == cryptox.KDFArgon2id {
			iterations = cryptox.DefaultArgon2Time
		}
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, err
	}
	key, err := cryptox.DeriveKeyWithKDF(kdf, []byte(password), salt, iterations)
	if err != nil {
		return nil, err
	}
	return &passwordKey{key: key, salt: salt, kdf: kdf, iterations: iterations}, nil
}

// Upload encrypts the file at path while streaming it to the server and
// returns the share link. In embedded mode the link holds the key.
func (s *shareService) Upload(ctx context.Context, path string, opts UploadOptions) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file: %w", path, common.ErrInvalidInput)
	}
	size := st.Size()

	iv, err := cryptox.NewIV()
	if err != nil {
		return nil, err
	}

	meta := shared.UploadMetadata{
		Algorithm:     cryptox.AlgorithmStream,
		IV:            iv,
		ChunkSize:     cryptox.ChunkSize,
		Size:          size,
		EncryptedSize: cryptox.EncryptedSize(size),
		ExpiresIn:     timex.Duration{Duration: opts.ExpiresIn},
		MaxDownloads:  opts.MaxDownloads,
	}

	var key []byte
	if opts.Password != "" {
		pk, err := derivePasswordKey(opts.Password, opts.KDF, opts.Iterations)
		if err != nil {
			return nil, err
		}
		key = pk.key
		meta.Salt = pk.salt
		meta.KDF = pk.kdf
		meta.Iterations = pk.iterations
		meta.PasswordVerifier = cryptox.PasswordVerifier(key)
	} else {
		if key, err = cryptox.GenerateKey(); err != nil {
			return nil, err
		}
	}
	defer cryptox.WipeBytes(key)

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := cryptox.EncryptStreamWithIV(pw, io.LimitReader(f, size), key, iv)
		_ = pw.CloseWithError(err)
	}()

	res, err := s.transport.Upload(ctx, meta, pr)
	// The encryptor must stop touching key before it is wiped.
	_ = pr.CloseWithError(errors.New("upload finished"))
	<-done
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	server, err := sharelink.Decode(res.ShareURL)
	if err != nil {
		return nil, fmt.Errorf("server returned a malformed share url: %w", err)
	}
	if server.ShareID != res.ShareID {
		return nil, fmt.Errorf("server share url does not match share id: %w", common.ErrInvalidInput)
	}

	var linkKey []byte
	if opts.Password == "" {
		linkKey = key
	}
	link, err := sharelink.Encode(server.BaseURL, res.ShareID, linkKey)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "file uploaded", "share_id", res.ShareID, "size", size, "protected", opts.Password != "")
	s.remember(ctx, &models.Upload{
		ShareID:           res.ShareID,
		URL:               sharelink.ServerVisible(link),
		DeleteToken:       res.DeleteToken,
		Size:              size,
		PasswordProtected: opts.Password != "",
		CreatedAt:         s.now(),
		ExpiresAt:         res.ExpiresAt,
	})

	return &UploadResult{
		ShareID:           res.ShareID,
		Link:              link,
		DeleteToken:       res.DeleteToken,
		ExpiresAt:         res.ExpiresAt,
		PasswordProtected: opts.Password != "",
	}, nil
}

// downloadKey resolves the decryption key for a share and, in password
// mode, the verifier the server gates the download with.
func downloadKey(l *sharelink.Link, info *shared.FileInfo, password string) ([]byte, string, error) {
	if !info.PasswordProtected {
		if !l.HasKey() {
			return nil, "", fmt.Errorf("link carries no key: %w", common.ErrInvalidInput)
		}
		key := make([]byte, len(l.Key))
		copy(key, l.Key)
		return key, "", nil
	}

	if password == "" {
		return nil, "", common.ErrPasswordRequired
	}
	key, err := cryptox.DeriveKeyWithKDF(info.KDF, []byte(password), info.Salt, info.Iterations)
	if err != nil {
		return nil, "", err
	}
	return key, cryptox.PasswordVerifier(key), nil
}

// Download fetches and decrypts a share into dst. The file appears at dst
// only if every chunk authenticates and the plaintext has the announced
// size; a wrong password surfaces as common.ErrInvalidPassword from the
// server before any ciphertext is fetched.
func (s *shareService) Download(ctx context.Context, link, password, dst string) (*DownloadResult, error) {
	l, err := sharelink.Decode(link)
	if err != nil {
		return nil, err
	}

	info, err := s.transport.Info(ctx, l.ShareID)
	if err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}

	key, verifier, err := downloadKey(l, info, password)
	if err != nil {
		return nil, err
	}
	defer cryptox.WipeBytes(key)

	d, err := s.transport.Download(ctx, l.ShareID, verifier)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer d.Body.Close()

	if d.Params.Algorithm != cryptox.AlgorithmStream {
		return nil, fmt.Errorf("unsupported algorithm %q: %w", d.Params.Algorithm, common.ErrInvalidInput)
	}

	out, err := filex.CreateAtomic(dst)
	if err != nil {
		return nil, err
	}
	defer out.Abort()

	n, err := cryptox.DecryptStream(out, d.Body, key, d.Params.IV)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	if n != d.Params.Size {
		return nil, fmt.Errorf("plaintext is %d bytes, expected %d: %w", n, d.Params.Size, common.ErrIntegrity)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "file downloaded", "share_id", l.ShareID, "size", n)
	return &DownloadResult{Path: dst, Size: n}, nil
}

func (s *shareService) Info(ctx context.Context, link string) (*shared.FileInfo, error) {
	l, err := sharelink.Decode(link)
	if err != nil {
		return nil, err
	}
	return s.transport.Info(ctx, l.ShareID)
}

// VerifyPassword checks a password against a protected share without
// consuming a download.
func (s *shareService) VerifyPassword(ctx context.Context, link, password string) error {
	l, err := sharelink.Decode(link)
	if err != nil {
		return err
	}
	info, err := s.transport.Info(ctx, l.ShareID)
	if err != nil {
		return err
	}
	if !info.PasswordProtected {
		return nil
	}

	key, verifier, err := downloadKey(l, info, password)
	if err != nil {
		return err
	}
	cryptox.WipeBytes(key)
	return s.transport.VerifyPassword(ctx, l.ShareID, verifier)
}

// remember records an upload in the history. The share already exists at
// this point, so a failure is logged rather than returned.
func (s *shareService) remember(ctx context.Context, u *models.Upload) {
	if s.history == nil {
		return
	}
	if err := s.history.Insert(ctx, u); err != nil {
		s.logger.Warn(ctx, "failed to record upload", "share_id", u.ShareID, "error", err)
	}
}

func (s *shareService) Delete(ctx context.Context, link, deleteToken string) error {
	l, err := sharelink.Decode(link)
	if err != nil {
		return err
	}

	if deleteToken == "" && s.history != nil {
		u, err := s.history.Get(ctx, l.ShareID)
		switch {
		case err == nil:
			deleteToken = u.DeleteToken
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}
	}

	if err := s.transport.Delete(ctx, l.ShareID, deleteToken); err != nil {
		return err
	}

	if s.history != nil {
		if err := s.history.Delete(ctx, l.ShareID); err != nil {
			s.logger.Warn(ctx, "failed to forget upload", "share_id", l.ShareID, "error", err)
		}
	}
	return nil
}

func (s *shareService) History(ctx context.Context) ([]models.Upload, error) {
	if s.history == nil {
		return nil, nil
	}
	if _, err := s.history.DeleteExpired(ctx, s.now()); err != nil {
		return nil, err
	}
	return s.history.List(ctx)
}
