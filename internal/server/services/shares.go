// Package services contains server-side business logic. ShareService owns
// the lifecycle of shared files: it stores opaque ciphertext with its public
// parameters and enforces expiry, password gating and download caps.
package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/cryptox"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/audit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/blobstore"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/ratelimit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/repomanager"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/sharedfiles"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/sharelink"
	"golang.org/x/crypto/bcrypt"
)

const verifierHexLen = 64

// Auditor receives audit events. Failures are handled by the implementation.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

// ShareConfig carries the policy knobs of ShareService.
type ShareConfig struct {
	BaseURL          string
	DefaultExpiry    time.Duration
	MaxExpiry        time.Duration
	MaxUploadSize    int64
	PasswordAttempts int
	ExhaustedGrace   time.Duration
	SweepBatch       int
	BcryptCost       int
}

// UploadMeta is the public metadata accompanying an upload.
type UploadMeta struct {
	Algorithm     string
	IV            []byte
	Salt          []byte
	Iterations    int
	KDF           string
	ChunkSize     int
	Size          int64
	EncryptedSize int64
	ExpiresIn     time.Duration
	// MaxDownloads nil means unlimited.
	MaxDownloads *int
	// PasswordVerifier is cryptox.PasswordVerifier of the password-derived
	// key; empty for shares whose key travels in the link.
	PasswordVerifier string

	OwnerID string
	IP      string
}

type StoreResult struct {
	ShareID     string
	ShareURL    string
	ExpiresAt   time.Time
	DeleteToken string
}

// FileInfo is the metadata-only view of a share. Salt and KDF parameters
// are filled only for password-protected shares, which need them to derive
// the verifier; the IV is never part of it.
type FileInfo struct {
	ShareID            string
	Size               int64
	EncryptedSize      int64
	Algorithm          string
	CreatedAt          time.Time
	ExpiresAt          time.Time
	MaxDownloads       *int
	RemainingDownloads *int
	PasswordProtected  bool
	Salt               []byte
	Iterations         int
	KDF                string
}

// Download is an open ciphertext stream plus what the client needs to
// decrypt it. The caller must close Body and then call Finalize.
type Download struct {
	ShareID       string
	Body          io.ReadCloser
	Algorithm     string
	IV            []byte
	Salt          []byte
	Iterations    int
	KDF           string
	ChunkSize     int
	Size          int64
	EncryptedSize int64
	DownloadCount int
	// Final is set when this download used up the last permitted slot.
	Final bool

	storageKey string
}

type ShareService struct {
	repos    repomanager.RepositoryManager
	blobs    blobstore.Store
	limiter  ratelimit.Limiter
	auditor  Auditor
	notifier Notifier
	cfg      ShareConfig
	now      func() time.Time
	logger   logging.Logger
}

func NewShareService(repos repomanager.RepositoryManager, blobs blobstore.Store, limiter ratelimit.Limiter,
	auditor Auditor, notifier Notifier, cfg ShareConfig, logger logging.Logger) *ShareService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.PasswordAttempts <= 0 {
		cfg.PasswordAttempts = 5
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ShareService{
		repos:    repos,
		blobs:    blobs,
		limiter:  limiter,
		auditor:  auditor,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("module", "shares"),
	}
}

// WithClock replaces the time source.
func (s *ShareService) WithClock(now func() time.Time) *ShareService {
	s.now = now
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), common.ErrInvalidInput)
}

func (s *ShareService) validate(meta *UploadMeta) error {
	if meta.Algorithm != cryptox.AlgorithmStream {
		return invalid("unsupported algorithm %q", meta.Algorithm)
	}
	if meta.ChunkSize != cryptox.ChunkSize {
		return invalid("chunk size must be %d", cryptox.ChunkSize)
	}
	if len(meta.IV) != cryptox.IVSize {
		return invalid("iv must be %d bytes", cryptox.IVSize)
	}
	if meta.Size < 0 || meta.EncryptedSize != cryptox.EncryptedSize(meta.Size) {
		return invalid("encrypted size does not match plaintext size")
	}
	if s.cfg.MaxUploadSize > 0 && meta.EncryptedSize > s.cfg.MaxUploadSize {
		return invalid("upload exceeds %d bytes", s.cfg.MaxUploadSize)
	}
	if meta.MaxDownloads != nil && *meta.MaxDownloads < 1 {
		return invalid("maxDownloads must be at least 1")
	}
	if meta.ExpiresIn < 0 {
		return invalid("expiry must be positive")
	}

	if meta.PasswordVerifier == "" {
		if len(meta.Salt) > 0 {
			return invalid("salt given for a share without password")
		}
		return nil
	}
	if _, err := hex.DecodeString(meta.PasswordVerifier); err != nil || len(meta.PasswordVerifier) != verifierHexLen {
		return invalid("malformed password verifier")
	}
	if meta.KDF == "" {
		meta.KDF = cryptox.KDFPBKDF2SHA512
	}
	return cryptox.ValidateKDFParams(meta.KDF, meta.Salt, meta.Iterations)
}

func (s *ShareService) expiry(now time.Time, in time.Duration) time.Time {
	switch {
	case in == 0:
		in = s.cfg.DefaultExpiry
	case s.cfg.MaxExpiry > 0 && in > s.cfg.MaxExpiry:
		in = s.cfg.MaxExpiry
	}
	return now.Add(in)
}

func hashDeleteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store streams body into the blob store and creates the share record with
// a zero download count. The blob is removed again if anything after the
// upload fails.
func (s *ShareService) Store(ctx context.Context, meta UploadMeta, body io.Reader) (*StoreResult, error) {
	if err := s.validate(&meta); err != nil {
		return nil, err
	}

	id, err := sharelink.NewShareID()
	if err != nil {
		return nil, err
	}
	shareURL, err := sharelink.Encode(s.cfg.BaseURL, id, nil)
	if err != nil {
		return nil, fmt.Errorf("build share url: %w", err)
	}
	deleteToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, err
	}

	var passwordHash []byte
	if meta.PasswordVerifier != "" {
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(meta.PasswordVerifier), s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash verifier: %w", err)
		}
	}

	now := s.now().UTC()
	rec := &models.SharedFile{
		ID:              id,
		StorageKey:      blobstore.NewStorageKey(now),
		OwnerID:         meta.OwnerID,
		DeleteTokenHash: hashDeleteToken(deleteToken),
		Algorithm:       meta.Algorithm,
		IV:              meta.IV,
		Salt:            meta.Salt,
		Iterations:      meta.Iterations,
		KDF:             meta.KDF,
		ChunkSize:       meta.ChunkSize,
		Size:            meta.Size,
		EncryptedSize:   meta.EncryptedSize,
		PasswordHash:    passwordHash,
		MaxDownloads:    meta.MaxDownloads,
		CreatedAt:       now,
		ExpiresAt:       s.expiry(now, meta.ExpiresIn),
	}

	n, err := s.blobs.Put(ctx, rec.StorageKey, io.LimitReader(body, meta.EncryptedSize+1))
	if err == nil && n != meta.EncryptedSize {
		err = invalid("received %d bytes, expected %d", n, meta.EncryptedSize)
	}
	if err != nil {
		s.removeBlob(ctx, rec.StorageKey)
		return nil, fmt.Errorf("store ciphertext: %w", err)
	}

	if err := s.repos.SharedFiles(nil).Create(ctx, rec); err != nil {
		s.removeBlob(ctx, rec.StorageKey)
		return nil, fmt.Errorf("create share: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Category:   models.CategoryFileOperation,
		Action:     "file_upload",
		IP:         meta.IP,
		UserID:     meta.OwnerID,
		ResourceID: id,
		Details: map[string]string{
			"size":           strconv.FormatInt(meta.Size, 10),
			"encrypted_size": strconv.FormatInt(meta.EncryptedSize, 10),
			"protected":      strconv.FormatBool(rec.IsPasswordProtected()),
			"max_downloads":  formatLimit(meta.MaxDownloads),
		},
	})
	s.logger.Info(ctx, "share stored", "share_id", id, "encrypted_size", n)

	return &StoreResult{ShareID: id, ShareURL: shareURL, ExpiresAt: rec.ExpiresAt, DeleteToken: deleteToken}, nil
}

// Get loads a share for reading. A deleted share is ErrorNotFound. An
// expired share has its ciphertext removed before ErrExpired is returned.
func (s *ShareService) Get(ctx context.Context, id string) (*models.SharedFile, error) {
	if !sharelink.ValidID(id) {
		return nil, common.ErrorNotFound
	}

	rec, err := s.repos.SharedFiles(nil).Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch rec.State(s.now()) {
	case models.StateDeleted:
		return nil, common.ErrorNotFound
	case models.StateExpired:
		s.purgeExpired(ctx, rec)
		return nil, common.ErrExpired
	}
	return rec, nil
}

// CanDownload reports whether a download would currently be admitted.
func (s *ShareService) CanDownload(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, common.ErrExpired), errors.Is(err, common.ErrorNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return rec.State(s.now()) == models.StateActive, nil
}

// RecordDownload atomically takes one download slot and returns the new
// count. When no slot is available the reason is reported as ErrExpired,
// ErrDownloadLimitExceeded or ErrorNotFound.
func (s *ShareService) RecordDownload(ctx context.Context, id string) (int, error) {
	now := s.now()

	var count int
	err := s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.SharedFiles(tx)

		n, err := repo.IncrementDownloadCount(ctx, id, now)
		if err == nil {
			count = n
			return nil
		}
		if !errors.Is(err, sharedfiles.ErrNotEligible) {
			return err
		}

		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return stateError(rec.State(now))
	})
	return count, err
}

func stateError(st models.ShareState) error {
	switch st {
	case models.StateExpired:
		return common.ErrExpired
	case models.StateExhausted:
		return common.ErrDownloadLimitExceeded
	case models.StateDeleted:
		return common.ErrorNotFound
	default:
		return nil
	}
}

// VerifyPassword checks a password verifier without consuming a download.
// Shares without a password accept any call.
func (s *ShareService) VerifyPassword(ctx context.Context, id, ip, verifier string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.IsPasswordProtected() {
		return nil
	}
	return s.checkPassword(ctx, rec, ip, verifier)
}

// checkPassword counts every attempt from ip before comparing, so parallel
// guesses cannot slip past the limit. A success clears the counter.
func (s *ShareService) checkPassword(ctx context.Context, rec *models.SharedFile, ip, verifier string) error {
	if verifier == "" {
		return common.ErrPasswordRequired
	}

	key := ratelimit.Key("password", ip)
	attempts, err := s.limiter.Hit(ctx, key)
	if err != nil {
		return fmt.Errorf("password throttle: %w", err)
	}
	if attempts > s.cfg.PasswordAttempts {
		s.auditor.Record(ctx, audit.Event{
			Category:   models.CategoryRateLimit,
			Action:     "password_throttled",
			Severity:   models.SeverityHigh,
			Status:     models.StatusBlocked,
			IP:         ip,
			ResourceID: rec.ID,
			Details:    map[string]string{"attempts": strconv.Itoa(attempts)},
		})
		return common.ErrRateLimitExceeded
	}

	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(verifier)) != nil {
		s.auditor.Record(ctx, audit.Event{
			Category:   models.CategorySecurityEvent,
			Action:     "password_failed",
			Severity:   models.SeverityMedium,
			Status:     models.StatusFailure,
			IP:         ip,
			ResourceID: rec.ID,
			Details:    map[string]string{"attempts": strconv.Itoa(attempts)},
		})
		return common.ErrInvalidPassword
	}

	if err := s.limiter.Reset(ctx, key); err != nil {
		s.logger.Warn(ctx, "password throttle reset failed", "error", err)
	}
	return nil
}

// OpenDownload runs the password gate, opens the ciphertext and takes a
// download slot, in that order. No bytes are released unless all three
// succeed, and an exhausted share is only reported past the password gate.
func (s *ShareService) OpenDownload(ctx context.Context, id, ip, verifier string) (*Download, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsPasswordProtected() {
		if err := s.checkPassword(ctx, rec, ip, verifier); err != nil {
			return nil, err
		}
	}
	if rec.State(s.now()) == models.StateExhausted {
		return nil, common.ErrDownloadLimitExceeded
	}

	body, err := s.blobs.Open(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, s.missingBlob(ctx, rec, ip)
		}
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}

	count, err := s.RecordDownload(ctx, id)
	if err != nil {
		_ = body.Close()
		return nil, err
	}

	s.auditor.Record(ctx, audit.Event{
		Category:   models.CategoryFileOperation,
		Action:     "file_download",
		IP:         ip,
		ResourceID: id,
		Details:    map[string]string{"download_count": strconv.Itoa(count)},
	})

	return &Download{
		ShareID:       rec.ID,
		Body:          body,
		Algorithm:     rec.Algorithm,
		IV:            rec.IV,
		Salt:          rec.Salt,
		Iterations:    rec.Iterations,
		KDF:           rec.KDF,
		ChunkSize:     rec.ChunkSize,
		Size:          rec.Size,
		EncryptedSize: rec.EncryptedSize,
		DownloadCount: count,
		Final:         rec.MaxDownloads != nil && count >= *rec.MaxDownloads,
		storageKey:    rec.StorageKey,
	}, nil
}

// missingBlob distinguishes a blob removed by a concurrent final download
// or expiry from a genuinely inconsistent store.
func (s *ShareService) missingBlob(ctx context.Context, rec *models.SharedFile, ip string) error {
	if cur, err := s.repos.SharedFiles(nil).Get(ctx, rec.ID); err == nil {
		if serr := stateError(cur.State(s.now())); serr != nil {
			return serr
		}
	} else if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}

	s.logger.Error(ctx, "ciphertext missing for active share", "share_id", rec.ID)
	s.auditor.Record(ctx, audit.Event{
		Category:   models.CategorySystemEvent,
		Action:     "storage_inconsistency",
		Severity:   models.SeverityCritical,
		Status:     models.StatusFailure,
		IP:         ip,
		ResourceID: rec.ID,
	})
	return common.ErrStorageInconsistency
}

// Finalize is called once the ciphertext has been streamed. It informs the
// notifier and drops the blob after the last permitted download.
func (s *ShareService) Finalize(ctx context.Context, d *Download, ip string, sent int64, streamErr error) {
	if streamErr != nil {
		s.logger.Warn(ctx, "download stream aborted", "share_id", d.ShareID, "sent", sent, "error", streamErr)
	} else {
		s.notifier.DownloadCompleted(ctx, DownloadEvent{
			ShareID:   d.ShareID,
			Timestamp: s.now().UTC(),
			IP:        ip,
			Bytes:     sent,
		})
	}

	if d.Final {
		s.removeBlob(ctx, d.storageKey)
		s.logger.Info(ctx, "download limit reached, ciphertext removed", "share_id", d.ShareID)
	}
}

// Info returns the metadata-only view.
func (s *ShareService) Info(ctx context.Context, id string) (*FileInfo, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		ShareID:            rec.ID,
		Size:               rec.Size,
		EncryptedSize:      rec.EncryptedSize,
		Algorithm:          rec.Algorithm,
		CreatedAt:          rec.CreatedAt,
		ExpiresAt:          rec.ExpiresAt,
		MaxDownloads:       rec.MaxDownloads,
		RemainingDownloads: rec.RemainingDownloads(),
		PasswordProtected:  rec.IsPasswordProtected(),
	}
	if info.PasswordProtected {
		info.Salt = rec.Salt
		info.Iterations = rec.Iterations
		info.KDF = rec.KDF
	}
	return info, nil
}

// Delete removes a share on behalf of its owner or the holder of its delete
// token.
func (s *ShareService) Delete(ctx context.Context, id, ownerID, deleteToken, ip string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	isOwner := ownerID != "" && rec.OwnerID != "" && ownerID == rec.OwnerID
	hasToken := deleteToken != "" &&
		subtle.ConstantTimeCompare([]byte(hashDeleteToken(deleteToken)), []byte(rec.DeleteTokenHash)) == 1
	if !isOwner && !hasToken {
		s.auditor.Record(ctx, audit.Event{
			Category:   models.CategorySecurityEvent,
			Action:     "delete_denied",
			Severity:   models.SeverityMedium,
			Status:     models.StatusBlocked,
			IP:         ip,
			UserID:     ownerID,
			ResourceID: id,
		})
		return common.ErrorForbidden
	}

	if err := s.repos.SharedFiles(nil).MarkDeleted(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	s.auditor.Record(ctx, audit.Event{
		Category:   models.CategoryFileOperation,
		Action:     "file_delete",
		IP:         ip,
		UserID:     ownerID,
		ResourceID: id,
	})

	s.purge(ctx, rec, "deleted")
	return nil
}

// Sweep purges expired, deleted and exhausted shares. Exhausted shares get
// a grace period so in-flight final downloads can finish.
func (s *ShareService) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	list, err := s.repos.SharedFiles(nil).ListPurgeable(ctx, sharedfiles.PurgeQuery{
		Now:             now,
		ExhaustedBefore: now.Add(-s.cfg.ExhaustedGrace),
		Limit:           s.cfg.SweepBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list purgeable: %w", err)
	}

	purged := 0
	for _, rec := range list {
		if s.purge(ctx, rec, string(rec.State(now))) {
			purged++
		}
	}
	return purged, nil
}

// purgeExpired drops the ciphertext of an expired share on first read.
// MarkPurged lets exactly one reader through, so repeated reads neither touch
// the store nor add audit rows.
func (s *ShareService) purgeExpired(ctx context.Context, rec *models.SharedFile) {
	if rec.PurgedAt != nil {
		return
	}
	first, err := s.repos.SharedFiles(nil).MarkPurged(ctx, rec.ID, s.now().UTC())
	if err != nil {
		s.logger.Error(ctx, "mark purged failed", "share_id", rec.ID, "error", err)
		return
	}
	if first {
		s.dropBlob(ctx, rec, "expired")
	}
}

// purge removes the blob and then the row. The row survives a failed blob
// removal so the next sweep retries.
func (s *ShareService) purge(ctx context.Context, rec *models.SharedFile, reason string) bool {
	if rec.PurgedAt != nil {
		// Already audited; this only retries a removal that failed earlier.
		if err := s.blobs.Delete(ctx, rec.StorageKey); err != nil {
			s.logger.Error(ctx, "ciphertext removal failed", "share_id", rec.ID, "reason", reason, "error", err)
			return false
		}
	} else if !s.dropBlob(ctx, rec, reason) {
		return false
	}
	if err := s.repos.SharedFiles(nil).Delete(ctx, rec.ID); err != nil {
		s.logger.Error(ctx, "share row removal failed", "share_id", rec.ID, "error", err)
		return false
	}
	return true
}

func (s *ShareService) dropBlob(ctx context.Context, rec *models.SharedFile, reason string) bool {
	if err := s.blobs.Delete(ctx, rec.StorageKey); err != nil {
		s.logger.Error(ctx, "ciphertext removal failed", "share_id", rec.ID, "reason", reason, "error", err)
		s.auditor.Record(ctx, audit.Event{
			Category:   models.CategorySystemEvent,
			Action:     "purge_failed",
			Severity:   models.SeverityHigh,
			Status:     models.StatusFailure,
			ResourceID: rec.ID,
			Details:    map[string]string{"reason": reason},
		})
		return false
	}
	s.auditor.Record(ctx, audit.Event{
		Category:   models.CategorySystemEvent,
		Action:     "ciphertext_purged",
		ResourceID: rec.ID,
		Details:    map[string]string{"reason": reason},
	})
	return true
}

func (s *ShareService) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Error(ctx, "ciphertext removal failed", "error", err)
	}
}

func formatLimit(n *int) string {
	if n == nil {
		return "unlimited"
	}
	return strconv.Itoa(*n)
}
