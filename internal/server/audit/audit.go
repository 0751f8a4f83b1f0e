// Package audit records security-relevant events without becoming a privacy
// leak itself: client IPs are stored as salted hashes, personal data only as
// field-level ciphertext, and every entry expires according to its category.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/cryptox"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const day = 24 * time.Hour

var sealField = cryptox.SealField

// DefaultRetention is how long each category is kept.
var DefaultRetention = map[models.AuditCategory]time.Duration{
	models.CategorySecurityEvent: 365 * day,
	models.CategoryAdminAction:   365 * day,
	models.CategoryAuthEvent:     90 * day,
	models.CategoryFileOperation: 90 * day,
	models.CategoryRateLimit:     30 * day,
	models.CategorySystemEvent:   30 * day,
}

// Detail keys that look like personal data. Such values belong in
// Event.Sensitive.
var piiKeyFragments = []string{"filename", "email", "password", "passphrase", "secret", "token", "ipaddress", "username"}
var piiKeys = map[string]bool{"ip": true, "key": true, "name": true, "path": true, "useragent": true}

// Event is what callers hand to Log.
type Event struct {
	Category   models.AuditCategory
	Action     string
	Severity   models.AuditSeverity
	Status     models.AuditStatus
	IP         string
	UserID     string
	ResourceID string
	// Details are stored in plaintext and must not contain personal data.
	Details map[string]string
	// Sensitive values are encrypted one by one; only their names stay readable.
	Sensitive map[string]string
}

// Logger is the write side other components depend on.
type Logger interface {
	Log(ctx context.Context, ev Event) error
}

type Config struct {
	IPSalt   []byte
	FieldKey []byte
	// Retention overrides DefaultRetention per category.
	Retention map[models.AuditCategory]time.Duration
}

type Service struct {
	repos     repomanager.RepositoryManager
	ipSalt    []byte
	fieldKey  []byte
	retention map[models.AuditCategory]time.Duration
	now       func() time.Time
	logger    logging.Logger
}

func NewService(repos repomanager.RepositoryManager, cfg Config, logger logging.Logger) (*Service, error) {
	if len(cfg.FieldKey) != cryptox.KeySize {
		return nil, fmt.Errorf("audit field key must be %d bytes: %w", cryptox.KeySize, common.ErrInvalidInput)
	}
	if len(cfg.IPSalt) == 0 {
		return nil, fmt.Errorf("audit ip salt is empty: %w", common.ErrInvalidInput)
	}

	retention := make(map[models.AuditCategory]time.Duration, len(DefaultRetention))
	for c, d := range DefaultRetention {
		retention[c] = d
	}
	for c, d := range cfg.Retention {
		if _, ok := DefaultRetention[c]; !ok {
			return nil, fmt.Errorf("unknown audit category %q: %w", c, common.ErrInvalidInput)
		}
		if d <= 0 {
			return nil, fmt.Errorf("retention for %q must be positive: %w", c, common.ErrInvalidInput)
		}
		retention[c] = d
	}

	return &Service{
		repos:     repos,
		ipSalt:    cfg.IPSalt,
		fieldKey:  cfg.FieldKey,
		retention: retention,
		now:       time.Now,
		logger:    logger.With("module", "audit"),
	}, nil
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HashIP returns hex(SHA-256(ip || salt)), or "" for an unknown address.
func (s *Service) HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(ip))
	h.Write(s.ipSalt)
	return hex.EncodeToString(h.Sum(nil))
}

func isPIIKey(k string) bool {
	n := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(k))
	if piiKeys[n] {
		return true
	}
	for _, f := range piiKeyFragments {
		if strings.Contains(n, f) {
			return true
		}
	}
	return false
}

// Log validates, hashes, encrypts and stores ev. When a sensitive field
// cannot be encrypted nothing is written and the error wraps
// common.ErrEncryptionFailed.
func (s *Service) Log(ctx context.Context, ev Event) error {
	ttl, ok := s.retention[ev.Category]
	if !ok {
		return fmt.Errorf("unknown audit category %q: %w", ev.Category, common.ErrInvalidInput)
	}
	if ev.Action == "" {
		return fmt.Errorf("audit action is empty: %w", common.ErrInvalidInput)
	}
	for k := range ev.Details {
		if isPIIKey(k) {
			return fmt.Errorf("detail %q looks like personal data: %w", k, common.ErrInvalidInput)
		}
	}

	encrypted := make(map[string]string, len(ev.Sensitive))
	for k, v := range ev.Sensitive {
		sealed, err := sealField(v, s.fieldKey)
		if err != nil {
			s.logger.Error(ctx, "audit field encryption failed", "field", k, "action", ev.Action)
			return fmt.Errorf("encrypt field %q: %w", k, common.ErrEncryptionFailed)
		}
		encrypted[k] = sealed
	}

	now := s.now().UTC()
	entry := &models.AuditLogEntry{
		ID:              uuid.NewString(),
		Category:        ev.Category,
		Action:          ev.Action,
		Severity:        orDefault(ev.Severity, models.SeverityLow),
		Status:          orDefault(ev.Status, models.StatusSuccess),
		Timestamp:       now,
		IPHash:          s.HashIP(ev.IP),
		UserID:          ev.UserID,
		ResourceID:      ev.ResourceID,
		Details:         ev.Details,
		EncryptedFields: encrypted,
		ExpiresAt:       now.Add(ttl),
	}

	if err := s.repos.AuditLogs(nil).Insert(ctx, entry); err != nil {
		return fmt.Errorf("store audit entry: %w", err)
	}
	return nil
}

// Query returns live entries. Encrypted fields stay opaque.
func (s *Service) Query(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	return s.repos.AuditLogs(nil).Query(ctx, f, s.now())
}

// Decrypt reveals the sensitive fields of one entry to an administrator.
// The access itself is recorded first; if that fails nothing is revealed.
func (s *Service) Decrypt(ctx context.Context, id, adminID, ip string) (map[string]string, error) {
	if adminID == "" {
		return nil, common.ErrorForbidden
	}

	entry, err := s.repos.AuditLogs(nil).Get(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.Log(ctx, Event{
		Category:   models.CategoryAdminAction,
		Action:     "audit_decrypt",
		Severity:   models.SeverityHigh,
		IP:         ip,
		UserID:     adminID,
		ResourceID: id,
		Details:    map[string]string{"fields": fmt.Sprint(len(entry.EncryptedFields))},
	}); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(entry.EncryptedFields))
	for k, v := range entry.EncryptedFields {
		plain, err := cryptox.OpenField(v, s.fieldKey)
		if err != nil {
			s.logger.Error(ctx, "audit field decryption failed", "entry", id, "field", k)
			return nil, fmt.Errorf("decrypt field %q: %w", k, common.ErrIntegrity)
		}
		out[k] = plain
	}
	return out, nil
}

// Purge physically removes entries whose retention has ended.
func (s *Service) Purge(ctx context.Context) (int, error) {
	return s.repos.AuditLogs(nil).PurgeExpired(ctx, s.now())
}

// Record logs ev and reports a failure through the process logger instead of
// the caller. Use it where an audit failure must not change the outcome of
// the request.
func (s *Service) Record(ctx context.Context, ev Event) {
	if err := s.Log(ctx, ev); err != nil {
		level := s.logger.Error
		if errors.Is(err, common.ErrInvalidInput) {
			level = s.logger.Warn
		}
		level(ctx, "audit write failed", "action", ev.Action, "error", err)
	}
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
