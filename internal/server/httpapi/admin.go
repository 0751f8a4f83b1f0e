package httpapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/go-chi/chi/v5"
)

func toWireAudit(e *models.AuditLogEntry) shared.AuditEntry {
	out := shared.AuditEntry{
		ID:         e.ID,
		Category:   string(e.Category),
		Action:     e.Action,
		Severity:   string(e.Severity),
		Status:     string(e.Status),
		Timestamp:  e.Timestamp,
		IPHash:     e.IPHash,
		UserID:     e.UserID,
		ResourceID: e.ResourceID,
		Details:    e.Details,
		ExpiresAt:  e.ExpiresAt,
	}
	for name := range e.EncryptedFields {
		out.EncryptedFields = append(out.EncryptedFields, name)
	}
	sort.Strings(out.EncryptedFields)
	return out
}

func (s *HTTPServer) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := models.AuditFilter{
		Category:   models.AuditCategory(q.Get("category")),
		Action:     q.Get("action"),
		ResourceID: q.Get("resource"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, invalidf("limit must be a positive integer"))
			return
		}
		f.Limit = n
	}

	entries, err := s.audit.Query(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]shared.AuditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toWireAudit(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) decryptAudit(w http.ResponseWriter, r *http.Request) {
	fields, err := s.audit.Decrypt(r.Context(), chi.URLParam(r, "id"), userIDFrom(r.Context()), clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}
