// Package api exposes HTTP handlers for session logging and the analytics dashboard.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/swimrun/internal/analytics"
	"example.com/swimrun/internal/auth"
	"example.com/swimrun/internal/domain"
	"example.com/swimrun/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the clock used when a request carries no as_of date.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithLogger overrides the logger used for server errors.
func WithLogger(logger log.FieldLogger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	now     func() time.Time
	logger  log.FieldLogger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, now: time.Now, logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessions)
	mux.HandleFunc("/v1/sessions/", h.sessionByID)
	mux.HandleFunc("/v1/analytics/heatmap", h.heatmap)
	mux.HandleFunc("/v1/analytics/months", h.months)
	mux.HandleFunc("/v1/analytics/records", h.records)
	mux.HandleFunc("/v1/analytics/compare", h.compare)
	mux.HandleFunc("/healthz", healthz)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.logSession(w, r)
	case http.MethodGet:
		h.listSessions(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := readClaims(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetSession(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*record))
}

func (h *Handler) logSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:write required")
		return
	}

	var req LogSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	source := req.Source
	if strings.TrimSpace(source) == "" {
		source = "api"
	}
	record, replay, err := h.service.LogSession(r.Context(), domain.LogSessionInput{
		TenantID:       claims.TenantID,
		UserID:         req.UserID,
		Date:           req.Date,
		Distance:       req.Distance,
		Type:           req.Type,
		Source:         source,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSession) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, LogSessionResponse{Session: toSessionView(*record), Replay: replay})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := readClaims(w, r)
	if !ok {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.ListSessionsByUser(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	items := make([]SessionView, 0, len(records))
	for _, rec := range records {
		items = append(items, toSessionView(rec))
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) heatmap(w http.ResponseWriter, r *http.Request) {
	claims, userID, now, ok := h.analyticsRequest(w, r)
	if !ok {
		return
	}
	token := r.URL.Query().Get("range")
	if token == "" {
		token = analytics.RangeMonth
	}

	heatmap, err := h.service.Heatmap(r.Context(), claims.TenantID, userID, token, now)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHeatmapView(heatmap))
}

func (h *Handler) months(w http.ResponseWriter, r *http.Request) {
	claims, userID, _, ok := h.analyticsRequest(w, r)
	if !ok {
		return
	}
	buckets, err := h.service.Months(r.Context(), claims.TenantID, userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	items := make([]MonthView, 0, len(buckets))
	for _, b := range buckets {
		items = append(items, MonthView(b))
	}
	writeJSON(w, http.StatusOK, MonthsResponse{Items: items})
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	claims, userID, _, ok := h.analyticsRequest(w, r)
	if !ok {
		return
	}
	records, err := h.service.Records(r.Context(), claims.TenantID, userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordsView(records))
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	claims, userID, now, ok := h.analyticsRequest(w, r)
	if !ok {
		return
	}
	mode := analytics.Mode(r.URL.Query().Get("mode"))

	cmp, err := h.service.CompareMonths(r.Context(), claims.TenantID, userID, mode, now)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompareView(cmp))
}

// analyticsRequest performs the checks shared by the dashboard endpoints.
func (h *Handler) analyticsRequest(w http.ResponseWriter, r *http.Request) (*auth.Claims, string, time.Time, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return nil, "", time.Time{}, false
	}
	claims, ok := readClaims(w, r)
	if !ok {
		return nil, "", time.Time{}, false
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, "", time.Time{}, false
	}

	now := h.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, ok := analytics.ParseDate(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "validation_failed", "as_of must be a YYYY-MM-DD date")
			return nil, "", time.Time{}, false
		}
		now = parsed
	}
	return claims, userID, analytics.Civil(now), true
}

func readClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.CanRead() {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:read required")
		return nil, false
	}
	return claims, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return "", false
	}
	return userID, true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
