package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"throttler/internal/admin"
	"throttler/internal/models"
	"throttler/internal/ratelimit"

	"github.com/gorilla/mux"
)

// maxUpdateBodyBytes bounds POST /rate_limit bodies.
const maxUpdateBodyBytes = 64 << 10

// maxActorLength bounds the operator name taken from X-Actor.
const maxActorLength = 64

// GetRateLimit returns the active limit
// GET /rate_limit
func (h *Handlers) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.admin.GetConfig(r.Context()))
}

// UpdateRateLimit replaces the active limit
// POST /rate_limit
func (h *Handlers) UpdateRateLimit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeServiceError(w, admin.NewInvalidRequestError("request body too large", err))
			return
		}
		h.writeServiceError(w, admin.NewInvalidRequestError("failed to read request body", err))
		return
	}

	req, err := models.DecodeUpdateRateLimitRequest(body)
	if err != nil {
		h.writeServiceError(w, admin.NewInvalidLimitError(err))
		return
	}

	response, err := h.admin.UpdateConfig(r.Context(), req, h.actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// RateLimitHistory lists audited limit changes, newest first
// GET /rate_limit/history?limit=n
func (h *Handlers) RateLimitHistory(w http.ResponseWriter, r *http.Request) {
	req, err := models.ParseHistoryRequest(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	response, err := h.admin.History(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// RateLimitStats returns decision totals
// GET /rate_limit/stats
func (h *Handlers) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	response, err := h.admin.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// PeekKey shows a key's current window without counting a request
// GET /rate_limit/keys/{key}
func (h *Handlers) PeekKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if strings.TrimSpace(key) == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "key is required")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.admin.Peek(r.Context(), key))
}

// actor identifies the operator behind an admin request. The optional
// X-Actor header names them; requests that passed token authentication
// default to "admin".
func (h *Handlers) actor(r *http.Request) admin.Actor {
	name := strings.TrimSpace(r.Header.Get("X-Actor"))
	if len(name) > maxActorLength {
		name = name[:maxActorLength]
	}
	if name == "" {
		if isAdminAuthenticated(r.Context()) {
			name = "admin"
		} else {
			name = "anonymous"
		}
	}

	return admin.Actor{
		Name:       name,
		RemoteAddr: ratelimit.NormalizeKey(ratelimit.ClientAddr(r, h.trustProxyHeaders)),
	}
}

// writeServiceError maps an admin.ServiceError to its HTTP status. Any other
// error is reported as an internal error.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var serviceErr *admin.ServiceError
	if errors.As(err, &serviceErr) {
		h.writeErrorResponse(w, serviceErr.StatusCode, serviceErr.Code, serviceErr.Message)
		return
	}
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}
