// Package models - API request types and input validation.
// This file defines the incoming admin request structures and their validation.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Accept only the exact JSON shape documented for each endpoint
// - Never coerce: a quoted or fractional number is rejected, not rounded
// - Separate decoding from validation for clear error reporting
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// UpdateRateLimitRequest is the body of POST /rate_limit.
//
// Limit is kept raw so that Validate can tell a JSON integer literal apart
// from strings, floats, exponents and null, which encoding/json would
// otherwise coerce or reject with an opaque message.
type UpdateRateLimitRequest struct {
	Limit json.RawMessage `json:"limit"`
}

// DecodeUpdateRateLimitRequest decodes body, which must be a single JSON
// object.
func DecodeUpdateRateLimitRequest(body []byte) (*UpdateRateLimitRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("request body is required")
	}
	if trimmed[0] != '{' {
		return nil, errors.New("request body must be a JSON object")
	}

	var req UpdateRateLimitRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &req, nil
}

// Validate checks the limit and returns it as an int.
func (r *UpdateRateLimitRequest) Validate() (int, error) {
	raw := bytes.TrimSpace(r.Limit)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("limit is required")
	}

	if bytes.ContainsAny(raw, ".eE") || raw[0] == '"' {
		return 0, fmt.Errorf("limit must be an integer, got %s", raw)
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("limit %s is out of range", raw)
		}
		return 0, fmt.Errorf("limit must be an integer, got %s", raw)
	}

	if n <= 0 {
		return 0, fmt.Errorf("limit must be greater than zero, got %d", n)
	}

	if n > math.MaxInt {
		return 0, fmt.Errorf("limit %d is out of range", n)
	}

	return int(n), nil
}

// HistoryRequest holds the query parameters of GET /rate_limit/history.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// ParseHistoryRequest reads the optional "limit" query value.
func ParseHistoryRequest(limit string) (*HistoryRequest, error) {
	req := &HistoryRequest{Limit: DefaultHistoryLimit}
	if limit == "" {
		return req, nil
	}

	n, err := strconv.Atoi(limit)
	if err != nil {
		return nil, fmt.Errorf("limit must be an integer: %w", err)
	}
	if n <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}
	req.Limit = min(n, MaxHistoryLimit)
	return req, nil
}
