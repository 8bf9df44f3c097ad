package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const maxBodyBytes = 1 << 20 // 1 MiB

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps domain errors onto HTTP semantics. A month redirect
// becomes a 303 pointing at the budget resource for the right month.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var redirect *core.RedirectError
	if errors.As(err, &redirect) {
		w.Header().Set("Location", "/api/budgets/"+redirect.Month.String())
		writeJSON(w, http.StatusSeeOther, errorBody{Error: err.Error()})
		return
	}

	var validation *core.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: validation.Reason, Field: validation.Field})
		return
	}

	var integrity *core.IntegrityError
	if errors.As(err, &integrity) {
		writeJSON(w, http.StatusConflict, errorBody{Error: integrity.Reason})
		return
	}

	if errors.Is(err, core.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}

	slog.ErrorContext(r.Context(), "Request failed",
		log.FieldError, err.Error(),
		log.FieldPath, r.URL.Path,
		log.FieldComponent, log.ComponentHTTP)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return core.NewValidationError("body", "unreadable request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return core.NewValidationError("body", "malformed JSON")
	}
	return nil
}

func pathMonth(r *http.Request) (core.Month, error) {
	return core.ParseMonth(r.PathValue("month"))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// queryMonth reads an optional ?month=YYYY-MM parameter, falling back
// to the given default.
func queryMonth(r *http.Request, fallback core.Month) (core.Month, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		return fallback, nil
	}
	return core.ParseMonth(raw)
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, core.NewValidationError("date", "must be YYYY-MM-DD")
	}
	return d, nil
}
