package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every ledger error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

// statusFor maps a ledger error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists),
		errors.Is(err, ledger.ErrResourceInUse),
		errors.Is(err, ledger.ErrStaleState),
		errors.Is(err, ledger.ErrResourceUnavailable):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidRequest),
		errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	}
	var rej *ledger.RejectionError
	if errors.As(err, &rej) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := errorDetail{Code: "internal_error", Message: "internal server error"}
	var rej *ledger.RejectionError
	if errors.As(err, &rej) {
		detail = errorDetail{
			Code:      rej.Code,
			Field:     rej.Field,
			Message:   rej.Message,
			Retryable: rej.Retryable(),
		}
	} else if status != http.StatusInternalServerError {
		detail = errorDetail{Code: "rejected", Message: err.Error(), Retryable: ledger.IsRetryable(err)}
	}
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err,
		}).Error("Request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// decodeJSON reads a single JSON document into v, rejecting unknown fields.
// It writes the 400 response itself and reports whether decoding worked.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid_json", "Invalid JSON: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid_json", "Invalid JSON: trailing data")
		return false
	}
	return true
}
