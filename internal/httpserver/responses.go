package httpserver

import (
	"errors"
	"net/http"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/llm"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// busyMessage is the fixed body returned when the dispatcher reports
// exhaustion, per spec scenario S3 - never the dynamic err.Error(), so
// clients can match on message text without parsing dispatcher internals.
const busyMessage = "AI Analysis is busy. Please wait and try again."

// writeError maps err to an HTTP status and a JSON error envelope, per
// spec §7's propagation policy: ErrInput is a client error, ErrBusy (a
// dispatcher ExhaustedError surfaced through C4) asks the client to retry
// with 429, and upstream parse/transport failures are unclassified 500s -
// the client did nothing wrong, but there is no gateway to retry against.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	message := err.Error()
	switch {
	case errors.Is(err, domain.ErrInput):
		status = http.StatusBadRequest
		code = "INVALID_INPUT"
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusTooManyRequests
		code = "BUSY"
		message = busyMessage
	case llm.IsParse(err):
		status = http.StatusInternalServerError
		code = "UPSTREAM_PARSE_ERROR"
	case llm.IsTransport(err):
		status = http.StatusInternalServerError
		code = "UPSTREAM_TRANSPORT_ERROR"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		code = "NOT_FOUND"
	}
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}
