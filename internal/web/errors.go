package web

// errors.go turns service errors into HTTP responses.
//
// Validation failures are returned verbatim as {"errors":[...]} so clients
// can act on each failure. Everything else is logged with full detail and
// answered with a sanitized core.MapError message and support code.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/multinet/internal/auth"
	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/logging"
	"github.com/JonMunkholm/multinet/internal/store"
)

var (
	errInvalidParam = errors.New("invalid parameter")
	errNoFile       = errors.New("no file provided")
	errRateLimited  = errors.New("rate limit exceeded")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var (
		maxBytes  *http.MaxBytesError
		decodeErr *core.DecodeFailed
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &decodeErr),
		errors.Is(err, core.ErrMalformedBody),
		errors.Is(err, core.ErrInvalidFilter),
		errors.Is(err, errInvalidParam),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingKey):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrWorkspaceNotFound),
		errors.Is(err, store.ErrCollectionNotFound),
		errors.Is(err, core.ErrUnknownFormat):
		return http.StatusNotFound
	case errors.Is(err, store.ErrWorkspaceExists),
		errors.Is(err, store.ErrUniqueConstraint),
		errors.Is(err, core.ErrCollectionKindMismatch):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if vf, ok := core.AsValidationFailed(err); ok {
		logging.FromContext(r.Context()).Info("upload rejected",
			"path", r.URL.Path,
			"failures", len(vf.Failures),
		)
		writeJSON(w, http.StatusBadRequest, vf)
		return
	}

	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(s.cfg.Upload.MaxWaitTime.Seconds()))))
	}

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
