package errorhandler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/logger"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/response"
)

// HandleRawError logs err with the request-scoped logger and answers with a
// flat {"error": "..."} body.
func HandleRawError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("error_message", message).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("Request error")

	response.RawError(w, status, message)
}

// InternalError logs err against operation and sends a generic 500.
func InternalError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	logger.FromContext(ctx).Error().
		Str("operation", operation).
		Err(err).
		Msg("Internal error")
	response.InternalError(w)
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	logger.FromContext(ctx).Warn().
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}
