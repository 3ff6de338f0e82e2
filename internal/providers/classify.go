package providers

import (
	"net/http"

	"github.com/halcyon-labs/persona-proxy/internal/models"
)

// classifyStatus maps an upstream HTTP status to the error category the
// gateway acts on: 401/403 rotate credentials, 429 rotates too, 5xx backs
// off, everything else aborts the attempt loop. Errors that never produced a
// status (timeouts, connection resets) are classified as transient by the
// adapters directly.
func classifyStatus(provider string, statusCode int, cause error) *models.AppError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewAuthError(provider, statusCode, cause)
	case statusCode == http.StatusTooManyRequests:
		return models.NewRateLimitError(provider, cause)
	case statusCode >= http.StatusInternalServerError:
		return models.NewTransientError(provider, cause)
	default:
		return models.NewFatalError(provider, "request rejected", cause)
	}
}
