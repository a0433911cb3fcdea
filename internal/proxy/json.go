package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/florianilch/ccauth/internal/clientcredentials"
)

// ErrorResponse is the JSON body returned when a request cannot be forwarded.
type ErrorResponse struct {
	Err Error `json:"error"`
}

// Error describes why the proxy failed a request.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	// TokenEndpointStatus is the status the token endpoint answered with, for
	// token_error responses.
	TokenEndpointStatus int    `json:"token_endpoint_status,omitempty"`
	TokenEndpointError  string `json:"token_endpoint_error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// toErrorResponse classifies a forwarding failure and picks the status code.
// Token acquisition failures are distinguished from upstream failures so
// clients can tell a credentials problem from an unavailable backend.
func toErrorResponse(err error) (*ErrorResponse, int) {
	var (
		cfgErr       *clientcredentials.ConfigurationError
		tokenErr     *clientcredentials.TokenError
		transportErr *clientcredentials.TransportError
		malformedErr *clientcredentials.MalformedResponseError
	)

	switch {
	case errors.As(err, &cfgErr):
		return &ErrorResponse{Err: Error{Message: cfgErr.Error(), Type: "configuration_error"}}, http.StatusInternalServerError
	case errors.As(err, &tokenErr):
		return &ErrorResponse{Err: Error{
			Message:             tokenErr.Error(),
			Type:                "token_error",
			TokenEndpointStatus: tokenErr.StatusCode,
			TokenEndpointError:  tokenErr.ErrorCode(),
		}}, http.StatusBadGateway
	case errors.As(err, &transportErr):
		return &ErrorResponse{Err: Error{Message: transportErr.Error(), Type: "token_endpoint_unreachable"}}, http.StatusBadGateway
	case errors.As(err, &malformedErr):
		return &ErrorResponse{Err: Error{Message: malformedErr.Error(), Type: "malformed_token_response"}}, http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorResponse{Err: Error{Message: http.StatusText(http.StatusGatewayTimeout), Type: "upstream_timeout"}}, http.StatusGatewayTimeout
	default:
		return &ErrorResponse{Err: Error{Message: http.StatusText(http.StatusBadGateway), Type: "upstream_error"}}, http.StatusBadGateway
	}
}
