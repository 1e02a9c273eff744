package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
)

const DefaultServerErrorCode string = "UnexpectedError"

// GatewayError is the client facing description of a failed request
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ErrorEnvelope is the response body of every failed request
type ErrorEnvelope struct {
	Error GatewayError `json:"error"`
}

// ErrorMapper turns failures into gateway errors. Unclassified failures are
// written to the diagnostic log found in the context.
type ErrorMapper struct {
	serverErrorCode string
}

func NewErrorMapper(serverErrorCode string) ErrorMapper {
	if serverErrorCode == "" {
		serverErrorCode = DefaultServerErrorCode
	}
	return ErrorMapper{serverErrorCode: serverErrorCode}
}

// MapDomain passes status, code and message through verbatim
func (m ErrorMapper) MapDomain(status int, code, message string) GatewayError {
	return GatewayError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// MapUnclassified always maps to a 500 with the configured server error code.
// The original message is kept for the client, the trace only goes to the log.
// The returned incident id identifies the log record.
func (m ErrorMapper) MapUnclassified(ctx context.Context, f UnclassifiedFailure) (GatewayError, string) {
	incident := uuid.NewString()

	logging.GetFromContext(ctx).Error(
		"unexpected failure while handling request",
		slog.String("err", f.Message),
		slog.String("trace", f.Trace),
		slog.String("incident", incident),
	)

	return GatewayError{
		Code:    m.serverErrorCode,
		Message: f.Message,
		Status:  http.StatusInternalServerError,
	}, incident
}
