package llm

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GenerationError is a transport, quota or server failure of the generation service
type GenerationError struct {
	Message string
	// StatusCode is the HTTP-equivalent status, 0 when unknown
	StatusCode int
	Cause      error
}

func (e *GenerationError) Error() string {
	prefix := "generation failed"
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("generation failed (%d)", e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure is rate limiting or overload (429/503)
func (e *GenerationError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IsTransient reports whether err is a GenerationError worth retrying at the transport level
func IsTransient(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Transient()
}

// QuotaExceededError is returned once the monthly usage limit is reached
type QuotaExceededError struct {
	Period string
	Limit  int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("LIMIT_REACHED: monthly limit of %d generation calls reached for %s", e.Limit, e.Period)
}

// wrapProviderError converts a provider error into a GenerationError with its status code
func wrapProviderError(message string, err error) *GenerationError {
	return &GenerationError{Message: message, StatusCode: statusCode(err), Cause: err}
}

func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted:
			return http.StatusTooManyRequests
		case codes.Unavailable:
			return http.StatusServiceUnavailable
		case codes.DeadlineExceeded:
			return http.StatusGatewayTimeout
		case codes.InvalidArgument:
			return http.StatusBadRequest
		case codes.PermissionDenied:
			return http.StatusForbidden
		case codes.Unauthenticated:
			return http.StatusUnauthorized
		case codes.Internal, codes.Unknown:
			return http.StatusInternalServerError
		}
	}
	return 0
}
