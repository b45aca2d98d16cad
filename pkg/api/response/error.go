package response

import (
	"errors"
	"net/http"
)

// ErrorResponse is the envelope wrapping every non-2xx body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code, the human-readable
// message, and the request id for log correlation.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Error codes carried in the envelope.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInfeasible         = "INFEASIBLE"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Sentinel errors handlers can wrap (or return as-is) to pick the
// response status.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrConflict           = errors.New("resource conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("request timeout")
	ErrInternalServer     = errors.New("internal server error")
)

var statusForSentinel = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrValidationFailed, http.StatusBadRequest},
	{ErrConflict, http.StatusConflict},
	{ErrServiceUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusGatewayTimeout},
}

var codeForStatus = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusMethodNotAllowed:    ErrCodeMethodNotAllowed,
	http.StatusConflict:            ErrCodeConflict,
	http.StatusUnprocessableEntity: ErrCodeInfeasible,
	http.StatusServiceUnavailable:  ErrCodeServiceUnavailable,
	http.StatusGatewayTimeout:      ErrCodeGatewayTimeout,
}

// HTTPStatusFromError maps a sentinel (possibly wrapped) to a status;
// anything unrecognized is a 500.
func HTTPStatusFromError(err error) int {
	for _, m := range statusForSentinel {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorCodeFromStatus returns the envelope code for a status.
func ErrorCodeFromStatus(status int) string {
	if code, ok := codeForStatus[status]; ok {
		return code
	}
	return ErrCodeInternalServer
}

// HandleError maps err to a status and code and writes the envelope.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	Error(w, status, ErrorCodeFromStatus(status), err.Error(), requestID)
}
