package models

import "fmt"

// Error codes used in API responses and internal error handling.
// The fetch lifecycle codes map 1:1 onto the points where a fetch can die:
// launching Chrome, authenticating the proxy, navigating, waiting for the
// root element, clearing a captcha, and serializing the document.
const (
	ErrCodeLaunch       = "LAUNCH_FAILED"
	ErrCodeProxyAuth    = "PROXY_AUTH_FAILED"
	ErrCodeNavTimeout   = "NAVIGATION_TIMEOUT"
	ErrCodeNavFailed    = "NAVIGATION_FAILED"
	ErrCodeReadiness    = "READINESS_TIMEOUT"
	ErrCodeCaptcha      = "CAPTCHA_FAILED"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FetchError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
//
// Callers that only care about success/failure can treat any non-nil error
// as the single failure outcome; callers that want a retry policy can switch
// on Code without parsing log text.
type FetchError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(code, message string, err error) *FetchError {
	return &FetchError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *FetchError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
