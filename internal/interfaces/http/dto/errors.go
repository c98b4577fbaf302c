package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeNotImplemented is used for operations an ERP handler does not support
	ErrCodeNotImplemented = "ERR_NOT_IMPLEMENTED"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeRecordRejected is used when a pulled record fails connector validation
	ErrCodeRecordRejected = "ERR_VALIDATION_RECORD"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when the tenant header is missing or invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeAlreadyClaimed is used when another worker owns the sync record
	ErrCodeAlreadyClaimed = "ERR_ALREADY_CLAIMED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInvalidTransition is used for a disallowed status change
	ErrCodeInvalidTransition = "ERR_INVALID_TRANSITION"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Integration error codes
const (
	// ErrCodeConfiguration is used when an integration is misconfigured
	ErrCodeConfiguration = "ERR_INTEGRATION_CONFIG"
	// ErrCodeConnectorInactive is used when the connector is switched off
	ErrCodeConnectorInactive = "ERR_INTEGRATION_CONNECTOR_INACTIVE"
	// ErrCodeDirectionMismatch is used when the connector does not sync in that direction
	ErrCodeDirectionMismatch = "ERR_INTEGRATION_DIRECTION"
	// ErrCodeNoResources is used when the connector has nothing to pull or push
	ErrCodeNoResources = "ERR_INTEGRATION_NO_RESOURCES"
	// ErrCodeUnsupportedKind is used when no importer or exporter handles a kind
	ErrCodeUnsupportedKind = "ERR_INTEGRATION_UNSUPPORTED_KIND"
	// ErrCodeNoHandler is used when no ERP handler is registered
	ErrCodeNoHandler = "ERR_INTEGRATION_NO_HANDLER"
	// ErrCodeUpstream is used when the external system answered with an error
	ErrCodeUpstream = "ERR_INTEGRATION_UPSTREAM"
	// ErrCodeUpstreamUnavailable is used when the external system did not answer
	ErrCodeUpstreamUnavailable = "ERR_INTEGRATION_UNAVAILABLE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	// ErrCodeTimeout is used when a long-running operation outlives its deadline
	ErrCodeTimeout = "ERR_TIMEOUT"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:        http.StatusInternalServerError,
	ErrCodeInternal:       http.StatusInternalServerError,
	ErrCodeNotImplemented: http.StatusNotImplemented,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:     http.StatusBadRequest,
	ErrCodeRecordRejected: http.StatusUnprocessableEntity,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeAlreadyClaimed:      http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeInvalidTransition: http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:      http.StatusUnprocessableEntity,

	// Integration errors
	ErrCodeConfiguration:       http.StatusUnprocessableEntity,
	ErrCodeConnectorInactive:   http.StatusUnprocessableEntity,
	ErrCodeDirectionMismatch:   http.StatusUnprocessableEntity,
	ErrCodeNoResources:         http.StatusUnprocessableEntity,
	ErrCodeUnsupportedKind:     http.StatusUnprocessableEntity,
	ErrCodeNoHandler:           http.StatusUnprocessableEntity,
	ErrCodeUpstream:            http.StatusBadGateway,
	ErrCodeUpstreamUnavailable: http.StatusBadGateway,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeTimeout:         http.StatusGatewayTimeout,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"RESOURCE_NOT_FOUND":   ErrCodeNotFound,
	"STAGING_NOT_FOUND":    ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"ALREADY_CLAIMED":      ErrCodeAlreadyClaimed,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"INVALID_TRANSITION":   ErrCodeInvalidTransition,
	"VALIDATION_FAILED":    ErrCodeRecordRejected,
	"CONFIGURATION_ERROR":  ErrCodeConfiguration,
	"CONNECTOR_INACTIVE":   ErrCodeConnectorInactive,
	"DIRECTION_MISMATCH":   ErrCodeDirectionMismatch,
	"NO_RESOURCES":         ErrCodeNoResources,
	"UNSUPPORTED_KIND":     ErrCodeUnsupportedKind,
	"NO_HANDLER":           ErrCodeNoHandler,
	"NOT_IMPLEMENTED":      ErrCodeNotImplemented,
	"UPSTREAM_ERROR":       ErrCodeUpstream,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
