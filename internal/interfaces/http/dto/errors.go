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
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the user lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
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
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeInsufficientCredit is used when a patient's credit balance cannot cover a request
	ErrCodeInsufficientCredit = "ERR_INSUFFICIENT_CREDIT"
	// ErrCodeExceedsRefundable is used when a refund exceeds the refundable remainder
	ErrCodeExceedsRefundable = "ERR_EXCEEDS_REFUNDABLE"
	// ErrCodeUnsupportedCurrency is used when a currency has no configured rate
	ErrCodeUnsupportedCurrency = "ERR_UNSUPPORTED_CURRENCY"
)

// Upstream error codes
const (
	// ErrCodeGatewayError is used when the payment gateway rejects or fails a call
	ErrCodeGatewayError = "ERR_GATEWAY_ERROR"
	// ErrCodeCriticalInconsistency is used when a gateway refund succeeded but the
	// local reversal could not be persisted
	ErrCodeCriticalInconsistency = "ERR_CRITICAL_INCONSISTENCY"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeTooManyRequests is an alias for rate limiting
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeInsufficientCredit:  http.StatusUnprocessableEntity,
	ErrCodeExceedsRefundable:   http.StatusUnprocessableEntity,
	ErrCodeUnsupportedCurrency: http.StatusUnprocessableEntity,

	// Upstream errors
	ErrCodeGatewayError:          http.StatusBadGateway,
	ErrCodeCriticalInconsistency: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps old error codes to new standardized codes
// This is for backward compatibility with existing domain errors
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":               ErrCodeNotFound,
	"INVOICE_NOT_FOUND":       ErrCodeNotFound,
	"PAYMENT_NOT_FOUND":       ErrCodeNotFound,
	"ACCOUNT_NOT_FOUND":       ErrCodeNotFound,
	"ALREADY_EXISTS":          ErrCodeAlreadyExists,
	"INVALID_INPUT":           ErrCodeInvalidInput,
	"INVALID_AMOUNT":          ErrCodeInvalidInput,
	"INVALID_ALLOCATIONS":     ErrCodeInvalidInput,
	"INVALID_STRATEGY":        ErrCodeInvalidInput,
	"INVALID_METHOD":          ErrCodeInvalidInput,
	"INVALID_REASON":          ErrCodeInvalidInput,
	"INVALID_PATIENT":         ErrCodeInvalidInput,
	"INVALID_PATIENT_NAME":    ErrCodeInvalidInput,
	"INVALID_INVOICE":         ErrCodeInvalidInput,
	"INVALID_INVOICE_NUMBER":  ErrCodeInvalidInput,
	"INVALID_PAYMENT":         ErrCodeInvalidInput,
	"INVALID_CLINIC":          ErrCodeInvalidInput,
	"INVALID_BATCH_ID":        ErrCodeInvalidInput,
	"INVALID_REQUEST_KEY":     ErrCodeInvalidInput,
	"INVALID_STATE":           ErrCodeInvalidState,
	"HAS_PAYMENTS":            ErrCodeInvalidState,
	"NOT_OVERDUE":             ErrCodeInvalidState,
	"ALLOCATION_EXCEEDS_DUE":  ErrCodeBusinessRule,
	"ALLOCATION_MISMATCH":     ErrCodeBusinessRule,
	"EXCEEDS_OUTSTANDING":     ErrCodeBusinessRule,
	"REFUND_EXCEEDS_ORIGINAL": ErrCodeExceedsRefundable,
	"UNAUTHORIZED":            ErrCodeUnauthorized,
	"FORBIDDEN":               ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":    ErrCodeConcurrencyConflict,
	"VERSION_CONFLICT":        ErrCodeConcurrencyConflict,
	"INSUFFICIENT_CREDIT":     ErrCodeInsufficientCredit,
	"EXCEEDS_REFUNDABLE":      ErrCodeExceedsRefundable,
	"UNSUPPORTED_CURRENCY":    ErrCodeUnsupportedCurrency,
	"RATE_UNAVAILABLE":        ErrCodeUnsupportedCurrency,
	"GATEWAY_ERROR":           ErrCodeGatewayError,
	"DUPLICATE_REQUEST":       ErrCodeConflict,
	"DUPLICATE_BATCH":         ErrCodeConflict,
	"VALIDATION_ERROR":        ErrCodeValidation,
	"BAD_REQUEST":             ErrCodeBadRequest,
	"INTERNAL_ERROR":          ErrCodeInternal,
}

// NormalizeErrorCode converts a legacy error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
