// Package errors provides the error taxonomy of the prediction pipeline and
// its mapping onto BPMN errors for workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Input errors are user-fixable and never reach the network.
const (
	ErrCodeIncompleteInput ErrorCode = "INCOMPLETE_INPUT"
	ErrCodeInvalidNumber   ErrorCode = "INVALID_NUMBER"
	ErrCodeUnknownCrop     ErrorCode = "UNKNOWN_CROP"
)

// Remote errors come from talking to the inference service.
const (
	ErrCodeNetwork         ErrorCode = "NETWORK_ERROR"
	ErrCodeServer          ErrorCode = "SERVER_ERROR"
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE"
	ErrCodeCancelled       ErrorCode = "CANCELLED"
)

// ErrCodeInternal is used for errors that did not originate in this package.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Status    int                    `json:"status,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches another *StandardError carrying the same code, so sentinel
// values below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrIncompleteInput = &StandardError{Code: ErrCodeIncompleteInput}
	ErrInvalidNumber   = &StandardError{Code: ErrCodeInvalidNumber}
	ErrUnknownCrop     = &StandardError{Code: ErrCodeUnknownCrop}
	ErrNetwork         = &StandardError{Code: ErrCodeNetwork}
	ErrServer          = &StandardError{Code: ErrCodeServer}
	ErrInvalidResponse = &StandardError{Code: ErrCodeInvalidResponse}
	ErrCancelled       = &StandardError{Code: ErrCodeCancelled}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewIncompleteInputError reports empty form fields.
func NewIncompleteInputError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIncompleteInput,
		Message:   "Please fill in all fields",
		Details:   "empty fields: " + strings.Join(fields, ", "),
		Metadata:  map[string]interface{}{"fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidNumberError reports numeric fields that did not parse to a finite value.
func NewInvalidNumberError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidNumber,
		Message:   "Please enter valid numbers in all numeric fields",
		Details:   "invalid numeric fields: " + strings.Join(fields, ", "),
		Metadata:  map[string]interface{}{"fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownCropError reports a crop the inference service does not know.
func NewUnknownCropError(crop string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownCrop,
		Message:   fmt.Sprintf("Unknown crop %q", crop),
		Details:   fmt.Sprintf("crop: %s", crop),
		Timestamp: time.Now().UTC(),
	}
}

// NewNetworkError wraps a transport-level failure. The underlying message is
// what the user sees.
func NewNetworkError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNetwork,
		Message:   err.Error(),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewServerError reports a non-success HTTP status.
func NewServerError(status int, message, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeServer,
		Message:   message,
		Details:   body,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidResponseError reports a success status whose body does not have
// the expected shape.
func NewInvalidResponseError(endpoint, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidResponse,
		Message:   fmt.Sprintf("Invalid response from %s", endpoint),
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewCancelledError marks an operation abandoned by its caller.
func NewCancelledError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCancelled,
		Message:   fmt.Sprintf("%s cancelled", operation),
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeIncompleteInput: "FERTILIZER_INPUT_INCOMPLETE",
	ErrCodeInvalidNumber:   "FERTILIZER_INPUT_INVALID",
	ErrCodeUnknownCrop:     "FERTILIZER_UNKNOWN_CROP",
	ErrCodeNetwork:         "INFERENCE_UNREACHABLE",
	ErrCodeServer:          "INFERENCE_FAILED",
	ErrCodeInvalidResponse: "INFERENCE_INVALID_RESPONSE",
	ErrCodeCancelled:       "INFERENCE_CANCELLED",
}

// GetRetryCount returns how many automatic retries a code gets. The pipeline
// never retries on its own; resubmission is always explicit.
func GetRetryCount(code ErrorCode) int {
	return 0
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stdErr.Status != 0 {
		vars["httpStatus"] = stdErr.Status
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard extracts the StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize always returns a StandardError, wrapping foreign errors as internal.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf returns the code of err, or "" when err is nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsCancelled reports whether err is a benign cancellation.
func IsCancelled(err error) bool {
	return IsCode(err, ErrCodeCancelled)
}

// IsValidation reports whether err blocks submission before any network call.
func IsValidation(err error) bool {
	return GetErrorCategory(CodeOf(err)) == "VALIDATION"
}

// UserMessage is the text shown to a user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandard(err); ok && stdErr.Message != "" {
		return stdErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Prediction failed"
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeIncompleteInput, ErrCodeInvalidNumber, ErrCodeUnknownCrop:
		return "VALIDATION"
	case ErrCodeNetwork:
		return "NETWORK"
	case ErrCodeServer, ErrCodeInvalidResponse:
		return "SERVER"
	case ErrCodeCancelled:
		return "CANCELLED"
	default:
		return "OTHER"
	}
}
