package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeConfiguration  ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnsubscribed  = errors.New("listener unsubscribed")
	ErrDriverClosed  = errors.New("driver closed")
	ErrUnknownDriver = errors.New("unknown driver")
)

// Document database errors
var (
	ErrInvalidPath         = errors.New("invalid document path")
	ErrInvalidDocumentID   = errors.New("invalid document ID")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrMissingDocument     = errors.New("missing document")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrUnsupportedValue    = errors.New("unsupported value")
	ErrFeatureDisabled     = errors.New("feature disabled")
	ErrSchemaViolation     = errors.New("schema violation")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`

	kind error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel this error was tagged with.
func (e *AppError) Is(target error) bool {
	return e.kind != nil && e.kind == target
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithKind tags the error so that errors.Is(err, kind) holds without changing the message.
func (e *AppError) WithKind(kind error) *AppError {
	e.kind = kind
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

func NewInfrastructureError(message string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, message, http.StatusServiceUnavailable)
}

func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized).WithKind(ErrUnauthorized)
}

// NewNotFoundError creates a not found error for the given resource.
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithKind(ErrNotFound)
}

// NewDocumentNotFoundError is returned by writes that require an existing document.
func NewDocumentNotFoundError(path string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("no document to update: %s", path), http.StatusNotFound).
		WithCode("not_found").
		WithKind(ErrDocumentNotFound).
		WithDetail("path", path)
}

// NewMissingDocumentError is the default outcome of a many-document read that hits a missing id.
func NewMissingDocumentError(id string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("Missing document with id %s", id), http.StatusNotFound).
		WithCode("missing_document").
		WithKind(ErrMissingDocument).
		WithDetail("id", id)
}

func NewInvalidPathError(path string, reason string) *AppError {
	return NewValidationError(fmt.Sprintf("invalid path %q: %s", path, reason)).
		WithCode("invalid_path").
		WithKind(ErrInvalidPath)
}

func NewInvalidQueryError(reason string) *AppError {
	return NewValidationError(fmt.Sprintf("invalid query: %s", reason)).
		WithCode("invalid_query").
		WithKind(ErrInvalidQuery)
}

func NewUnsupportedValueError(path string, value interface{}) *AppError {
	return NewValidationError(fmt.Sprintf("unsupported value of type %T at %q", value, path)).
		WithCode("unsupported_value").
		WithKind(ErrUnsupportedValue)
}

// NewFeatureDisabledError is returned when the database is used while its feature flag is off.
func NewFeatureDisabledError(feature string) *AppError {
	return NewAppError(ErrorTypeConfiguration,
		fmt.Sprintf("You need to enable the %s feature before calling use%s", feature, capitalize(feature)),
		http.StatusInternalServerError).
		WithCode("feature_disabled").
		WithKind(ErrFeatureDisabled)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict).WithKind(ErrTransactionConflict)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ValidationError represents one failed rule or field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		if e.Field != "" {
			msgs = append(msgs, e.Field+": "+e.Message)
			continue
		}
		msgs = append(msgs, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

func (ve *ValidationErrors) Is(target error) bool {
	return target == ErrSchemaViolation
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]ValidationError, 0)}
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message, Value: value})
	return ve
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError converts validation errors to an AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}
	appErr := NewValidationError(ve.Error()).WithCode("schema_violation").WithKind(ErrSchemaViolation)
	appErr.Details["validation_errors"] = ve.Errors
	return appErr
}

// WrapError wraps err with an infrastructure AppError unless it already is one.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return NewInfrastructureError(message).WithCause(err)
}

// HTTPStatus maps an error to the status the gateway answers with.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func typeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return typeOf(err) == ErrorTypeNotFound ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrMissingDocument)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var ve *ValidationErrors
	return typeOf(err) == ErrorTypeValidation || errors.As(err, &ve)
}

func IsAuthentication(err error) bool {
	return typeOf(err) == ErrorTypeAuthentication || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidToken)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return typeOf(err) == ErrorTypeConflict || errors.Is(err, ErrTransactionConflict)
}
