package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
)

// Operation identifies the logical operation producing a contextual error.
type Operation string

const (
	// OperationConfigurationValidate denotes pre-flight configuration validation.
	OperationConfigurationValidate Operation = "configuration.validate"
	// OperationCredentialAcquire denotes credential acquisition and login exchange.
	OperationCredentialAcquire Operation = "credentials.acquire"
	// OperationDAGList denotes active DAG enumeration.
	OperationDAGList Operation = "dags.list"
	// OperationDAGRunList denotes run history retrieval for a DAG.
	OperationDAGRunList Operation = "dag_runs.list"
	// OperationConsolidate denotes consolidation of per-DAG tallies.
	OperationConsolidate Operation = "audit.consolidate"
)

const (
	requestErrorTemplateConstant           = "%s: %s"
	requestErrorStatusTemplateConstant     = "%s: unexpected status code %d for %s"
	requestErrorStatusBodyTemplateConstant = "%s: unexpected status code %d for %s: %s"
	requestErrorCauseTemplateConstant      = "%s: %s: %v"
	missingParametersTemplateConstant      = "missing required parameters: %s"
	missingParametersSeparatorConstant     = ", "
)

// Sentinel describes a stable error code shared across the audit pipeline.
type Sentinel string

// Error returns the sentinel code string.
func (sentinel Sentinel) Error() string {
	return string(sentinel)
}

// Code exposes the sentinel code string.
func (sentinel Sentinel) Code() string {
	return string(sentinel)
}

var (
	// ErrConfiguration indicates missing or sentinel required configuration parameters.
	ErrConfiguration Sentinel = "configuration_invalid"
	// ErrAuthentication indicates credential acquisition or the login exchange was rejected.
	ErrAuthentication Sentinel = "authentication_failed"
	// ErrRequest indicates a non-success HTTP or transport outcome on a data call.
	ErrRequest Sentinel = "request_failed"
	// ErrDivisionUndefined indicates consolidation over zero total runs.
	ErrDivisionUndefined Sentinel = "division_undefined"
	// ErrResponseDecode indicates the upstream API returned a payload that could not be decoded.
	ErrResponseDecode Sentinel = "response_decode_failed"
)

// OperationError annotates an error with operation metadata.
type OperationError struct {
	operation Operation
	subject   string
	err       error
	message   string
}

// Error implements the error interface.
func (operationError OperationError) Error() string {
	if len(operationError.message) > 0 {
		if len(operationError.subject) == 0 {
			return fmt.Sprintf("%s: %s", operationError.operation, operationError.message)
		}
		return fmt.Sprintf("%s[%s]: %s", operationError.operation, operationError.subject, operationError.message)
	}
	if len(operationError.subject) == 0 {
		return fmt.Sprintf("%s: %v", operationError.operation, operationError.err)
	}
	return fmt.Sprintf("%s[%s]: %v", operationError.operation, operationError.subject, operationError.err)
}

// Unwrap exposes the underlying error chain.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the originating operation identifier.
func (operationError OperationError) Operation() Operation {
	return operationError.operation
}

// Subject returns the domain subject (typically a DAG id or URL) related to the error.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code surfaces the sentinel code of the wrapped error when present.
func (operationError OperationError) Code() string {
	if coder, found := findSentinel(operationError.err); found {
		return coder.Code()
	}
	return ""
}

// Message exposes the formatted message when provided via WrapMessage.
func (operationError OperationError) Message() string {
	return operationError.message
}

// Wrap constructs an OperationError combining the provided metadata with the base sentinel.
func Wrap(operation Operation, subject string, sentinel Sentinel, detail error) error {
	if len(sentinel) == 0 {
		return OperationError{operation: operation, subject: subject, err: detail}
	}
	baseError := error(sentinel)
	if detail != nil {
		baseError = fmt.Errorf("%w: %w", sentinel, detail)
	}
	return OperationError{operation: operation, subject: subject, err: baseError}
}

// WrapMessage constructs an OperationError combining the provided metadata with a formatted message.
func WrapMessage(operation Operation, subject string, sentinel Sentinel, message string) error {
	if len(message) == 0 {
		return Wrap(operation, subject, sentinel, nil)
	}
	return OperationError{operation: operation, subject: subject, err: fmt.Errorf("%w: %s", sentinel, message), message: message}
}

// MissingParameters builds a configuration error enumerating every absent parameter at once.
func MissingParameters(subject string, parameterNames []string) error {
	message := fmt.Sprintf(missingParametersTemplateConstant, strings.Join(parameterNames, missingParametersSeparatorConstant))
	return WrapMessage(OperationConfigurationValidate, subject, ErrConfiguration, message)
}

// RequestError describes a failed HTTP call against the orchestration API.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

// Error implements the error interface.
func (requestError *RequestError) Error() string {
	switch {
	case requestError.StatusCode > 0 && len(requestError.Body) > 0:
		return fmt.Sprintf(requestErrorStatusBodyTemplateConstant, ErrRequest, requestError.StatusCode, requestError.target(), requestError.Body)
	case requestError.StatusCode > 0:
		return fmt.Sprintf(requestErrorStatusTemplateConstant, ErrRequest, requestError.StatusCode, requestError.target())
	case requestError.Cause != nil:
		return fmt.Sprintf(requestErrorCauseTemplateConstant, ErrRequest, requestError.target(), requestError.Cause)
	default:
		return fmt.Sprintf(requestErrorTemplateConstant, ErrRequest, requestError.target())
	}
}

// Unwrap exposes the transport cause.
func (requestError *RequestError) Unwrap() error {
	return requestError.Cause
}

// Is reports RequestError values as matching the ErrRequest sentinel.
func (requestError *RequestError) Is(target error) bool {
	sentinel, ok := target.(Sentinel)
	return ok && sentinel == ErrRequest
}

// Code returns the request sentinel code.
func (requestError *RequestError) Code() string {
	return ErrRequest.Code()
}

func (requestError *RequestError) target() string {
	if len(requestError.Method) == 0 {
		return requestError.URL
	}
	return requestError.Method + " " + requestError.URL
}

// CodeOf extracts the sentinel code carried anywhere in the error chain.
func CodeOf(err error) string {
	if sentinel, found := findSentinel(err); found {
		return sentinel.Code()
	}
	var requestError *RequestError
	if stdErrors.As(err, &requestError) {
		return requestError.Code()
	}
	return ""
}

func findSentinel(err error) (Sentinel, bool) {
	if err == nil {
		return "", false
	}
	var sentinel Sentinel
	if stdErrors.As(err, &sentinel) {
		return sentinel, true
	}
	return "", false
}
