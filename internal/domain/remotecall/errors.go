package remotecall

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the error categories a remote call can end with.
// The code decides how the HTTP layer maps the failure to a status.
type ErrorCode string

const (
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrCodePolicyDenied         ErrorCode = "POLICY_DENIED"
	ErrCodeAdmissionTimeout     ErrorCode = "ADMISSION_TIMEOUT"
	ErrCodeAdmissionUnavailable ErrorCode = "ADMISSION_UNAVAILABLE"
	ErrCodeCredentialTransfer   ErrorCode = "CREDENTIAL_TRANSFER_ERROR"
	ErrCodeUnsupportedOS        ErrorCode = "UNSUPPORTED_OS"
	ErrCodeAmbiguousMode        ErrorCode = "AMBIGUOUS_MODE"
	ErrCodeBackendInvocation    ErrorCode = "BACKEND_INVOCATION_ERROR"
	ErrCodeRemoteExecution      ErrorCode = "REMOTE_EXECUTION_FAILURE"
	ErrCodeCancelled            ErrorCode = "CANCELLED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a typed error enriched with contextual data while
// remaining free from infrastructure dependencies.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As usage.
func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports a match when the target carries the same code. Messages are
// ignored so sentinel values such as ErrAdmissionTimeout match any instance.
func (e *DomainError) Is(target error) bool {
	var domainErr *DomainError
	if !errors.As(target, &domainErr) || domainErr == nil {
		return false
	}
	return e.Code == domainErr.Code
}

// WithContext clones the error with additional contextual metadata.
func (e *DomainError) WithContext(ctx map[string]interface{}) *DomainError {
	if e == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Context: merged,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &DomainError{Code: ErrCodeValidation}
	ErrPolicyDenied         = &DomainError{Code: ErrCodePolicyDenied}
	ErrAdmissionTimeout     = &DomainError{Code: ErrCodeAdmissionTimeout}
	ErrAdmissionUnavailable = &DomainError{Code: ErrCodeAdmissionUnavailable}
	ErrCredentialTransfer   = &DomainError{Code: ErrCodeCredentialTransfer}
	ErrUnsupportedOS        = &DomainError{Code: ErrCodeUnsupportedOS}
	ErrAmbiguousMode        = &DomainError{Code: ErrCodeAmbiguousMode}
	ErrBackendInvocation    = &DomainError{Code: ErrCodeBackendInvocation}
	ErrRemoteExecution      = &DomainError{Code: ErrCodeRemoteExecution}
)

func newDomainError(code ErrorCode, message string, cause error, context map[string]interface{}) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// NewValidationError reports a malformed request field.
func NewValidationError(field, message string) *DomainError {
	ctx := map[string]interface{}{}
	if field != "" {
		ctx["field"] = field
	}
	return newDomainError(ErrCodeValidation, message, nil, ctx)
}

// NewPolicyDeniedError reports a request rejected by the configured policy.
func NewPolicyDeniedError(expression string) *DomainError {
	return newDomainError(ErrCodePolicyDenied, "request denied by policy", nil, map[string]interface{}{
		"expression": expression,
	})
}

// NewAdmissionTimeoutError reports that a guard did not admit the request
// within its wait budget.
func NewAdmissionTimeoutError(guard string) *DomainError {
	return newDomainError(ErrCodeAdmissionTimeout, "server busy", nil, map[string]interface{}{
		"guard": guard,
	})
}

// NewAdmissionUnavailableError reports a failure talking to the counter store.
func NewAdmissionUnavailableError(guard string, cause error) *DomainError {
	return newDomainError(ErrCodeAdmissionUnavailable, "admission store unavailable", cause, map[string]interface{}{
		"guard": guard,
	})
}

// NewCredentialTransferError reports a failed bastion key fetch.
func NewCredentialTransferError(stage string, cause error) *DomainError {
	return newDomainError(ErrCodeCredentialTransfer, "failed to fetch private key from bastion", cause, map[string]interface{}{
		"stage": stage,
	})
}

// NewUnsupportedOSError reports an OS family the resolver has no chain for.
func NewUnsupportedOSError(os string) *DomainError {
	return newDomainError(ErrCodeUnsupportedOS, fmt.Sprintf("unsupported os_type %q", os), nil, map[string]interface{}{
		"os_type": os,
	})
}

// NewAmbiguousModeError reports a request with both or neither of
// command and file_path.
func NewAmbiguousModeError() *DomainError {
	return newDomainError(ErrCodeAmbiguousMode, "exactly one of command or file_path must be set", nil, nil)
}

// NewBackendInvocationError reports a failure starting or talking to the
// automation backend before it produced an event stream.
func NewBackendInvocationError(module string, cause error) *DomainError {
	return newDomainError(ErrCodeBackendInvocation, "backend invocation failed", cause, map[string]interface{}{
		"module": module,
	})
}

// NewRemoteExecutionFailure reports a host that finished a step as failed
// or unreachable.
func NewRemoteExecutionFailure(outcome HostOutcome, task string) *DomainError {
	message := outcome.Msg
	if message == "" {
		message = outcome.Stderr
	}
	if message == "" {
		message = fmt.Sprintf("task %s failed", task)
	}
	return newDomainError(ErrCodeRemoteExecution, message, nil, map[string]interface{}{
		"host": outcome.Host,
		"task": task,
		"rc":   outcome.RC,
	})
}

// NewCancelledError wraps a context cancellation observed during a call.
func NewCancelledError(cause error) *DomainError {
	return newDomainError(ErrCodeCancelled, "request cancelled", cause, nil)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *DomainError {
	return newDomainError(ErrCodeInternal, message, cause, nil)
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeInternal when err
// is not a DomainError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr.Code
	}
	return ErrCodeInternal
}

// AsDomainError converts any error into a DomainError, wrapping unknown
// errors as internal failures.
func AsDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr
	}
	return NewInternalError("unexpected error", err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
