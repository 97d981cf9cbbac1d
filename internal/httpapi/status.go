package httpapi

import (
	"net/http"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

var statusByCode = map[remotecall.ErrorCode]int{
	remotecall.ErrCodeValidation:           http.StatusBadRequest,
	remotecall.ErrCodeAmbiguousMode:        http.StatusBadRequest,
	remotecall.ErrCodeUnsupportedOS:        http.StatusBadRequest,
	remotecall.ErrCodePolicyDenied:         http.StatusForbidden,
	remotecall.ErrCodeAdmissionTimeout:     http.StatusServiceUnavailable,
	remotecall.ErrCodeAdmissionUnavailable: http.StatusInternalServerError,
	remotecall.ErrCodeCredentialTransfer:   http.StatusBadGateway,
	remotecall.ErrCodeBackendInvocation:    http.StatusBadGateway,
	remotecall.ErrCodeCancelled:            http.StatusGatewayTimeout,
	remotecall.ErrCodeInternal:             http.StatusInternalServerError,
	// The chain ran; the envelope carries the host failure.
	remotecall.ErrCodeRemoteExecution: http.StatusOK,
}

// statusFor maps an envelope onto an HTTP status code.
func statusFor(env remotecall.Envelope) int {
	if env.Error == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[env.Error.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
