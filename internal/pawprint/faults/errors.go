// Package faults is the closed set of failures a client can see. Every error
// that crosses the proxy boundary is one of the kinds declared here, carrying
// a stable numeric code and a human-readable message.
package faults

import (
	"errors"
	"net/http"

	"github.com/csfam/pawprint/internal/common/apperrors"
)

// Kinds. Match with errors.Is; the values returned by Taxonomy are derived
// from these and carry the formatted message and the configured code.
var (
	// ErrProxy is the root of the taxonomy.
	ErrProxy apperrors.Error = apperrors.New("proxy error").SetStatusCode(http.StatusInternalServerError)

	ErrMissingParameter     apperrors.Error = ErrProxy.New("missing parameter").SetStatusCode(http.StatusBadRequest)
	ErrSessionExpired       apperrors.Error = ErrProxy.New("session expired").SetStatusCode(http.StatusUnauthorized)
	ErrServerUnreachable    apperrors.Error = ErrProxy.New("server unreachable").SetStatusCode(http.StatusBadGateway)
	ErrAuthenticationFailed apperrors.Error = ErrProxy.New("authentication failed").SetStatusCode(http.StatusUnauthorized)
	ErrRPCUnsupported       apperrors.Error = ErrProxy.New("rpc unsupported").SetStatusCode(http.StatusBadGateway)
	ErrUnknown              apperrors.Error = ErrProxy.New("unknown error").SetStatusCode(http.StatusInternalServerError)

	// ErrRPCFault is the generic remote fault. The specific fault kinds below
	// derive from it, so errors.Is(err, ErrRPCFault) holds for all of them.
	ErrRPCFault                 apperrors.Error = ErrProxy.New("rpc fault").SetStatusCode(http.StatusBadGateway)
	ErrInvalidProtocol          apperrors.Error = ErrRPCFault.New("invalid protocol")
	ErrMethodNotFound           apperrors.Error = ErrRPCFault.New("method not found")
	ErrInvalidMethodParams      apperrors.Error = ErrRPCFault.New("invalid method params")
	ErrInternalServerError      apperrors.Error = ErrRPCFault.New("internal server error")
	ErrMalformedRequest         apperrors.Error = ErrRPCFault.New("malformed request")
	ErrUnsupportedEncoding      apperrors.Error = ErrRPCFault.New("unsupported encoding")
	ErrInvalidEncodingCharacter apperrors.Error = ErrRPCFault.New("invalid encoding character")
)

// IsMember reports whether err is already a taxonomy error.
func IsMember(err error) bool {
	_, ok := member(err)
	return ok
}

func member(err error) (apperrors.Error, bool) {
	ae, ok := apperrors.As(err)
	if !ok {
		return nil, false
	}
	if ae == ErrProxy || !errors.Is(ae, ErrProxy) {
		return nil, false
	}
	return ae, true
}
