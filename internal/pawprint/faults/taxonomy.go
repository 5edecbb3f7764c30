package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/csfam/pawprint/internal/common/apperrors"
	"github.com/csfam/pawprint/internal/common/jsonrpc"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
)

// Taxonomy builds taxonomy errors with a fixed code table.
type Taxonomy struct {
	codes Codes
}

// New returns a Taxonomy using codes, which must pass Codes.Validate.
func New(codes Codes) (*Taxonomy, error) {
	if err := codes.Validate(); err != nil {
		return nil, err
	}
	return &Taxonomy{codes: codes}, nil
}

// Default returns a Taxonomy with the historical code table.
func Default() *Taxonomy {
	return &Taxonomy{codes: DefaultCodes()}
}

// Codes returns the code table in use.
func (t *Taxonomy) Codes() Codes {
	return t.codes
}

// MissingParameter reports a required request parameter that is absent or empty.
func (t *Taxonomy) MissingParameter(name string) apperrors.Error {
	return ErrMissingParameter.
		New(fmt.Sprintf("request is missing a required parameter '%s'", name)).
		SetCode(t.codes.MissingParameter)
}

// SessionExpired reports a token with no valid session.
func (t *Taxonomy) SessionExpired(token string) apperrors.Error {
	return ErrSessionExpired.
		New(fmt.Sprintf("session has expired for %s", token)).
		SetCode(t.codes.SessionExpired)
}

// ServerUnreachable reports a Trac server that could not be reached.
func (t *Taxonomy) ServerUnreachable(serverURL string, cause error) apperrors.Error {
	return ErrServerUnreachable.
		MsgErr(fmt.Sprintf("the specified Trac server '%s' cannot be found", serverURL), causes(cause)...).
		SetCode(t.codes.ServerUnreachable)
}

// AuthenticationFailed reports credentials the Trac server rejected.
func (t *Taxonomy) AuthenticationFailed(username, serverURL string, cause error) apperrors.Error {
	return ErrAuthenticationFailed.
		MsgErr(fmt.Sprintf("could not authenticate user '%s' for '%s'", username, serverURL), causes(cause)...).
		SetCode(t.codes.AuthenticationFailed)
}

// RPCUnsupported reports a server that does not speak the RPC protocol.
func (t *Taxonomy) RPCUnsupported(serverURL string, cause error) apperrors.Error {
	return ErrRPCUnsupported.
		MsgErr(fmt.Sprintf("the specified Trac server '%s' does not support RPC", serverURL), causes(cause)...).
		SetCode(t.codes.RPCUnsupported)
}

// RPCFault maps a remote fault code onto its kind.
func (t *Taxonomy) RPCFault(faultCode int, faultString string) apperrors.Error {
	kind, code := ErrRPCFault, t.codes.RPCFault
	switch faultCode {
	case jsonrpc.ErrCodeParseError:
		kind, code = ErrMalformedRequest, t.codes.MalformedRequest
	case jsonrpc.ErrCodeUnsupportedEncoding:
		kind, code = ErrUnsupportedEncoding, t.codes.UnsupportedEncoding
	case jsonrpc.ErrCodeInvalidEncodingChar:
		kind, code = ErrInvalidEncodingCharacter, t.codes.InvalidEncodingCharacter
	case jsonrpc.ErrCodeInvalidRequest:
		kind, code = ErrInvalidProtocol, t.codes.InvalidProtocol
	case jsonrpc.ErrCodeMethodNotFound:
		kind, code = ErrMethodNotFound, t.codes.MethodNotFound
	case jsonrpc.ErrCodeInvalidParams:
		kind, code = ErrInvalidMethodParams, t.codes.InvalidMethodParams
	case jsonrpc.ErrCodeInternalError:
		kind, code = ErrInternalServerError, t.codes.InternalServerError
	}
	return kind.New("fault -- " + faultString).SetCode(code)
}

// Unknown wraps an error no other kind describes.
func (t *Taxonomy) Unknown(err error) apperrors.Error {
	return t.unknown("unknown error: ", err, t.codes.Unknown)
}

func (t *Taxonomy) unknown(prefix string, err error, code int) apperrors.Error {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	return ErrUnknown.MsgErr(prefix+msg, causes(err)...).SetCode(code)
}

// Classify converts any failure of a remote call into exactly one taxonomy
// error. It never fails; errors that fit no other kind become Unknown.
func (t *Taxonomy) Classify(err error) apperrors.Error {
	return t.classify(err, func(err error) apperrors.Error {
		return t.Unknown(err)
	})
}

// ClassifyLogin is Classify for the authentication flow, where unclassifiable
// failures get the login-specific unknown code.
func (t *Taxonomy) ClassifyLogin(err error) apperrors.Error {
	return t.classify(err, func(err error) apperrors.Error {
		return t.unknown("unknown error -- authentication failed: ", err, t.codes.LoginUnknown)
	})
}

func (t *Taxonomy) classify(err error, fallback func(error) apperrors.Error) apperrors.Error {
	if m, ok := member(err); ok {
		return m
	}

	var (
		pe *rpcclient.ProtocolError
		f  *rpcclient.Fault
		re *rpcclient.ResponseError
		te *rpcclient.TransportError
	)
	switch {
	case errors.As(err, &pe):
		switch pe.StatusCode {
		case http.StatusNotFound:
			return t.ServerUnreachable(pe.URL, err)
		case http.StatusUnauthorized:
			return t.AuthenticationFailed(pe.Username, pe.URL, err)
		case http.StatusMethodNotAllowed:
			return t.RPCUnsupported(pe.URL, err)
		default:
			return t.unknown("unknown protocol error: ", err, t.codes.Unknown)
		}
	case errors.As(err, &f):
		return t.RPCFault(f.Code, f.Message)
	case errors.As(err, &re):
		return t.RPCUnsupported(re.URL, err)
	case errors.As(err, &te):
		return t.ServerUnreachable(te.URL, err)
	case errors.Is(err, context.DeadlineExceeded):
		return t.ServerUnreachable("", err)
	}
	return fallback(err)
}

func causes(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}
