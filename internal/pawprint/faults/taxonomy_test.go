package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csfam/pawprint/internal/common/apperrors"
	"github.com/csfam/pawprint/internal/common/jsonrpc"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
)

const server = "http://trac.example.com/proj"

func TestConstructors(t *testing.T) {
	tx := Default()

	err := tx.MissingParameter("token")
	assert.Equal(t, 307, err.Code())
	assert.Equal(t, "request is missing a required parameter 'token'", err.Error())
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode())

	err = tx.SessionExpired("abc")
	assert.Equal(t, 317, err.Code())
	assert.Equal(t, "session has expired for abc", err.Error())
	assert.ErrorIs(t, err, ErrSessionExpired)

	err = tx.ServerUnreachable(server, nil)
	assert.Equal(t, 327, err.Code())
	assert.Equal(t, "the specified Trac server 'http://trac.example.com/proj' cannot be found", err.Error())

	err = tx.AuthenticationFailed("alice", server, nil)
	assert.Equal(t, 337, err.Code())
	assert.Equal(t, "could not authenticate user 'alice' for 'http://trac.example.com/proj'", err.Error())

	err = tx.RPCUnsupported(server, nil)
	assert.Equal(t, 347, err.Code())
	assert.Equal(t, "the specified Trac server 'http://trac.example.com/proj' does not support RPC", err.Error())
}

func TestClassify(t *testing.T) {
	tx := Default()

	tests := []struct {
		name string
		err  error
		kind apperrors.Error
		code int
		msg  string
	}{
		{
			name: "404",
			err:  &rpcclient.ProtocolError{URL: server, Username: "alice", StatusCode: http.StatusNotFound, Status: "404 Not Found"},
			kind: ErrServerUnreachable, code: 327,
			msg: "the specified Trac server 'http://trac.example.com/proj' cannot be found",
		},
		{
			name: "401",
			err:  &rpcclient.ProtocolError{URL: server, Username: "alice", StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"},
			kind: ErrAuthenticationFailed, code: 337,
			msg: "could not authenticate user 'alice' for 'http://trac.example.com/proj'",
		},
		{
			name: "405",
			err:  &rpcclient.ProtocolError{URL: server, StatusCode: http.StatusMethodNotAllowed, Status: "405 Method Not Allowed"},
			kind: ErrRPCUnsupported, code: 347,
			msg: "the specified Trac server 'http://trac.example.com/proj' does not support RPC",
		},
		{
			name: "other status",
			err:  &rpcclient.ProtocolError{URL: server, StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"},
			kind: ErrUnknown, code: 999,
			msg: "unknown protocol error: protocol error from http://trac.example.com/proj: 502 Bad Gateway",
		},
		{
			name: "malformed response",
			err:  &rpcclient.ResponseError{URL: server, Reason: "not an rpc response", Err: jsonrpc.ErrMalformedResponse},
			kind: ErrRPCUnsupported, code: 347,
			msg: "the specified Trac server 'http://trac.example.com/proj' does not support RPC",
		},
		{
			name: "transport",
			err:  &rpcclient.TransportError{URL: server, Err: errors.New("no such host")},
			kind: ErrServerUnreachable, code: 327,
			msg: "the specified Trac server 'http://trac.example.com/proj' cannot be found",
		},
		{
			name: "wrapped transport",
			err:  fmt.Errorf("acquire: %w", &rpcclient.TransportError{URL: server, Err: context.DeadlineExceeded}),
			kind: ErrServerUnreachable, code: 327,
			msg: "the specified Trac server 'http://trac.example.com/proj' cannot be found",
		},
		{
			name: "bare deadline",
			err:  context.DeadlineExceeded,
			kind: ErrServerUnreachable, code: 327,
			msg: "the specified Trac server '' cannot be found",
		},
		{
			name: "plain error",
			err:  errors.New("disk on fire"),
			kind: ErrUnknown, code: 999,
			msg: "unknown error: disk on fire",
		},
		{
			name: "nil",
			err:  nil,
			kind: ErrUnknown, code: 999,
			msg: "unknown error: <nil>",
		},
		{
			name: "already classified",
			err:  Default().SessionExpired("abc"),
			kind: ErrSessionExpired, code: 317,
			msg: "session has expired for abc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tx.Classify(tt.err)
			require.NotNil(t, got)
			assert.ErrorIs(t, got, tt.kind)
			assert.Equal(t, tt.code, got.Code())
			assert.Equal(t, tt.msg, got.Error())
			assert.True(t, IsMember(got))
		})
	}
}

func TestClassifyFaults(t *testing.T) {
	tx := Default()
	tests := []struct {
		faultCode int
		kind      apperrors.Error
		code      int
	}{
		{jsonrpc.ErrCodeParseError, ErrMalformedRequest, 367},
		{jsonrpc.ErrCodeUnsupportedEncoding, ErrUnsupportedEncoding, 368},
		{jsonrpc.ErrCodeInvalidEncodingChar, ErrInvalidEncodingCharacter, 369},
		{jsonrpc.ErrCodeInvalidRequest, ErrInvalidProtocol, 356},
		{jsonrpc.ErrCodeMethodNotFound, ErrMethodNotFound, 357},
		{jsonrpc.ErrCodeInvalidParams, ErrInvalidMethodParams, 358},
		{jsonrpc.ErrCodeInternalError, ErrInternalServerError, 359},
		{1, ErrRPCFault, 998},
		{-32000, ErrRPCFault, 998},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.faultCode), func(t *testing.T) {
			got := tx.Classify(&rpcclient.Fault{Code: tt.faultCode, Message: "boom"})
			assert.ErrorIs(t, got, tt.kind)
			assert.ErrorIs(t, got, ErrRPCFault)
			assert.Equal(t, tt.code, got.Code())
			assert.Equal(t, "fault -- boom", got.Error())
		})
	}
}

func TestClassifyKeepsKindsDistinct(t *testing.T) {
	tx := Default()
	got := tx.Classify(&rpcclient.Fault{Code: jsonrpc.ErrCodeMethodNotFound})
	assert.NotErrorIs(t, got, ErrInvalidMethodParams)
	assert.NotErrorIs(t, got, ErrUnknown)
	assert.NotErrorIs(t, tx.Classify(errors.New("x")), ErrRPCFault)
}

func TestClassifyLogin(t *testing.T) {
	tx := Default()
	got := tx.ClassifyLogin(errors.New("socket closed"))
	assert.ErrorIs(t, got, ErrUnknown)
	assert.Equal(t, 0, got.Code())
	assert.Equal(t, "unknown error -- authentication failed: socket closed", got.Error())

	got = tx.ClassifyLogin(&rpcclient.ProtocolError{URL: server, Username: "alice", StatusCode: http.StatusUnauthorized})
	assert.Equal(t, 337, got.Code())
}

func TestClassifyRetainsCause(t *testing.T) {
	cause := &rpcclient.TransportError{URL: server, Err: errors.New("connection refused")}
	got := Default().Classify(cause)
	assert.ErrorIs(t, got, cause)
	assert.Contains(t, got.ErrorAll(), "connection refused")
}

func TestCodes(t *testing.T) {
	require.NoError(t, DefaultCodes().Validate())

	codes := DefaultCodes()
	codes.SessionExpired = 418
	tx, err := New(codes)
	require.NoError(t, err)
	assert.Equal(t, 418, tx.SessionExpired("t").Code())

	codes.MethodNotFound = codes.MissingParameter
	_, err = New(codes)
	assert.ErrorContains(t, err, "share the value 307")

	codes = DefaultCodes()
	codes.Unknown = -1
	_, err = New(codes)
	assert.Error(t, err)
}

func TestIsMember(t *testing.T) {
	assert.False(t, IsMember(nil))
	assert.False(t, IsMember(errors.New("x")))
	assert.False(t, IsMember(apperrors.New("foreign")))
	assert.False(t, IsMember(ErrProxy))
	assert.True(t, IsMember(fmt.Errorf("wrapped: %w", Default().MissingParameter("url"))))
}
