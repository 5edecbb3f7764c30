package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/csfam/pawprint/internal/common/apperrors"
)

// UnknownCode is the errcode used for failures that carry no code of their own.
const UnknownCode = 999

// Error is a failure ready to be written as an envelope.
type Error struct {
	StatusCode  int
	Code        int
	Description string
}

// Send writes the failure envelope. If the writer is nil, no action is taken.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rspJson, err := json.Marshal(FailureEnvelope(e.Code, e.Description))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Unable to parse error"))
		return
	}
	statusCode := e.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(rspJson)
}

// Error returns the error description.
func (e *Error) Error() string {
	return e.Description
}

// FromAppError converts an application error. With strictStatus the error's
// own HTTP status is used (500 when unset); otherwise the envelope goes out
// with 200 and the failure is only visible in the body.
func FromAppError(err apperrors.Error, strictStatus bool) *Error {
	statusCode := http.StatusOK
	if strictStatus {
		statusCode = err.StatusCode()
		if statusCode == 0 {
			statusCode = http.StatusInternalServerError
		}
	}
	code := err.Code()
	if code == 0 && err.StatusCode() == 0 {
		code = UnknownCode
	}
	return &Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: err.Error(),
	}
}

// SendError sends an application error as a failure envelope.
// If the error is nil, no action is taken.
func SendError(w http.ResponseWriter, err apperrors.Error, strictStatus bool) {
	if err == nil {
		return
	}
	FromAppError(err, strictStatus).Send(w)
}

// ErrUnableToParseReqData returns an error when request data cannot be parsed.
func ErrUnableToParseReqData() *Error {
	return &Error{
		Description: "unable to parse request data",
		StatusCode:  http.StatusBadRequest,
		Code:        UnknownCode,
	}
}

// ErrApplicationError returns an error for application-level failures.
// If no message is provided, a default message is used.
func ErrApplicationError(err ...string) *Error {
	s := "unable to process request"
	if len(err) > 0 {
		s = err[0]
	}
	return &Error{
		Description: "unknown error: " + s,
		StatusCode:  http.StatusInternalServerError,
		Code:        UnknownCode,
	}
}

// ErrRequestTimeout returns an error for request timeout.
func ErrRequestTimeout() *Error {
	return &Error{
		Description: "request timed out",
		StatusCode:  http.StatusGatewayTimeout,
		Code:        UnknownCode,
	}
}
