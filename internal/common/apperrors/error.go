// Package apperrors provides chainable application errors. Each error carries a
// message, an HTTP status code and a numeric client-facing code, and errors
// derived from one another stay comparable through errors.Is.
package apperrors

// Error defines the interface for application errors. All methods that return
// Error produce a new value and leave the receiver untouched, so package-level
// sentinels can be used as templates.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // creates a new error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetStatusCode(int) Error               // sets HTTP status code for the error
	StatusCode() int                       // returns the current status code
	SetCode(int) Error                     // sets the client-facing error code
	Code() int                             // returns the client-facing error code
	ErrorAll() string                      // returns full message including wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
