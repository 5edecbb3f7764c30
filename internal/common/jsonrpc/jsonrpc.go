// Package jsonrpc encodes and decodes the JSON-RPC dialect spoken by the Trac
// XmlRpcPlugin: positional params, an integer or string id, and error objects
// carrying code, message and name. It also covers system.multicall frames.
package jsonrpc

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MethodType represents a remote method name such as "ticket.query".
type MethodType string

// Request is a single call frame.
type Request struct {
	ID     any        `json:"id,omitempty"`
	Method MethodType `json:"method"`
	Params []any      `json:"params"`
}

// Response is a single result frame. Exactly one of Result and Error is
// meaningful; a null result with no error is a valid void response.
type Response struct {
	ID     any                 `json:"id"`
	Result jsoniter.RawMessage `json:"result"`
	Error  *ErrorObject        `json:"error"`
}

// ErrorObject is the fault description returned by the remote server.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
}

func (e *ErrorObject) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Standard fault codes, shared by XML-RPC (xmlrpc-epi numbering) and JSON-RPC.
const (
	ErrCodeParseError          = -32700 // not well formed
	ErrCodeUnsupportedEncoding = -32701
	ErrCodeInvalidEncodingChar = -32702
	ErrCodeInvalidRequest      = -32600 // not a valid request object
	ErrCodeMethodNotFound      = -32601
	ErrCodeInvalidParams       = -32602
	ErrCodeInternalError       = -32603
)

// ErrMalformedResponse is returned when a body cannot be read as a response frame.
var ErrMalformedResponse = errors.New("malformed JSON-RPC response")

// ConstructRequest creates a request frame. Nil params are sent as an empty
// list, which is what the server expects for zero-argument methods.
func ConstructRequest(id any, method MethodType, params ...any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return json.Marshal(Request{
		ID:     id,
		Method: method,
		Params: params,
	})
}

// Call is one entry of a system.multicall batch.
type Call struct {
	Method MethodType `json:"method"`
	Params []any      `json:"params"`
}

// ConstructMulticall wraps calls in a single system.multicall request frame.
func ConstructMulticall(id any, calls []Call) ([]byte, error) {
	batch := make([]any, 0, len(calls))
	for _, c := range calls {
		if c.Params == nil {
			c.Params = []any{}
		}
		batch = append(batch, c)
	}
	return ConstructRequest(id, "system.multicall", batch)
}

// ParseResponse decodes a response frame. Bodies that are not JSON objects or
// carry neither a result nor an error member are rejected with
// ErrMalformedResponse, which is how HTML login pages and proxies' error
// documents show up.
func ParseResponse(data []byte) (*Response, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedResponse
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrMalformedResponse
	}
	if !root.Get("result").Exists() && !root.Get("error").Exists() {
		return nil, ErrMalformedResponse
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &resp, nil
}

// ParseMulticallResponse splits the result of a system.multicall into the
// individual result frames, in call order.
func ParseMulticallResponse(result []byte) ([]*Response, error) {
	if !gjson.ValidBytes(result) {
		return nil, ErrMalformedResponse
	}
	items := gjson.ParseBytes(result)
	if !items.IsArray() {
		return nil, ErrMalformedResponse
	}
	var out []*Response
	for _, item := range items.Array() {
		resp, err := ParseResponse([]byte(item.Raw))
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// DecodeResult unmarshals a raw result into v. A nil v discards the result.
func DecodeResult(raw []byte, v any) error {
	if v == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// ConstructSuccessResponse creates a result frame. Used by fake servers in tests.
func ConstructSuccessResponse(id any, result any) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Response{ID: id, Result: raw})
}

// ConstructErrorResponse creates a fault frame. Used by fake servers in tests.
func ConstructErrorResponse(id any, code int, message, name string) ([]byte, error) {
	return json.Marshal(Response{
		ID: id,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
			Name:    name,
		},
	})
}

// ParseRequest decodes a request frame. Used by fake servers in tests.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.Method == "" {
		return nil, errors.New("invalid JSON-RPC request")
	}
	return &req, nil
}
