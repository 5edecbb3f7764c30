// Package rpctest provides an in-process Trac JSON-RPC server for tests.
package rpctest

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/csfam/pawprint/internal/common/jsonrpc"
)

// Handler serves one remote method. Returning a *jsonrpc.ErrorObject produces
// a fault with that code; any other error produces an internal-error fault.
type Handler func(params []any) (any, error)

// Server is a fake Trac server. It answers on any path ending in /login/rpc
// and requires the configured Basic credentials.
type Server struct {
	*httptest.Server

	username string
	password string

	mu       sync.Mutex
	methods  map[string]Handler
	calls    []string
	status   int
	rawBody  string
	requests int
}

// NewServer starts a server accepting username/password. It answers
// system.getAPIVersion with [1, 1, 8] until told otherwise.
func NewServer(username, password string) *Server {
	s := &Server{
		username: username,
		password: password,
		methods:  make(map[string]Handler),
	}
	s.Handle("system.getAPIVersion", func([]any) (any, error) {
		return []int{1, 1, 8}, nil
	})
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle registers or replaces the handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
}

// Result registers a handler that always returns v.
func (s *Server) Result(method string, v any) {
	s.Handle(method, func([]any) (any, error) { return v, nil })
}

// Fault registers a handler that always faults with code.
func (s *Server) Fault(method string, code int, msg string) {
	s.Handle(method, func([]any) (any, error) {
		return nil, &jsonrpc.ErrorObject{Code: code, Message: msg, Name: "JSONRPCError"}
	})
}

// FailWith makes every request answer with the given HTTP status.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// RespondWith makes every request answer 200 with the given raw body.
func (s *Server) RespondWith(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBody = body
}

// Calls returns the methods invoked so far, multicall entries included.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many times method was invoked.
func (s *Server) CallCount(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// Requests returns the number of HTTP requests received.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	status, rawBody := s.status, s.rawBody
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !strings.HasSuffix(r.URL.Path, "/login/rpc") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if u, p, ok := r.BasicAuth(); !ok || u != s.username || p != s.password {
		w.Header().Set("WWW-Authenticate", `Basic realm="trac"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if rawBody != "" {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, rawBody)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := jsonrpc.ParseRequest(data)
	if err != nil {
		s.write(w, mustFault(nil, jsonrpc.ErrCodeParseError, err.Error()))
		return
	}
	if req.Method == "system.multicall" {
		s.write(w, s.multicall(req))
		return
	}
	s.write(w, s.invoke(req.ID, string(req.Method), req.Params))
}

func (s *Server) multicall(req *jsonrpc.Request) []byte {
	var batch []jsonrpc.Call
	if len(req.Params) == 1 {
		raw, _ := jsoniter.Marshal(req.Params[0])
		if err := jsoniter.Unmarshal(raw, &batch); err != nil {
			return mustFault(req.ID, jsonrpc.ErrCodeInvalidParams, err.Error())
		}
	}
	frames := make([]jsoniter.RawMessage, 0, len(batch))
	for _, c := range batch {
		frames = append(frames, s.invoke(nil, string(c.Method), c.Params))
	}
	b, _ := jsonrpc.ConstructSuccessResponse(req.ID, frames)
	return b
}

func (s *Server) invoke(id any, method string, params []any) []byte {
	s.mu.Lock()
	s.calls = append(s.calls, method)
	h, ok := s.methods[method]
	s.mu.Unlock()

	if !ok {
		return mustFault(id, jsonrpc.ErrCodeMethodNotFound, "RPC method \""+method+"\" not found")
	}
	result, err := h(params)
	if err != nil {
		var fault *jsonrpc.ErrorObject
		if errors.As(err, &fault) {
			b, _ := jsonrpc.ConstructErrorResponse(id, fault.Code, fault.Message, fault.Name)
			return b
		}
		return mustFault(id, jsonrpc.ErrCodeInternalError, err.Error())
	}
	b, err := jsonrpc.ConstructSuccessResponse(id, result)
	if err != nil {
		return mustFault(id, jsonrpc.ErrCodeInternalError, err.Error())
	}
	return b
}

func (s *Server) write(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func mustFault(id any, code int, msg string) []byte {
	b, _ := jsonrpc.ConstructErrorResponse(id, code, msg, "JSONRPCError")
	return b
}
