// Package rpcclient is the live handle to a remote Trac server's JSON-RPC
// endpoint. A client is bound to one (server, username, password) triple and
// is safe for concurrent use.
package rpcclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/csfam/pawprint/internal/common/jsonrpc"
)

// DefaultTimeout bounds a remote call when Options.Timeout is unset.
const DefaultTimeout = 20 * time.Second

// maxResponseSize caps the bytes read from a response body.
const maxResponseSize = 32 << 20

// Client is the remote procedure surface used by the proxy.
type Client interface {
	// Call invokes method with positional params and decodes the result into
	// result, which may be nil.
	Call(ctx context.Context, method string, result any, params ...any) error
	// MultiCall sends calls as one system.multicall batch. Per-call faults are
	// reported in the results; the error covers the batch as a whole.
	MultiCall(ctx context.Context, calls []jsonrpc.Call) ([]Result, error)
	// ServerURL is the server the client talks to, without credentials.
	ServerURL() string
}

// Result is one entry of a multicall batch.
type Result struct {
	Raw   []byte
	Fault *Fault
}

// Decode unmarshals the entry into v, or returns its fault.
func (r Result) Decode(v any) error {
	if r.Fault != nil {
		return r.Fault
	}
	return jsonrpc.DecodeResult(r.Raw, v)
}

// Observer is notified after every remote call.
type Observer func(method string, elapsed time.Duration, err error)

// Options configures an HTTPClient.
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	Observer           Observer
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// HTTPClient speaks JSON-RPC over HTTP POST with Basic credentials.
type HTTPClient struct {
	endpoint   *url.URL
	serverURL  string
	username   string
	httpClient *http.Client
	timeout    time.Duration
	observer   Observer
	nextID     atomic.Uint64
}

var _ Client = (*HTTPClient)(nil)

// New builds a client for the server at serverURL. Only the endpoint is
// prepared here; no request is sent. An unusable URL is reported as a
// *TransportError.
func New(serverURL, username, password string, opts Options) (*HTTPClient, error) {
	display := DisplayURL(serverURL)
	endpoint, err := BuildEndpoint(serverURL, username, password)
	if err != nil {
		return nil, &TransportError{URL: display, Username: username, Err: err}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := opts.Transport
	if transport == nil && opts.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &HTTPClient{
		endpoint:  endpoint,
		serverURL: display,
		username:  username,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		timeout:  opts.Timeout,
		observer: opts.Observer,
	}, nil
}

func (c *HTTPClient) ServerURL() string {
	return c.serverURL
}

func (c *HTTPClient) Call(ctx context.Context, method string, result any, params ...any) (err error) {
	defer c.observe(method, time.Now(), &err)

	body, err := jsonrpc.ConstructRequest(c.nextID.Add(1), jsonrpc.MethodType(method), params...)
	if err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx, body)
	if err != nil {
		return err
	}
	if err := jsonrpc.DecodeResult(resp.Result, result); err != nil {
		return &ResponseError{URL: c.serverURL, Reason: "unexpected result for " + method, Err: err}
	}
	return nil
}

func (c *HTTPClient) MultiCall(ctx context.Context, calls []jsonrpc.Call) (results []Result, err error) {
	if len(calls) == 0 {
		return nil, nil
	}
	defer c.observe("system.multicall", time.Now(), &err)

	body, err := jsonrpc.ConstructMulticall(c.nextID.Add(1), calls)
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, body)
	if err != nil {
		return nil, err
	}
	frames, err := jsonrpc.ParseMulticallResponse(resp.Result)
	if err != nil {
		return nil, &ResponseError{URL: c.serverURL, Reason: "unexpected multicall result", Err: err}
	}
	if len(frames) != len(calls) {
		return nil, &ResponseError{URL: c.serverURL, Reason: "multicall result count does not match the batch"}
	}
	results = make([]Result, len(frames))
	for i, f := range frames {
		if f.Error != nil {
			results[i].Fault = &Fault{Code: f.Error.Code, Message: f.Error.Message, Name: f.Error.Name}
			continue
		}
		results[i].Raw = f.Result
	}
	return results, nil
}

// roundTrip posts one request frame and returns the decoded response frame,
// mapping every failure onto one of the raw error types.
func (c *HTTPClient) roundTrip(ctx context.Context, body []byte) (*jsonrpc.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{URL: c.serverURL, Username: c.username, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if pw, ok := c.endpoint.User.Password(); ok {
		req.SetBasicAuth(c.endpoint.User.Username(), pw)
	}

	rsp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: c.serverURL, Username: c.username, Err: unwrapURLError(err)}
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(rsp.Body, maxResponseSize))
		return nil, &ProtocolError{
			URL:        c.serverURL,
			Username:   c.username,
			StatusCode: rsp.StatusCode,
			Status:     rsp.Status,
		}
	}

	data, err := io.ReadAll(io.LimitReader(rsp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{URL: c.serverURL, Username: c.username, Err: err}
	}
	resp, err := jsonrpc.ParseResponse(data)
	if err != nil {
		return nil, &ResponseError{URL: c.serverURL, Reason: "not an rpc response", Err: err}
	}
	if resp.Error != nil {
		return nil, &Fault{Code: resp.Error.Code, Message: resp.Error.Message, Name: resp.Error.Name}
	}
	return resp, nil
}

func (c *HTTPClient) observe(method string, start time.Time, err *error) {
	if c.observer != nil {
		c.observer(method, time.Since(start), *err)
	}
}

// unwrapURLError drops the *url.Error layer added by http.Client, whose text
// repeats the request URL.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
