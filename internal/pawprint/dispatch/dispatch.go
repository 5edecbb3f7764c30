// Package dispatch is the contract every proxied endpoint goes through:
// resolve the request token to a session, obtain the session's remote
// client, run the operation and turn any failure into exactly one taxonomy
// error written as a failure envelope.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/apperrors"
	"github.com/csfam/pawprint/internal/common/httpx"
	"github.com/csfam/pawprint/internal/pawprint/auth"
	"github.com/csfam/pawprint/internal/pawprint/clientcache"
	"github.com/csfam/pawprint/internal/pawprint/faults"
	"github.com/csfam/pawprint/internal/pawprint/metrics"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

// TokenParam is the request parameter carrying the session token.
const TokenParam = "token"

// ErrOperationPanic wraps a panic raised inside an operation.
var ErrOperationPanic = apperrors.New("operation panicked")

// Request is what an operation sees of the incoming request.
type Request struct {
	Params  httpx.Values
	Session *sessionstore.Session
}

// Operation performs the remote work of an endpoint. The returned value
// becomes the data member of the success envelope.
type Operation func(ctx context.Context, req Request, client rpcclient.Client) (any, error)

// Cleanup is called after a failed request with the raw failure. The
// session is nil if the failure happened before it was resolved.
type Cleanup func(ctx context.Context, err error, s *sessionstore.Session)

// Endpoint is a named protected operation.
type Endpoint struct {
	Name      string
	Operation Operation
	Cleanup   Cleanup
}

// Authenticator is the login flow.
type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) (*sessionstore.Session, error)
}

type Options struct {
	// StrictHTTPStatus sends failures with the HTTP status of their kind
	// instead of 200.
	StrictHTTPStatus bool
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

type Dispatcher struct {
	store    sessionstore.Store
	cache    *clientcache.Cache
	taxonomy *faults.Taxonomy
	strict   bool
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(store sessionstore.Store, cache *clientcache.Cache, taxonomy *faults.Taxonomy, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		cache:    cache,
		taxonomy: taxonomy,
		strict:   opts.StrictHTTPStatus,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if d.taxonomy == nil {
		d.taxonomy = faults.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Protected wraps ep in the token contract. A missing token fails before
// any lookup, an unknown or expired token fails with SessionExpired. Failed
// protected requests never remove the session.
func (d *Dispatcher) Protected(ep Endpoint) httpx.RequestHandler {
	return func(r *http.Request) (*httpx.Response, error) {
		ctx := r.Context()
		params, err := httpx.GetRequestParams(r)
		if err != nil {
			return nil, d.fail(ctx, ep, err, nil)
		}
		data, s, err := d.run(ctx, ep, params)
		if err != nil {
			return nil, d.fail(ctx, ep, err, s)
		}
		return &httpx.Response{
			StatusCode: http.StatusOK,
			Body:       httpx.DataEnvelope(data),
		}, nil
	}
}

func (d *Dispatcher) run(ctx context.Context, ep Endpoint, params httpx.Values) (data any, s *sessionstore.Session, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Ctx(ctx).Error().
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack_trace", string(debug.Stack())).
				Msg("operation panicked")
			data, err = nil, ErrOperationPanic.New(fmt.Sprintf("operation panicked: %v", rec))
		}
	}()

	token := params.Get(TokenParam)
	if token == "" {
		return nil, nil, d.taxonomy.MissingParameter(TokenParam)
	}
	s, err = d.store.FindByToken(ctx, token, d.now())
	if errors.Is(err, sessionstore.ErrSessionNotFound) {
		return nil, nil, d.taxonomy.SessionExpired(token)
	}
	if err != nil {
		return nil, nil, err
	}
	client, err := d.cache.Acquire(ctx, s)
	if err != nil {
		return nil, s, err
	}
	data, err = ep.Operation(ctx, Request{Params: params, Session: s}, client)
	return data, s, err
}

func (d *Dispatcher) fail(ctx context.Context, ep Endpoint, err error, s *sessionstore.Session) error {
	fault := d.taxonomy.Classify(err)
	logger := log.Ctx(ctx).With().Str("endpoint", ep.Name).Logger()
	ev := logger.Warn()
	if errors.Is(fault, faults.ErrUnknown) {
		ev = logger.Error()
	}
	ev.Str("cause", errorAll(err)).Int("errcode", fault.Code()).Msg("error handling request")

	if ep.Cleanup != nil {
		ep.Cleanup(context.WithoutCancel(ctx), err, s)
	}
	return d.send(fault)
}

// Login serves the login endpoint: it reads url, username and password and
// answers with the session token.
func (d *Dispatcher) Login(a Authenticator) httpx.RequestHandler {
	return func(r *http.Request) (*httpx.Response, error) {
		ctx := r.Context()
		params, err := httpx.GetRequestParams(r)
		if err != nil {
			return nil, d.send(d.taxonomy.ClassifyLogin(err))
		}
		s, err := a.Login(ctx, auth.Credentials{
			URL:      params.Get("url"),
			Username: params.Get("username"),
			Password: params.Get("password"),
		})
		if err != nil {
			return nil, d.send(d.taxonomy.ClassifyLogin(err))
		}
		return &httpx.Response{
			StatusCode: http.StatusOK,
			Body:       httpx.TokenEnvelope(s.Token),
		}, nil
	}
}

func (d *Dispatcher) send(fault apperrors.Error) error {
	d.metrics.Failure(fault.Code())
	return httpx.FromAppError(fault, d.strict)
}

func errorAll(err error) string {
	if ae, ok := apperrors.As(err); ok {
		return ae.ErrorAll()
	}
	return err.Error()
}
