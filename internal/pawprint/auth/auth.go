// Package auth turns a (server URL, username, password) triple into a session
// token, validating new sessions against the Trac server before handing them
// out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/apperrors"
	"github.com/csfam/pawprint/internal/pawprint/clientcache"
	"github.com/csfam/pawprint/internal/pawprint/faults"
	"github.com/csfam/pawprint/internal/pawprint/metrics"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

// DefaultTokenDuration is used when Options.TokenDuration is unset.
const DefaultTokenDuration = 24 * time.Hour

// versionMethod is the cheapest authenticated call the RPC plugin offers.
const versionMethod = "system.getAPIVersion"

type Options struct {
	TokenDuration time.Duration
	// APIVersionConstraint, when set, is checked against the server's
	// [epoch, major, minor] API version, e.g. ">= 1.1".
	APIVersionConstraint string
	Metrics              *metrics.Metrics
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Authenticator runs the login flow and the expired-session sweep.
type Authenticator struct {
	store      sessionstore.Store
	cache      *clientcache.Cache
	taxonomy   *faults.Taxonomy
	duration   time.Duration
	constraint *semver.Constraints
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(store sessionstore.Store, cache *clientcache.Cache, taxonomy *faults.Taxonomy, opts Options) (*Authenticator, error) {
	a := &Authenticator{
		store:    store,
		cache:    cache,
		taxonomy: taxonomy,
		duration: opts.TokenDuration,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if a.duration == 0 {
		a.duration = DefaultTokenDuration
	}
	if a.duration < 0 {
		return nil, ErrInvalidDuration
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.taxonomy == nil {
		a.taxonomy = faults.Default()
	}
	if opts.APIVersionConstraint != "" {
		c, err := semver.NewConstraint(opts.APIVersionConstraint)
		if err != nil {
			return nil, ErrInvalidConstraint.MsgErr(fmt.Sprintf("invalid API version constraint %q", opts.APIVersionConstraint), err)
		}
		a.constraint = c
	}
	return a, nil
}

// Login returns a valid session for the credentials. An existing valid
// session is reused without contacting the server. Otherwise a new session
// is created and validated with one remote call; if that fails the session
// and its client are removed again and the classified error is returned.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (*sessionstore.Session, error) {
	if name := creds.missingParameter(); name != "" {
		return nil, a.taxonomy.MissingParameter(name)
	}
	logger := log.Ctx(ctx).With().Str("server_url", rpcclient.DisplayURL(creds.URL)).Str("username", creds.Username).Logger()
	now := a.now()

	s, err := a.store.FindValid(ctx, creds.URL, creds.Username, creds.Password, now)
	if err == nil {
		logger.Debug().Time("expiry", s.Expiry).Msg("reusing session")
		a.metrics.Login(metrics.LoginReused)
		return s, nil
	}
	if !errors.Is(err, sessionstore.ErrSessionNotFound) {
		return nil, a.fail(ctx, err)
	}

	s, err = a.store.Create(ctx, creds.URL, creds.Username, creds.Password, now, a.duration)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	logger.Debug().Time("expiry", s.Expiry).Msg("stored a new session")

	if err := a.verify(ctx, s); err != nil {
		a.rollback(ctx, s)
		return nil, a.fail(ctx, err)
	}
	a.metrics.Login(metrics.LoginCreated)
	return s, nil
}

func (a *Authenticator) verify(ctx context.Context, s *sessionstore.Session) error {
	client, err := a.cache.Acquire(ctx, s)
	if err != nil {
		return err
	}
	var version []int
	if err := client.Call(ctx, versionMethod, &version); err != nil {
		return err
	}
	if a.constraint == nil {
		return nil
	}
	v, err := apiVersion(version)
	if err != nil {
		return a.taxonomy.RPCUnsupported(client.ServerURL(), err)
	}
	if !a.constraint.Check(v) {
		return a.taxonomy.RPCUnsupported(client.ServerURL(),
			ErrIncompatibleAPI.New(fmt.Sprintf("server API version %s does not satisfy %s", v, a.constraint)))
	}
	return nil
}

// rollback undoes CreateSession. It must complete even if the request has
// been cancelled.
func (a *Authenticator) rollback(ctx context.Context, s *sessionstore.Session) {
	ctx = context.WithoutCancel(ctx)
	a.cache.Release(ctx, s.Token)
	if err := a.store.Delete(ctx, s); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to roll back session")
	}
}

func (a *Authenticator) fail(ctx context.Context, err error) apperrors.Error {
	fault := a.taxonomy.ClassifyLogin(err)
	ev := log.Ctx(ctx).Warn()
	if errors.Is(fault, faults.ErrUnknown) {
		ev = log.Ctx(ctx).Error()
	}
	ev.Err(err).Int("errcode", fault.Code()).Msg("login failed")
	a.metrics.Login(metrics.LoginFailed)
	return fault
}

// apiVersion converts Trac's [epoch, major, minor] triple into a version.
func apiVersion(v []int) (*semver.Version, error) {
	if len(v) < 3 {
		return nil, ErrIncompatibleAPI.New(fmt.Sprintf("unexpected API version %v", v))
	}
	for _, n := range v[:3] {
		if n < 0 {
			return nil, ErrIncompatibleAPI.New(fmt.Sprintf("unexpected API version %v", v))
		}
	}
	return semver.New(uint64(v[0]), uint64(v[1]), uint64(v[2]), "", ""), nil
}

// Sweep removes expired sessions and drops their cached clients. It returns
// the number of sessions removed.
func (a *Authenticator) Sweep(ctx context.Context) (int, error) {
	tokens, err := a.store.PurgeExpired(ctx, a.now())
	if err != nil {
		return 0, err
	}
	dropped := a.cache.Drop(tokens...)
	a.metrics.SessionsPurged(len(tokens))
	if len(tokens) > 0 {
		log.Ctx(ctx).Info().Int("sessions", len(tokens)).Int("clients", dropped).Msg("purged expired sessions")
	}
	return len(tokens), nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (a *Authenticator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Sweep(ctx); err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("session sweep failed")
			}
		}
	}
}
