package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/pawprint/auth"
	"github.com/csfam/pawprint/internal/pawprint/clientcache"
	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/dispatch"
	"github.com/csfam/pawprint/internal/pawprint/faults"
	"github.com/csfam/pawprint/internal/pawprint/metrics"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

// Services are the long-lived components behind the HTTP surface.
type Services struct {
	Store      sessionstore.Store
	Cache      *clientcache.Cache
	Auth       *auth.Authenticator
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics
	// Ready reports whether the backing store is usable.
	Ready func(ctx context.Context) error
}

// Close releases the session store.
func (s *Services) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// NewServices wires the proxy components from configuration.
func NewServices(ctx context.Context, cfg *config.ConfigParam) (*Services, error) {
	taxonomy, err := faults.New(cfg.ErrorCodes)
	if err != nil {
		return nil, err
	}

	store, ready, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var cache *clientcache.Cache
	m := metrics.New(func() int { return cache.Len() })
	cache = clientcache.New(clientcache.HTTPFactory(rpcclient.Options{
		Timeout:            cfg.RPC.GetTimeout(),
		InsecureSkipVerify: cfg.RPC.InsecureSkipVerify,
		Observer:           m.ObserveRPC,
	}))

	authenticator, err := auth.New(store, cache, taxonomy, auth.Options{
		TokenDuration:        cfg.Auth.GetTokenDuration(),
		APIVersionConstraint: cfg.RPC.APIVersionConstraint,
		Metrics:              m,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Services{
		Store: store,
		Cache: cache,
		Auth:  authenticator,
		Dispatcher: dispatch.New(store, cache, taxonomy, dispatch.Options{
			StrictHTTPStatus: cfg.StrictHTTPStatus,
			Metrics:          m,
		}),
		Metrics: m,
		Ready:   ready,
	}, nil
}

// OpenStore opens the configured session store and returns it with its
// readiness probe.
func OpenStore(ctx context.Context, cfg *config.ConfigParam) (sessionstore.Store, func(context.Context) error, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		log.Ctx(ctx).Info().Msg("using in-memory session store")
		return sessionstore.NewMemoryStore(), nil, nil
	case config.BackendPostgres:
		pg := cfg.Storage.Postgres
		sealer, err := sessionstore.ParseKey(pg.SecretKey)
		if err != nil {
			return nil, nil, err
		}
		store, err := sessionstore.OpenPostgres(ctx, sessionstore.PostgresOptions{
			DSN:             pg.DSN,
			Schema:          pg.Schema,
			Sealer:          sealer,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: pg.GetConnMaxLifetime(),
			ConnectAttempts: pg.ConnectAttempts,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Ctx(ctx).Info().Str("schema", pg.Schema).Msg("using postgres session store")
		return store, store.Ping, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
