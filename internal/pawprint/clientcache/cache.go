// Package clientcache keeps the live remote clients of active sessions,
// keyed by session token.
package clientcache

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

// Factory builds the remote client for a session.
type Factory func(s *sessionstore.Session) (rpcclient.Client, error)

// HTTPFactory returns a Factory producing JSON-RPC over HTTP clients.
func HTTPFactory(opts rpcclient.Options) Factory {
	return func(s *sessionstore.Session) (rpcclient.Client, error) {
		c, err := rpcclient.New(s.ServerURL, s.Username, s.Password, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Cache maps session tokens to remote clients. Entries have no TTL; they
// live until Release is called for the token.
type Cache struct {
	mu      sync.RWMutex
	clients map[string]rpcclient.Client
	factory Factory
}

func New(factory Factory) *Cache {
	return &Cache{
		clients: make(map[string]rpcclient.Client),
		factory: factory,
	}
}

// Acquire returns the client cached for the session's token, building and
// storing one if none exists. Concurrent callers for the same token get the
// same client.
func (c *Cache) Acquire(ctx context.Context, s *sessionstore.Session) (rpcclient.Client, error) {
	c.mu.RLock()
	client, ok := c.clients[s.Token]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[s.Token]; ok {
		return client, nil
	}
	client, err := c.factory(s)
	if err != nil {
		return nil, err
	}
	c.clients[s.Token] = client
	log.Ctx(ctx).Debug().Str("server_url", client.ServerURL()).Msg("remote client created")
	return client, nil
}

// Release drops the client for token. Releasing an unknown token is logged.
func (c *Cache) Release(ctx context.Context, token string) {
	c.mu.Lock()
	_, ok := c.clients[token]
	delete(c.clients, token)
	c.mu.Unlock()
	if !ok {
		log.Ctx(ctx).Warn().Msg("tried to release a remote client that was not cached")
	}
}

// Len returns the number of cached clients.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// Drop removes the clients of the given tokens without logging absent ones
// and returns how many were removed. It is used when expired sessions are
// purged, most of which never had a client in this process.
func (c *Cache) Drop(tokens ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range tokens {
		if _, ok := c.clients[t]; ok {
			delete(c.clients, t)
			n++
		}
	}
	return n
}
