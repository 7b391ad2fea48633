package services

import (
	// Go Internal Packages
	"context"
	"sync"
	"time"

	// External Packages
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (Token, error)
}

// TokenStore is an optional cache shared between instances.
type TokenStore interface {
	LoadToken(ctx context.Context) (Token, bool, error)
	SaveToken(ctx context.Context, tok Token) error
}

// TokenCache hands out the current bearer token and refreshes it lazily. A
// refresh runs at most once per expiry window no matter how many callers
// ask for a token concurrently.
type TokenCache struct {
	exchanger TokenExchanger
	shared    TokenStore
	margin    time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	token Token
	group singleflight.Group
}

func NewTokenCache(exchanger TokenExchanger, margin time.Duration, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		exchanger: exchanger,
		margin:    margin,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSharedStore adds a second-level store consulted before exchanging.
func (c *TokenCache) WithSharedStore(store TokenStore) *TokenCache {
	c.shared = store
	return c
}

// GetValidToken returns a token valid for at least the safety margin.
// Exchange failures are returned as they are and never cached.
func (c *TokenCache) GetValidToken(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	// The refresh outlives any single caller: it runs detached from the
	// leader's cancellation and is bounded by the HTTP client timeout.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token", func() (any, error) {
		// Another caller may have refreshed while we waited for the group.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		if tok, ok := c.loadShared(refreshCtx); ok {
			c.set(tok)
			return tok.AccessToken, nil
		}

		tok, err := c.exchanger.ExchangeToken(refreshCtx)
		if err != nil {
			return "", err
		}
		c.set(tok)
		c.saveShared(refreshCtx, tok)
		c.logger.Info("momo token refreshed", zap.Time("expires_at", tok.ExpiresAt))
		return tok.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the locally cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{}
}

func (c *TokenCache) valid(tok Token) bool {
	return tok.AccessToken != "" && tok.ExpiresAt.After(c.now().Add(c.margin))
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.valid(c.token) {
		return c.token.AccessToken, true
	}
	return "", false
}

func (c *TokenCache) set(tok Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
}

func (c *TokenCache) loadShared(ctx context.Context) (Token, bool) {
	if c.shared == nil {
		return Token{}, false
	}
	tok, ok, err := c.shared.LoadToken(ctx)
	if err != nil {
		c.logger.Warn("failed to load shared momo token", zap.Error(err))
		return Token{}, false
	}
	if !ok || !c.valid(tok) {
		return Token{}, false
	}
	return tok, true
}

func (c *TokenCache) saveShared(ctx context.Context, tok Token) {
	if c.shared == nil {
		return
	}
	if err := c.shared.SaveToken(ctx, tok); err != nil {
		c.logger.Warn("failed to save shared momo token", zap.Error(err))
	}
}
