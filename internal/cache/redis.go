// Package cache shares the collections bearer token between instances
// through Redis.
package cache

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	// Local Packages
	"github.com/markjakearzadon/momopay-gobackend/internal/services"

	// External Packages
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect connects to the redis db and returns the client.
func Connect(ctx context.Context, uri, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     uri,
		Password: password,
		DB:       0,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

type storedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RedisTokenStore keeps one token under key, expiring with the token itself.
type RedisTokenStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisTokenStore(client *redis.Client, key string, logger *zap.Logger) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: key, logger: logger, now: time.Now}
}

func (s *RedisTokenStore) LoadToken(ctx context.Context) (services.Token, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return services.Token{}, false, nil
	}
	if err != nil {
		return services.Token{}, false, err
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("discarding malformed cached token", zap.String("key", s.key), zap.Error(err))
		return services.Token{}, false, nil
	}
	return services.Token{AccessToken: st.AccessToken, ExpiresAt: st.ExpiresAt}, true, nil
}

// SaveToken stores tok until it expires. An already expired token is not
// written.
func (s *RedisTokenStore) SaveToken(ctx context.Context, tok services.Token) error {
	ttl := tok.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(storedToken{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}
