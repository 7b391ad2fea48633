package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "momopay", cfg.Application)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "sandbox", cfg.Gateway.TargetEnvironment)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Gateway.TokenMargin)
	assert.Equal(t, 3, cfg.Payment.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Payment.RetryBackoff)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Kafka.PublishTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := []byte("store:\n  driver: memory\ngateway:\n  timeout: 3s\n  callback_base_url: https://pay.example.com/\n")
	require.NoError(t, os.WriteFile(path, yml, 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "https://pay.example.com/api/momo/callback", cfg.Gateway.CallbackURL())
	// untouched keys keep their defaults
	assert.Equal(t, "momopaydb", cfg.Mongo.Database)
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("MOMO_CONSUMER_KEY", "key")
	t.Setenv("MOMO_CONSUMER_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("IS_PROD_MODE", "true")

	cfg, _, err := Load("")
	require.NoError(t, err)
	cfg = LoadSecrets(cfg)

	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "key", cfg.Gateway.ConsumerKey)
	assert.Equal(t, "secret", cfg.Gateway.ConsumerSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsProdMode)

	// prod mode requires the subscription key as well
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.subscription_key")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg, _, err := Load("")
	require.NoError(t, err)
	cfg.Store.Driver = "postgres"
	cfg.Payment.MaxAttempts = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "payment.max_attempts")
}
