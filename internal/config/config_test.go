package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: test-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "bazaar:", cfg.Redis.KeyPrefix)
	assert.Equal(t, StoreDriverMySQL, cfg.Store.Driver)
	assert.Equal(t, FeedDriverRedis, cfg.Feed.Driver)
	assert.Equal(t, 3*time.Second, cfg.Tracker.Tolerance)
	assert.Equal(t, 500*time.Millisecond, cfg.Tracker.ShortConfirm)
	assert.Equal(t, 7*time.Second, cfg.Tracker.LongConfirm)
	assert.Equal(t, 2*time.Second, cfg.Tracker.Settle)
	assert.Equal(t, 5*time.Second, cfg.Tracker.Retry)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: test-secret
store:
  driver: mongo
mongo:
  uri: mongodb://localhost:27017
  change_streams: true
feed:
  driver: nats
nats:
  url: nats://localhost:4222
tracker:
  tolerance: 1500ms
  long_confirm: 9s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.True(t, cfg.Mongo.ChangeStreams)
	assert.Equal(t, "bazaar", cfg.Mongo.Database)
	assert.Equal(t, FeedDriverNats, cfg.Feed.Driver)
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracker.Tolerance)
	assert.Equal(t, 9*time.Second, cfg.Tracker.LongConfirm)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing secret", "server:\n  http_port: 9000\n"},
		{"unknown store", "jwt:\n  secret: s\nstore:\n  driver: sqlite\n"},
		{"unknown feed", "jwt:\n  secret: s\nfeed:\n  driver: kafka\n"},
		{"mongo without uri", "jwt:\n  secret: s\nstore:\n  driver: mongo\n"},
		{"nats without url", "jwt:\n  secret: s\nfeed:\n  driver: nats\n"},
		{"inverted confirms", "jwt:\n  secret: s\ntracker:\n  short_confirm: 8s\n  long_confirm: 7s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
