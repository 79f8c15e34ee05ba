package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/nodelink/config"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := config.NewConfig()

	require.NotNil(t, cfg.Dialer)
	require.NotNil(t, cfg.Credentials)
	require.NotNil(t, cfg.TimeNow)
	require.NotNil(t, cfg.Logger)
	assert.NotEmpty(t, cfg.RetryTable)
}

func TestCredentialsLookupAndReplace(t *testing.T) {
	creds := config.NewCredentials(map[string][]byte{"node-a": []byte("secret-a")})

	key, ok := creds.Lookup("node-a")
	require.True(t, ok)
	assert.Equal(t, []byte("secret-a"), key)

	_, ok = creds.Lookup("missing")
	assert.False(t, ok)

	creds.Replace(map[string][]byte{"node-b": []byte("secret-b")})

	_, ok = creds.Lookup("node-a")
	assert.False(t, ok, "replaced credentials must not retain old entries")

	key, ok = creds.Lookup("node-b")
	require.True(t, ok)
	assert.Equal(t, []byte("secret-b"), key)
}

func TestCredentialsSnapshotIsDefensiveCopy(t *testing.T) {
	creds := config.NewCredentials(map[string][]byte{"node-a": []byte("secret-a")})

	snap := creds.Snapshot()
	snap["node-a"] = []byte("tampered")
	snap["node-c"] = []byte("new")

	key, ok := creds.Lookup("node-a")
	require.True(t, ok)
	assert.Equal(t, []byte("secret-a"), key, "mutating a snapshot must not affect stored credentials")

	_, ok = creds.Lookup("node-c")
	assert.False(t, ok)
}

func TestNewCredentialsNilMap(t *testing.T) {
	creds := config.NewCredentials(nil)
	snap := creds.Snapshot()
	assert.Empty(t, snap)
}
