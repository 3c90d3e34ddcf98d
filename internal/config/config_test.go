package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every BALLOTBOX_ env var the loaders read.
var allConfigKeys = []string{
	"BALLOTBOX_LISTEN_ADDR",
	"BALLOTBOX_REQUEST_TIMEOUT",
	"BALLOTBOX_DB_DRIVER",
	"BALLOTBOX_DB_PATH",
	"BALLOTBOX_DB_DSN",
	"BALLOTBOX_DB_MAX_CONNS",
	"BALLOTBOX_DB_BUSY_TIMEOUT",
	"BALLOTBOX_RECORDER_URL",
	"BALLOTBOX_S2S_API_KEY",
	"BALLOTBOX_S2S_API_KEYS",
	"BALLOTBOX_S2S_TIMEOUT",
	"BALLOTBOX_MEMBERSHIP_URL",
	"BALLOTBOX_ELECTIONS_FILE",
	"BALLOTBOX_CREDENTIAL_TTL",
	"BALLOTBOX_ESCROW_KEY",
	"BALLOTBOX_ESCROW_TTL",
	"BALLOTBOX_RATE_LIMIT",
	"BALLOTBOX_RATE_LIMIT_WINDOW",
	"BALLOTBOX_MAX_IN_FLIGHT",
	"BALLOTBOX_ADMISSION_WAIT",
}

// isolateConfigEnv saves and unsets all BALLOTBOX_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func setIssuerRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BALLOTBOX_RECORDER_URL", "http://recorder:8081")
	t.Setenv("BALLOTBOX_S2S_API_KEY", "s2s-secret")
	t.Setenv("BALLOTBOX_MEMBERSHIP_URL", "https://members.example.org/introspect")
}

func TestLoadIssuer_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	setIssuerRequired(t)

	cfg, err := LoadIssuer()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "issuer.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, 2*time.Second, cfg.S2STimeout)
	assert.Equal(t, "elections.yaml", cfg.ElectionsFile)
	assert.Equal(t, 24*time.Hour, cfg.CredentialTTL)
	assert.Nil(t, cfg.EscrowKey)
	assert.Equal(t, 10*time.Minute, cfg.EscrowTTL)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, 10*time.Minute, cfg.RateLimitEvery)
}

func TestLoadIssuer_Success(t *testing.T) {
	isolateConfigEnv(t)
	setIssuerRequired(t)
	t.Setenv("BALLOTBOX_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("BALLOTBOX_DB_PATH", "/tmp/issuer.db")
	t.Setenv("BALLOTBOX_CREDENTIAL_TTL", "90m")
	// 64 hex chars = 32 bytes
	t.Setenv("BALLOTBOX_ESCROW_KEY", "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	t.Setenv("BALLOTBOX_RATE_LIMIT", "0")

	cfg, err := LoadIssuer()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/issuer.db", cfg.Database.Path)
	assert.Equal(t, 90*time.Minute, cfg.CredentialTTL)
	assert.Len(t, cfg.EscrowKey, 32)
	assert.Equal(t, 0, cfg.RateLimit)
}

func TestLoadIssuer_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing recorder url", "BALLOTBOX_RECORDER_URL", "", "BALLOTBOX_RECORDER_URL"},
		{"recorder url without scheme", "BALLOTBOX_RECORDER_URL", "recorder:8081", "BALLOTBOX_RECORDER_URL"},
		{"missing api key", "BALLOTBOX_S2S_API_KEY", "", "BALLOTBOX_S2S_API_KEY"},
		{"missing membership url", "BALLOTBOX_MEMBERSHIP_URL", "", "BALLOTBOX_MEMBERSHIP_URL"},
		{"bad ttl", "BALLOTBOX_CREDENTIAL_TTL", "forever", "BALLOTBOX_CREDENTIAL_TTL"},
		{"negative ttl", "BALLOTBOX_CREDENTIAL_TTL", "-1h", "BALLOTBOX_CREDENTIAL_TTL"},
		{"escrow key too short", "BALLOTBOX_ESCROW_KEY", "deadbeef", "BALLOTBOX_ESCROW_KEY"},
		{"escrow key not hex", "BALLOTBOX_ESCROW_KEY", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", "BALLOTBOX_ESCROW_KEY"},
		{"bad rate limit", "BALLOTBOX_RATE_LIMIT", "five", "BALLOTBOX_RATE_LIMIT"},
		{"postgres not supported", "BALLOTBOX_DB_DRIVER", "postgres", "not supported"},
		{"unknown driver", "BALLOTBOX_DB_DRIVER", "mysql", "BALLOTBOX_DB_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			setIssuerRequired(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadIssuer()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRecorder_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BALLOTBOX_S2S_API_KEY", "only-key")

	cfg, err := LoadRecorder()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8081", cfg.ListenAddr)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "recorder.db", cfg.Database.Path)
	assert.Equal(t, 100*time.Millisecond, cfg.Database.BusyTimeout)
	assert.Equal(t, []string{"only-key"}, cfg.S2SAPIKeys)
	assert.Equal(t, 64, cfg.MaxInFlight)
	assert.Equal(t, 500*time.Millisecond, cfg.AdmissionWait)
}

func TestLoadRecorder_KeyRotation(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BALLOTBOX_S2S_API_KEYS", " new-key , old-key ,,")
	t.Setenv("BALLOTBOX_S2S_API_KEY", "ignored")

	cfg, err := LoadRecorder()

	require.NoError(t, err)
	assert.Equal(t, []string{"new-key", "old-key"}, cfg.S2SAPIKeys)
}

func TestLoadRecorder_Postgres(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BALLOTBOX_S2S_API_KEYS", "k")
	t.Setenv("BALLOTBOX_DB_DRIVER", "Postgres")
	t.Setenv("BALLOTBOX_DB_DSN", "postgres://ballotbox@db/recorder?sslmode=disable")
	t.Setenv("BALLOTBOX_DB_MAX_CONNS", "8")

	cfg, err := LoadRecorder()

	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Database.MaxConns)
	assert.Empty(t, cfg.Database.Path)
}

func TestLoadRecorder_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"no keys", map[string]string{}, "BALLOTBOX_S2S_API_KEYS"},
		{"postgres without dsn", map[string]string{"BALLOTBOX_S2S_API_KEYS": "k", "BALLOTBOX_DB_DRIVER": "postgres"}, "BALLOTBOX_DB_DSN"},
		{"zero pool", map[string]string{"BALLOTBOX_S2S_API_KEYS": "k", "BALLOTBOX_DB_MAX_CONNS": "0"}, "BALLOTBOX_DB_MAX_CONNS"},
		{"zero in flight", map[string]string{"BALLOTBOX_S2S_API_KEYS": "k", "BALLOTBOX_MAX_IN_FLIGHT": "0"}, "BALLOTBOX_MAX_IN_FLIGHT"},
		{"bad admission wait", map[string]string{"BALLOTBOX_S2S_API_KEYS": "k", "BALLOTBOX_ADMISSION_WAIT": "soon"}, "BALLOTBOX_ADMISSION_WAIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadRecorder()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDatabase(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BALLOTBOX_DB_PATH", "/data/recorder.db")

	db, err := LoadDatabase("recorder.db", true)

	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, db.Driver)
	assert.Equal(t, "/data/recorder.db", db.Path)
	assert.Equal(t, 5*time.Second, db.BusyTimeout)
}
