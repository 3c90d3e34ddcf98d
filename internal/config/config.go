// Package config loads service configuration from environment variables.
// A .env file in the working directory is read first when present; variables
// already set in the environment take precedence.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers supported by the recorder.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database holds the datastore settings shared by both services.
type Database struct {
	Driver      string
	Path        string // sqlite
	DSN         string // postgres
	MaxConns    int
	BusyTimeout time.Duration
}

// Server holds the HTTP listener settings shared by both services.
type Server struct {
	ListenAddr     string
	RequestTimeout time.Duration
}

// Issuer is the Credential Issuer configuration.
type Issuer struct {
	Server
	Database Database

	RecorderURL    string
	S2SAPIKey      string
	S2STimeout     time.Duration
	MembershipURL  string
	ElectionsFile  string
	CredentialTTL  time.Duration
	EscrowKey      []byte // nil disables escrow
	EscrowTTL      time.Duration
	RateLimit      int
	RateLimitEvery time.Duration
}

// Recorder is the Ballot Recorder configuration.
type Recorder struct {
	Server
	Database Database

	S2SAPIKeys    []string
	MaxInFlight   int
	AdmissionWait time.Duration
}

// LoadIssuer reads BALLOTBOX_ variables and returns a validated Issuer config.
// Required: BALLOTBOX_RECORDER_URL, BALLOTBOX_S2S_API_KEY, BALLOTBOX_MEMBERSHIP_URL.
func LoadIssuer() (*Issuer, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var (
		cfg Issuer
		err error
	)

	cfg.ListenAddr = stringVar("BALLOTBOX_LISTEN_ADDR", "127.0.0.1:8080")
	if cfg.RequestTimeout, err = durationVar("BALLOTBOX_REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Database, err = loadDatabase("issuer.db", 5*time.Second, false); err != nil {
		return nil, err
	}

	cfg.RecorderURL = os.Getenv("BALLOTBOX_RECORDER_URL")
	if err := requireURL("BALLOTBOX_RECORDER_URL", cfg.RecorderURL); err != nil {
		return nil, err
	}
	cfg.S2SAPIKey = strings.TrimSpace(os.Getenv("BALLOTBOX_S2S_API_KEY"))
	if cfg.S2SAPIKey == "" {
		return nil, fmt.Errorf("BALLOTBOX_S2S_API_KEY is required")
	}
	if cfg.S2STimeout, err = durationVar("BALLOTBOX_S2S_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	cfg.MembershipURL = os.Getenv("BALLOTBOX_MEMBERSHIP_URL")
	if err := requireURL("BALLOTBOX_MEMBERSHIP_URL", cfg.MembershipURL); err != nil {
		return nil, err
	}
	cfg.ElectionsFile = stringVar("BALLOTBOX_ELECTIONS_FILE", "elections.yaml")

	if cfg.CredentialTTL, err = durationVar("BALLOTBOX_CREDENTIAL_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EscrowKey, err = keyVar("BALLOTBOX_ESCROW_KEY"); err != nil {
		return nil, err
	}
	if cfg.EscrowTTL, err = durationVar("BALLOTBOX_ESCROW_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = intVar("BALLOTBOX_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitEvery, err = durationVar("BALLOTBOX_RATE_LIMIT_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadRecorder reads BALLOTBOX_ variables and returns a validated Recorder config.
// Required: BALLOTBOX_S2S_API_KEYS (comma-separated, or a single
// BALLOTBOX_S2S_API_KEY). Several keys may be active during a rotation.
func LoadRecorder() (*Recorder, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var (
		cfg Recorder
		err error
	)

	cfg.ListenAddr = stringVar("BALLOTBOX_LISTEN_ADDR", "127.0.0.1:8081")
	if cfg.RequestTimeout, err = durationVar("BALLOTBOX_REQUEST_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.Database, err = loadDatabase("recorder.db", 100*time.Millisecond, true); err != nil {
		return nil, err
	}

	raw := os.Getenv("BALLOTBOX_S2S_API_KEYS")
	if raw == "" {
		raw = os.Getenv("BALLOTBOX_S2S_API_KEY")
	}
	cfg.S2SAPIKeys = splitList(raw)
	if len(cfg.S2SAPIKeys) == 0 {
		return nil, fmt.Errorf("BALLOTBOX_S2S_API_KEYS is required")
	}

	if cfg.MaxInFlight, err = intVar("BALLOTBOX_MAX_IN_FLIGHT", 64); err != nil {
		return nil, err
	}
	if cfg.MaxInFlight < 1 {
		return nil, fmt.Errorf("BALLOTBOX_MAX_IN_FLIGHT must be at least 1, got %d", cfg.MaxInFlight)
	}
	if cfg.AdmissionWait, err = durationVar("BALLOTBOX_ADMISSION_WAIT", 500*time.Millisecond); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDatabase reads only the datastore settings. Used by ballotctl, which
// has no use for the listener or S2S variables.
func LoadDatabase(defaultPath string, allowPostgres bool) (Database, error) {
	if err := loadDotEnv(); err != nil {
		return Database{}, err
	}
	return loadDatabase(defaultPath, 5*time.Second, allowPostgres)
}

func loadDatabase(defaultPath string, defaultBusy time.Duration, allowPostgres bool) (Database, error) {
	var (
		db  Database
		err error
	)

	db.Driver = strings.ToLower(stringVar("BALLOTBOX_DB_DRIVER", DriverSQLite))
	switch db.Driver {
	case DriverSQLite:
		db.Path = stringVar("BALLOTBOX_DB_PATH", defaultPath)
	case DriverPostgres:
		if !allowPostgres {
			return Database{}, fmt.Errorf("BALLOTBOX_DB_DRIVER %q is not supported by this service", db.Driver)
		}
		db.DSN = os.Getenv("BALLOTBOX_DB_DSN")
		if db.DSN == "" {
			return Database{}, fmt.Errorf("BALLOTBOX_DB_DSN is required when BALLOTBOX_DB_DRIVER=postgres")
		}
	default:
		return Database{}, fmt.Errorf("BALLOTBOX_DB_DRIVER has unknown value %q", db.Driver)
	}

	defaultConns := 4
	if db.Driver == DriverPostgres {
		defaultConns = 10
	}
	if db.MaxConns, err = intVar("BALLOTBOX_DB_MAX_CONNS", defaultConns); err != nil {
		return Database{}, err
	}
	if db.MaxConns < 1 {
		return Database{}, fmt.Errorf("BALLOTBOX_DB_MAX_CONNS must be at least 1, got %d", db.MaxConns)
	}
	if db.BusyTimeout, err = durationVar("BALLOTBOX_DB_BUSY_TIMEOUT", defaultBusy); err != nil {
		return Database{}, err
	}
	return db, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func stringVar(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return parsed, nil
}

func intVar(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

// keyVar decodes a 64-character hex key (32 bytes). An absent variable yields nil.
func keyVar(key string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex-encoded: %w", key, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%s must be 32 bytes (64 hex chars), got %d bytes", key, len(b))
	}
	return b, nil
}

func requireURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
