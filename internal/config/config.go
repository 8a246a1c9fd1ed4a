// Package config implements ConsultEase's layered configuration store
// (§4.1): built-in defaults, an optional encrypted blob, a plain JSON file
// fallback, and environment variable overrides, in that order. Reads use
// dotted keys ("database.host"); writes target the encrypted blob and
// specific keys are always encrypted at rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the fully-resolved, typed configuration used by the coordinator.
type Config struct {
	Mode     string         `json:"mode"`
	Database DatabaseConfig `json:"database"`
	Broker   BrokerConfig   `json:"broker"`
	RFID     RFIDConfig     `json:"rfid"`
	Security SecurityConfig `json:"security"`
	Email    EmailConfig    `json:"email"`
	API      APIConfig      `json:"api"`
	Log      LogConfig      `json:"log"`
	HTTP     HTTPConfig     `json:"http"`
}

type DatabaseConfig struct {
	Type         string `json:"type"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Name         string `json:"name"`
	User         string `json:"user"`
	Password     string `json:"password"`
	PoolSize     int    `json:"pool_size"`
	PoolOverflow int    `json:"pool_overflow"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type BrokerConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	ReconnectMaxDelay int    `json:"reconnect_max_delay_seconds"`
	QueueCapacity     int    `json:"queue_capacity"`
	BatchSize         int    `json:"batch_size"`
	BatchWindowMillis int    `json:"batch_window_millis"`
}

func (b BrokerConfig) URL() string {
	return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port)
}

type RFIDConfig struct {
	DevicePath         string `json:"device_path"`
	SimulationMode     bool   `json:"simulation_mode"`
	TargetVendorID     string `json:"target_vendor_id"`
	TargetProductID    string `json:"target_product_id"`
	DebounceMillis     int    `json:"debounce_millis"`
	DuplicateWindowSec int    `json:"duplicate_window_seconds"`
	ReconnectMaxDelay  int    `json:"reconnect_max_delay_seconds"`
}

type SecurityConfig struct {
	SecretKey              string `json:"secret_key"`
	SessionIdleTimeoutMin  int    `json:"session_idle_timeout_minutes"`
	LockoutThreshold       int    `json:"lockout_threshold"`
	LockoutWindowSec       int    `json:"lockout_window_seconds"`
	PasswordRotationDays   int    `json:"password_rotation_days"`
	BcryptCost             int    `json:"bcrypt_cost"`
	GraceIntervalSec       int    `json:"grace_interval_seconds"`
	ReattemptIntervalSec   int    `json:"reattempt_interval_seconds"`
	MaxDispatchAttempts    int    `json:"max_dispatch_attempts"`
	InvalidateOnAddrChange bool   `json:"invalidate_on_addr_change"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type APIConfig struct {
	SecretKey string `json:"secret_key"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type HTTPConfig struct {
	Host               string   `json:"host"`
	Port               int      `json:"port"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// sensitiveKeys are always encrypted at rest in the blob, per §4.1.
var sensitiveKeys = map[string]bool{
	"database.password":   true,
	"broker.password":     true,
	"security.secret_key": true,
	"email.password":      true,
	"api.secret_key":      true,
}

// defaults returns the built-in default configuration (layer 1 of §4.1).
func defaults() map[string]any {
	return map[string]any{
		"mode": "server",
		"database": map[string]any{
			"type": "postgres", "host": "localhost", "port": 5432,
			"name": "consultease", "user": "consultease", "password": "",
			"pool_size": 10, "pool_overflow": 5,
		},
		"broker": map[string]any{
			"host": "localhost", "port": 1883, "username": "", "password": "",
			"client_id": "consultease-central", "reconnect_max_delay_seconds": 60,
			"queue_capacity": 500, "batch_size": 20, "batch_window_millis": 100,
		},
		"rfid": map[string]any{
			"device_path": "", "simulation_mode": false,
			"target_vendor_id": "ffff", "target_product_id": "0035",
			"debounce_millis": 1000, "duplicate_window_seconds": 2,
			"reconnect_max_delay_seconds": 30,
		},
		"security": map[string]any{
			"secret_key": "", "session_idle_timeout_minutes": 30,
			"lockout_threshold": 5, "lockout_window_seconds": 900,
			"password_rotation_days": 90, "bcrypt_cost": 12,
			"grace_interval_seconds": 45, "reattempt_interval_seconds": 60,
			"max_dispatch_attempts": 10, "invalidate_on_addr_change": false,
		},
		"email": map[string]any{"host": "", "port": 587, "username": "", "password": ""},
		"api":   map[string]any{"secret_key": ""},
		"log":   map[string]any{"level": "info", "format": "json"},
		"http":  map[string]any{"host": "0.0.0.0", "port": 8080, "cors_allowed_origins": []any{"*"}},
	}
}

// envBindings mirrors the environment overrides named in §6. Fields are
// pointers so caarlos0/env leaves them nil when the variable is unset,
// letting applyEnv distinguish "not provided" from a legitimate zero value.
type envBindings struct {
	DBType       *string `env:"DB_TYPE"`
	DBHost       *string `env:"DB_HOST"`
	DBPort       *int    `env:"DB_PORT"`
	DBName       *string `env:"DB_NAME"`
	DBUser       *string `env:"DB_USER"`
	DBPassword   *string `env:"DB_PASSWORD"`
	DBPoolSize   *int    `env:"DB_POOL_SIZE"`
	MQTTHost     *string `env:"MQTT_BROKER_HOST"`
	MQTTPort     *int    `env:"MQTT_BROKER_PORT"`
	MQTTUser     *string `env:"MQTT_USERNAME"`
	MQTTPassword *string `env:"MQTT_PASSWORD"`
	RFIDDevice   *string `env:"RFID_DEVICE_PATH"`
	RFIDSim      *bool   `env:"RFID_SIMULATION_MODE"`
	LogLevel     *string `env:"CONSULTEASE_LOG_LEVEL"`
	HTTPPort     *int    `env:"CONSULTEASE_HTTP_PORT"`
}

// bindingTargets pairs each envBindings field getter with its dotted config key.
func bindingTargets(b envBindings) []struct {
	dotted string
	value  any
} {
	entries := []struct {
		dotted string
		value  any
	}{
		{"database.type", b.DBType},
		{"database.host", b.DBHost},
		{"database.port", b.DBPort},
		{"database.name", b.DBName},
		{"database.user", b.DBUser},
		{"database.password", b.DBPassword},
		{"database.pool_size", b.DBPoolSize},
		{"broker.host", b.MQTTHost},
		{"broker.port", b.MQTTPort},
		{"broker.username", b.MQTTUser},
		{"broker.password", b.MQTTPassword},
		{"rfid.device_path", b.RFIDDevice},
		{"rfid.simulation_mode", b.RFIDSim},
		{"log.level", b.LogLevel},
		{"http.port", b.HTTPPort},
	}
	return entries
}

// Get reads a dotted key from a nested map, e.g. "database.host".
func get(m map[string]any, dotted string) (any, bool) {
	parts := strings.Split(dotted, ".")
	cur := any(m)
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := mm[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// set writes a dotted key into a nested map, creating intermediate maps as needed.
func set(m map[string]any, dotted string, value any) {
	parts := strings.Split(dotted, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}

// merge deep-merges src into dst, overwriting scalar leaves.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if vm, ok := v.(map[string]any); ok {
			dm, ok := dst[k].(map[string]any)
			if !ok {
				dm = map[string]any{}
			}
			merge(dm, vm)
			dst[k] = dm
			continue
		}
		dst[k] = v
	}
}

// applyEnv applies the environment-variable override layer on top of m,
// parsing the process environment into envBindings via caarlos0/env so
// only variables actually present override a layer below.
func applyEnv(m map[string]any) error {
	var b envBindings
	if err := env.Parse(&b); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	for _, entry := range bindingTargets(b) {
		switch v := entry.value.(type) {
		case *string:
			if v != nil {
				set(m, entry.dotted, *v)
			}
		case *int:
			if v != nil {
				set(m, entry.dotted, *v)
			}
		case *bool:
			if v != nil {
				set(m, entry.dotted, *v)
			}
		}
	}
	return nil
}

func toConfig(m map[string]any) (*Config, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling merged config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling merged config: %w", err)
	}
	return &cfg, nil
}

// Store owns the layered configuration and mediates reads/writes to the
// dotted-key view, encrypting sensitive fields in the persisted blob.
type Store struct {
	dir       string
	plainFile string
	blobFile  string
	keyFile   string
	merged    map[string]any
	master    []byte
}

// Load performs the §4.1 layered load: defaults -> encrypted blob (if present
// and unlockable) -> plain file fallback -> environment overrides.
func Load(dir string) (*Store, error) {
	s := &Store{
		dir:       dir,
		plainFile: filepath.Join(dir, "config.json"),
		blobFile:  filepath.Join(dir, "config_secure.enc"),
		keyFile:   filepath.Join(dir, ".consultease_key"),
		merged:    defaults(),
	}

	master, err := loadOrGenerateMasterSecret(s.keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading master secret: %w", err)
	}

	loadedFromBlob := false
	if blob, err := os.ReadFile(s.blobFile); err == nil {
		decrypted, derr := decryptBlob(blob, master)
		if derr == nil {
			var fromBlob map[string]any
			if jerr := json.Unmarshal(decrypted, &fromBlob); jerr == nil {
				merge(s.merged, fromBlob)
				loadedFromBlob = true
			}
		}
		// Corrupt blob: fall through to plain file per §4.1 failure mode.
	}

	if !loadedFromBlob {
		if raw, err := os.ReadFile(s.plainFile); err == nil {
			var fromFile map[string]any
			if jerr := json.Unmarshal(raw, &fromFile); jerr == nil {
				merge(s.merged, fromFile)
			}
			// Unreadable/corrupt plain file: fall through to defaults.
		}
	}

	if err := applyEnv(s.merged); err != nil {
		return nil, err
	}
	s.master = master
	return s, nil
}

// Config materializes the merged layers into the typed Config struct.
func (s *Store) Config() (*Config, error) {
	return toConfig(s.merged)
}

// Get reads a dotted key from the merged view.
func (s *Store) Get(dotted string) (any, bool) {
	return get(s.merged, dotted)
}

// Set writes a dotted key and persists the encrypted blob. Sensitive keys
// are always stored encrypted; Set always targets the blob, never the plain file.
func (s *Store) Set(dotted string, value any) error {
	set(s.merged, dotted, value)
	return s.persist()
}

func (s *Store) persist() error {
	buf, err := json.MarshalIndent(s.merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config for persistence: %w", err)
	}
	blob, err := encryptBlob(buf, s.master)
	if err != nil {
		return fmt.Errorf("encrypting config blob: %w", err)
	}
	if err := os.WriteFile(s.blobFile, blob, 0o600); err != nil {
		return fmt.Errorf("writing encrypted config blob: %w", err)
	}
	return nil
}

// IsSensitive reports whether a dotted key is always stored encrypted.
func IsSensitive(dotted string) bool {
	return sensitiveKeys[dotted]
}
