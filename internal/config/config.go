// Package config provides configuration management for the edge node.
// Settings come from three layers with increasing precedence: built-in
// defaults, an optional YAML file, and environment variables with the
// SETTLER_ prefix.
//
// Node identity (the ID and key assigned at enrollment) is persisted to
// a JSON file under the data directory so it survives restarts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for an edge node.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Storage   StorageConfig   `yaml:"storage"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Model     ModelConfig     `yaml:"model"`
	Redaction RedactionConfig `yaml:"redaction"`
	Sentry    SentryConfig    `yaml:"sentry"`

	// SchemaHints forces field types during schema inference, keyed by
	// field name. Valid values: number, boolean, date, string.
	SchemaHints map[string]string `yaml:"schema_hints"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	Name     string `yaml:"name"`      // Display name used at enrollment
	Region   string `yaml:"region"`    // Deployment region label
	DataPath string `yaml:"data_path"` // Directory for local state (default: ./data)
}

// StorageConfig selects and configures the local store backend.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite file path (default: <data>/edge.db)
	PostgresDSN string `yaml:"postgres_dsn"` // PostgreSQL connection string
}

// CloudConfig configures the control plane connection.
type CloudConfig struct {
	BaseURL           string        `yaml:"base_url"`            // Control plane base URL
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Outbound rate limit (default: 10)
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`  // Default: 30s
	SyncInterval      time.Duration `yaml:"sync_interval"`       // Default: 1m
	Offline           bool          `yaml:"offline"`             // Start in offline mode
}

// ModelConfig configures the optional ONNX match-scoring model.
type ModelConfig struct {
	Directory string `yaml:"directory"` // Model directory; empty disables the model
}

// RedactionConfig configures PII redaction.
type RedactionConfig struct {
	Salt string `yaml:"salt"` // Hash salt for redaction tokens
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`         // Empty disables Sentry
	Environment string `yaml:"environment"` // Default: production
}

// Identity is the node identity assigned at enrollment, persisted under
// the data directory.
type Identity struct {
	NodeID  string `json:"node_id"`
	NodeKey string `json:"node_key"`
}

// LoadConfig builds the configuration: defaults, then the YAML file at
// path (when non-empty), then SETTLER_ environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Node.DataPath, "edge.db")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IdentityPath returns the file holding the persisted node identity.
func (c *Config) IdentityPath() string {
	return filepath.Join(c.Node.DataPath, "identity.json")
}

// LoadIdentity reads the persisted node identity. Returns (nil, nil)
// when the node has not enrolled yet.
func (c *Config) LoadIdentity() (*Identity, error) {
	data, err := os.ReadFile(c.IdentityPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read identity: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("config: failed to parse identity: %w", err)
	}
	return &id, nil
}

// SaveIdentity persists the node identity assigned at enrollment.
func (c *Config) SaveIdentity(id *Identity) error {
	if err := os.MkdirAll(c.Node.DataPath, 0o755); err != nil {
		return fmt.Errorf("config: failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to marshal identity: %w", err)
	}
	// The key authenticates this node; keep the file owner-readable only.
	if err := os.WriteFile(c.IdentityPath(), data, 0o600); err != nil {
		return fmt.Errorf("config: failed to write identity: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Name:     "edge-node",
			DataPath: "./data",
		},
		Storage: StorageConfig{
			Engine: "sqlite",
		},
		Cloud: CloudConfig{
			BaseURL:           "http://localhost:8080",
			RequestsPerSecond: 10,
			HeartbeatInterval: 30 * time.Second,
			SyncInterval:      time.Minute,
		},
		Sentry: SentryConfig{
			Environment: "production",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Node.Name = getEnv("SETTLER_NODE_NAME", cfg.Node.Name)
	cfg.Node.Region = getEnv("SETTLER_NODE_REGION", cfg.Node.Region)
	cfg.Node.DataPath = getEnv("SETTLER_DATA_PATH", cfg.Node.DataPath)

	cfg.Storage.Engine = getEnv("SETTLER_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.SQLitePath = getEnv("SETTLER_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.PostgresDSN = getEnv("SETTLER_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Cloud.BaseURL = getEnv("SETTLER_CLOUD_URL", cfg.Cloud.BaseURL)
	cfg.Cloud.RequestsPerSecond = getEnvFloat("SETTLER_CLOUD_RPS", cfg.Cloud.RequestsPerSecond)
	cfg.Cloud.HeartbeatInterval = getEnvDuration("SETTLER_HEARTBEAT_INTERVAL", cfg.Cloud.HeartbeatInterval)
	cfg.Cloud.SyncInterval = getEnvDuration("SETTLER_SYNC_INTERVAL", cfg.Cloud.SyncInterval)
	cfg.Cloud.Offline = getEnvBool("SETTLER_OFFLINE", cfg.Cloud.Offline)

	cfg.Model.Directory = getEnv("SETTLER_MODEL_DIR", cfg.Model.Directory)
	cfg.Redaction.Salt = getEnv("SETTLER_REDACTION_SALT", cfg.Redaction.Salt)
	cfg.Sentry.DSN = getEnv("SETTLER_SENTRY_DSN", cfg.Sentry.DSN)
	cfg.Sentry.Environment = getEnv("SETTLER_SENTRY_ENV", cfg.Sentry.Environment)
}

func validate(cfg *Config) error {
	switch cfg.Storage.Engine {
	case "sqlite":
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres engine requires SETTLER_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", cfg.Storage.Engine)
	}

	for field, typ := range cfg.SchemaHints {
		switch typ {
		case "number", "boolean", "date", "string":
		default:
			return fmt.Errorf("config: invalid schema hint %q for field %q", typ, field)
		}
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a
// default value. Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
