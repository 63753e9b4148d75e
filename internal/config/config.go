// Package config holds application configuration and its loading rules.
package config

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	AI      AIConfig      `koanf:"ai"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// StorageConfig controls where application state lives.
type StorageConfig struct {
	// DataDir holds the SQLite database, uploaded files, and the engine
	// database file.
	DataDir string `koanf:"data_dir"`
	// EngineDB is the DuckDB file name inside DataDir; empty runs the
	// engine in-memory.
	EngineDB string `koanf:"engine_db"`
}

// AIConfig holds SQL-generation settings. Values stored through the
// settings API take precedence over these.
type AIConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

// Default configuration values.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 8440
	DefaultDataDir = ".qbox"
	DefaultModel   = "gpt-4o-mini"
)

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
