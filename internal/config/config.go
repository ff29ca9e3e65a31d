package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/gunnet/internal/auth"
	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
)

// Server holds all configuration for one protocol server.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`

	// Connection pipeline
	ReadTimeout         time.Duration `yaml:"read_timeout"`          // idle client disconnect
	WriteTimeout        time.Duration `yaml:"write_timeout"`         // per-flush deadline
	SendQueueSize       int           `yaml:"send_queue_size"`       // per-connection outbox capacity
	MaxBlocks           int           `yaml:"max_blocks"`            // payload limit per packet, in 16-byte blocks
	MaxChecksumFailures int           `yaml:"max_checksum_failures"` // consecutive bad headers before disconnect

	// Flood protection
	FloodProtection    bool    `yaml:"flood_protection"`
	ConnectionRate     float64 `yaml:"connection_rate"`  // new connections per second per IP
	ConnectionBurst    int     `yaml:"connection_burst"` // bucket size per IP
	MaxConnectionPerIP int     `yaml:"max_connection_per_ip"`

	// Accounts
	Database           DatabaseConfig `yaml:"database"`
	AutoCreateAccounts bool           `yaml:"auto_create_accounts"`
	SessionTTL         time.Duration  `yaml:"session_ttl"`

	// Wire constants
	Crypto CryptoConfig `yaml:"crypto"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// CryptoConfig holds the per-role wire constants. Zero values fall back to the
// role defaults from auth.DefaultConfig.
type CryptoConfig struct {
	Role             string `yaml:"role"`
	HeaderKey        string `yaml:"header_key"` // hex
	StaticKey        string `yaml:"static_key"` // hex, 16 bytes
	Magic            uint32 `yaml:"magic"`
	StaticBlockSize  int    `yaml:"static_block_size"`
	SessionBlockSize int    `yaml:"session_block_size"`
	MagicOffset      int    `yaml:"magic_offset"`
	KeyMaterial      string `yaml:"key_material"`
}

// HeaderKeyBytes returns the header cipher key, or crypto.DefaultHeaderKey when unset.
func (c CryptoConfig) HeaderKeyBytes() ([]byte, error) {
	if c.HeaderKey == "" {
		return crypto.DefaultHeaderKey, nil
	}
	key, err := hex.DecodeString(c.HeaderKey)
	if err != nil {
		return nil, fmt.Errorf("decoding header_key: %w", err)
	}
	return key, nil
}

// Handshake merges the overrides into the role defaults.
func (c CryptoConfig) Handshake() (auth.Config, error) {
	cfg, err := auth.DefaultConfig(auth.Role(c.Role))
	if err != nil {
		return auth.Config{}, err
	}
	if c.StaticKey != "" {
		key, err := hex.DecodeString(c.StaticKey)
		if err != nil {
			return auth.Config{}, fmt.Errorf("decoding static_key: %w", err)
		}
		if len(key) != constants.HandshakeKeySize {
			return auth.Config{}, fmt.Errorf("static_key is %d bytes, want %d", len(key), constants.HandshakeKeySize)
		}
		copy(cfg.StaticKey[:], key)
	}
	if c.Magic != 0 {
		cfg.Magic = c.Magic
	}
	if c.StaticBlockSize != 0 {
		cfg.StaticBlockSize = c.StaticBlockSize
	}
	if c.SessionBlockSize != 0 {
		cfg.SessionBlockSize = c.SessionBlockSize
	}
	if c.MagicOffset != 0 {
		cfg.MagicOffset = c.MagicOffset
	}
	if c.KeyMaterial != "" {
		cfg.KeyMaterial = auth.KeyMaterial(c.KeyMaterial)
	}
	if err := cfg.Validate(); err != nil {
		return auth.Config{}, err
	}
	return cfg, nil
}

// Default returns Server config with sensible defaults for the login role.
func Default() Server {
	return Server{
		BindAddress:         "0.0.0.0",
		Port:                8400,
		LogLevel:            "info",
		ReadTimeout:         120 * time.Second,
		WriteTimeout:        5 * time.Second,
		SendQueueSize:       256,
		MaxBlocks:           constants.DefaultMaxBlocks,
		MaxChecksumFailures: 3,
		FloodProtection:     true,
		ConnectionRate:      2,
		ConnectionBurst:     15,
		MaxConnectionPerIP:  50,
		AutoCreateAccounts:  true,
		SessionTTL:          10 * time.Minute,
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "gunnet",
			Password: "gunnet",
			DBName:   "gunnet",
			SSLMode:  "disable",
		},
		Crypto: CryptoConfig{
			Role: string(auth.RoleLogin),
		},
	}
}

// Load loads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at first connection.
func (s Server) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.MaxBlocks <= 0 || s.MaxBlocks > 0x7fff {
		return fmt.Errorf("max_blocks %d out of range 1..32767", s.MaxBlocks)
	}
	if _, err := s.Crypto.HeaderKeyBytes(); err != nil {
		return err
	}
	if _, err := s.Crypto.Handshake(); err != nil {
		return fmt.Errorf("crypto: %w", err)
	}
	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps the log_level setting to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}
