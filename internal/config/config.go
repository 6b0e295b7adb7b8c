// Manages server configuration stored in server_config.json.

// Package config loads the server settings kept in the data directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the configuration file inside the data directory.
const FileName = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// Backup configures the shutdown snapshots.
	Backup Backup `json:"backup"`

	// Records configures listing.
	Records Records `json:"records"`

	// Limits bounds request sizes.
	Limits Limits `json:"limits"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`
}

// Backup configures snapshot rotation.
type Backup struct {
	// Dir is the local backup directory, relative to the data directory
	// unless absolute.
	Dir string `json:"dir"`

	// Retention is the number of snapshots kept per destination.
	Retention int `json:"retention"`
}

// Validate checks the backup settings.
func (b *Backup) Validate() error {
	if b.Dir == "" {
		return errors.New("dir is required")
	}
	if b.Retention < 1 {
		return errors.New("retention must be at least 1")
	}
	return nil
}

// Records configures record listing.
type Records struct {
	// DefaultPerPage applies when per_page is not supplied.
	DefaultPerPage int `json:"default_per_page"`

	// MaxPerPage caps per_page.
	MaxPerPage int `json:"max_per_page"`
}

// Validate checks the paging settings.
func (r *Records) Validate() error {
	if r.DefaultPerPage < 1 {
		return errors.New("default_per_page must be positive")
	}
	if r.MaxPerPage < r.DefaultPerPage {
		return errors.New("max_per_page must be at least default_per_page")
	}
	return nil
}

// Limits bounds request bodies.
type Limits struct {
	// MaxRequestBodyBytes limits JSON request bodies.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`

	// MaxRestoreBytes limits uploaded database files.
	MaxRestoreBytes int64 `json:"max_restore_bytes"`
}

// Validate checks that limits are positive.
func (l *Limits) Validate() error {
	if l.MaxRequestBodyBytes <= 0 {
		return errors.New("max_request_body_bytes must be positive")
	}
	if l.MaxRestoreBytes <= 0 {
		return errors.New("max_restore_bytes must be positive")
	}
	return nil
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// WriteRatePerMin limits mutating requests (POST/DELETE).
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	return nil
}

// Default returns the built-in configuration.
func Default() ServerConfig {
	return ServerConfig{
		Backup:  Backup{Dir: "backups", Retention: 5},
		Records: Records{DefaultPerPage: 50, MaxPerPage: 1000},
		Limits: Limits{
			MaxRequestBodyBytes: 1 << 20,   // 1 MiB
			MaxRestoreBytes:     512 << 20, // 512 MiB
		},
		RateLimits: RateLimits{WriteRatePerMin: 600},
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if err := c.Backup.Validate(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if err := c.Records.Validate(); err != nil {
		return fmt.Errorf("records: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// BackupDir resolves Backup.Dir against dataDir.
func (c *ServerConfig) BackupDir(dataDir string) string {
	if filepath.IsAbs(c.Backup.Dir) {
		return c.Backup.Dir
	}
	return filepath.Join(dataDir, c.Backup.Dir)
}

// Load loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
func Load(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
