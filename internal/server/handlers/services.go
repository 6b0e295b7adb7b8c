// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/whintake/whintake/internal/export"
	"github.com/whintake/whintake/internal/metrics"
	"github.com/whintake/whintake/internal/records"
	"github.com/whintake/whintake/internal/restore"
)

// Services holds all service dependencies for handlers.
type Services struct {
	Store   *records.Store
	Export  *export.Streamer
	Restore *restore.Gate
	Metrics *metrics.Metrics // may be nil
}

// Config holds configuration values needed by handlers.
type Config struct {
	Version string
	// DataDir holds the static pages and the options document.
	DataDir             string
	DefaultPerPage      int
	MaxPerPage          int
	MaxRequestBodyBytes int64
	MaxRestoreBytes     int64
}
