// Package restore replaces the live database file with an uploaded one.
package restore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Magic is the header every SQLite 3 database file starts with.
var Magic = []byte("SQLite format 3\x00")

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("no file uploaded")
	// ErrInvalidFormat is returned when the upload lacks the SQLite header.
	ErrInvalidFormat = errors.New("invalid database file format")
)

// Gate installs validated uploads over Path.
//
// The live file is overwritten in place. No snapshot is taken first; the
// shutdown backups are the only way back.
type Gate struct {
	Path string
	// Prepare runs before the overwrite, typically a WAL checkpoint.
	Prepare func(context.Context) error
	// Reopen runs after the overwrite, typically schema migration.
	Reopen func(context.Context) error
}

// Validate checks that b looks like a database file.
func Validate(b []byte) error {
	if len(b) == 0 {
		return ErrEmpty
	}
	if !bytes.HasPrefix(b, Magic) {
		return ErrInvalidFormat
	}
	return nil
}

// Restore validates b and, only if valid, writes it over Path.
func (g *Gate) Restore(ctx context.Context, b []byte) error {
	if err := Validate(b); err != nil {
		return err
	}
	if g.Prepare != nil {
		if err := g.Prepare(ctx); err != nil {
			slog.WarnContext(ctx, "Pre-restore checkpoint failed", "err", err)
		}
	}
	if err := os.WriteFile(g.Path, b, 0o644); err != nil { //nolint:gosec // G306: operator-readable database
		return fmt.Errorf("write database: %w", err)
	}
	// Sidecar files of the previous database would be replayed over the new one.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(g.Path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "Cannot remove stale sidecar", "path", g.Path+suffix, "err", err)
		}
	}
	if g.Reopen != nil {
		if err := g.Reopen(ctx); err != nil {
			return fmt.Errorf("open restored database: %w", err)
		}
	}
	return nil
}
