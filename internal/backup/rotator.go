// Package backup snapshots the database file and keeps a bounded history.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// TimestampLayout sorts lexicographically in chronological order.
const TimestampLayout = "20060102_150405"

// DefaultKeep is the default retention window.
const DefaultKeep = 5

// Destination stores snapshots under flat names.
type Destination interface {
	// String names the destination in logs and metrics.
	String() string
	// Put copies the local file src to name.
	Put(ctx context.Context, name, src string) error
	// List returns every stored name starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Remove deletes name.
	Remove(ctx context.Context, name string) error
}

// Rotator copies Source to each destination and prunes old copies.
type Rotator struct {
	// Source is the database file.
	Source string
	// Destinations receive every snapshot. The first one is usually local.
	Destinations []Destination
	// Keep is the number of most recent snapshots retained per destination.
	Keep int
	// Now stamps snapshot names. Defaults to time.Now.
	Now func() time.Time
	// Prepare runs before copying, typically a WAL checkpoint.
	Prepare func(context.Context) error
	// Observe is called once per destination with the outcome.
	Observe func(dest string, err error)
}

// Prefix returns the name prefix shared by all snapshots of Source.
func (r *Rotator) Prefix() string {
	base := filepath.Base(r.Source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_backup_"
}

// Name returns the snapshot name for t.
func (r *Rotator) Name(t time.Time) string {
	return r.Prefix() + t.Format(TimestampLayout) + filepath.Ext(r.Source)
}

// Rotate snapshots Source into every destination then prunes each one to
// the newest Keep snapshots. It returns the snapshot name, or "" when
// Source does not exist.
//
// Failures are logged and returned joined; a failing destination does not
// stop the others.
func (r *Rotator) Rotate(ctx context.Context) (string, error) {
	if _, err := os.Stat(r.Source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.InfoContext(ctx, "No database file, skipping backup", "path", r.Source)
			return "", nil
		}
		slog.ErrorContext(ctx, "Backup failed", "err", err)
		return "", err
	}
	if r.Prepare != nil {
		if err := r.Prepare(ctx); err != nil {
			slog.WarnContext(ctx, "Backup preparation failed, copying as is", "err", err)
		}
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	name := r.Name(now())
	var errs []error
	for _, d := range r.Destinations {
		err := r.rotateOne(ctx, d, name)
		if err != nil {
			slog.ErrorContext(ctx, "Backup failed", "dest", d.String(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
		} else {
			slog.InfoContext(ctx, "Backup created", "dest", d.String(), "name", name)
		}
		if r.Observe != nil {
			r.Observe(d.String(), err)
		}
	}
	return name, errors.Join(errs...)
}

func (r *Rotator) rotateOne(ctx context.Context, d Destination, name string) error {
	if err := d.Put(ctx, name, r.Source); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return r.prune(ctx, d)
}

// prune deletes all but the newest Keep snapshots in d.
func (r *Rotator) prune(ctx context.Context, d Destination) error {
	keep := r.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	names, err := d.List(ctx, r.Prefix())
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	ext := filepath.Ext(r.Source)
	names = slices.DeleteFunc(names, func(n string) bool { return !strings.HasSuffix(n, ext) })
	slices.Sort(names)
	if len(names) <= keep {
		return nil
	}
	var errs []error
	for _, n := range names[:len(names)-keep] {
		if err := d.Remove(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
