// Package main is the entry point for the whintake server.
//
// whintake is a single-operator, local data-capture service for clinical
// session records. It stores submissions in a SQLite file, serves the data
// entry form and viewer pages, and exposes a small JSON API for filtering,
// exporting and restoring the data. Only one instance may run per data
// directory. The database is snapshotted to the backup directory (and
// optionally S3) on every shutdown.
//
// Configuration is read from CLI flags, a .env file (for the S3 mirror),
// and server_config.json (for retention, paging and limits).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/whintake/whintake/internal/backup"
	"github.com/whintake/whintake/internal/config"
	"github.com/whintake/whintake/internal/export"
	"github.com/whintake/whintake/internal/instance"
	"github.com/whintake/whintake/internal/metrics"
	"github.com/whintake/whintake/internal/records"
	"github.com/whintake/whintake/internal/restore"
	"github.com/whintake/whintake/internal/server"
	"github.com/whintake/whintake/internal/server/handlers"
	"github.com/whintake/whintake/internal/server/ratelimit"
	"github.com/whintake/whintake/internal/server/reqctx"
)

// DBFile is the database file name inside the data directory.
const DBFile = "womenshealth.db"

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "whintake: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "127.0.0.1:8080", "Address to listen on")
	dataDir := flag.String("data-dir", ".", "Data directory holding the database, pages and backups")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "server.log", "Also write logs to this file, relative to -data-dir; empty disables")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ll := &slog.LevelVar{}
	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	var logOut io.Writer = colorable.NewColorable(os.Stderr)
	noColor := !isatty.IsTerminal(os.Stderr.Fd())
	slog.SetDefault(newLogger(logOut, ll, noColor))

	// Nothing else is written to the data directory until the lock is held.
	guard := instance.New(*dataDir)
	if err := guard.Acquire(ctx); err != nil {
		var rejected *instance.RejectedError
		if errors.As(err, &rejected) {
			holder := rejected.Holder
			if holder == "" {
				holder = "another user"
			}
			fmt.Fprintf(os.Stderr, "\nERROR: the application is already in use by [%s].\nAsk them to close it before starting it again.\n\n", holder)
		}
		return err
	}
	// The lock lives as long as the process; the guard must stay reachable.
	defer runtime.KeepAlive(guard)

	if *logFile != "" {
		p := *logFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(*dataDir, p)
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is from a flag
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = io.MultiWriter(os.Stderr, f)
		noColor = true
	}
	slog.SetDefault(newLogger(logOut, ll, noColor))

	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Load server_config.json for retention, paging and limits (creates with defaults if missing)
	serverCfg, err := config.Load(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}

	store := records.New(filepath.Join(*dataDir, DBFile))
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New()
	dests := []backup.Destination{&backup.Dir{Path: serverCfg.BackupDir(*dataDir)}}
	if s3cfg := s3ConfigFromEnv(env); s3cfg.Bucket != "" {
		mirror, err := backup.NewS3(ctx, s3cfg)
		if err != nil {
			return fmt.Errorf("failed to configure S3 backup mirror: %w", err)
		}
		dests = append(dests, mirror)
		slog.InfoContext(ctx, "S3 backup mirror enabled", "bucket", s3cfg.Bucket, "prefix", s3cfg.Prefix)
	}
	rotator := &backup.Rotator{
		Source:       store.Path(),
		Destinations: dests,
		Keep:         serverCfg.Backup.Retention,
		Prepare:      store.Checkpoint,
		Observe:      m.ObserveBackup,
	}

	ln, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		return fmt.Errorf("port unavailable, is another server running on %s? %w", *httpAddr, err)
	}

	if err := watchExecutable(ctx, stop); err != nil {
		slog.WarnContext(ctx, "Cannot watch executable", "err", err)
	}

	buildVersion, _, _, _ := getBuildInfo()
	svc := &handlers.Services{
		Store:   store,
		Export:  &export.Streamer{Source: store},
		Restore: &restore.Gate{Path: store.Path(), Prepare: store.Checkpoint, Reopen: store.Init},
		Metrics: m,
	}
	hcfg := &handlers.Config{
		Version:             buildVersion,
		DataDir:             *dataDir,
		DefaultPerPage:      serverCfg.Records.DefaultPerPage,
		MaxPerPage:          serverCfg.Records.MaxPerPage,
		MaxRequestBodyBytes: serverCfg.Limits.MaxRequestBodyBytes,
		MaxRestoreBytes:     serverCfg.Limits.MaxRestoreBytes,
	}
	limits := ratelimit.NewConfig(serverCfg.RateLimits.WriteRatePerMin)
	defer limits.Close()

	httpServer := &http.Server{
		Handler:           server.NewRouter(svc, hcfg, limits, stop),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "url", "http://"+ln.Addr().String(), "data", *dataDir, "version", buildVersion)
		serverErr <- httpServer.Serve(ln)
	}()

	var runErr error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}

	// Backup is the last thing the process does, whatever stopped it.
	backupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := rotator.Rotate(backupCtx); err != nil {
		slog.ErrorContext(backupCtx, "Backup incomplete", "err", err)
	}
	slog.InfoContext(backupCtx, "Server stopped")
	return runErr
}

// newLogger builds the tint handler used for all logs.
func newLogger(w io.Writer, level slog.Leveler, noColor bool) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(reqctx.NewLogHandler(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Every client is local; the address adds nothing.
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			if isZeroAttr(a.Value) {
				return slog.Attr{}
			}
			return a
		},
	})))
}

func isZeroAttr(v slog.Value) bool {
	switch t := v.Any().(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case uint64:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}
