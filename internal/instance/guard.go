// Package instance ensures a single server process per data directory.
//
// The lock is an OS advisory lock on a file in the data directory. It is
// never released by this package: the operating system drops it when the
// owning process exits, whether cleanly or not. The caller must keep the
// Guard reachable for the lifetime of the process.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// File names inside the guarded directory.
const (
	LockFile = "server.lock"
	InfoFile = "server.info"
)

// State is the acquisition state of a Guard.
type State int

const (
	// Unacquired means Acquire has not run yet.
	Unacquired State = iota
	// Locked means this process owns the directory.
	Locked
	// Rejected means another live process owns the directory.
	Rejected
)

func (s State) String() string {
	switch s {
	case Unacquired:
		return "unacquired"
	case Locked:
		return "locked"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrAlreadyRunning matches a RejectedError with errors.Is.
var ErrAlreadyRunning = errors.New("another instance is already running")

// RejectedError is returned by Acquire when another process holds the lock.
type RejectedError struct {
	// Holder is the identity published by the owning process, if readable.
	Holder string
}

func (e *RejectedError) Error() string {
	if e.Holder == "" {
		return ErrAlreadyRunning.Error()
	}
	return ErrAlreadyRunning.Error() + " [" + e.Holder + "]"
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// Guard is the process-lifetime lock on a directory.
type Guard struct {
	dir   string
	state State
	// file holds the lock; closing it would release the lock.
	file   *os.File
	holder string
}

// New returns an unacquired Guard for dir.
func New(dir string) *Guard {
	return &Guard{dir: dir}
}

// State returns the current state.
func (g *Guard) State() State {
	return g.state
}

// Holder returns the identity of the owning process once Rejected.
func (g *Guard) Holder() string {
	return g.holder
}

// Acquire takes the lock without blocking.
//
// On contention it returns a *RejectedError naming the owner. Errors of the
// lock mechanism itself are logged and treated as success so that a
// filesystem without lock support does not prevent startup.
func (g *Guard) Acquire(ctx context.Context) error {
	if g.state != Unacquired {
		return fmt.Errorf("instance guard already %s", g.state)
	}
	lockPath := filepath.Join(g.dir, LockFile)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: path is built from the data dir
	if err != nil {
		slog.WarnContext(ctx, "Cannot open lock file, continuing without instance lock", "path", lockPath, "err", err)
		g.state = Locked
		return nil
	}
	contended, err := tryLock(f)
	switch {
	case contended:
		_ = f.Close()
		g.state = Rejected
		g.holder = readHolder(filepath.Join(g.dir, InfoFile))
		return &RejectedError{Holder: g.holder}
	case err != nil:
		_ = f.Close()
		slog.WarnContext(ctx, "Cannot lock, continuing without instance lock", "path", lockPath, "err", err)
		g.state = Locked
		return nil
	}
	g.file = f
	g.state = Locked
	infoPath := filepath.Join(g.dir, InfoFile)
	if err := os.WriteFile(infoPath, []byte(Identity()+"\n"), 0o644); err != nil { //nolint:gosec // G306: identity is not secret
		slog.WarnContext(ctx, "Cannot write instance info", "path", infoPath, "err", err)
	}
	return nil
}

// Identity returns "<user> on <host>" for the current process.
func Identity() string {
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	if name == "" {
		name = "unknown"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return name + " on " + host
}

func readHolder(path string) string {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the data dir
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
