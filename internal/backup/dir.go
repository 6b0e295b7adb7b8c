package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a Destination on the local filesystem.
type Dir struct {
	Path string
}

func (d *Dir) String() string {
	return "dir"
}

// Put copies src byte for byte and keeps its modification time.
func (d *Dir) Put(_ context.Context, name, src string) error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil { //nolint:gosec // G301: backups are readable by the operator
		return err
	}
	in, err := os.Open(src) //nolint:gosec // G304: src is the configured database
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	dst := filepath.Join(d.Path, name)
	out, err := os.Create(dst) //nolint:gosec // G304: name is generated
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, st.ModTime(), st.ModTime())
}

func (d *Dir) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (d *Dir) Remove(_ context.Context, name string) error {
	return os.Remove(filepath.Join(d.Path, name))
}
