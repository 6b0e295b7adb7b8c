// Package export streams filtered submissions as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/whintake/whintake/internal/query"
	"github.com/whintake/whintake/internal/schema"
)

// ContentType is the media type of the export body.
const ContentType = "text/csv; charset=utf-8"

// Source yields stored rows in schema.Columns order.
type Source interface {
	Rows(ctx context.Context, p query.Predicate) iter.Seq2[[]string, error]
}

// Streamer renders matching rows of a Source as CSV.
type Streamer struct {
	Source Source
	// Now is used for the download file name. Defaults to time.Now.
	Now func() time.Time
}

// Filename returns the attachment name, which embeds today's date.
func (s *Streamer) Filename() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return "womenshealth_export_" + now().Format(time.DateOnly) + ".csv"
}

// Export yields the header row followed by every row matching p.
//
// The sequence is single use: each call runs the query again.
func (s *Streamer) Export(ctx context.Context, p query.Predicate) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		if !yield(schema.Columns(), nil) {
			return
		}
		for row, err := range s.Source.Rows(ctx, p) {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Write encodes the export of p to w, prefixed with a UTF-8 byte order
// mark. It returns the number of data rows written, excluding the header.
func (s *Streamer) Write(ctx context.Context, w io.Writer, p query.Predicate) (int, error) {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	n := -1
	for row, err := range s.Export(ctx, p) {
		if err != nil {
			return max(n, 0), fmt.Errorf("export: %w", err)
		}
		if err := cw.Write(row); err != nil {
			return max(n, 0), err
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, err
	}
	return n, tw.Close()
}
