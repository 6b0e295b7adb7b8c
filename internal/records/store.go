// Package records persists submissions in a single SQLite table.
//
// Every operation opens its own connection and closes it before returning.
// No connection or transaction outlives the call that created it.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/whintake/whintake/internal/query"
	"github.com/whintake/whintake/internal/schema"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Table is the name of the submissions table.
const Table = "submissions"

// TimeLayout matches SQLite's datetime() output.
const TimeLayout = time.DateTime

const orderBy = " ORDER BY " + schema.ColumnSessionDate + " DESC, " + schema.ColumnID + " DESC"

// AUTOINCREMENT keeps deleted ids from being handed out again.
const createTable = `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	` + schema.ColumnID + ` INTEGER PRIMARY KEY AUTOINCREMENT,
	` + schema.ColumnSubmittedAt + ` TEXT NOT NULL DEFAULT (datetime('now','localtime')),
	` + schema.ColumnSessionDate + ` TEXT NOT NULL
)`

// ErrNotFound is returned when no submission has the requested id.
var ErrNotFound = errors.New("record not found")

// ValidationError reports caller input that cannot be stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Store is the submissions table in the SQLite file at Path.
type Store struct {
	path string
	// Now returns the insertion timestamp. Defaults to time.Now.
	Now func() time.Time
}

// New returns a Store for the database file at path. Call Init before use.
func New(path string) *Store {
	return &Store{path: path, Now: time.Now}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, err
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	var mode string
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode=WAL`).Scan(&mode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// withDB opens the database, runs fn and closes it.
func (s *Store) withDB(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(db)
}

// withTx runs fn in a transaction committed only when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withDB(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Init creates the table when missing and adds any registered column the
// file does not have yet. Existing rows of a flag column read as "No".
func (s *Store) Init(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createTable); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		have, err := tableColumns(ctx, tx)
		if err != nil {
			return err
		}
		for _, f := range schema.Fields() {
			if have[f.Name] {
				continue
			}
			stmt := `ALTER TABLE ` + Table + ` ADD COLUMN ` + f.Name + ` TEXT`
			if f.Flag {
				stmt += ` DEFAULT '` + schema.FlagDefault + `'`
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("add column %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

func tableColumns(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(`+Table+`)`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		have[name] = true
	}
	return have, rows.Err()
}

// Create validates and inserts a submission and returns its id.
func (s *Store) Create(ctx context.Context, fields map[string]any) (int64, error) {
	values, err := Normalize(fields)
	if err != nil {
		return 0, err
	}
	names := schema.Names()
	cols := append([]string{schema.ColumnSubmittedAt}, names...)
	args := make([]any, 0, len(cols))
	args = append(args, s.Now().Format(TimeLayout))
	for _, n := range names {
		args = append(args, values[n])
	}
	stmt := `INSERT INTO ` + Table + ` (` + strings.Join(cols, ", ") + `) VALUES (?` + strings.Repeat(", ?", len(cols)-1) + `)`
	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

// Query returns the number of rows matching p and the requested page of
// them, newest session first. page is 1-based.
func (s *Store) Query(ctx context.Context, p query.Predicate, page, perPage int) (int, []Record, error) {
	if page < 1 || perPage < 1 {
		return 0, nil, fmt.Errorf("invalid page %d/%d", page, perPage)
	}
	var (
		total int
		recs  []Record
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+Table+p.Where(), p.Args()...).Scan(&total); err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if page-1 > math.MaxInt/perPage {
			recs = []Record{}
			return nil
		}
		args := append(p.Args(), perPage, (page-1)*perPage)
		rows, err := tx.QueryContext(ctx, selectAll+p.Where()+orderBy+` LIMIT ? OFFSET ?`, args...)
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		defer func() { _ = rows.Close() }()
		recs = make([]Record, 0, min(perPage, total))
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			recs = append(recs, r)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, nil, err
	}
	return total, recs, nil
}

// Count returns the number of rows matching p.
func (s *Store) Count(ctx context.Context, p query.Predicate) (int, error) {
	var n int
	err := s.withDB(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+Table+p.Where(), p.Args()...).Scan(&n)
	})
	return n, err
}

// Delete removes the row with that id. It returns ErrNotFound when absent.
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+Table+` WHERE `+schema.ColumnID+` = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM `+Table+` WHERE `+schema.ColumnID+` = ?`, id)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Rows yields every row matching p as strings in schema.Columns order,
// ordered like Query. The connection is held until iteration stops.
func (s *Store) Rows(ctx context.Context, p query.Predicate) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		db, err := s.open(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = db.Close() }()
		rows, err := db.QueryContext(ctx, selectAll+p.Where()+orderBy, p.Args()...)
		if err != nil {
			yield(nil, fmt.Errorf("select: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(r.Strings(), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Checkpoint folds the write-ahead log into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	return s.withDB(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
		return err
	})
}

var selectAll = `SELECT ` + strings.Join(schema.Columns(), ", ") + ` FROM ` + Table

func scanRecord(rows *sql.Rows) (Record, error) {
	cols := schema.Columns()
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	r := make(Record, len(cols))
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		r[i] = Column{Name: c, Value: v}
	}
	return r, nil
}
