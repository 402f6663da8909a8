// Package dbtransfer exports and imports the server database file.
package dbtransfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/goletan/servicehost/internal/fsutil"
	"github.com/goletan/servicehost/internal/lifecycle"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteHeader = "SQLite format 3\x00"

var (
	// ErrServiceBound is returned while the service owning the database is
	// bound, or is binding or unbinding.
	ErrServiceBound = errors.New("database in use by a bound service")
	// ErrNotFound is returned when there is no database to export.
	ErrNotFound = errors.New("database not found")
	// ErrInvalidDatabase is returned when an upload is not a sound SQLite database.
	ErrInvalidDatabase = errors.New("invalid database")
)

// Owner is the service whose process has the database open.
type Owner interface {
	Name() string
	State() lifecycle.State
}

// Transfer moves the database file in and out of the data directory.
type Transfer struct {
	path   string
	owner  Owner
	logger *zap.Logger
}

// New creates a Transfer for the database at path. owner may be nil when no
// service uses the file.
func New(path string, owner Owner, log *zap.Logger) *Transfer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transfer{path: path, owner: owner, logger: log.Named("dbtransfer")}
}

// Path returns the live database path.
func (t *Transfer) Path() string {
	return t.path
}

// BackupPath returns where Import keeps the database it replaced.
func (t *Transfer) BackupPath() string {
	return t.path + ".bak"
}

// Export streams the live database into dst.
func (t *Transfer) Export(ctx context.Context, dst io.Writer) (int64, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}

	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, t.path)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(dst, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return n, fmt.Errorf("failed to export database: %w", err)
	}
	t.logger.Info("Exported database", zap.String("path", t.path), zap.Int64("bytes", n))
	return n, nil
}

// Import replaces the live database with src once src has been verified as
// a sound SQLite database. The replaced file is kept at BackupPath.
func (t *Transfer) Import(ctx context.Context, src io.Reader) (int64, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}

	tmp, err := fsutil.CreateTemp(t.path)
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to receive database: %w", err)
	}

	if err := Validate(ctx, tmpName); err != nil {
		t.logger.Warn("Rejected database upload", zap.Int64("bytes", n), zap.Error(err))
		return n, err
	}

	// The owner may have bound while the upload was streaming.
	if err := t.guard(); err != nil {
		return n, err
	}
	restore, err := t.backup()
	if err != nil {
		return n, err
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		restore()
		return n, fmt.Errorf("failed to install database: %w", err)
	}
	committed = true

	t.logger.Info("Imported database",
		zap.String("path", t.path),
		zap.String("backup", t.BackupPath()),
		zap.Int64("bytes", n))
	return n, nil
}

// Validate checks that path holds a SQLite database passing an integrity check.
func Validate(ctx context.Context, path string) error {
	header := make([]byte, len(sqliteHeader))
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	_, err = io.ReadFull(f, header)
	_ = f.Close()
	if err != nil || !bytes.Equal(header, []byte(sqliteHeader)) {
		return fmt.Errorf("%w: not a SQLite database", ErrInvalidDatabase)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDatabase, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	rows, err := db.WithContext(ctx).Raw("PRAGMA integrity_check").Rows()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDatabase, err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDatabase, err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDatabase, strings.Join(problems, "; "))
	}
	return nil
}

// guard refuses unless the owner is Unbound. A binding process may already
// have the file open.
func (t *Transfer) guard() error {
	if t.owner == nil {
		return nil
	}
	if state := t.owner.State(); state != lifecycle.Unbound {
		return fmt.Errorf("%w: %s is %s, stop it first", ErrServiceBound, t.owner.Name(), state)
	}
	return nil
}

var journalSuffixes = []string{"-wal", "-shm", "-journal"}

// backup moves the live database and its journal files aside. On failure
// everything already moved is put back. The returned restore does the same
// for a later failure.
func (t *Transfer) backup() (restore func(), err error) {
	var moved [][2]string
	restore = func() {
		for i := len(moved) - 1; i >= 0; i-- {
			if err := os.Rename(moved[i][1], moved[i][0]); err != nil {
				t.logger.Error("Failed to restore database from backup",
					zap.String("backup", moved[i][1]), zap.Error(err))
			}
		}
	}

	if _, err := os.Stat(t.path); errors.Is(err, os.ErrNotExist) {
		return restore, nil
	}
	if err := os.Rename(t.path, t.BackupPath()); err != nil {
		return nil, fmt.Errorf("failed to back up database: %w", err)
	}
	moved = append(moved, [2]string{t.path, t.BackupPath()})

	for _, suffix := range journalSuffixes {
		from, to := t.path+suffix, t.BackupPath()+suffix
		if _, err := os.Lstat(from); errors.Is(err, os.ErrNotExist) {
			// A journal left from an older backup would be replayed into it.
			_ = os.Remove(to)
			continue
		}
		if err := os.Rename(from, to); err != nil {
			restore()
			return nil, fmt.Errorf("failed to back up %s: %w", suffix, err)
		}
		moved = append(moved, [2]string{from, to})
	}
	return restore, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
