// Package artifact implements the content-addressed Artifact Store
// (spec.md §4.8): large binary blobs (logs, source files, screenshots) are
// written once per distinct checksum to a 256-way sharded filesystem tree,
// with DB-backed metadata rows providing reference counting and per-
// trajectory listing over the same Postgres pool the trajectory Store uses.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Type enumerates the kinds of blob an artifact row may describe.
type Type string

const (
	TypeLog         Type = "log"
	TypeSourceFile  Type = "source_file"
	TypeScreenshot  Type = "screenshot"
	TypeBinary      Type = "binary"
	TypeTestResults Type = "test_results"
	TypeConfig      Type = "config"
)

// ErrNotFound is returned when no artifact row matches the requested id.
var ErrNotFound = errors.New("artifact: not found")

// ChecksumMismatchError reports that the file on disk no longer matches its
// recorded checksum (bit rot, manual tampering, a corrupted write).
type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("artifact: checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Metadata is one artifacts row, per spec.md §3.
type Metadata struct {
	ID           uuid.UUID
	TrajectoryID *uuid.UUID
	Type         Type
	RelativePath string
	SizeBytes    int64
	Checksum     string
	CreatedAt    time.Time
}

// Store is the content-addressed filesystem + DB-backed artifact store.
type Store struct {
	pool    *pgxpool.Pool
	baseDir string
}

// NewStore builds a Store rooted at baseDir, creating it if absent.
func NewStore(pool *pgxpool.Pool, baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact base dir: %w", err)
	}
	return &Store{pool: pool, baseDir: baseDir}, nil
}

// shardPath returns base/<cc>/<checksum> where <cc> is the first 2 hex
// characters of checksum.
func (s *Store) shardPath(checksum string) string {
	return filepath.Join(s.baseDir, checksum[:2], checksum)
}

// StoreBytes computes the SHA-256 of data, writes it to its content-
// addressed path if not already present (deduplicating identical bytes
// across many artifact rows), and inserts a new metadata row referencing
// it. trajectoryID may be nil for artifacts not yet attached to a trajectory.
func (s *Store) StoreBytes(ctx context.Context, trajectoryID *uuid.UUID, artifactType Type, data []byte) (uuid.UUID, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	path := s.shardPath(checksum)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return uuid.Nil, fmt.Errorf("create shard dir: %w", err)
		}
		if err := writeFileSync(path, data); err != nil {
			return uuid.Nil, fmt.Errorf("write artifact file: %w", err)
		}
	} else if err != nil {
		return uuid.Nil, fmt.Errorf("stat artifact file: %w", err)
	}
	// Else: identical bytes already on disk under this checksum — two
	// concurrent writers racing here produce the same bytes harmlessly,
	// per spec.md §5's same-checksum-write policy.

	id := uuid.New()
	relPath := filepath.Join(checksum[:2], checksum)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, trajectory_id, artifact_type, relative_path, size_bytes, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, id, trajectoryID, string(artifactType), relPath, int64(len(data)), checksum)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert artifact row: %w", err)
	}
	return id, nil
}

// writeFileSync writes data to path and fsyncs it before returning, so a
// crash immediately after StoreBytes can't leave a zero-length file behind.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// Retrieve reads the bytes for an artifact id, verifying the file's
// checksum still matches the recorded one.
func (s *Store) Retrieve(ctx context.Context, id uuid.UUID) ([]byte, error) {
	meta, err := s.metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.shardPath(meta.Checksum))
	if err != nil {
		return nil, fmt.Errorf("read artifact file: %w", err)
	}
	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if actual != meta.Checksum {
		return nil, &ChecksumMismatchError{Expected: meta.Checksum, Actual: actual}
	}
	return data, nil
}

func (s *Store) metadata(ctx context.Context, id uuid.UUID) (*Metadata, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, trajectory_id, artifact_type, relative_path, size_bytes, checksum, created_at
		FROM artifacts WHERE id = $1
	`, id)
	var m Metadata
	var typ string
	if err := row.Scan(&m.ID, &m.TrajectoryID, &typ, &m.RelativePath, &m.SizeBytes, &m.Checksum, &m.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	m.Type = Type(typ)
	return &m, nil
}

// Delete removes an artifact row, and — if no other row still references
// the same checksum — deletes the backing file and tries to remove its now
// possibly-empty shard directory.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	meta, err := s.metadata(ctx, id)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete artifact row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	var remaining int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM artifacts WHERE checksum = $1`, meta.Checksum).Scan(&remaining); err != nil {
		return fmt.Errorf("count remaining references: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	path := s.shardPath(meta.Checksum)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact file: %w", err)
	}
	_ = os.Remove(filepath.Dir(path)) // best-effort; fails silently if not empty

	return nil
}

// ListForTrajectory returns metadata for every artifact attached to id,
// ordered by created_at ascending.
func (s *Store) ListForTrajectory(ctx context.Context, id uuid.UUID) ([]Metadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trajectory_id, artifact_type, relative_path, size_bytes, checksum, created_at
		FROM artifacts WHERE trajectory_id = $1 ORDER BY created_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var typ string
		if err := rows.Scan(&m.ID, &m.TrajectoryID, &typ, &m.RelativePath, &m.SizeBytes, &m.Checksum, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		m.Type = Type(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

// TotalStorageSize sums size_bytes across every artifact row.
func (s *Store) TotalStorageSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM artifacts`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum artifact sizes: %w", err)
	}
	return total, nil
}

// CleanupOrphans walks the base directory and removes any file whose
// checksum (derived from its path, not recomputed) has no referencing DB
// row — e.g. left behind by a crash between writing the file and inserting
// its metadata row.
func (s *Store) CleanupOrphans(ctx context.Context) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		checksum := filepath.Base(path)
		var count int
		if qErr := s.pool.QueryRow(ctx, `SELECT count(*) FROM artifacts WHERE checksum = $1`, checksum).Scan(&count); qErr != nil {
			return fmt.Errorf("count references for %s: %w", checksum, qErr)
		}
		if count == 0 {
			if rmErr := os.Remove(path); rmErr != nil {
				return fmt.Errorf("remove orphan %s: %w", path, rmErr)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
