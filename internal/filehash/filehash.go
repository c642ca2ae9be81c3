// Package filehash records the content digest of every indexed file so that
// re-indexing can skip unchanged files and propagate deletions.
//
// Deleting a file leaves a tombstone row. The row survives until
// CleanupTombstones removes it after its TTL, which lets a later sweep
// propagate the deletion to the vector store first.
package filehash

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/mcb/internal/database"
	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// DefaultTombstoneTTL is how long a tombstone outlives its file.
const DefaultTombstoneTTL = 30 * 24 * time.Hour

// Store is the SQLite file-hash store.
type Store struct {
	db        *database.DB
	orgID     string
	projectID string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex // serializes writes
	ensured bool
}

var _ ports.FileHashStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithProject scopes rows to an organization and project.
func WithProject(orgID, projectID string) Option {
	return func(s *Store) {
		if orgID != "" {
			s.orgID = orgID
		}
		if projectID != "" {
			s.projectID = projectID
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tombstone expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over db.
func New(db *database.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		orgID:     database.DefaultOrgID,
		projectID: database.DefaultProjectID,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureProject must be called with mu held.
func (s *Store) ensureProject(ctx context.Context) error {
	if s.ensured {
		return nil
	}
	if err := database.EnsureProject(ctx, s.db, s.orgID, s.projectID); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// Get returns the row for a file, tombstoned or not.
func (s *Store) Get(ctx context.Context, collection, path string) (*domain.FileHash, error) {
	var (
		h         domain.FileHash
		indexedAt int64
		deletedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT collection, file_path, content_hash, indexed_at, deleted_at
		FROM file_hashes
		WHERE project_id = ? AND collection = ? AND file_path = ?`,
		s.projectID, collection, path,
	).Scan(&h.Collection, &h.FilePath, &h.ContentHash, &indexedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, mcberrors.NotFound("file hash for " + path)
	}
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to get file hash: %w", err))
	}
	h.IndexedAt = time.Unix(indexedAt, 0)
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0)
		h.DeletedAt = &t
	}
	return &h, nil
}

// GetHash returns the live hash of a file. Tombstoned files report false.
func (s *Store) GetHash(ctx context.Context, collection, path string) (string, bool, error) {
	h, err := s.Get(ctx, collection, path)
	if mcberrors.IsKind(err, mcberrors.KindNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if h.Tombstoned() {
		return "", false, nil
	}
	return h.ContentHash, true, nil
}

// HasChanged reports whether currentHash differs from the stored hash.
// A file never seen, or tombstoned, has changed.
func (s *Store) HasChanged(ctx context.Context, collection, path, currentHash string) (bool, error) {
	stored, ok, err := s.GetHash(ctx, collection, path)
	if err != nil {
		return false, err
	}
	return !ok || stored != currentHash, nil
}

// UpsertHash records a hash and clears any tombstone.
func (s *Store) UpsertHash(ctx context.Context, collection, path, hash string) error {
	if collection == "" || path == "" {
		return mcberrors.InvalidArgument("collection and path are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureProject(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_hashes (project_id, collection, file_path, content_hash, indexed_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(project_id, collection, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at,
			deleted_at = NULL`,
		s.projectID, collection, path, hash, s.now().Unix())
	if err != nil {
		return mcberrors.FromContext(fmt.Errorf("failed to upsert file hash: %w", err))
	}
	return nil
}

// MarkDeleted tombstones a live row. Unknown or already tombstoned files
// are left alone.
func (s *Store) MarkDeleted(ctx context.Context, collection, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE file_hashes SET deleted_at = ?
		WHERE project_id = ? AND collection = ? AND file_path = ? AND deleted_at IS NULL`,
		s.now().Unix(), s.projectID, collection, path)
	if err != nil {
		return mcberrors.FromContext(fmt.Errorf("failed to mark file deleted: %w", err))
	}
	return nil
}

// GetIndexedFiles lists live (non-tombstoned) paths, sorted.
func (s *Store) GetIndexedFiles(ctx context.Context, collection string) ([]string, error) {
	return s.paths(ctx, collection, "deleted_at IS NULL")
}

// Tombstones lists tombstoned paths, sorted.
func (s *Store) Tombstones(ctx context.Context, collection string) ([]string, error) {
	return s.paths(ctx, collection, "deleted_at IS NOT NULL")
}

func (s *Store) paths(ctx context.Context, collection, cond string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path FROM file_hashes
		WHERE project_id = ? AND collection = ? AND `+cond+`
		ORDER BY file_path`,
		s.projectID, collection)
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to list files: %w", err))
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// CleanupTombstones purges tombstones older than ttl across all
// collections of the project. A non-positive ttl uses DefaultTombstoneTTL.
func (s *Store) CleanupTombstones(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = DefaultTombstoneTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM file_hashes
		WHERE project_id = ? AND deleted_at IS NOT NULL AND deleted_at < ?`,
		s.projectID, cutoff)
	if err != nil {
		return 0, mcberrors.FromContext(fmt.Errorf("failed to clean up tombstones: %w", err))
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("tombstones_cleaned", slog.Int64("count", n), slog.Duration("ttl", ttl))
	}
	return n, nil
}

// TombstoneCount counts tombstones in a collection.
func (s *Store) TombstoneCount(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM file_hashes
		WHERE project_id = ? AND collection = ? AND deleted_at IS NOT NULL`,
		s.projectID, collection).Scan(&n)
	if err != nil {
		return 0, mcberrors.FromContext(fmt.Errorf("failed to count tombstones: %w", err))
	}
	return n, nil
}

// ClearCollection removes every row of a collection, live or tombstoned.
func (s *Store) ClearCollection(ctx context.Context, collection string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM file_hashes WHERE project_id = ? AND collection = ?`,
		s.projectID, collection)
	if err != nil {
		return 0, mcberrors.FromContext(fmt.Errorf("failed to clear collection: %w", err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ComputeHash streams r through SHA-256 and returns the hex digest.
func ComputeHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile hashes a file's content without loading it whole.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ComputeHash(f)
}
