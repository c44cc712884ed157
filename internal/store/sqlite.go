package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cmsrelay/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps AuthRequests in a SQLite file so every instance that shares the
// file can finish a flow another instance started.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    clock
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure data directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// One writer per process; other processes wait on busy_timeout
	sqlDB.SetMaxOpenConns(1)

	s := &SQLiteStore{db: sqlDB, dbPath: dbPath, now: systemClock}

	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return s, nil
}

// GetDBPath returns the database file path
func (s *SQLiteStore) GetDBPath() string {
	return s.dbPath
}

// migrate runs database migrations
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS auth_requests (
			state TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			verifier TEXT NOT NULL DEFAULT '',
			challenge TEXT NOT NULL,
			challenge_method TEXT NOT NULL,
			origin TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			consumed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_requests_expires_at ON auth_requests(expires_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migrate state database: %w", err)
		}
	}
	return nil
}

// Save upserts req. The conflict branch only fires for unconsumed or expired rows, so a
// consumed state cannot be reissued while it is still live.
func (s *SQLiteStore) Save(ctx context.Context, req *domain.AuthRequest) (string, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_requests
		(state, id, verifier, challenge, challenge_method, origin, created_at, expires_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(state) DO UPDATE SET
			id = excluded.id,
			verifier = excluded.verifier,
			challenge = excluded.challenge,
			challenge_method = excluded.challenge_method,
			origin = excluded.origin,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			consumed_at = NULL
		WHERE auth_requests.consumed_at IS NULL OR auth_requests.expires_at <= ?`,
		req.State, req.ID, req.Verifier, req.Challenge, req.ChallengeMethod, req.Origin,
		req.CreatedAt.UnixNano(), req.ExpiresAt.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert auth request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert auth request: %w", err)
	}
	if n == 0 {
		return "", domain.ErrStateConsumed
	}

	return "", nil
}

// Consume atomically marks the record used and returns it
func (s *SQLiteStore) Consume(ctx context.Context, state, _ string) (*domain.AuthRequest, error) {
	now := s.now()

	var req domain.AuthRequest
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE auth_requests SET consumed_at = ?
		WHERE state = ? AND consumed_at IS NULL AND expires_at > ?
		RETURNING id, state, verifier, challenge, challenge_method, origin, created_at, expires_at`,
		now.UnixNano(), state, now.UnixNano(),
	).Scan(&req.ID, &req.State, &req.Verifier, &req.Challenge, &req.ChallengeMethod, &req.Origin, &createdAt, &expiresAt)
	if err == nil {
		req.CreatedAt = time.Unix(0, createdAt).UTC()
		req.ExpiresAt = time.Unix(0, expiresAt).UTC()
		return &req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume auth request: %w", err)
	}

	return nil, s.classifyMiss(ctx, state, now)
}

// classifyMiss explains why Consume matched no live row
func (s *SQLiteStore) classifyMiss(ctx context.Context, state string, now time.Time) error {
	var expiresAt int64
	var consumedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at, consumed_at FROM auth_requests WHERE state = ?`,
		state,
	).Scan(&expiresAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrStateNotFound
		}
		return fmt.Errorf("lookup auth request: %w", err)
	}
	if consumedAt.Valid {
		return domain.ErrStateConsumed
	}
	if expiresAt <= now.UnixNano() {
		return domain.ErrStateExpired
	}
	// Lost a race with a concurrent Consume
	return domain.ErrStateConsumed
}

// Purge deletes expired rows, consumed or not
func (s *SQLiteStore) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_requests WHERE expires_at <= ?`,
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge auth requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge auth requests: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
