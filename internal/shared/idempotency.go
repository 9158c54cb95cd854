package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
)

// ErrIdempotencyConflict reports a key that was already claimed.
var ErrIdempotencyConflict = fmt.Errorf("%w: idempotency key already used", ErrConflict)

// IdempotencyStore claims client supplied request keys in idempotency_keys.
// The primary key on key makes concurrent claims race safely.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore claims keys through db.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert claims key for module, or fails with ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return errNoExecer
	}
	if key == "" || module == "" {
		return fmt.Errorf("%w: idempotency key and module are required", ErrValidation)
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		key, module, s.now())
	if _, dup := db.UniqueViolation(err); dup {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return fmt.Errorf("shared: claim idempotency key: %w", err)
	}
	return nil
}

// Delete releases key so the client can retry after a failed request.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// Cleanup drops claims older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, retention time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-retention))
	return err
}
