package settlement

import (
	"context"

	"gorm.io/gorm"
)

// Advisory lock keys for the worker loops. Duplicate runs on another
// instance are non-corrupting (every release is flag-guarded) but
// wasteful, so each loop holds an exclusive transaction-scoped lock
// while it selects its batch.
const (
	releaseLockKey  int64 = 0x5e771e_01
	escalateLockKey int64 = 0x5e771e_02
)

// tryAdvisoryLock takes a transaction-scoped advisory lock, reporting
// whether this instance won it. Dialects without advisory locks always
// win; single-instance test runs do not need the guard.
func tryAdvisoryLock(ctx context.Context, tx *gorm.DB, key int64) (bool, error) {
	if tx.Dialector.Name() != "postgres" {
		return true, nil
	}
	var acquired bool
	if err := tx.WithContext(ctx).Raw(
		`SELECT pg_try_advisory_xact_lock(?)`, key,
	).Scan(&acquired).Error; err != nil {
		return false, err
	}
	return acquired, nil
}
