// Package repo: UsedPhoto replay ledger.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
)

// SpendPhoto inserts fileUniqueID into the replay ledger. The insert is the
// replay check: ErrDuplicate means the identifier was consumed before, by
// any actor, ever. Under N concurrent inserts of the same identifier
// exactly one succeeds; the unique index decides the winner.
func SpendPhoto(ctx context.Context, db *gorm.DB, fileUniqueID string, userID *uint, at time.Time) error {
	rec := &domain.UsedPhoto{
		FileUniqueID: fileUniqueID,
		UserID:       userID,
		UsedAt:       at.UTC(),
	}
	return mapDuplicate(db.WithContext(ctx).Create(rec).Error)
}

// PurgeUsedPhotos deletes ledger rows older than cutoff and returns the
// number removed. Run at startup; identifiers older than the retention
// window cannot pass the freshness check anyway.
func PurgeUsedPhotos(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("used_at < ?", cutoff.UTC()).
		Delete(&domain.UsedPhoto{})
	return res.RowsAffected, res.Error
}
