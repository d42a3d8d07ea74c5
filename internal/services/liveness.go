package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/repo"
)

// LivenessReplayGuard enforces the two mandatory pre-matcher checks on
// every submitted photo: freshness (not forwarded, not older than MaxAge)
// and replay (the photo identifier has never been spent before).
type LivenessReplayGuard struct {
	DB     *gorm.DB
	MaxAge time.Duration
}

// CheckFreshness rejects forwarded messages and messages whose send time
// is more than MaxAge before now.
func (g *LivenessReplayGuard) CheckFreshness(sentAt time.Time, forwarded bool, now time.Time) error {
	if forwarded {
		return ErrPhotoForwarded
	}
	if now.Sub(sentAt) > g.MaxAge {
		return ErrPhotoStale
	}
	return nil
}

// ConsumePhoto spends fileUniqueID in the replay ledger. The insert itself
// is the check: a duplicate-key rejection from the store means the photo
// was consumed before and the guard fails closed. Consumption happens
// before any biometric comparison, so a failed verification attempt still
// burns the identifier.
func (g *LivenessReplayGuard) ConsumePhoto(ctx context.Context, fileUniqueID string, userID *uint, now time.Time) error {
	err := repo.SpendPhoto(ctx, g.DB, fileUniqueID, userID, now)
	if errors.Is(err, repo.ErrDuplicate) {
		return ErrPhotoAlreadyUsed
	}
	return err
}
