// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A unique-constraint violation on insert surfaces as ErrDuplicate so
//     the service layer can translate it without driver-specific matching.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate is returned when an insert collides with a unique index.
// The store's rejection of the duplicate is the authoritative "already
// exists" signal; callers must not rely on a preceding existence read.
var ErrDuplicate = errors.New("duplicate record")

// IsDuplicate reports whether err is a unique-constraint violation,
// either as GORM's sentinel or as a driver-level message.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// mapDuplicate normalizes unique-constraint violations to ErrDuplicate and
// passes every other error through unchanged.
func mapDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// CreateUser inserts a new User row. Phone must already be normalized by
// the caller. Returns ErrDuplicate when the phone (or telegram id) is
// already taken.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	u.CreatedAt = time.Now().UTC()
	return mapDuplicate(db.WithContext(ctx).Create(u).Error)
}

// GetUser fetches a user by primary key, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByPhone fetches a user by normalized phone number, or ErrNotFound.
func GetUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByTelegramID fetches the user currently linked to a Telegram
// account, or ErrNotFound.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser persists in-place modifications of an already-loaded user row.
// Unique-index collisions surface as ErrDuplicate.
func SaveUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return mapDuplicate(db.WithContext(ctx).Save(u).Error)
}

// DeleteUser removes a user row by id. Attendance rows cascade; used-photo
// rows keep their ledger entry with the user reference nulled.
// Returns ErrNotFound when no row was deleted.
func DeleteUser(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUsers returns the total number of users.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}

// ListUsersPage returns a paginated slice of users ordered by id.
// Use CountUsers to obtain the total for pagination metadata.
func ListUsersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
