// Package repo: Attendance repository.
//
// The attendance table carries the single hard uniqueness constraint the
// check-in flow leans on: one row per (user_id, date). CreateAttendance
// therefore inserts blindly and reports a constraint collision as
// ErrDuplicate; the calling service treats that as "already checked in
// today" without a read-then-write race.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
)

// AttendanceWithUser is a joined row for the admin listing endpoints.
type AttendanceWithUser struct {
	ID       uint       `json:"id"`
	Name     string     `json:"name"`
	Phone    string     `json:"phone"`
	CheckIn  time.Time  `json:"check_in"`
	CheckOut *time.Time `json:"check_out"`
	Lat      float64    `json:"lat"`
	Lon      float64    `json:"lon"`
	Date     string     `json:"date"`
}

// CreateAttendance inserts a check-in row for (a.UserID, a.Date).
// Returns ErrDuplicate when a row for that user and day already exists;
// the store's rejection is the authoritative signal, even when two
// check-ins for the same user race.
func CreateAttendance(ctx context.Context, db *gorm.DB, a *domain.Attendance) error {
	return mapDuplicate(db.WithContext(ctx).Create(a).Error)
}

// GetAttendanceForDay fetches the user's row for the given day key,
// or ErrNotFound.
func GetAttendanceForDay(ctx context.Context, db *gorm.DB, userID uint, day string) (*domain.Attendance, error) {
	var a domain.Attendance
	err := db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, day).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CloseAttendance sets check_out on a row that has none yet. Returns
// ErrNotFound when the row is missing or already closed, so a concurrent
// double checkout cannot both succeed.
func CloseAttendance(ctx context.Context, db *gorm.DB, id uint, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Attendance{}).
		Where("id = ? AND check_out IS NULL", id).
		Update("check_out", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListUserAttendance returns all rows for one user, newest first.
func ListUserAttendance(ctx context.Context, db *gorm.DB, userID uint) ([]domain.Attendance, error) {
	var out []domain.Attendance
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("check_in desc").
		Find(&out).Error
	return out, err
}

// CountAttendance returns the total number of attendance rows, and the
// number of rows for the given day key (used by the dashboard).
func CountAttendance(ctx context.Context, db *gorm.DB, day string) (total, today int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.Attendance{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.Attendance{}).Where("date = ?", day).Count(&today).Error; err != nil {
		return 0, 0, err
	}
	return total, today, nil
}

// ListAttendancePage returns a paginated attendance listing joined with the
// owning user's name and phone, newest first.
func ListAttendancePage(ctx context.Context, db *gorm.DB, offset, limit int) ([]AttendanceWithUser, error) {
	var out []AttendanceWithUser
	err := db.WithContext(ctx).
		Model(&domain.Attendance{}).
		Select("attendance.id, users.name, users.phone, attendance.check_in, attendance.check_out, attendance.lat, attendance.lon, attendance.date").
		Joins("JOIN users ON users.id = attendance.user_id").
		Order("attendance.check_in desc").
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, err
}
