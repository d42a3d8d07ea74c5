// Package services: AttendanceService.
//
// Admin-facing attendance queries and the forced checkout used to close a
// dangling open row when an employee forgot to check out.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
	"github.com/avikram/attendance-bot/internal/repo"
)

// AttendanceService implements admin attendance use-cases.
type AttendanceService struct {
	DB *gorm.DB

	// Now is a clock seam for tests; nil means time.Now.
	Now nowFunc
}

// List returns one page of attendance rows joined with user name/phone.
func (s *AttendanceService) List(ctx context.Context, offset, limit int) ([]repo.AttendanceWithUser, error) {
	return repo.ListAttendancePage(ctx, s.DB, offset, limit)
}

// ForUser returns every attendance row of one user, newest first.
func (s *AttendanceService) ForUser(ctx context.Context, userID uint) ([]domain.Attendance, error) {
	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return repo.ListUserAttendance(ctx, s.DB, userID)
}

// ForceCheckout closes an open attendance row by id. A missing or
// already-closed row yields ErrNoActiveCheckIn.
func (s *AttendanceService) ForceCheckout(ctx context.Context, attendanceID uint) error {
	err := repo.CloseAttendance(ctx, s.DB, attendanceID, s.Now.now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNoActiveCheckIn
	}
	return err
}
