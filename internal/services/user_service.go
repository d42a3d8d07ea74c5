// Package services: UserService.
//
// Admin-facing user management: creation with optional reference images,
// deletion (row plus face directory), listing, and the dashboard counters.
package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/repo"
)

// DashboardStats are the admin dashboard counters.
type DashboardStats struct {
	TotalUsers      int64 `json:"total_users"`
	TotalAttendance int64 `json:"total_attendance"`
	TodayAttendance int64 `json:"today_attendance"`
}

// UserService implements the admin use-cases around users.
type UserService struct {
	DB    *gorm.DB
	Faces *face.Store

	// Now is a clock seam for tests; nil means time.Now.
	Now nowFunc
}

// CreateUser registers a new employee with up to face.MaxReferences
// reference images. The phone is normalized, the display name title-cased.
// A taken phone yields ErrDuplicatePhone; images beyond the limit yield
// face.ErrTooManyReferences before anything is written.
func (s *UserService) CreateUser(ctx context.Context, name, phone string, faces []io.Reader) (*domain.User, error) {
	if len(faces) > face.MaxReferences {
		return nil, face.ErrTooManyReferences
	}

	phone = NormalizePhone(phone)
	u := &domain.User{
		Name:           cases.Title(language.English).String(strings.TrimSpace(name)),
		Phone:          phone,
		FaceRegistered: len(faces),
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicatePhone
		}
		return nil, err
	}

	for _, r := range faces {
		if _, err := s.Faces.Add(phone, r); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// GetUser fetches one user or ErrUserNotFound.
func (s *UserService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// DeleteUser removes the user row (attendance cascades) and the user's
// reference image directory.
func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	if err := repo.DeleteUser(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.Faces.RemoveAll(NormalizePhone(u.Phone))
}

// ListUsers returns one page of users plus the total count.
func (s *UserService) ListUsers(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	total, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	users, err := repo.ListUsersPage(ctx, s.DB, offset, limit)
	return users, total, err
}

// Dashboard returns the admin landing counters.
func (s *UserService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	users, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	total, today, err := repo.CountAttendance(ctx, s.DB, domain.DayKey(s.Now.now()))
	if err != nil {
		return nil, err
	}
	return &DashboardStats{
		TotalUsers:      users,
		TotalAttendance: total,
		TodayAttendance: today,
	}, nil
}
