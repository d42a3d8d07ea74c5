// Package services: FaceService.
//
// Reference image registration, shared by the admin chat flow
// (/register_face) and the admin HTTP surface. Registration stores the
// image at the next free slot, asks the matcher to validate that it shows
// exactly one face, and rolls the file back when validation fails.
package services

import (
	"context"
	"errors"
	"io"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/repo"
)

// FaceService implements reference image management.
type FaceService struct {
	DB      *gorm.DB
	Store   *face.Store
	Matcher face.Matcher
}

// register stores r as the next reference for phone, validates it, and
// synchronizes the user's registered-image count. Returns the new image
// count. The user row must already exist.
func (s *FaceService) register(ctx context.Context, user *domain.User, r io.Reader) (int, error) {
	phone := NormalizePhone(user.Phone)

	index, err := s.Store.Add(phone, r)
	if err != nil {
		return 0, err
	}

	path, err := s.Store.Path(phone, index)
	if err != nil {
		return 0, err
	}
	count, err := s.Matcher.ExtractAndValidate(ctx, path)
	if err != nil || count != 1 {
		// Roll the slot back; a bad image must not occupy it.
		_ = s.Store.Remove(phone, index)
		if err != nil {
			return 0, err
		}
		return 0, ErrInvalidFaceImage
	}

	user.FaceRegistered = index
	if err := repo.SaveUser(ctx, s.DB, user); err != nil {
		return 0, err
	}
	return index, nil
}

// RegisterForPhone registers a reference image against a phone number,
// creating the user row when it does not exist yet (the admin chat flow
// registers faces before the employee ever talks to the bot).
func (s *FaceService) RegisterForPhone(ctx context.Context, phone string, r io.Reader) (int, error) {
	phone = NormalizePhone(phone)

	user, err := repo.GetUserByPhone(ctx, s.DB, phone)
	if errors.Is(err, repo.ErrNotFound) {
		user = &domain.User{Phone: phone, Name: "Employee"}
		if err := repo.CreateUser(ctx, s.DB, user); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	return s.register(ctx, user, r)
}

// RegisterForUser registers a reference image for an existing user id;
// unknown ids yield ErrUserNotFound.
func (s *FaceService) RegisterForUser(ctx context.Context, userID uint, r io.Reader) (int, error) {
	user, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return s.register(ctx, user, r)
}

// References lists the user's reference image paths in index order.
func (s *FaceService) References(ctx context.Context, userID uint) ([]string, error) {
	user, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Store.List(NormalizePhone(user.Phone))
}

// ReferencePath resolves one reference image path by 1-based index.
func (s *FaceService) ReferencePath(ctx context.Context, userID uint, index int) (string, error) {
	user, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return s.Store.Path(NormalizePhone(user.Phone), index)
}

// RemoveReference deletes one reference image, renumbers the remaining
// ones contiguously, and synchronizes the user's registered-image count.
func (s *FaceService) RemoveReference(ctx context.Context, userID uint, index int) error {
	user, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	phone := NormalizePhone(user.Phone)
	if err := s.Store.Remove(phone, index); err != nil {
		return err
	}

	n, err := s.Store.Count(phone)
	if err != nil {
		return err
	}
	user.FaceRegistered = n
	return repo.SaveUser(ctx, s.DB, user)
}
