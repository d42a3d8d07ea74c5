// Package services: CheckInService.
//
// This file implements the per-actor check-in conversation state machine:
// phone linking → live-location capture → photo capture → biometric
// verification → attendance write. Each transition validates its inputs,
// consults the geofence, liveness/replay guard, rate limiters, and the
// external matcher, and either advances the conversation or resets it to
// idle. Every unexpected failure resets to idle, so an actor can always
// start over with /checkin, never gets stuck mid-flow.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/geofence"
	"github.com/avikram/attendance-bot/internal/ratelimit"
	"github.com/avikram/attendance-bot/internal/repo"
)

// ContactInput is a shared phone-number card as delivered by the chat
// transport.
type ContactInput struct {
	Phone     string
	OwnerID   int64 // Telegram id of the contact's owner
	FirstName string
}

// LocationInput is a coordinate message as delivered by the transport.
type LocationInput struct {
	Lat  float64
	Lon  float64
	Live bool // true only for live location sharing
}

// PhotoInput is a downloaded photo plus the message metadata the liveness
// guard needs. Path points at a temp file owned by the caller; the caller
// removes it on every exit path.
type PhotoInput struct {
	FileUniqueID string
	Path         string
	SentAt       time.Time
	Forwarded    bool
}

// CheckInService drives the check-in state machine. All mutable state is
// injected (conversation store, limiters, guard), never global.
type CheckInService struct {
	DB            *gorm.DB
	Conversations *ConversationStore
	Fence         *geofence.Validator
	Guard         *LivenessReplayGuard
	Matcher       face.Matcher
	Faces         *face.Store

	CheckInLimiter *ratelimit.Limiter // /checkin starts per actor
	VerifyLimiter  *ratelimit.Limiter // matcher calls per actor

	// PhotoBindDelay is the maximum gap between live-location capture
	// and the photo message.
	PhotoBindDelay time.Duration

	// Now is a clock seam for tests; nil means time.Now.
	Now nowFunc
}

func (s *CheckInService) now() time.Time { return s.Now.now() }

// actorKey builds the rate-limiter key for a Telegram actor.
func actorKey(actorID int64) string {
	return "actor:" + itoa(actorID)
}

// StepOf exposes the actor's conversation step for fallback replies.
func (s *CheckInService) StepOf(actorID int64) Step {
	return s.Conversations.StepOf(actorID)
}

// Start begins a check-in attempt: Idle → AwaitingPhone. The per-actor
// check-in limiter is consulted atomically first; a denied actor stays
// idle.
func (s *CheckInService) Start(actorID int64) error {
	if !s.CheckInLimiter.Hit(actorKey(actorID)) {
		return ErrCheckInRateLimited
	}

	c := s.Conversations.acquire(actorID)
	defer c.mu.Unlock()

	c.reset()
	c.step = StepAwaitingPhone
	return nil
}

// Abort cancels any in-flight attempt for the actor.
func (s *CheckInService) Abort(actorID int64) {
	c := s.Conversations.acquire(actorID)
	defer c.mu.Unlock()
	s.Conversations.drop(actorID, c)
}

// LinkContact handles the AwaitingPhone → AwaitingLocation transition.
//
// Rules:
//   - The contact must belong to the sender (ErrForeignContact; stays
//     AwaitingPhone).
//   - An unknown phone aborts the attempt (ErrUserNotFound; back to idle).
//   - A phone already linked to a different Telegram account is a hijack
//     attempt (ErrPhoneLinkedElsewhere; stays AwaitingPhone).
//   - When this Telegram account is linked to a different user row, that
//     stale row is deleted before linking; an actor id maps to exactly
//     one user row at all times. Eviction and link run in one transaction.
func (s *CheckInService) LinkContact(ctx context.Context, actorID int64, in ContactInput) error {
	c := s.Conversations.acquire(actorID)
	defer c.mu.Unlock()

	if c.step != StepAwaitingPhone {
		return ErrNotAwaitingPhone
	}
	if in.OwnerID != 0 && in.OwnerID != actorID {
		return ErrForeignContact
	}

	telegramID := itoa(actorID)
	phone := NormalizePhone(in.Phone)

	var linked *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := repo.GetUserByPhone(ctx, tx, phone)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		if user.TelegramID != nil && *user.TelegramID != telegramID {
			return ErrPhoneLinkedElsewhere
		}

		// Evict a stale link: this Telegram account previously
		// completed the phone step against a different user row.
		if prior, err := repo.GetUserByTelegramID(ctx, tx, telegramID); err == nil && prior.ID != user.ID {
			if err := repo.DeleteUser(ctx, tx, prior.ID); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		user.TelegramID = &telegramID
		if in.FirstName != "" {
			user.Name = in.FirstName
		}
		if err := repo.SaveUser(ctx, tx, user); err != nil {
			return err
		}
		linked = user
		return nil
	})

	switch {
	case errors.Is(err, ErrUserNotFound):
		s.Conversations.drop(actorID, c)
		return ErrUserNotFound
	case errors.Is(err, ErrPhoneLinkedElsewhere):
		return ErrPhoneLinkedElsewhere // stay AwaitingPhone
	case err != nil:
		s.Conversations.drop(actorID, c)
		return err
	}

	c.step = StepAwaitingLocation
	c.userID = linked.ID
	return nil
}

// CaptureLocation handles AwaitingLocation → AwaitingPhoto. The location
// must be live and inside the fence; rejections keep the actor in
// AwaitingLocation so they can resend.
func (s *CheckInService) CaptureLocation(actorID int64, in LocationInput) error {
	c := s.Conversations.acquire(actorID)
	defer c.mu.Unlock()

	if c.step != StepAwaitingLocation {
		return ErrNotAwaitingLocation
	}
	if !in.Live {
		return ErrStaticLocation
	}
	if err := geofence.ValidateCoordinates(in.Lat, in.Lon); err != nil {
		return err
	}
	if !s.Fence.IsWithinFence(in.Lat, in.Lon) {
		return ErrOutsideFence
	}

	c.step = StepAwaitingPhoto
	c.lat, c.lon = in.Lat, in.Lon
	c.locationAt = s.now()
	return nil
}

// CompleteCheckIn handles the terminal AwaitingPhoto transition. Guard
// order is load-bearing:
//
//  1. location→photo binding window (30s default)
//  2. freshness (no forward marker, message age within limit)
//  3. replay: the photo identifier is spent in the ledger before any
//     biometric work, so a failed verification cannot retry the image
//  4. verification rate gate, then the matcher against all references
//  5. attendance insert; a (user, date) duplicate from the store is the
//     authoritative "already checked in"
//
// Every failure resets the conversation to idle. The caller owns the temp
// photo file and removes it regardless of outcome.
func (s *CheckInService) CompleteCheckIn(ctx context.Context, actorID int64, in PhotoInput) error {
	c := s.Conversations.acquire(actorID)
	defer c.mu.Unlock()

	if c.step != StepAwaitingPhoto {
		return ErrNotAwaitingPhoto
	}

	now := s.now()

	fail := func(err error) error {
		s.Conversations.drop(actorID, c)
		return err
	}

	if now.Sub(c.locationAt) > s.PhotoBindDelay {
		return fail(ErrPhotoBindExpired)
	}
	if err := s.Guard.CheckFreshness(in.SentAt, in.Forwarded, now); err != nil {
		return fail(err)
	}

	// The user was linked at the phone step; the conversation carries
	// that link so a relink elsewhere cannot redirect this attempt.
	user, err := repo.GetUser(ctx, s.DB, c.userID)
	if errors.Is(err, repo.ErrNotFound) {
		return fail(ErrUserNotFound)
	}
	if err != nil {
		return fail(err)
	}

	if err := s.Guard.ConsumePhoto(ctx, in.FileUniqueID, &user.ID, now); err != nil {
		return fail(err)
	}

	refs, err := s.Faces.List(NormalizePhone(user.Phone))
	if err != nil {
		return fail(err)
	}
	if len(refs) == 0 {
		return fail(ErrFaceNotRegistered)
	}

	if !s.VerifyLimiter.Hit(actorKey(actorID)) {
		return fail(ErrVerifyRateLimited)
	}

	matched, err := s.Matcher.Verify(ctx, refs, in.Path)
	if err != nil {
		return fail(err)
	}
	if !matched {
		return fail(ErrFaceNotRecognized)
	}

	att := &domain.Attendance{
		UserID:  user.ID,
		CheckIn: now.UTC(),
		Lat:     c.lat,
		Lon:     c.lon,
		Date:    domain.DayKey(now),
	}
	if err := repo.CreateAttendance(ctx, s.DB, att); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return fail(ErrAlreadyCheckedIn)
		}
		return fail(err)
	}

	s.Conversations.drop(actorID, c)
	return nil
}

// Checkout is a stateless command: it closes today's open attendance row
// for the actor. It never creates rows, and it never touches an earlier
// day's row; a check-in left open yesterday is an admin concern
// (ForceCheckout), not something this path may stamp with today's time.
func (s *CheckInService) Checkout(ctx context.Context, actorID int64) error {
	user, err := repo.GetUserByTelegramID(ctx, s.DB, itoa(actorID))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	att, err := repo.GetAttendanceForDay(ctx, s.DB, user.ID, domain.DayKey(s.now()))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNoActiveCheckIn
	}
	if err != nil {
		return err
	}
	if att.CheckOut != nil {
		return ErrNoActiveCheckIn
	}

	// The guarded update loses to a concurrent checkout, in which case
	// the row is already closed.
	if err := repo.CloseAttendance(ctx, s.DB, att.ID, s.now().UTC()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNoActiveCheckIn
		}
		return err
	}
	return nil
}
