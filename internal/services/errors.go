// Package services defines the business logic of the attendance system:
// the per-actor check-in conversation state machine, checkout, admin user
// management, and face registration. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into bot replies or HTTP status codes is performed at the
// transport layer.
package services

import "errors"

// Check-in flow errors.
var (
	// ErrCheckInRateLimited is returned when the actor has started too
	// many check-in attempts within the configured window.
	ErrCheckInRateLimited = errors.New("too many check-in attempts")

	// ErrVerifyRateLimited is returned when the actor has exhausted the
	// face-verification attempts within the configured window.
	ErrVerifyRateLimited = errors.New("too many verification attempts")

	// ErrNotAwaitingPhone means a contact arrived without a preceding
	// /checkin.
	ErrNotAwaitingPhone = errors.New("not awaiting a phone number")

	// ErrNotAwaitingLocation means a location arrived out of sequence.
	ErrNotAwaitingLocation = errors.New("not awaiting a location")

	// ErrNotAwaitingPhoto means a photo arrived out of sequence.
	ErrNotAwaitingPhoto = errors.New("not awaiting a photo")

	// ErrForeignContact means the shared contact belongs to a different
	// Telegram account than the sender.
	ErrForeignContact = errors.New("contact does not belong to sender")

	// ErrUserNotFound means no registered user matches the lookup.
	ErrUserNotFound = errors.New("user not registered")

	// ErrPhoneLinkedElsewhere means the phone is already linked to a
	// different Telegram account (hijack attempt).
	ErrPhoneLinkedElsewhere = errors.New("phone linked to another account")

	// ErrStaticLocation means the location was not shared as live.
	ErrStaticLocation = errors.New("live location required")

	// ErrOutsideFence means the coordinate is outside the office fence.
	ErrOutsideFence = errors.New("not at office location")

	// ErrPhotoBindExpired means the photo arrived too long after the
	// live location was captured.
	ErrPhotoBindExpired = errors.New("photo not bound to recent location")

	// ErrPhotoForwarded means the photo message carries a forward marker.
	ErrPhotoForwarded = errors.New("forwarded photos are not allowed")

	// ErrPhotoStale means the photo message is older than the freshness
	// window.
	ErrPhotoStale = errors.New("photo is too old")

	// ErrPhotoAlreadyUsed means the photo identifier was spent before.
	ErrPhotoAlreadyUsed = errors.New("photo already used")

	// ErrFaceNotRegistered means the user has no reference images.
	ErrFaceNotRegistered = errors.New("face not registered")

	// ErrFaceNotRecognized means the matcher found no match (or failed
	// in a way indistinguishable from no match).
	ErrFaceNotRecognized = errors.New("face not recognized")

	// ErrAlreadyCheckedIn means an attendance row for (user, today)
	// already exists.
	ErrAlreadyCheckedIn = errors.New("already checked in today")

	// ErrNoActiveCheckIn means checkout found no open attendance row.
	ErrNoActiveCheckIn = errors.New("no active check-in")
)

// Admin-surface errors.
var (
	// ErrDuplicatePhone is returned when creating a user with a phone
	// that already exists.
	ErrDuplicatePhone = errors.New("user already exists")

	// ErrInvalidFaceImage is returned at registration when the image
	// does not contain exactly one face.
	ErrInvalidFaceImage = errors.New("image must contain exactly one face")
)
