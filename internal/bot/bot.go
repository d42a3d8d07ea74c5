// Package bot dispatches Telegram updates to the check-in services. It is
// transport-thin in the same way the HTTP handlers are: route the update
// by content type and conversation state, delegate to the service layer,
// translate service errors into user-facing replies. All state containers
// (conversation store, admin registration states) are injected.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/geofence"
	"github.com/avikram/attendance-bot/internal/services"
	"github.com/avikram/attendance-bot/internal/telegram"
)

// Transport is the outbound slice of the chat transport the bot needs.
// The production implementation is *telegram.Client; tests inject a fake.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.ReplyMarkup) error
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath string) (io.ReadCloser, error)
}

// AdminPolicy decides which actors may run admin commands. Injected so the
// allow-list is a capability, not configuration reads scattered through
// handlers.
type AdminPolicy interface {
	IsAdmin(actorID int64) bool
}

// StaticAdminPolicy is an AdminPolicy backed by a fixed id list.
type StaticAdminPolicy map[int64]struct{}

// NewStaticAdminPolicy builds a policy from the configured admin ids.
func NewStaticAdminPolicy(ids []int64) StaticAdminPolicy {
	p := make(StaticAdminPolicy, len(ids))
	for _, id := range ids {
		p[id] = struct{}{}
	}
	return p
}

// IsAdmin reports whether the actor is on the allow-list.
func (p StaticAdminPolicy) IsAdmin(actorID int64) bool {
	_, ok := p[actorID]
	return ok
}

// Bot routes incoming updates.
type Bot struct {
	Transport Transport
	CheckIn   *services.CheckInService
	Faces     *services.FaceService
	Admins    AdminPolicy
	TempDir   string
	Log       zerolog.Logger

	// adminStates maps an admin actor to the phone they are currently
	// registering reference images for.
	adminMu     sync.Mutex
	adminStates map[int64]string
}

// New constructs a Bot with an empty admin registration state.
func New(transport Transport, checkIn *services.CheckInService, faces *services.FaceService, admins AdminPolicy, tempDir string, log zerolog.Logger) *Bot {
	return &Bot{
		Transport:   transport,
		CheckIn:     checkIn,
		Faces:       faces,
		Admins:      admins,
		TempDir:     tempDir,
		Log:         log,
		adminStates: make(map[int64]string),
	}
}

// HandleUpdate routes one update. Safe to call concurrently; per-actor
// ordering is enforced by the conversation store underneath.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}

	switch {
	case strings.HasPrefix(msg.Text, "/start"):
		b.reply(ctx, msg, "Welcome to Attendance Bot\nUse /checkin or /checkout")
	case strings.HasPrefix(msg.Text, "/checkin"):
		b.handleCheckIn(ctx, msg)
	case strings.HasPrefix(msg.Text, "/checkout"):
		b.handleCheckout(ctx, msg)
	case strings.HasPrefix(msg.Text, "/register_face"):
		b.handleRegisterFace(ctx, msg)
	case msg.Contact != nil:
		b.handleContact(ctx, msg)
	case msg.Location != nil:
		b.handleLocation(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	default:
		b.handleFallback(ctx, msg)
	}
}

// reply sends text without a keyboard and logs delivery failures.
func (b *Bot) reply(ctx context.Context, msg *telegram.Message, text string) {
	b.send(ctx, msg, text, nil)
}

func (b *Bot) send(ctx context.Context, msg *telegram.Message, text string, markup *telegram.ReplyMarkup) {
	if err := b.Transport.SendMessage(ctx, msg.Chat.ID, text, markup); err != nil {
		b.Log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("send failed")
	}
}

// security returns a logger tagged for rejection events.
func (b *Bot) security(actorID int64) *zerolog.Event {
	return b.Log.Warn().Str("log", "security").Int64("actor_id", actorID)
}

func (b *Bot) handleCheckIn(ctx context.Context, msg *telegram.Message) {
	actor := msg.From.ID

	if err := b.CheckIn.Start(actor); err != nil {
		if errors.Is(err, services.ErrCheckInRateLimited) {
			b.security(actor).Msg("check-in rate limited")
			b.reply(ctx, msg, "Too many check-in attempts. Please wait a few minutes.")
			return
		}
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("check-in start failed")
		b.reply(ctx, msg, "Something went wrong. Please try again.")
		return
	}

	b.send(ctx, msg, "Share your phone number", telegram.ContactKeyboard("Share Phone Number"))
}

func (b *Bot) handleContact(ctx context.Context, msg *telegram.Message) {
	actor := msg.From.ID
	in := services.ContactInput{
		Phone:     msg.Contact.PhoneNumber,
		OwnerID:   msg.Contact.UserID,
		FirstName: msg.From.FirstName,
	}

	err := b.CheckIn.LinkContact(ctx, actor, in)
	switch {
	case err == nil:
		b.send(ctx, msg, "Phone verified. Send live location.", telegram.RemoveKeyboard())
	case errors.Is(err, services.ErrNotAwaitingPhone):
		b.reply(ctx, msg, "Please use /checkin before sharing phone number.")
	case errors.Is(err, services.ErrForeignContact):
		b.security(actor).Msg("foreign contact shared")
		b.reply(ctx, msg, "Please share your own phone number.")
	case errors.Is(err, services.ErrUserNotFound):
		b.send(ctx, msg, "You are not registered. Contact admin.", telegram.RemoveKeyboard())
	case errors.Is(err, services.ErrPhoneLinkedElsewhere):
		b.security(actor).Msg("phone linked to another account")
		b.reply(ctx, msg, "This phone is already linked to another Telegram account.")
	default:
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("contact step failed")
		b.reply(ctx, msg, "Something went wrong. Please try again.")
	}
}

func (b *Bot) handleLocation(ctx context.Context, msg *telegram.Message) {
	actor := msg.From.ID
	in := services.LocationInput{
		Lat:  msg.Location.Latitude,
		Lon:  msg.Location.Longitude,
		Live: msg.Location.LivePeriod > 0,
	}

	err := b.CheckIn.CaptureLocation(actor, in)
	switch {
	case err == nil:
		b.reply(ctx, msg, "Send your photo")
	case errors.Is(err, services.ErrNotAwaitingLocation):
		b.reply(ctx, msg, "Please use /checkin before sending location.")
	case errors.Is(err, services.ErrStaticLocation):
		b.reply(ctx, msg, "Please send LIVE location, not static location")
	case errors.Is(err, geofence.ErrInvalidCoordinate):
		b.reply(ctx, msg, "Invalid location. Please resend.")
	case errors.Is(err, services.ErrOutsideFence):
		b.security(actor).Msg("location outside fence")
		b.reply(ctx, msg, "Not in office location")
	default:
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("location step failed")
		b.reply(ctx, msg, "Something went wrong. Please try again.")
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *telegram.Message) {
	actor := msg.From.ID

	// Admin face registration takes precedence over the check-in flow.
	if phone, ok := b.adminStateOf(actor); ok {
		b.handleAdminPhoto(ctx, msg, phone)
		return
	}

	if b.CheckIn.StepOf(actor) != services.StepAwaitingPhoto {
		b.reply(ctx, msg, "Please use /checkin before sending photo.")
		return
	}

	photo := msg.LargestPhoto()
	path, err := b.downloadPhoto(ctx, photo.FileID, fmt.Sprintf("temp_%d.jpg", actor))
	if err != nil {
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("photo download failed")
		b.CheckIn.Abort(actor)
		b.reply(ctx, msg, "Could not read your photo. Please check in again.")
		return
	}
	defer os.Remove(path)

	in := services.PhotoInput{
		FileUniqueID: photo.FileUniqueID,
		Path:         path,
		SentAt:       time.Unix(msg.Date, 0),
		Forwarded:    msg.ForwardDate != 0,
	}

	err = b.CheckIn.CompleteCheckIn(ctx, actor, in)
	switch {
	case err == nil:
		b.reply(ctx, msg, "Check-in successful")
	case errors.Is(err, services.ErrNotAwaitingPhoto):
		b.reply(ctx, msg, "Please use /checkin before sending photo.")
	case errors.Is(err, services.ErrPhotoBindExpired):
		b.reply(ctx, msg, "Photo must be taken immediately after sending live location. Please check in again.")
	case errors.Is(err, services.ErrPhotoForwarded):
		b.security(actor).Msg("forwarded photo rejected")
		b.reply(ctx, msg, "Forwarded photos are not allowed. Take a live photo.")
	case errors.Is(err, services.ErrPhotoStale):
		b.security(actor).Msg("stale photo rejected")
		b.reply(ctx, msg, "Photo is too old. Take a live photo now.")
	case errors.Is(err, services.ErrUserNotFound):
		b.reply(ctx, msg, "User not registered")
	case errors.Is(err, services.ErrPhotoAlreadyUsed):
		b.security(actor).Msg("replayed photo rejected")
		b.reply(ctx, msg, "This photo was already used. Please take a new live photo.")
	case errors.Is(err, services.ErrFaceNotRegistered):
		b.reply(ctx, msg, "Face not registered. Contact admin.")
	case errors.Is(err, services.ErrVerifyRateLimited):
		b.security(actor).Msg("verification rate limited")
		b.reply(ctx, msg, "Too many verification attempts. Please wait a few minutes.")
	case errors.Is(err, services.ErrFaceNotRecognized):
		b.security(actor).Msg("face not recognized")
		b.reply(ctx, msg, "Face not recognized")
	case errors.Is(err, services.ErrAlreadyCheckedIn):
		b.reply(ctx, msg, "Already checked in today")
	default:
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("photo step failed")
		b.reply(ctx, msg, "Something went wrong. Please try again.")
	}
}

func (b *Bot) handleCheckout(ctx context.Context, msg *telegram.Message) {
	actor := msg.From.ID

	err := b.CheckIn.Checkout(ctx, actor)
	switch {
	case err == nil:
		b.reply(ctx, msg, "Checkout successful")
	case errors.Is(err, services.ErrUserNotFound):
		b.reply(ctx, msg, "User not registered")
	case errors.Is(err, services.ErrNoActiveCheckIn):
		b.reply(ctx, msg, "No active check-in")
	default:
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("checkout failed")
		b.reply(ctx, msg, "Something went wrong. Please try again.")
	}
}

func (b *Bot) handleRegisterFace(ctx context.Context, msg *telegram.Message) {
	actor := msg.From.ID
	if !b.Admins.IsAdmin(actor) {
		b.security(actor).Msg("unauthorized register_face")
		b.reply(ctx, msg, "Unauthorized")
		return
	}

	parts := strings.Fields(msg.Text)
	if len(parts) != 2 {
		b.reply(ctx, msg, "Usage: /register_face PHONE_NUMBER")
		return
	}

	phone := services.NormalizePhone(parts[1])
	b.setAdminState(actor, phone)
	b.reply(ctx, msg, "Send face photo for phone "+phone)
}

// handleAdminPhoto registers one reference image during an admin
// /register_face session.
func (b *Bot) handleAdminPhoto(ctx context.Context, msg *telegram.Message, phone string) {
	actor := msg.From.ID

	photo := msg.LargestPhoto()
	path, err := b.downloadPhoto(ctx, photo.FileID, fmt.Sprintf("temp_admin_%s.jpg", phone))
	if err != nil {
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("admin photo download failed")
		b.reply(ctx, msg, "Could not read the photo. Please resend.")
		return
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		b.reply(ctx, msg, "Could not read the photo. Please resend.")
		return
	}
	defer f.Close()

	index, err := b.Faces.RegisterForPhone(ctx, phone, f)
	switch {
	case err == nil && index < face.MaxReferences:
		b.reply(ctx, msg, fmt.Sprintf("Face %d/%d registered for %s. Send another photo or wait.", index, face.MaxReferences, phone))
	case err == nil:
		b.clearAdminState(actor)
		b.reply(ctx, msg, fmt.Sprintf("All %d faces registered for %s.", face.MaxReferences, phone))
	case errors.Is(err, face.ErrTooManyReferences):
		b.clearAdminState(actor)
		b.reply(ctx, msg, "No face detected or max 3 faces reached")
	case errors.Is(err, services.ErrInvalidFaceImage):
		b.reply(ctx, msg, "No face detected or max 3 faces reached")
	default:
		b.Log.Error().Err(err).Int64("actor_id", actor).Msg("face registration failed")
		b.reply(ctx, msg, "Something went wrong. Please try again.")
	}
}

func (b *Bot) handleFallback(ctx context.Context, msg *telegram.Message) {
	switch b.CheckIn.StepOf(msg.From.ID) {
	case services.StepAwaitingPhone:
		b.reply(ctx, msg, "Please share your phone number using the button.")
	case services.StepAwaitingLocation:
		b.reply(ctx, msg, "Please send LIVE location using Telegram location sharing.")
	case services.StepAwaitingPhoto:
		b.reply(ctx, msg, "Please take and send a live photo using your camera.")
	default:
		b.reply(ctx, msg, "Use /checkin to mark attendance or /checkout to end attendance.")
	}
}

// downloadPhoto fetches a photo by file id into TempDir under name and
// returns the local path. The caller removes the file on every exit path.
func (b *Bot) downloadPhoto(ctx context.Context, fileID, name string) (string, error) {
	f, err := b.Transport.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	rc, err := b.Transport.DownloadFile(ctx, f.FilePath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	path := filepath.Join(b.TempDir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (b *Bot) adminStateOf(actorID int64) (string, bool) {
	b.adminMu.Lock()
	defer b.adminMu.Unlock()
	phone, ok := b.adminStates[actorID]
	return phone, ok
}

func (b *Bot) setAdminState(actorID int64, phone string) {
	b.adminMu.Lock()
	defer b.adminMu.Unlock()
	b.adminStates[actorID] = phone
}

func (b *Bot) clearAdminState(actorID int64) {
	b.adminMu.Lock()
	defer b.adminMu.Unlock()
	delete(b.adminStates, actorID)
}

// CleanTempFiles removes leftover temp photo files from a previous run.
func CleanTempFiles(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "temp_*.jpg"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
