package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/geofence"
	"github.com/avikram/attendance-bot/internal/ratelimit"
	"github.com/avikram/attendance-bot/internal/repo"
)

// Office fence used across the service tests.
const (
	officeLat    = 12.9716
	officeLon    = 77.5946
	officeRadius = 100.0
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newFaceStore(t *testing.T) *face.Store {
	t.Helper()
	st, err := face.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("face store: %v", err)
	}
	return st
}

// fakeMatcher scripts the sidecar's answers.
type fakeMatcher struct {
	extractCount int
	extractErr   error
	verifyOK     bool
	verifyErr    error
	verifyCalls  int
}

func (m *fakeMatcher) ExtractAndValidate(context.Context, string) (int, error) {
	return m.extractCount, m.extractErr
}

func (m *fakeMatcher) Verify(context.Context, []string, string) (bool, error) {
	m.verifyCalls++
	return m.verifyOK, m.verifyErr
}

// testClock is a settable clock seam.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newTestClock(at time.Time) *testClock   { return &testClock{t: at} }

// newCheckInService wires a CheckInService against a real temp database and
// face store with scripted matcher and generous limiters.
func newCheckInService(t *testing.T, db *gorm.DB, store *face.Store, m face.Matcher, clock *testClock) *CheckInService {
	t.Helper()
	return &CheckInService{
		DB:             db,
		Conversations:  NewConversationStore(),
		Fence:          geofence.New(officeLat, officeLon, officeRadius),
		Guard:          &LivenessReplayGuard{DB: db, MaxAge: time.Minute},
		Matcher:        m,
		Faces:          store,
		CheckInLimiter: ratelimit.New(100, time.Hour),
		VerifyLimiter:  ratelimit.New(100, time.Hour),
		PhotoBindDelay: 30 * time.Second,
		Now:            clock.now,
	}
}

func seedUserWithFace(t *testing.T, db *gorm.DB, store *face.Store, phone, name string) *domain.User {
	t.Helper()
	u := &domain.User{Phone: phone, Name: name, FaceRegistered: 1}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := store.Add(phone, strings.NewReader("reference-jpeg")); err != nil {
		t.Fatalf("seed reference: %v", err)
	}
	return u
}

// runToPhotoStep drives an actor through start, contact, and location.
func runToPhotoStep(t *testing.T, s *CheckInService, actorID int64, phone string) {
	t.Helper()
	if err := s.Start(actorID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.LinkContact(context.Background(), actorID, ContactInput{Phone: phone, OwnerID: actorID}); err != nil {
		t.Fatalf("LinkContact: %v", err)
	}
	if err := s.CaptureLocation(actorID, LocationInput{Lat: officeLat, Lon: officeLon, Live: true}); err != nil {
		t.Fatalf("CaptureLocation: %v", err)
	}
}
