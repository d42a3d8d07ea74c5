package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSpendPhoto_ExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now()
	if err := SpendPhoto(ctx, db, "AQADunique1", nil, now); err != nil {
		t.Fatalf("SpendPhoto: %v", err)
	}
	if err := SpendPhoto(ctx, db, "AQADunique1", nil, now.Add(time.Minute)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("replay = %v; want ErrDuplicate", err)
	}
	// A different identifier spends independently.
	if err := SpendPhoto(ctx, db, "AQADunique2", nil, now); err != nil {
		t.Fatalf("SpendPhoto other id: %v", err)
	}
}

func TestSpendPhoto_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	u := seedUser(t, db, "+911234500100", "Spender")

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = SpendPhoto(context.Background(), db, "AQADraced", &u.ID, time.Now())
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDuplicate):
		default:
			t.Fatalf("spend %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d spends of the same photo succeeded; want exactly 1", wins)
	}
}

func TestPurgeUsedPhotos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := SpendPhoto(ctx, db, "AQADold", nil, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := SpendPhoto(ctx, db, "AQADfresh", nil, now); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	removed, err := PurgeUsedPhotos(ctx, db, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeUsedPhotos: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d; want 1", removed)
	}

	// The fresh identifier is still spent; the purged one is free again.
	if err := SpendPhoto(ctx, db, "AQADfresh", nil, now); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("fresh id after purge = %v; want ErrDuplicate", err)
	}
	if err := SpendPhoto(ctx, db, "AQADold", nil, now); err != nil {
		t.Fatalf("purged id should spend again: %v", err)
	}
}

func TestDeleteUser_KeepsLedgerRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500101", "Ledger")

	if err := SpendPhoto(ctx, db, "AQADkept", &u.ID, time.Now()); err != nil {
		t.Fatalf("SpendPhoto: %v", err)
	}
	if err := DeleteUser(ctx, db, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	// The identifier stays spent even after its user is gone.
	if err := SpendPhoto(ctx, db, "AQADkept", nil, time.Now()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("ledger row lost with user delete: %v", err)
	}
}
