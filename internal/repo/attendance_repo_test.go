package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/avikram/attendance-bot/internal/domain"
)

func seedUser(t *testing.T, db *gorm.DB, phone, name string) *domain.User {
	t.Helper()
	u := &domain.User{Phone: phone, Name: name}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestCreateAttendance_OnePerUserPerDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500001", "Worker")

	now := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	a := &domain.Attendance{UserID: u.ID, CheckIn: now, Lat: 12.97, Lon: 77.59, Date: domain.DayKey(now)}
	if err := CreateAttendance(ctx, db, a); err != nil {
		t.Fatalf("CreateAttendance: %v", err)
	}

	dup := &domain.Attendance{UserID: u.ID, CheckIn: now.Add(time.Hour), Date: domain.DayKey(now)}
	if err := CreateAttendance(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same-day insert = %v; want ErrDuplicate", err)
	}

	// A different day is fine.
	next := now.Add(24 * time.Hour)
	b := &domain.Attendance{UserID: u.ID, CheckIn: next, Date: domain.DayKey(next)}
	if err := CreateAttendance(ctx, db, b); err != nil {
		t.Fatalf("next-day insert: %v", err)
	}
}

func TestCreateAttendance_ConcurrentSameDay(t *testing.T) {
	db := newTestDB(t)
	u := seedUser(t, db, "+911234500002", "Racer")

	now := time.Now().UTC()
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			a := &domain.Attendance{UserID: u.ID, CheckIn: now, Date: domain.DayKey(now)}
			errs[i] = CreateAttendance(context.Background(), db, a)
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
			t.Fatalf("insert %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("concurrent same-day inserts: %d succeeded; want exactly 1", wins)
	}
}

func TestGetAttendanceForDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500003", "DayKeyed")

	d1 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	for _, at := range []time.Time{d1, d2} {
		if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: u.ID, CheckIn: at, Date: domain.DayKey(at)}); err != nil {
			t.Fatalf("seed attendance: %v", err)
		}
	}

	got, err := GetAttendanceForDay(ctx, db, u.ID, domain.DayKey(d1))
	if err != nil {
		t.Fatalf("GetAttendanceForDay: %v", err)
	}
	if got.Date != domain.DayKey(d1) || !got.CheckIn.Equal(d1) {
		t.Fatalf("row = %+v; want the %s row", got, domain.DayKey(d1))
	}

	// A day with no row is not found, regardless of other days' rows.
	d3 := d2.Add(24 * time.Hour)
	if _, err := GetAttendanceForDay(ctx, db, u.ID, domain.DayKey(d3)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent day = %v; want ErrNotFound", err)
	}
}

func TestCloseAttendance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500004", "Closer")

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	a := &domain.Attendance{UserID: u.ID, CheckIn: now, Date: domain.DayKey(now)}
	if err := CreateAttendance(ctx, db, a); err != nil {
		t.Fatalf("CreateAttendance: %v", err)
	}

	out := now.Add(8 * time.Hour)
	if err := CloseAttendance(ctx, db, a.ID, out); err != nil {
		t.Fatalf("CloseAttendance: %v", err)
	}

	got, err := GetAttendanceForDay(ctx, db, u.ID, a.Date)
	if err != nil {
		t.Fatalf("GetAttendanceForDay: %v", err)
	}
	if got.CheckOut == nil || !got.CheckOut.Equal(out) {
		t.Fatalf("check_out = %v; want %v", got.CheckOut, out)
	}

	// Closing again must fail: the guarded update matched zero rows.
	if err := CloseAttendance(ctx, db, a.ID, out.Add(time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double close = %v; want ErrNotFound", err)
	}
	if err := CloseAttendance(ctx, db, 9999, out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("close missing = %v; want ErrNotFound", err)
	}
}

func TestCountAttendance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500005", "Counter")

	today := time.Now().UTC()
	yesterday := today.Add(-24 * time.Hour)
	for _, at := range []time.Time{yesterday, today} {
		if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: u.ID, CheckIn: at, Date: domain.DayKey(at)}); err != nil {
			t.Fatalf("seed attendance: %v", err)
		}
	}

	total, todayN, err := CountAttendance(ctx, db, domain.DayKey(today))
	if err != nil {
		t.Fatalf("CountAttendance: %v", err)
	}
	if total != 2 || todayN != 1 {
		t.Fatalf("counts = %d/%d; want 2/1", total, todayN)
	}
}

func TestListAttendancePage_JoinsUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u1 := seedUser(t, db, "+911234500006", "Early Bird")
	u2 := seedUser(t, db, "+911234500007", "Late Riser")

	t1 := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: u1.ID, CheckIn: t1, Date: domain.DayKey(t1)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: u2.ID, CheckIn: t2, Date: domain.DayKey(t2)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rows, err := ListAttendancePage(ctx, db, 0, 10)
	if err != nil {
		t.Fatalf("ListAttendancePage: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d; want 2", len(rows))
	}
	// Newest first, carrying the joined user columns.
	if rows[0].Name != "Late Riser" || rows[0].Phone != "+911234500007" {
		t.Fatalf("first row = %+v; want Late Riser", rows[0])
	}
	if rows[1].Name != "Early Bird" {
		t.Fatalf("second row = %+v; want Early Bird", rows[1])
	}

	one, err := ListAttendancePage(ctx, db, 1, 1)
	if err != nil || len(one) != 1 || one[0].Name != "Early Bird" {
		t.Fatalf("offset page = %+v, %v", one, err)
	}
}

func TestListUserAttendance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500008", "History")
	other := seedUser(t, db, "+911234500009", "Noise")

	t1 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	for _, at := range []time.Time{t1, t2} {
		if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: u.ID, CheckIn: at, Date: domain.DayKey(at)}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: other.ID, CheckIn: t1, Date: domain.DayKey(t1)}); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	rows, err := ListUserAttendance(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("ListUserAttendance: %v", err)
	}
	if len(rows) != 2 || !rows[0].CheckIn.After(rows[1].CheckIn) {
		t.Fatalf("rows = %+v; want two rows newest first", rows)
	}
}

func TestDeleteUser_CascadesAttendance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+911234500010", "Cascade")

	now := time.Now().UTC()
	if err := CreateAttendance(ctx, db, &domain.Attendance{UserID: u.ID, CheckIn: now, Date: domain.DayKey(now)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := DeleteUser(ctx, db, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	rows, err := ListUserAttendance(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("ListUserAttendance: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("attendance rows survived user delete: %+v", rows)
	}
}
