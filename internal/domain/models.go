// Package domain defines the persistence models for users, attendance
// records, and the used-photo replay ledger. These types are mapped with
// GORM and form the core data layer of the attendance application.
package domain

import "time"

// User represents a registered employee. A user is created by an admin with
// a unique phone number; the Telegram account is linked later, the first
// time the employee completes the phone step of a check-in.
//
// Invariants (enforced by unique indexes):
//   - Phone is unique across all users.
//   - TelegramID, when set, is unique: one Telegram account maps to at most
//     one user row. Re-linking evicts the stale row (see services.CheckIn).
type User struct {
	ID             uint    `json:"id"              gorm:"primaryKey"`
	TelegramID     *string `json:"telegram_id"     gorm:"type:varchar(32);uniqueIndex"`
	Phone          string  `json:"phone"           gorm:"type:varchar(20);not null;uniqueIndex"`
	Name           string  `json:"name"            gorm:"type:varchar(128)"`
	FaceRegistered int     `json:"face_registered" gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Attendance is one day's check-in record for a user. CheckOut stays nil
// until the user checks out. Date is the UTC calendar day of the check-in;
// the (user_id, date) unique index is the authority for "at most one
// check-in per user per day"; inserts race through it, not through a
// prior existence read.
type Attendance struct {
	ID       uint       `json:"id"        gorm:"primaryKey"`
	UserID   uint       `json:"user_id"   gorm:"not null;index;uniqueIndex:uq_user_date,priority:1"`
	CheckIn  time.Time  `json:"check_in"  gorm:"not null;index:ix_attendance_checkin"`
	CheckOut *time.Time `json:"check_out"`
	Lat      float64    `json:"lat"`
	Lon      float64    `json:"lon"`
	Date     string     `json:"date"      gorm:"type:char(10);not null;index:ix_attendance_date;uniqueIndex:uq_user_date,priority:2"`

	// User is the owning employee. Attendance rows are cascade-deleted
	// with their user.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Attendance.
func (Attendance) TableName() string { return "attendance" }

// DayKey formats t as the UTC calendar day used for Attendance.Date.
// All "today" decisions in the system go through this one function so the
// day boundary is a single fixed reference zone.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// UsedPhoto is the anti-replay ledger. Each Telegram photo carries a
// globally stable file_unique_id; inserting it here is the replay check.
// A duplicate-key failure on insert means the photo was already spent.
type UsedPhoto struct {
	ID           uint      `json:"id"             gorm:"primaryKey"`
	FileUniqueID string    `json:"file_unique_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	UserID       *uint     `json:"user_id"        gorm:"index"`
	UsedAt       time.Time `json:"used_at"        gorm:"not null"`

	User *User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for UsedPhoto.
func (UsedPhoto) TableName() string { return "used_photos" }
