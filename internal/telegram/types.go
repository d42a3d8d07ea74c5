// Package telegram is a thin client for the Telegram Bot API: just the
// update types and methods the attendance flow needs (long polling,
// messages with reply keyboards, file download). The bot layer consumes it
// through interfaces, so tests run against fakes and the conversation state
// machine never sees this package's wire details.
package telegram

// Update is one long-poll result entry.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// User identifies a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// Contact is a shared phone-number card. UserID is the Telegram id of the
// contact's owner; the check-in flow requires it to equal the sender.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	UserID      int64  `json:"user_id"`
}

// Location is a coordinate message. LivePeriod is non-zero only for live
// location sharing; static pins carry none.
type Location struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	LivePeriod int     `json:"live_period"`
}

// PhotoSize is one rendition of a photo message. FileUniqueID is stable for
// the underlying image across chats and time; it keys the replay ledger.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

// Message is an incoming chat message. Date and ForwardDate are unix
// seconds; a non-zero ForwardDate marks a forwarded message.
type Message struct {
	MessageID   int64       `json:"message_id"`
	From        *User       `json:"from"`
	Chat        Chat        `json:"chat"`
	Date        int64       `json:"date"`
	ForwardDate int64       `json:"forward_date"`
	Text        string      `json:"text"`
	Contact     *Contact    `json:"contact"`
	Location    *Location   `json:"location"`
	Photo       []PhotoSize `json:"photo"`
}

// LargestPhoto returns the highest-resolution rendition, or nil when the
// message has no photo. Telegram orders renditions smallest first.
func (m *Message) LargestPhoto() *PhotoSize {
	if len(m.Photo) == 0 {
		return nil
	}
	return &m.Photo[len(m.Photo)-1]
}

// File is the getFile result used to build a download path.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// ReplyMarkup is the subset of keyboard controls the bot uses: either a
// one-button contact-request keyboard or an instruction to remove the
// custom keyboard.
type ReplyMarkup struct {
	Keyboard       [][]KeyboardButton `json:"keyboard,omitempty"`
	ResizeKeyboard bool               `json:"resize_keyboard,omitempty"`
	RemoveKeyboard bool               `json:"remove_keyboard,omitempty"`
}

// KeyboardButton is one reply-keyboard button.
type KeyboardButton struct {
	Text           string `json:"text"`
	RequestContact bool   `json:"request_contact,omitempty"`
}

// ContactKeyboard builds the one-button "share phone number" keyboard.
func ContactKeyboard(label string) *ReplyMarkup {
	return &ReplyMarkup{
		Keyboard:       [][]KeyboardButton{{{Text: label, RequestContact: true}}},
		ResizeKeyboard: true,
	}
}

// RemoveKeyboard builds the marker that clears a previously sent keyboard.
func RemoveKeyboard() *ReplyMarkup {
	return &ReplyMarkup{RemoveKeyboard: true}
}
