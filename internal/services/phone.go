package services

import (
	"strconv"
	"strings"
)

// itoa formats a Telegram actor id the way users.telegram_id stores it.
func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// NormalizePhone canonicalizes a phone number the way the rest of the
// system stores it: spaces, dashes and a leading "+" are stripped, and a
// 12-digit number with the "91" country prefix is reduced to its 10-digit
// national form. Every phone that enters the system (contact share, admin
// create, face registration) passes through here so lookups compare equal.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.TrimPrefix(phone, "+")

	if strings.HasPrefix(phone, "91") && len(phone) == 12 {
		phone = phone[2:]
	}
	return phone
}
