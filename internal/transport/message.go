package transport

import (
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// Message is an inbound text message normalized for the pipeline.
type Message struct {
	// ID is the transport-assigned message ID.
	ID string

	// Sender is the sender's phone number in digits-only form, including
	// the country code.
	Sender string

	// SenderJID is the full transport address of the sender.
	SenderJID string

	// SenderName is the sender's push name, or the phone number when the
	// transport did not carry one.
	SenderName string

	// Body is the text content.
	Body string

	// Timestamp is the transport timestamp of the message.
	Timestamp time.Time
}

// NormalizePhone reduces a phone number to digits and prepends the country
// code when the number was written in local form. Brazilian local numbers
// are 10 or 11 digits (area code plus subscriber), so anything at or below
// that length gets the prefix.
func NormalizePhone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) && len(digits) <= 11 {
		digits = countryCode + digits
	}
	return digits
}

// phoneJID builds the user JID for a normalized phone number.
func phoneJID(phone string) types.JID {
	return types.NewJID(phone, types.DefaultUserServer)
}
