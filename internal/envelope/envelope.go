// Package envelope normalizes message header summaries for logging and
// identity derivation. An Envelope carries only the handful of header
// fields the sweeper cares about (from, to, subject, date, message-id);
// body content never enters identity computation.
package envelope

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
)

// None is the sentinel value for an absent envelope field. It is distinct
// from the empty string, which is a valid (if unusual) header value.
const None = "NONE"

// Envelope is the normalized header summary of a single message. Absent
// fields hold the None sentinel, never the empty string. Addresses are
// fully qualified as "mailbox@host".
type Envelope struct {
	// Subject is the RFC 2047-decoded subject line.
	Subject string

	// From is the first sender address, formatted as mailbox@host.
	From string

	// To is the first recipient address, formatted as mailbox@host.
	To string

	// Date is the message's Date header. Zero means the header was absent.
	Date time.Time

	// MessageID is the Message-ID header value, or None.
	MessageID string
}

// wordDecoder decodes RFC 2047 encoded-words using the go-message
// charset table, which covers the legacy encodings (ISO-2022-JP,
// KOI8-R, windows-125x) that mime.WordDecoder alone rejects.
var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes RFC 2047 encoded-words in a header value.
// Undecodable input is returned as-is rather than failing the message.
func DecodeHeader(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// FormatAddress joins a mailbox and host into a fully qualified address.
// Either part missing yields the None sentinel for the whole address.
func FormatAddress(mailbox, host string) string {
	if mailbox == "" || host == "" {
		return None
	}
	return mailbox + "@" + host
}

// describeTimeLayout matches the display format used in walk progress
// output, second precision with dotted separators.
const describeTimeLayout = "2006.01.02 15.04.05"

// Describe renders a one-line human-readable summary of the envelope for
// log output: "date - subject - from - to".
func (e Envelope) Describe() string {
	date := None
	if !e.Date.IsZero() {
		date = e.Date.Format(describeTimeLayout)
	}
	return fmt.Sprintf("%s - %s - %s - %s", date, strings.TrimSpace(e.Subject), e.From, e.To)
}
