package envelope

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoIdentity is returned by Fingerprint when every identifying field
// (from, to, subject, message-id) is absent. The date alone is not unique
// enough to identify a message. Callers should skip the single message
// and continue, never abort the surrounding walk.
var ErrNoIdentity = errors.New("envelope: no identifying fields present")

// Fingerprint derives a stable, case-insensitive identity string for a
// message from its envelope and the folder-local protocol UID. The UID is
// part of the key on purpose: two byte-identical envelopes stored under
// different UIDs in the same folder stay distinct, so seen-tracking scopes
// to the exact stored message rather than collapsing content duplicates.
//
// The computation is pure and locale-independent. It fails only with
// ErrNoIdentity, and only when from, to, subject and message-id are all
// absent.
func Fingerprint(e Envelope, protocolID uint32) (string, error) {
	if e.From == None && e.To == None && e.Subject == None && e.MessageID == None {
		return "", ErrNoIdentity
	}

	date := None
	if !e.Date.IsZero() {
		// Second precision, normalized to UTC so the same message
		// fingerprints identically regardless of the local zone.
		date = e.Date.UTC().Format(describeTimeLayout)
	}

	key := strings.Join([]string{
		e.From,
		e.To,
		date,
		e.Subject,
		e.MessageID,
		strconv.FormatUint(uint64(protocolID), 10),
	}, ":")

	return strings.ToLower(key), nil
}
