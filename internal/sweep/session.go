// Package sweep is the message-processing core: it walks folders,
// gates messages through the seen store, classifies them, and executes
// dispositions, plus cross-account transfers. It drives mailbox sessions
// through the Session interface so the whole pipeline runs against fakes
// in tests.
package sweep

import (
	"context"

	"github.com/korzen/mailsweep/internal/envelope"
)

// IMAP flag strings used by the router and transfer.
const (
	FlagDeleted = `\Deleted`
	FlagSeen    = `\Seen`
)

// Session is the per-account mailbox capability the sweep core consumes.
// Implemented by *mailbox.Client. Each operation may fail independently;
// a failure on one message must not poison operations on its siblings.
//
// A Session is driven by exactly one walker or transfer at a time; the
// underlying protocol session does not multiplex.
type Session interface {
	// SelectFolder opens a folder; UIDs are only valid while it is open.
	SelectFolder(ctx context.Context, folder string) error

	// SearchAll returns every message UID in the selected folder.
	SearchAll(ctx context.Context) ([]uint32, error)

	// FetchEnvelope returns the normalized envelope of one message.
	FetchEnvelope(ctx context.Context, uid uint32) (envelope.Envelope, error)

	// FetchFlags returns the current flags of one message.
	FetchFlags(ctx context.Context, uid uint32) ([]string, error)

	// FetchBody returns the full raw message without marking it read.
	FetchBody(ctx context.Context, uid uint32) ([]byte, error)

	// Copy copies one message to another folder on the same account.
	Copy(ctx context.Context, uid uint32, dest string) error

	// AddFlags adds flags to messages without expunging.
	AddFlags(ctx context.Context, uids []uint32, flags ...string) error

	// Append uploads a raw message into a folder with the given flags.
	Append(ctx context.Context, folder string, body []byte, flags ...string) error

	// Expunge permanently removes \Deleted messages from the selection.
	Expunge(ctx context.Context) error

	// ListFolders returns selectable folder names matching the pattern.
	ListFolders(ctx context.Context, pattern string) ([]string, error)
}

// SeenStore records fingerprints of messages already processed.
// Implemented by *seen.Store.
type SeenStore interface {
	Has(fingerprint string) (bool, error)
	Record(fingerprint string) error
}
