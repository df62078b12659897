package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/korzen/mailsweep/internal/rules"
)

// expungeEvery bounds protocol round-trips: flag-deletes accumulate and
// the folder is expunged after this many, plus once at the end of every
// walk via Flush.
const expungeEvery = 50

// Router executes dispositions against a single selected folder. Moves
// are copy-then-flag-delete: if the copy fails the message is left
// untouched so it cannot be lost, and the next pass retries it.
type Router struct {
	sess   Session
	trash  string
	junk   string
	logger *slog.Logger

	pending int
}

// NewRouter creates a router for one account's session. trash and junk
// are the account's resolved special folder names.
func NewRouter(sess Session, trash, junk string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sess:   sess,
		trash:  trash,
		junk:   junk,
		logger: logger,
	}
}

// Apply executes a disposition for one message. A returned error means
// the message was left untouched (or at worst flagged but not yet
// expunged); callers log it and continue with the next message.
func (r *Router) Apply(ctx context.Context, d rules.Disposition, uid uint32) error {
	switch d.Action {
	case rules.ActionKeep:
		return nil
	case rules.ActionMoveToTrash:
		return r.move(ctx, uid, r.trash)
	case rules.ActionMoveToJunk:
		return r.move(ctx, uid, r.junk)
	case rules.ActionMoveToFolder:
		if d.Folder == "" {
			return fmt.Errorf("move disposition without target folder")
		}
		return r.move(ctx, uid, d.Folder)
	case rules.ActionDelete:
		return r.flagDelete(ctx, uid)
	default:
		return fmt.Errorf("unknown action %d", int(d.Action))
	}
}

// move copies the message to dest and then flag-deletes the source copy.
// The order matters: a failed copy must leave the source untouched.
func (r *Router) move(ctx context.Context, uid uint32, dest string) error {
	if err := r.sess.Copy(ctx, uid, dest); err != nil {
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return r.flagDelete(ctx, uid)
}

// flagDelete marks the message \Deleted and expunges periodically.
func (r *Router) flagDelete(ctx context.Context, uid uint32) error {
	if err := r.sess.AddFlags(ctx, []uint32{uid}, FlagDeleted); err != nil {
		return fmt.Errorf("flag deleted: %w", err)
	}

	r.pending++
	if r.pending >= expungeEvery {
		// Reclamation failure is not fatal to the message: it is
		// already flagged and the Flush at walk end (or the next pass)
		// retries the expunge.
		if err := r.sess.Expunge(ctx); err != nil {
			r.logger.Warn("periodic expunge failed", "error", err)
		} else {
			r.pending = 0
		}
	}
	return nil
}

// Flush expunges any accumulated flag-deletes. Called once at the end of
// each folder walk.
func (r *Router) Flush(ctx context.Context) error {
	if r.pending == 0 {
		return nil
	}
	if err := r.sess.Expunge(ctx); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	r.pending = 0
	return nil
}
