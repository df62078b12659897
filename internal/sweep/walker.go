package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/korzen/mailsweep/internal/envelope"
	"github.com/korzen/mailsweep/internal/rules"
)

// StoreError marks a seen-store failure. Unlike per-message and
// per-folder problems it aborts the whole pass: without the store the
// idempotence guarantee is gone, so the supervisor backs off and retries.
type StoreError struct{ Err error }

func (e *StoreError) Error() string { return "seen store: " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// Walker runs folder walks for one account: list every message, gate it
// through the seen store, classify, route. A fingerprint is recorded only
// after its routing succeeded, so a crash mid-routing re-routes the
// message on the next pass instead of silently skipping it forever.
type Walker struct {
	sess       Session
	router     *Router
	seen       SeenStore
	engine     *rules.Engine
	classifier rules.Classifier
	logger     *slog.Logger
}

// NewWalker assembles a walker. classifier may be nil, which disables
// training for Learn dispositions.
func NewWalker(sess Session, router *Router, seen SeenStore, engine *rules.Engine, classifier rules.Classifier, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		sess:       sess,
		router:     router,
		seen:       seen,
		engine:     engine,
		classifier: classifier,
		logger:     logger,
	}
}

// Walk processes every message in the folder. With recursive set, every
// selectable folder under the root is walked as an independent pass; a
// failure in one folder is logged and does not stop the others. Only
// seen-store failures and cancellation escalate.
func (w *Walker) Walk(ctx context.Context, folder string, recursive bool) error {
	if !recursive {
		return w.walkFolder(ctx, folder)
	}

	folders, err := w.sess.ListFolders(ctx, folder+"*")
	if err != nil {
		return fmt.Errorf("expand %s: %w", folder, err)
	}

	for _, f := range folders {
		err := w.walkFolder(ctx, f)
		if err == nil {
			continue
		}
		var se *StoreError
		if errors.As(err, &se) || ctx.Err() != nil {
			return err
		}
		w.logger.Warn("folder walk failed, continuing with next folder", "folder", f, "error", err)
	}
	return nil
}

// walkFolder runs a single non-recursive walk.
func (w *Walker) walkFolder(ctx context.Context, folder string) error {
	if err := w.sess.SelectFolder(ctx, folder); err != nil {
		return err
	}
	uids, err := w.sess.SearchAll(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("walking folder", "folder", folder, "messages", len(uids))

	for i, uid := range uids {
		// Cancellation is checked between messages, never mid-operation.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processMessage(ctx, folder, uid, i+1, len(uids)); err != nil {
			return err
		}
	}

	if err := w.router.Flush(ctx); err != nil {
		w.logger.Warn("final expunge failed", "folder", folder, "error", err)
	}
	return nil
}

// processMessage handles one message. A non-nil return is always a
// seen-store failure; every per-message problem (fetch, fingerprint,
// routing) is logged with the message summary and swallowed so the walk
// continues.
func (w *Walker) processMessage(ctx context.Context, folder string, uid uint32, pos, count int) error {
	log := w.logger.With("folder", folder, "uid", uid)

	env, err := w.sess.FetchEnvelope(ctx, uid)
	if err != nil {
		log.Warn("envelope fetch failed, skipping message", "error", err)
		return nil
	}

	fp, err := envelope.Fingerprint(env, uid)
	if err != nil {
		log.Warn("cannot fingerprint message, skipping", "summary", env.Describe(), "error", err)
		return nil
	}

	has, err := w.seen.Has(fp)
	if err != nil {
		return &StoreError{Err: err}
	}
	if has {
		log.Debug("already handled, skipping")
		return nil
	}

	body := w.bodyFunc(uid)
	d := w.engine.Classify(ctx, env, body)
	log.Debug(fmt.Sprintf("[%d/%d] %s", pos, count, env.Describe()), "disposition", d.String())

	// Train before routing: after the move the UID no longer resolves.
	// Training failures degrade to a log line, the message still routes.
	if d.Learn != "" && w.classifier != nil {
		raw, err := body(ctx)
		if err != nil {
			log.Warn("body fetch for training failed", "error", err)
		} else if err := w.classifier.Train(ctx, raw, d.Learn); err != nil {
			log.Warn("classifier training failed", "error", err)
		}
	}

	if err := w.router.Apply(ctx, d, uid); err != nil {
		// Not recorded as seen, so the next pass retries it.
		log.Warn("routing failed, message left for next pass", "summary", env.Describe(), "error", err)
		return nil
	}

	if err := w.seen.Record(fp); err != nil {
		return &StoreError{Err: err}
	}
	return nil
}

// bodyFunc memoizes the body fetch so the classifier rule and training
// share a single FETCH.
func (w *Walker) bodyFunc(uid uint32) rules.BodyFunc {
	var cached []byte
	return func(ctx context.Context) ([]byte, error) {
		if cached != nil {
			return cached, nil
		}
		raw, err := w.sess.FetchBody(ctx, uid)
		if err != nil {
			return nil, err
		}
		cached = raw
		return cached, nil
	}
}
