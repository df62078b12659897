package rules

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/korzen/mailsweep/internal/envelope"
)

// Rule is a user-supplied classification rule matched against the
// envelope. It returns the disposition and whether it matched. Custom
// rules run after the block lists and before the age threshold, with the
// same first-match-wins contract as the built-ins.
type Rule func(env envelope.Envelope) (Disposition, bool)

// Config holds the knobs for the built-in rules.
type Config struct {
	// BlockedSenders are case-insensitive regular expressions matched
	// against the full sender address (mailbox@host).
	BlockedSenders []string

	// BlockedRecipients match the recipient address the same way.
	BlockedRecipients []string

	// MaxAge moves messages older than this to trash. Zero disables
	// the age rule.
	MaxAge time.Duration

	// Quarantine is the folder blocked messages move to. Empty means the
	// account's junk folder.
	Quarantine string
}

// Engine evaluates the rule pipeline. It carries no per-message state;
// the same engine serves every message of every walk.
type Engine struct {
	blockedSenders    []*regexp.Regexp
	blockedRecipients []*regexp.Regexp
	custom            []Rule
	maxAge            time.Duration
	quarantine        string
	classifier        Classifier
	logger            *slog.Logger

	// now is stubbed in tests to pin the age rule.
	now func() time.Time
}

// NewEngine compiles the configured patterns and assembles the pipeline.
// classifier may be nil, which disables the classifier rule. custom may
// be nil or empty.
func NewEngine(cfg Config, custom []Rule, classifier Classifier, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	senders, err := compilePatterns(cfg.BlockedSenders)
	if err != nil {
		return nil, err
	}
	recipients, err := compilePatterns(cfg.BlockedRecipients)
	if err != nil {
		return nil, err
	}

	return &Engine{
		blockedSenders:    senders,
		blockedRecipients: recipients,
		custom:            custom,
		maxAge:            cfg.MaxAge,
		quarantine:        cfg.Quarantine,
		classifier:        classifier,
		logger:            logger,
		now:               time.Now,
	}, nil
}

// compilePatterns compiles each pattern case-insensitively.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// quarantineDisposition is the outcome for block-list matches: learn the
// message as spam, then move it out of the way.
func (e *Engine) quarantineDisposition() Disposition {
	if e.quarantine != "" {
		return Disposition{Action: ActionMoveToFolder, Folder: e.quarantine, Learn: LabelSpam}
	}
	return Disposition{Action: ActionMoveToJunk, Learn: LabelSpam}
}

// Classify runs the pipeline and returns the first matching disposition.
//
// Order: blocked sender, blocked recipient, custom rules, age threshold,
// external classifier, keep. A classifier failure (including a failed
// body fetch) is logged and degrades to Keep; it never aborts the walk.
func (e *Engine) Classify(ctx context.Context, env envelope.Envelope, body BodyFunc) Disposition {
	for _, re := range e.blockedSenders {
		if env.From != envelope.None && re.MatchString(env.From) {
			return e.quarantineDisposition()
		}
	}

	for _, re := range e.blockedRecipients {
		if env.To != envelope.None && re.MatchString(env.To) {
			return e.quarantineDisposition()
		}
	}

	for _, rule := range e.custom {
		if d, ok := rule(env); ok {
			return d
		}
	}

	if e.maxAge > 0 && !env.Date.IsZero() && e.now().Sub(env.Date) > e.maxAge {
		return Disposition{Action: ActionMoveToTrash}
	}

	if e.classifier != nil && body != nil {
		raw, err := body(ctx)
		if err != nil {
			e.logger.Warn("classifier body fetch failed, keeping message", "error", err)
			return Keep
		}
		verdict, err := e.classifier.Score(ctx, raw)
		if err != nil {
			e.logger.Warn("classifier score failed, keeping message", "error", err)
			return Keep
		}
		if verdict == VerdictReject {
			return Disposition{Action: ActionMoveToJunk}
		}
	}

	return Keep
}
