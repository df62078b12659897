package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/korzen/mailsweep/internal/buildinfo"
	"github.com/korzen/mailsweep/internal/classify"
	"github.com/korzen/mailsweep/internal/config"
	"github.com/korzen/mailsweep/internal/mailbox"
	"github.com/korzen/mailsweep/internal/rules"
	"github.com/korzen/mailsweep/internal/seen"
	"github.com/korzen/mailsweep/internal/supervisor"
	"github.com/korzen/mailsweep/internal/sweep"
)

// runDaemon wires the sweeper together and hands it to the supervisor
// loop until the context is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := seen.Open(cfg.SeenDB)
	if err != nil {
		return fmt.Errorf("open seen store %s: %w", cfg.SeenDB, err)
	}
	defer store.Close()

	if n, err := store.Count(); err == nil {
		logger.Info("seen store opened", "path", cfg.SeenDB, "fingerprints", n)
	}

	var classifier rules.Classifier
	if cfg.Classifier.Configured() {
		classifier = classify.NewClient(cfg.Classifier.Address, cfg.Classifier.Timeout(), logger.With("component", "spamd"))
		logger.Info("external classifier enabled", "address", cfg.Classifier.Address)
	}

	engine, err := rules.NewEngine(rules.Config{
		BlockedSenders:    cfg.Rules.BlockedSenders,
		BlockedRecipients: cfg.Rules.BlockedRecipients,
		MaxAge:            cfg.Rules.MaxAge(),
		Quarantine:        cfg.Rules.Quarantine,
	}, nil, classifier, logger.With("component", "rules"))
	if err != nil {
		return fmt.Errorf("build rule engine: %w", err)
	}

	runner := &jobRunner{
		cfg:        cfg,
		store:      store,
		engine:     engine,
		classifier: classifier,
		logger:     logger,
	}

	loop := supervisor.New(supervisor.Config{
		PollInterval:   cfg.Poll.Interval(),
		ConnectBackoff: cfg.Poll.ConnectBackoff(),
		FailureBackoff: cfg.Poll.FailureBackoff(),
	}, runner, logger.With("component", "supervisor"))

	logger.Info("mailsweep starting",
		"version", buildinfo.Version,
		"accounts", len(cfg.Accounts),
		"jobs", len(cfg.Jobs),
		"poll_interval", cfg.Poll.Interval().String(),
	)

	loop.Run(ctx)
	logger.Info("mailsweep stopped")
	return nil
}

// jobRunner implements supervisor.Runner: it connects every configured
// account, runs all jobs once per pass, and disconnects. Accounts and
// their sessions live for exactly one connect/disconnect cycle.
type jobRunner struct {
	cfg        *config.Config
	store      *seen.Store
	engine     *rules.Engine
	classifier rules.Classifier
	logger     *slog.Logger

	accounts map[string]*mailbox.Account
}

// Connect dials every account and resolves its special folders. On any
// failure the accounts connected so far are closed again; the supervisor
// treats the attempt as failed as a whole.
func (r *jobRunner) Connect(ctx context.Context) error {
	accounts := make(map[string]*mailbox.Account, len(r.cfg.Accounts))

	for _, ac := range r.cfg.Accounts {
		acct, err := mailbox.ConnectAccount(ctx, ac, r.logger)
		if err != nil {
			for _, a := range accounts {
				_ = a.Close()
			}
			return err
		}
		accounts[ac.Name] = acct
	}

	r.accounts = accounts
	return nil
}

// RunPass executes all configured jobs in order. Walk-job folder errors
// are contained (logged, next job runs); seen-store failures, transfer
// setup failures, and cancellation escalate to the supervisor.
func (r *jobRunner) RunPass(ctx context.Context) error {
	for i, job := range r.cfg.Jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch job.Type {
		case config.JobWalk:
			if err := r.runWalk(ctx, i, job); err != nil {
				return err
			}
		case config.JobTransfer:
			if err := r.runTransfer(ctx, i, job); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *jobRunner) runWalk(ctx context.Context, idx int, job config.JobConfig) error {
	acct, ok := r.accounts[job.Account]
	if !ok {
		return fmt.Errorf("job %d: account %q not connected", idx, job.Account)
	}

	log := r.logger.With("job", idx, "account", acct.Name)
	router := sweep.NewRouter(acct.Client, acct.Trash, acct.Junk, log)
	walker := sweep.NewWalker(acct.Client, router, r.store, r.engine, r.classifier, log)

	err := walker.Walk(ctx, job.Folder, job.Recursive)
	if err == nil {
		return nil
	}

	// Without the seen store there is no idempotence guarantee left, so
	// abandon the pass. Folder-level trouble stays contained to the job.
	var se *sweep.StoreError
	if errors.As(err, &se) {
		return fmt.Errorf("job %d: %w", idx, err)
	}
	if ctx.Err() != nil {
		return err
	}
	log.Warn("walk job failed, continuing with next job", "folder", job.Folder, "error", err)
	return nil
}

func (r *jobRunner) runTransfer(ctx context.Context, idx int, job config.JobConfig) error {
	src, ok := r.accounts[job.From]
	if !ok {
		return fmt.Errorf("job %d: account %q not connected", idx, job.From)
	}
	dst, ok := r.accounts[job.To]
	if !ok {
		return fmt.Errorf("job %d: account %q not connected", idx, job.To)
	}

	log := r.logger.With("job", idx, "from", src.Name, "to", dst.Name)
	_, err := sweep.Transfer(ctx, sweep.TransferJob{
		Source:       src.Client,
		SourceFolder: job.FromFolder,
		Dest:         dst.Client,
		DestFolder:   job.ToFolder,
		PreserveRead: job.PreserveRead,
	}, log)
	if err != nil {
		return fmt.Errorf("job %d: %w", idx, err)
	}
	return nil
}

// Disconnect closes every session best-effort.
func (r *jobRunner) Disconnect() {
	for name, acct := range r.accounts {
		if err := acct.Close(); err != nil {
			r.logger.Warn("error closing account", "account", name, "error", err)
		}
	}
	r.accounts = nil
}
