package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// TransferJob streams every message of one folder to a folder on another
// account. The source copy is flag-deleted only after its append
// succeeded, so no failure point can lose a message.
type TransferJob struct {
	Source       Session
	SourceFolder string
	Dest         Session
	DestFolder   string

	// PreserveRead carries the \Seen flag to the destination copy.
	PreserveRead bool
}

// Transfer runs the job. Per-message failures (fetch, append, flag) are
// logged and skipped; the remaining messages still transfer. The source
// folder is expunged once at the end. Returns the number of messages
// moved.
func Transfer(ctx context.Context, job TransferJob, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := job.Source.SelectFolder(ctx, job.SourceFolder); err != nil {
		return 0, fmt.Errorf("select source %s: %w", job.SourceFolder, err)
	}
	// Selecting the destination up front validates that it exists before
	// any source message is touched.
	if err := job.Dest.SelectFolder(ctx, job.DestFolder); err != nil {
		return 0, fmt.Errorf("select dest %s: %w", job.DestFolder, err)
	}

	uids, err := job.Source.SearchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("search source %s: %w", job.SourceFolder, err)
	}

	logger.Info("transferring folder",
		"source", job.SourceFolder,
		"dest", job.DestFolder,
		"messages", len(uids),
	)

	moved := 0
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		if err := transferOne(ctx, job, uid); err != nil {
			logger.Warn("transfer failed, message left in source",
				"source", job.SourceFolder,
				"uid", uid,
				"error", err,
			)
			continue
		}
		moved++
	}

	if moved > 0 {
		if err := job.Source.Expunge(ctx); err != nil {
			logger.Warn("source expunge failed", "source", job.SourceFolder, "error", err)
		}
	}

	logger.Info("transfer complete", "source", job.SourceFolder, "moved", moved, "total", len(uids))
	return moved, nil
}

// transferOne moves a single message: fetch, append, then flag-delete
// the source, strictly in that order.
func transferOne(ctx context.Context, job TransferJob, uid uint32) error {
	body, err := job.Source.FetchBody(ctx, uid)
	if err != nil {
		return fmt.Errorf("fetch body: %w", err)
	}

	var destFlags []string
	if job.PreserveRead {
		flags, err := job.Source.FetchFlags(ctx, uid)
		if err != nil {
			return fmt.Errorf("fetch flags: %w", err)
		}
		if slices.Contains(flags, FlagSeen) {
			destFlags = append(destFlags, FlagSeen)
		}
	}

	if err := job.Dest.Append(ctx, job.DestFolder, body, destFlags...); err != nil {
		return fmt.Errorf("append to %s: %w", job.DestFolder, err)
	}

	if err := job.Source.AddFlags(ctx, []uint32{uid}, FlagDeleted); err != nil {
		return fmt.Errorf("flag source deleted: %w", err)
	}
	return nil
}
