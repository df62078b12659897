package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/korzen/mailsweep/internal/config"
)

// Account is a connected IMAP account with its special folders resolved.
// Trash and Junk are required: an account without both never connects.
type Account struct {
	// Name is the configured account identifier.
	Name string

	// Trash is the resolved trash-equivalent folder name.
	Trash string

	// Junk is the resolved junk-equivalent folder name.
	Junk string

	*Client
}

// ConnectAccount dials and authenticates the account, then resolves its
// trash and junk folders. Any failure closes the connection and returns
// an error; resolution failures wrap ErrNoTrashFolder or ErrNoJunkFolder.
func ConnectAccount(ctx context.Context, cfg config.AccountConfig, logger *slog.Logger) (*Account, error) {
	client := NewClient(cfg.IMAP, logger.With("account", cfg.Name))

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("account %s: %w", cfg.Name, err)
	}

	trash, err := ResolveTrash(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("account %s: %w", cfg.Name, err)
	}
	junk, err := ResolveJunk(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("account %s: %w", cfg.Name, err)
	}

	logger.Debug("special folders resolved", "account", cfg.Name, "trash", trash, "junk", junk)

	return &Account{
		Name:   cfg.Name,
		Trash:  trash,
		Junk:   junk,
		Client: client,
	}, nil
}
