package mailbox

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for accounts missing the required special folders.
// Either one is fatal to the account's connection attempt; the
// supervisor treats it like a connect failure and backs off.
var (
	ErrNoTrashFolder = errors.New("mailbox: no trash folder found")
	ErrNoJunkFolder  = errors.New("mailbox: no junk folder found")
)

// Canonical special-folder names, matched case-sensitively against the
// account's folder listing in order. Deliberately not a fuzzy match: a
// user folder named "trash stuff" must never be mistaken for Trash.
var (
	trashNames = []string{"Trash", "Deleted Items", "Deleted Messages", "[Gmail]/Trash"}
	junkNames  = []string{"Junk", "Junk E-mail", "Spam", "[Gmail]/Spam"}
)

// FolderLister is the slice of the session the resolver needs.
type FolderLister interface {
	ListFolders(ctx context.Context, pattern string) ([]string, error)
}

// ResolveTrash locates the account's trash-equivalent folder.
func ResolveTrash(ctx context.Context, lister FolderLister) (string, error) {
	return resolveSpecial(ctx, lister, trashNames, ErrNoTrashFolder)
}

// ResolveJunk locates the account's junk-equivalent folder.
func ResolveJunk(ctx context.Context, lister FolderLister) (string, error) {
	return resolveSpecial(ctx, lister, junkNames, ErrNoJunkFolder)
}

func resolveSpecial(ctx context.Context, lister FolderLister, canonical []string, missing error) (string, error) {
	folders, err := lister.ListFolders(ctx, "*")
	if err != nil {
		return "", fmt.Errorf("list folders: %w", err)
	}

	have := make(map[string]bool, len(folders))
	for _, name := range folders {
		have[name] = true
	}
	for _, name := range canonical {
		if have[name] {
			return name, nil
		}
	}
	return "", missing
}
