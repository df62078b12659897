package mailbox

import (
	"context"
	"errors"
	"testing"
)

// fakeLister returns a fixed folder listing.
type fakeLister struct {
	folders []string
	err     error
}

func (f *fakeLister) ListFolders(ctx context.Context, pattern string) ([]string, error) {
	return f.folders, f.err
}

func TestResolveTrash(t *testing.T) {
	tests := []struct {
		name    string
		folders []string
		want    string
		wantErr error
	}{
		{
			name:    "plain trash",
			folders: []string{"INBOX", "Trash", "Sent"},
			want:    "Trash",
		},
		{
			name:    "outlook style",
			folders: []string{"INBOX", "Deleted Items"},
			want:    "Deleted Items",
		},
		{
			name:    "gmail style",
			folders: []string{"INBOX", "[Gmail]/Trash", "[Gmail]/Spam"},
			want:    "[Gmail]/Trash",
		},
		{
			name:    "canonical order wins over listing order",
			folders: []string{"Deleted Messages", "Trash"},
			want:    "Trash",
		},
		{
			name:    "case sensitive",
			folders: []string{"INBOX", "trash"},
			wantErr: ErrNoTrashFolder,
		},
		{
			name:    "near miss is not a match",
			folders: []string{"INBOX", "Trash Stuff"},
			wantErr: ErrNoTrashFolder,
		},
		{
			name:    "no trash anywhere",
			folders: []string{"INBOX", "Sent"},
			wantErr: ErrNoTrashFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTrash(context.Background(), &fakeLister{folders: tt.folders})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveTrash: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveTrash = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveJunk(t *testing.T) {
	tests := []struct {
		name    string
		folders []string
		want    string
		wantErr error
	}{
		{
			name:    "plain junk",
			folders: []string{"INBOX", "Junk"},
			want:    "Junk",
		},
		{
			name:    "spam alias",
			folders: []string{"INBOX", "Spam"},
			want:    "Spam",
		},
		{
			name:    "exchange style",
			folders: []string{"INBOX", "Junk E-mail"},
			want:    "Junk E-mail",
		},
		{
			name:    "missing",
			folders: []string{"INBOX", "Trash"},
			wantErr: ErrNoJunkFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveJunk(context.Background(), &fakeLister{folders: tt.folders})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveJunk: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveJunk = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveListFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection reset")}
	if _, err := ResolveTrash(context.Background(), lister); err == nil {
		t.Fatal("ResolveTrash swallowed a listing failure")
	}
}
