package mailbox

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/korzen/mailsweep/internal/envelope"
)

// SelectFolder selects a mailbox for subsequent operations. UIDs from
// search and fetch are only valid while the selection is open.
func (c *Client) SelectFolder(ctx context.Context, folder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	_, err := c.selectFolderLocked(folder)
	return err
}

// SearchAll returns the UIDs of every message in the selected folder,
// in ascending order.
func (c *Client) SearchAll(ctx context.Context) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	searchCmd := c.client.UIDSearch(&imap.SearchCriteria{}, nil)
	searchData, err := searchCmd.Wait()
	if err != nil {
		return nil, fmt.Errorf("search all: %w", err)
	}

	allUIDs := searchData.AllUIDs()
	uids := make([]uint32, 0, len(allUIDs))
	for _, uid := range allUIDs {
		uids = append(uids, uint32(uid))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// FetchEnvelope fetches and normalizes the envelope of a single message.
func (c *Client) FetchEnvelope(ctx context.Context, uid uint32) (envelope.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return envelope.Envelope{}, err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
	})
	msgs, err := fetchCmd.Collect()
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("fetch envelope UID %d: %w", uid, err)
	}
	if len(msgs) == 0 || msgs[0].Envelope == nil {
		return envelope.Envelope{}, fmt.Errorf("no envelope for UID %d", uid)
	}

	return normalizeEnvelope(msgs[0].Envelope), nil
}

// normalizeEnvelope converts an IMAP envelope into the sweeper's
// normalized form: decoded subject, mailbox@host addresses, and the None
// sentinel for absent fields.
func normalizeEnvelope(env *imap.Envelope) envelope.Envelope {
	out := envelope.Envelope{
		Subject:   envelope.None,
		From:      envelope.None,
		To:        envelope.None,
		MessageID: envelope.None,
		Date:      env.Date,
	}

	if env.Subject != "" {
		out.Subject = envelope.DecodeHeader(env.Subject)
	}
	if len(env.From) > 0 {
		out.From = envelope.FormatAddress(env.From[0].Mailbox, env.From[0].Host)
	}
	if len(env.To) > 0 {
		out.To = envelope.FormatAddress(env.To[0].Mailbox, env.To[0].Host)
	}
	if env.MessageID != "" {
		out.MessageID = env.MessageID
	}

	return out
}

// FetchFlags returns the current flags of a single message.
func (c *Client) FetchFlags(ctx context.Context, uid uint32) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:   true,
		Flags: true,
	})
	msgs, err := fetchCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch flags UID %d: %w", uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no flags for UID %d", uid)
	}

	flags := make([]string, 0, len(msgs[0].Flags))
	for _, f := range msgs[0].Flags {
		flags = append(flags, string(f))
	}
	return flags, nil
}

// FetchBody fetches the full raw RFC 822 message without setting \Seen
// (BODY.PEEK semantics). The literal is consumed immediately; go-imap/v2
// streams it from the connection and advancing past an unread literal
// would lose the data.
func (c *Client) FetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true},
		},
	})

	var body []byte
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			section, ok := item.(imapclient.FetchItemDataBodySection)
			if !ok {
				continue
			}
			if section.Literal == nil {
				continue
			}
			raw, err := io.ReadAll(section.Literal)
			if err != nil {
				// Keep the IMAP stream in sync before reporting.
				_, _ = io.Copy(io.Discard, section.Literal)
				_ = fetchCmd.Close()
				return nil, fmt.Errorf("read body UID %d: %w", uid, err)
			}
			body = raw
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch body UID %d: %w", uid, err)
	}
	if body == nil {
		return nil, fmt.Errorf("no body for UID %d", uid)
	}
	return body, nil
}

// Copy copies a message to the destination folder on the same account.
func (c *Client) Copy(ctx context.Context, uid uint32, dest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	if _, err := c.client.Copy(uidSet, dest).Wait(); err != nil {
		return fmt.Errorf("copy UID %d to %s: %w", uid, dest, err)
	}
	return nil
}

// AddFlags adds the given flags to the messages without expunging.
func (c *Client) AddFlags(ctx context.Context, uids []uint32, flags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	if len(uids) == 0 {
		return fmt.Errorf("no UIDs specified")
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	imapFlags := make([]imap.Flag, 0, len(flags))
	for _, f := range flags {
		imapFlags = append(imapFlags, imap.Flag(f))
	}

	storeCmd := c.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  imapFlags,
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("store flags: %w", err)
	}
	return nil
}

// Append uploads a raw message into the given folder with the given
// flags. The folder does not need to be selected.
func (c *Client) Append(ctx context.Context, folder string, body []byte, flags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	imapFlags := make([]imap.Flag, 0, len(flags))
	for _, f := range flags {
		imapFlags = append(imapFlags, imap.Flag(f))
	}

	appendCmd := c.client.Append(folder, int64(len(body)), &imap.AppendOptions{
		Flags: imapFlags,
	})
	if _, err := appendCmd.Write(body); err != nil {
		return fmt.Errorf("append to %s: %w", folder, err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("append to %s: %w", folder, err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return fmt.Errorf("append to %s: %w", folder, err)
	}
	return nil
}

// Expunge permanently removes \Deleted messages from the selected folder.
func (c *Client) Expunge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	if err := c.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

// ListFolders returns the names of selectable folders matching the IMAP
// list pattern ("*" for everything), sorted alphabetically.
func (c *Client) ListFolders(ctx context.Context, pattern string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	listCmd := c.client.List("", pattern, nil)
	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	var names []string
	for _, mbox := range mailboxes {
		noselect := false
		for _, attr := range mbox.Attrs {
			if attr == imap.MailboxAttrNoSelect {
				noselect = true
				break
			}
		}
		if noselect {
			continue
		}
		names = append(names, mbox.Mailbox)
	}

	sort.Strings(names)
	return names, nil
}
