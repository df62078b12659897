// Package classify talks to a SpamAssassin spamd instance over its SPAMC
// wire protocol. It implements the rules.Classifier capability: CHECK for
// scoring and TELL for training. The sweeper treats every failure here as
// degradable: a broken classifier never stops a walk.
package classify

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/korzen/mailsweep/internal/rules"
)

const protocolVersion = "SPAMC/1.5"

// Client is a spamd client. Each call opens a fresh connection, which is
// how the protocol is designed to be used.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a spamd client for the given host:port.
func NewClient(addr string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		addr:    addr,
		timeout: timeout,
		logger:  logger,
	}
}

// Score asks spamd for a verdict on the raw message.
func (c *Client) Score(ctx context.Context, body []byte) (rules.Verdict, error) {
	headers, err := c.roundTrip(ctx, "CHECK", nil, body)
	if err != nil {
		return rules.VerdictPass, err
	}

	spam, ok := headers["spam"]
	if !ok {
		return rules.VerdictPass, fmt.Errorf("spamd: response missing Spam header")
	}
	// The header reads "True ; 15.0 / 5.0" or "False ; 1.2 / 5.0".
	verdict, _, _ := strings.Cut(spam, ";")
	if strings.EqualFold(strings.TrimSpace(verdict), "true") {
		return rules.VerdictReject, nil
	}
	return rules.VerdictPass, nil
}

// Train feeds the raw message to spamd's Bayes store under the label.
func (c *Client) Train(ctx context.Context, body []byte, label rules.Label) error {
	var class string
	switch label {
	case rules.LabelSpam:
		class = "spam"
	case rules.LabelHam:
		class = "ham"
	default:
		return fmt.Errorf("spamd: unknown training label %q", label)
	}

	extra := []string{
		"Message-class: " + class,
		"Set: local",
	}
	_, err := c.roundTrip(ctx, "TELL", extra, body)
	return err
}

// roundTrip performs one SPAMC exchange and returns the response headers
// keyed by lowercased name.
func (c *Client) roundTrip(ctx context.Context, command string, extraHeaders []string, body []byte) (map[string]string, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("spamd dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	var req strings.Builder
	fmt.Fprintf(&req, "%s %s\r\n", command, protocolVersion)
	fmt.Fprintf(&req, "Content-length: %d\r\n", len(body))
	for _, h := range extraHeaders {
		req.WriteString(h)
		req.WriteString("\r\n")
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		return nil, fmt.Errorf("spamd write: %w", err)
	}
	if _, err := conn.Write(body); err != nil {
		return nil, fmt.Errorf("spamd write body: %w", err)
	}
	// Half-close tells spamd the request is complete.
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("spamd read status: %w", err)
	}

	// Status line: "SPAMD/1.1 0 EX_OK".
	fields := strings.Fields(strings.TrimSpace(status))
	if len(fields) < 3 || !strings.HasPrefix(fields[0], "SPAMD/") {
		return nil, fmt.Errorf("spamd: malformed status line %q", strings.TrimSpace(status))
	}
	if fields[1] != "0" {
		return nil, fmt.Errorf("spamd: %s %s", fields[1], strings.Join(fields[2:], " "))
	}

	headers := make(map[string]string)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// The response body (if any) follows the blank line; some
			// spamd builds close the connection right after the headers.
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	return headers, nil
}
