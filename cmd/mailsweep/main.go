// Mailsweep is an unattended IMAP batch processor.
//
// It connects to one or more IMAP accounts on a schedule, walks
// configured folders, classifies each message against block lists, an
// age threshold, and an optional SpamAssassin instance, and routes it
// (trash, junk, quarantine, delete), then transfers surviving messages
// between accounts. A persistent fingerprint store guarantees each
// message is handled at most once even across restarts and UID churn.
// Configuration is a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	mailsweep init                      Write an example config file
//	mailsweep run                       Start the sweep daemon
//	mailsweep folders <account>         List an account's folders
//	mailsweep show <account> <folder>   Describe a folder's messages
//	mailsweep version                   Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/korzen/mailsweep/examples"
	"github.com/korzen/mailsweep/internal/buildinfo"
	"github.com/korzen/mailsweep/internal/config"
	"github.com/korzen/mailsweep/internal/mailbox"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the mailsweep command. OS-level
// dependencies are injected so the lifecycle is testable: ctx controls
// process lifetime, stdout/stderr receive all output, args is
// os.Args[1:]. Arguments are parsed by hand; the flag package's global
// state interferes with parallel tests and the surface here is tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag %q (try -help)", args[i])
			}
		}
	}

	if command == "" {
		return printUsage(stdout)
	}

	if command == "version" {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}
	if command == "init" {
		return runInit(stdout)
	}

	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))

	// SIGINT/SIGTERM cancel the context for an orderly shutdown.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		return runDaemon(ctx, cfg, logger)
	case "folders":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: mailsweep folders <account>")
		}
		return runFolders(ctx, cfg, cmdArgs[0], stdout, logger)
	case "show":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: mailsweep show <account> <folder>")
		}
		return runShow(ctx, cfg, cmdArgs[0], cmdArgs[1], stdout, logger)
	default:
		return fmt.Errorf("unknown command %q (try -help)", command)
	}
}

func printUsage(w io.Writer) error {
	usage := `mailsweep - unattended IMAP batch processor

Usage:
  mailsweep [flags] <command> [args]

Commands:
  init                      Write an example config to ./mailsweep.yaml
  run                       Start the sweep daemon
  folders <account>         List an account's folders
  show <account> <folder>   Describe each message in a folder
  version                   Print version and build information

Flags:
  -config <path>   Config file path (default: search standard locations)
  -help            Show this help
`
	_, err := fmt.Fprint(w, usage)
	return err
}

// runInit writes the embedded example config to the current directory.
func runInit(stdout io.Writer) error {
	const path = "mailsweep.yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, examples.ConfigYAML, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s; edit the accounts and set the password environment variables\n", path)
	return nil
}

// findAccount returns the named account's config.
func findAccount(cfg *config.Config, name string) (config.AccountConfig, error) {
	for _, a := range cfg.Accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return config.AccountConfig{}, fmt.Errorf("account %q not found in config", name)
}

// runFolders lists all folders of one account.
func runFolders(ctx context.Context, cfg *config.Config, account string, stdout io.Writer, logger *slog.Logger) error {
	ac, err := findAccount(cfg, account)
	if err != nil {
		return err
	}

	client := mailbox.NewClient(ac.IMAP, logger.With("account", ac.Name))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	folders, err := client.ListFolders(ctx, "*")
	if err != nil {
		return err
	}
	for _, name := range folders {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// runShow prints a describe line for every message in a folder.
func runShow(ctx context.Context, cfg *config.Config, account, folder string, stdout io.Writer, logger *slog.Logger) error {
	ac, err := findAccount(cfg, account)
	if err != nil {
		return err
	}

	client := mailbox.NewClient(ac.IMAP, logger.With("account", ac.Name))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := client.SelectFolder(ctx, folder); err != nil {
		return err
	}
	uids, err := client.SearchAll(ctx)
	if err != nil {
		return err
	}

	for i, uid := range uids {
		env, err := client.FetchEnvelope(ctx, uid)
		if err != nil {
			logger.Warn("envelope fetch failed", "uid", uid, "error", err)
			continue
		}
		fmt.Fprintf(stdout, "[%d/%d] %s\n", i+1, len(uids), env.Describe())
	}
	return nil
}
