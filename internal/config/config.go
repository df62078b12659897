// Package config handles mailsweep configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./mailsweep.yaml, ~/.config/mailsweep/config.yaml,
// /etc/mailsweep/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"mailsweep.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mailsweep", "config.yaml"))
	}

	paths = append(paths, "/etc/mailsweep/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all mailsweep configuration.
type Config struct {
	// DataDir is where local state (the seen database) lives.
	// Default: current directory.
	DataDir string `yaml:"data_dir"`

	// SeenDB overrides the seen database path. Default: <data_dir>/seen.db.
	SeenDB string `yaml:"seen_db"`

	LogLevel   string           `yaml:"log_level"`
	Poll       PollConfig       `yaml:"poll"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Accounts   []AccountConfig  `yaml:"accounts"`
	Rules      RulesConfig      `yaml:"rules"`
	Jobs       []JobConfig      `yaml:"jobs"`
}

// PollConfig controls pass timing and reconnect backoff.
type PollConfig struct {
	// IntervalSec is the sleep between successful passes. Default: 300.
	IntervalSec int `yaml:"interval_sec"`

	// ConnectBackoffSec is the delay after a failed connection attempt.
	// Default: 30.
	ConnectBackoffSec int `yaml:"connect_backoff_sec"`

	// FailureBackoffSec is the longer delay after a pass fails mid-run.
	// Default: 120.
	FailureBackoffSec int `yaml:"failure_backoff_sec"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSec) * time.Second
}

// ConnectBackoff returns the connect-failure delay as a duration.
func (p PollConfig) ConnectBackoff() time.Duration {
	return time.Duration(p.ConnectBackoffSec) * time.Second
}

// FailureBackoff returns the mid-run-failure delay as a duration.
func (p PollConfig) FailureBackoff() time.Duration {
	return time.Duration(p.FailureBackoffSec) * time.Second
}

// ClassifierConfig points at a SpamAssassin spamd instance. Leave Address
// empty to run without the external classifier rule.
type ClassifierConfig struct {
	// Address is the spamd host:port (e.g., "127.0.0.1:783").
	Address string `yaml:"address"`

	// TimeoutSec bounds a single CHECK or TELL round-trip. Default: 30.
	TimeoutSec int `yaml:"timeout_sec"`
}

// Configured reports whether an external classifier is set up.
func (c ClassifierConfig) Configured() bool {
	return c.Address != ""
}

// Timeout returns the per-call timeout as a duration.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// AccountConfig describes a single IMAP account.
type AccountConfig struct {
	// Name is a short identifier used in job references and logging
	// (e.g., "personal", "work"). Required.
	Name string `yaml:"name"`

	// IMAP configures the connection.
	IMAP IMAPConfig `yaml:"imap"`
}

// IMAPConfig holds IMAP server connection parameters.
type IMAPConfig struct {
	// Host is the IMAP server hostname (e.g., "imap.example.com").
	Host string `yaml:"host"`

	// Port is the IMAP server port. Default: 993 (IMAPS).
	Port int `yaml:"port"`

	// Username is the IMAP login username (typically the email address).
	Username string `yaml:"username"`

	// Password is the IMAP login password. Supports environment variable
	// expansion via the config loader (e.g., ${IMAP_PASSWORD}).
	Password string `yaml:"password"`

	// TLS controls whether to use TLS. Default: true. Set to false only
	// for port 143 plaintext connections (not recommended).
	TLS bool `yaml:"tls"`
}

// RulesConfig drives the classification engine.
type RulesConfig struct {
	// BlockedSenders are case-insensitive regular expressions matched
	// against the full sender address (mailbox@host). A match quarantines
	// the message and feeds it to the classifier as spam.
	BlockedSenders []string `yaml:"blocked_senders"`

	// BlockedRecipients work like BlockedSenders but match the recipient.
	// Useful for catch-all domains where spam targets invented aliases.
	BlockedRecipients []string `yaml:"blocked_recipients"`

	// MaxAgeDays moves messages older than this to trash. Zero disables
	// the age rule.
	MaxAgeDays int `yaml:"max_age_days"`

	// Quarantine overrides the folder blocked messages land in.
	// Default: the account's resolved junk folder.
	Quarantine string `yaml:"quarantine"`
}

// MaxAge returns the age threshold as a duration. Zero means disabled.
func (r RulesConfig) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeDays) * 24 * time.Hour
}

// Job types accepted in JobConfig.Type.
const (
	JobWalk     = "walk"
	JobTransfer = "transfer"
)

// JobConfig describes one unit of work per pass: either a folder walk on
// a single account or a cross-account transfer. Jobs run in config order.
type JobConfig struct {
	// Type is "walk" or "transfer". Required.
	Type string `yaml:"type"`

	// Account and Folder name the walk target. Recursive expands the walk
	// to every folder under Folder. Walk jobs only.
	Account   string `yaml:"account"`
	Folder    string `yaml:"folder"`
	Recursive bool   `yaml:"recursive"`

	// From/FromFolder and To/ToFolder name the transfer endpoints.
	// PreserveRead carries the \Seen flag across. Transfer jobs only.
	From         string `yaml:"from"`
	FromFolder   string `yaml:"from_folder"`
	To           string `yaml:"to"`
	ToFolder     string `yaml:"to_folder"`
	PreserveRead bool   `yaml:"preserve_read"`
}

// Load reads configuration from a YAML file, expands ${VAR} references
// from the environment, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// ApplyDefaults fills zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.SeenDB == "" {
		c.SeenDB = filepath.Join(c.DataDir, "seen.db")
	}
	if c.Poll.IntervalSec == 0 {
		c.Poll.IntervalSec = 300
	}
	if c.Poll.ConnectBackoffSec == 0 {
		c.Poll.ConnectBackoffSec = 30
	}
	if c.Poll.FailureBackoffSec == 0 {
		c.Poll.FailureBackoffSec = 120
	}
	if c.Classifier.TimeoutSec == 0 {
		c.Classifier.TimeoutSec = 30
	}

	for i := range c.Accounts {
		if c.Accounts[i].IMAP.Port == 0 {
			c.Accounts[i].IMAP.Port = 993
		}
		// TLS defaults to true unless the port is 143 (plaintext convention).
		if !c.Accounts[i].IMAP.TLS && c.Accounts[i].IMAP.Port != 143 {
			c.Accounts[i].IMAP.TLS = true
		}
	}
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c Config) Validate() error {
	names := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("accounts[%d].name must not be empty", i)
		}
		if names[a.Name] {
			return fmt.Errorf("accounts[%d].name %q is a duplicate", i, a.Name)
		}
		names[a.Name] = true

		if a.IMAP.Host == "" {
			return fmt.Errorf("accounts[%d] (%s): imap.host is required", i, a.Name)
		}
		if a.IMAP.Username == "" {
			return fmt.Errorf("accounts[%d] (%s): imap.username is required", i, a.Name)
		}
		if a.IMAP.Port < 1 || a.IMAP.Port > 65535 {
			return fmt.Errorf("accounts[%d] (%s): imap.port %d out of range (1-65535)", i, a.Name, a.IMAP.Port)
		}
	}

	for i, pattern := range c.Rules.BlockedSenders {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("rules.blocked_senders[%d] %q: %w", i, pattern, err)
		}
	}
	for i, pattern := range c.Rules.BlockedRecipients {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("rules.blocked_recipients[%d] %q: %w", i, pattern, err)
		}
	}
	if c.Rules.MaxAgeDays < 0 {
		return fmt.Errorf("rules.max_age_days must not be negative")
	}

	for i, j := range c.Jobs {
		switch j.Type {
		case JobWalk:
			if j.Account == "" {
				return fmt.Errorf("jobs[%d]: account is required for walk jobs", i)
			}
			if !names[j.Account] {
				return fmt.Errorf("jobs[%d]: unknown account %q", i, j.Account)
			}
			if j.Folder == "" {
				return fmt.Errorf("jobs[%d]: folder is required for walk jobs", i)
			}
		case JobTransfer:
			if j.From == "" || j.To == "" {
				return fmt.Errorf("jobs[%d]: from and to are required for transfer jobs", i)
			}
			if !names[j.From] {
				return fmt.Errorf("jobs[%d]: unknown account %q", i, j.From)
			}
			if !names[j.To] {
				return fmt.Errorf("jobs[%d]: unknown account %q", i, j.To)
			}
			if j.FromFolder == "" || j.ToFolder == "" {
				return fmt.Errorf("jobs[%d]: from_folder and to_folder are required for transfer jobs", i)
			}
		default:
			return fmt.Errorf("jobs[%d]: unknown type %q (valid: walk, transfer)", i, j.Type)
		}
	}

	return nil
}
