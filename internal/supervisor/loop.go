// Package supervisor keeps the sweeper alive across connection loss. It
// runs the outer control loop: connect all accounts, run one full pass
// of the configured jobs, sleep, repeat. On any unrecovered failure it
// disconnect cleanly, back off, and start over from scratch.
package supervisor

import (
	"context"
	"log/slog"
	"time"
)

// State is the loop's position in its lifecycle. Transitions:
// Disconnected → Connecting → Running → (Sleeping → Running)* →
// Disconnected, with Stopped terminal on cancellation.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRunning
	StateSleeping
	StateStopped
)

// String returns the lowercase state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner is one complete unit of supervised work: connect every account,
// run all jobs once, disconnect. Implemented by the job runner in
// cmd/mailsweep.
type Runner interface {
	// Connect establishes all account sessions and resolves their
	// special folders. A failure leaves nothing connected.
	Connect(ctx context.Context) error

	// RunPass executes all configured jobs once, in order.
	RunPass(ctx context.Context) error

	// Disconnect closes all sessions best-effort. Errors are logged by
	// the implementation, never propagated.
	Disconnect()
}

// Config holds the loop timing.
type Config struct {
	// PollInterval is the sleep between successful passes.
	PollInterval time.Duration

	// ConnectBackoff is the delay after a failed connection attempt.
	ConnectBackoff time.Duration

	// FailureBackoff is the longer delay after a pass fails mid-run.
	FailureBackoff time.Duration
}

// Loop is the supervising state machine.
type Loop struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	state State

	// onState, when set, observes every state transition. Used by tests.
	onState func(State)
}

// New creates a supervisor loop around the runner.
func New(cfg Config, runner Runner, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		state:  StateDisconnected,
	}
}

// State returns the loop's current state. Only meaningful from the
// goroutine driving Run (the loop is single-threaded by design).
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) setState(s State) {
	if s == l.state {
		return
	}
	l.logger.Debug("supervisor state change", "from", l.state.String(), "to", s.String())
	l.state = s
	if l.onState != nil {
		l.onState(s)
	}
}

// Run drives the loop until ctx is cancelled. It never returns an error:
// every failure is absorbed into a backoff-and-retry, and cancellation is
// an orderly stop.
func (l *Loop) Run(ctx context.Context) {
	defer l.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return
		}

		l.setState(StateConnecting)
		if err := l.runner.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("connect failed, backing off",
				"error", err,
				"backoff", l.cfg.ConnectBackoff.String(),
			)
			l.setState(StateDisconnected)
			if !sleepCtx(ctx, l.cfg.ConnectBackoff) {
				return
			}
			continue
		}

		if !l.runConnected(ctx) {
			return
		}
	}
}

// runConnected is the inner Running/Sleeping cycle. It returns false when
// the loop should stop, true when it should reconnect after a failure.
// The runner is disconnected on every exit path.
func (l *Loop) runConnected(ctx context.Context) bool {
	for {
		l.setState(StateRunning)
		err := l.runner.RunPass(ctx)

		if ctx.Err() != nil {
			l.disconnect()
			return false
		}

		if err != nil {
			l.logger.Error("pass failed, reconnecting after backoff",
				"error", err,
				"backoff", l.cfg.FailureBackoff.String(),
			)
			l.disconnect()
			l.setState(StateDisconnected)
			if !sleepCtx(ctx, l.cfg.FailureBackoff) {
				return false
			}
			return true
		}

		l.setState(StateSleeping)
		if !sleepCtx(ctx, l.cfg.PollInterval) {
			l.disconnect()
			return false
		}
	}
}

func (l *Loop) disconnect() {
	l.runner.Disconnect()
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
