package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedRunner drives the loop from inside: its connect/pass hooks can
// fail on schedule or cancel the context to end the test.
type scriptedRunner struct {
	connectFn func(attempt int) error
	passFn    func(pass int) error

	connects    int
	passes      int
	disconnects int
}

func (r *scriptedRunner) Connect(ctx context.Context) error {
	r.connects++
	if r.connectFn != nil {
		return r.connectFn(r.connects)
	}
	return nil
}

func (r *scriptedRunner) RunPass(ctx context.Context) error {
	r.passes++
	if r.passFn != nil {
		return r.passFn(r.passes)
	}
	return nil
}

func (r *scriptedRunner) Disconnect() {
	r.disconnects++
}

func fastConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		ConnectBackoff: time.Millisecond,
		FailureBackoff: time.Millisecond,
	}
}

// runLoop runs the loop to completion and returns the observed state
// transitions.
func runLoop(t *testing.T, ctx context.Context, r Runner) []State {
	t.Helper()
	l := New(fastConfig(), r, discardLogger())
	var states []State
	l.onState = func(s State) { states = append(states, s) }

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	return states
}

func TestLoopRunsPassesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedRunner{
		passFn: func(pass int) error {
			if pass == 3 {
				cancel()
			}
			return nil
		},
	}

	states := runLoop(t, ctx, r)

	if r.passes != 3 {
		t.Errorf("passes = %d, want 3", r.passes)
	}
	if r.connects != 1 {
		t.Errorf("connects = %d, want 1 (no failures)", r.connects)
	}
	if r.disconnects != 1 {
		t.Errorf("disconnects = %d, want exactly 1 on shutdown", r.disconnects)
	}
	if states[len(states)-1] != StateStopped {
		t.Errorf("final state = %v, want stopped", states[len(states)-1])
	}
	if !slices.Contains(states, StateSleeping) {
		t.Errorf("loop never slept between passes: %v", states)
	}
}

func TestLoopConnectFailureBacksOffAndRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedRunner{
		connectFn: func(attempt int) error {
			if attempt <= 2 {
				return errors.New("connection refused")
			}
			return nil
		},
		passFn: func(pass int) error {
			cancel()
			return nil
		},
	}

	states := runLoop(t, ctx, r)

	if r.connects != 3 {
		t.Errorf("connects = %d, want 3 (two failures, one success)", r.connects)
	}
	if r.passes != 1 {
		t.Errorf("passes = %d, want 1", r.passes)
	}
	// No session exists after a failed connect, so nothing to disconnect
	// until the successful cycle shuts down.
	if r.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", r.disconnects)
	}

	down := 0
	for _, s := range states {
		if s == StateDisconnected {
			down++
		}
	}
	if down != 2 {
		t.Errorf("observed %d disconnected states, want 2 (one per failed connect)", down)
	}
}

func TestLoopPassFailureDisconnectsAndReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedRunner{
		passFn: func(pass int) error {
			if pass == 1 {
				return errors.New("seen store: database is locked")
			}
			cancel()
			return nil
		},
	}

	states := runLoop(t, ctx, r)

	if r.connects != 2 {
		t.Errorf("connects = %d, want 2 (reconnect after failed pass)", r.connects)
	}
	if r.disconnects != 2 {
		t.Errorf("disconnects = %d, want 2 (after failure and on shutdown)", r.disconnects)
	}
	if !slices.Contains(states, StateDisconnected) {
		t.Errorf("failed pass never surfaced as disconnected: %v", states)
	}
}

func TestLoopCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &scriptedRunner{}

	states := runLoop(t, ctx, r)

	if r.connects != 0 {
		t.Errorf("connects = %d on pre-cancelled context, want 0", r.connects)
	}
	if len(states) != 1 || states[0] != StateStopped {
		t.Errorf("states = %v, want [stopped]", states)
	}
}

func TestLoopCancelDuringSleepDisconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedRunner{}

	l := New(Config{
		PollInterval:   time.Hour, // the test cancels out of this sleep
		ConnectBackoff: time.Millisecond,
		FailureBackoff: time.Millisecond,
	}, r, discardLogger())
	l.onState = func(s State) {
		if s == StateSleeping {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	if r.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1 on cancelled sleep", r.disconnects)
	}
	if l.State() != StateStopped {
		t.Errorf("state = %v, want stopped", l.State())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateRunning, "running"},
		{StateSleeping, "sleeping"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
