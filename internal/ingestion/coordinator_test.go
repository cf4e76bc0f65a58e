package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"clipbot/internal/health"
	"clipbot/internal/models"
)

// fakeSource is a minimal, script-driven Source for coordinator tests.
type fakeSource struct {
	name       string
	connectErr error

	mu        sync.Mutex
	connected bool
	done      chan struct{}
	events    chan models.Event
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{name: name, events: make(chan models.Event, 4)}
}

func (f *fakeSource) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.done = make(chan struct{})
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakeSource) SourceName() string          { return f.name }
func (f *fakeSource) Events() <-chan models.Event { return f.events }

func (f *fakeSource) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// simulateSilentDisconnect mimics a read-loop exit on a socket error or
// session_reconnect: connected flips false and done closes, but events
// stays open, matching the real sources' contract.
func (f *fakeSource) simulateSilentDisconnect() {
	f.mu.Lock()
	f.connected = false
	close(f.done)
	f.mu.Unlock()
}

func TestNewCoordinatorDefaultsMaxDelay(t *testing.T) {
	c := NewCoordinator(newFakeSource("ws"), newFakeSource("irc"), health.NewRegistry(), 0)
	if c.backoff.Max != 300*time.Second {
		t.Fatalf("expected default max delay of 300s, got %s", c.backoff.Max)
	}
}

func TestNewCoordinatorHonorsConfiguredMaxDelay(t *testing.T) {
	c := NewCoordinator(newFakeSource("ws"), newFakeSource("irc"), health.NewRegistry(), 5*time.Second)
	if c.backoff.Max != 5*time.Second {
		t.Fatalf("expected configured max delay of 5s, got %s", c.backoff.Max)
	}
}

func TestCoordinatorFailsOverToIRCWhenWSCannotConnect(t *testing.T) {
	ws := newFakeSource("eventsub-websocket")
	ws.connectErr = errConnectRefused
	irc := newFakeSource("irc")

	c := NewCoordinator(ws, irc, health.NewRegistry(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(models.Event) {})
		close(done)
	}()

	deadline := time.After(150 * time.Millisecond)
	for {
		if c.ActiveSource() == "irc" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("coordinator never failed over to irc")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// TestCoordinatorReconnectsAfterSilentDisconnect guards against stream()
// blocking forever on a mid-stream drop that produces no further events:
// the read loop exits, closes Done(), but never closes or writes to
// Events(). The coordinator must notice and reconnect instead of hanging.
func TestCoordinatorReconnectsAfterSilentDisconnect(t *testing.T) {
	ws := newFakeSource("eventsub-websocket")
	irc := newFakeSource("irc")

	c := NewCoordinator(ws, irc, health.NewRegistry(), 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(models.Event) {})
		close(done)
	}()

	waitForActive := func(name string) {
		deadline := time.After(200 * time.Millisecond)
		for {
			if c.ActiveSource() == name {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("coordinator never became active on %s", name)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	waitForActive("eventsub-websocket")
	ws.simulateSilentDisconnect()

	// The coordinator must drop the connection and reconnect; since ws's
	// Connect never errors, it should end up active on ws again rather
	// than hanging in stream() forever.
	deadline := time.After(300 * time.Millisecond)
	reconnected := false
	for !reconnected {
		select {
		case <-deadline:
			t.Fatal("coordinator never reconnected after silent disconnect")
		case <-time.After(5 * time.Millisecond):
			if c.ActiveSource() == "eventsub-websocket" && ws.IsConnected() {
				reconnected = true
			}
		}
	}

	cancel()
	<-done
}

var errConnectRefused = &fakeConnectError{"connection refused"}

type fakeConnectError struct{ msg string }

func (e *fakeConnectError) Error() string { return e.msg }
