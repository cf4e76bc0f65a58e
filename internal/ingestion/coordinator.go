package ingestion

import (
	"context"
	"log"
	"sync"
	"time"

	"clipbot/internal/backoffpolicy"
	"clipbot/internal/health"
	"clipbot/internal/models"
)

// Coordinator owns exactly one active Source at a time, preferring the
// WebSocket source and falling back to IRC on connect failure, with
// backoff-governed reconnect on stream errors.
type Coordinator struct {
	ws, irc Source
	health  *health.Registry
	backoff backoffpolicy.Policy

	out chan models.Event

	mu     sync.Mutex
	active string
}

// NewCoordinator constructs a Coordinator over the given primary/fallback
// sources. maxDelay caps the reconnect backoff; pass 0 to use the spec
// default of 300s.
func NewCoordinator(ws, irc Source, registry *health.Registry, maxDelay time.Duration) *Coordinator {
	if maxDelay <= 0 {
		maxDelay = 300 * time.Second
	}
	return &Coordinator{
		ws:      ws,
		irc:     irc,
		health:  registry,
		backoff: backoffpolicy.Policy{Base: 2 * time.Second, Max: maxDelay},
		out:     make(chan models.Event, 256),
	}
}

// Events returns the coordinator's output channel. Run never writes to
// it: events from the active source are delivered only through the
// dispatch callback passed to Run.
func (c *Coordinator) Events() <-chan models.Event { return c.out }

// ActiveSource reports the name of the currently connected source, or ""
// if none is connected.
func (c *Coordinator) ActiveSource() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) setActive(name string) {
	c.mu.Lock()
	c.active = name
	c.mu.Unlock()
}

// Run drives the coordinator until ctx is canceled: connect the preferred
// source, relay its events, and on disconnect or stream error, back off
// and retry, dropping preference to IRC if the WebSocket source can't
// connect at all.
func (c *Coordinator) Run(ctx context.Context, dispatch func(models.Event)) {
	preferWS := true
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		active, name := c.selectSource(preferWS)
		if err := active.Connect(ctx); err != nil {
			log.Printf("[Ingestion] connect to %s failed: %v", name, err)
			if preferWS {
				preferWS = false
				continue
			}
			c.health.Report("ingestion", models.HealthDegraded, err.Error())
			if !c.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		c.health.Report("ingestion", models.HealthHealthy, "")
		c.setActive(name)
		log.Printf("[Ingestion] connected via %s", name)
		c.stream(ctx, active, dispatch)
		active.Disconnect()
		c.setActive("")

		if ctx.Err() != nil {
			return
		}
		c.health.Report("ingestion", models.HealthDegraded, "stream ended, reconnecting")
		if !c.sleepBackoff(ctx, attempt) {
			return
		}
		attempt++
	}
}

func (c *Coordinator) selectSource(preferWS bool) (Source, string) {
	if preferWS {
		return c.ws, c.ws.SourceName()
	}
	return c.irc, c.irc.SourceName()
}

// stream relays events from src until its Done channel closes (read-loop
// exited, whether cleanly or from a silent drop), its events channel
// closes, or ctx is canceled. Each dispatch is wrapped in its own panic
// boundary so one malformed event never stops the stream.
func (c *Coordinator) stream(ctx context.Context, src Source, dispatch func(models.Event)) {
	done := src.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			log.Printf("[Ingestion] %s read loop exited, reconnecting", src.SourceName())
			return
		case evt, ok := <-src.Events():
			if !ok {
				return
			}
			c.safeDispatch(dispatch, evt)
		}
	}
}

func (c *Coordinator) safeDispatch(dispatch func(models.Event), evt models.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Ingestion] recovered panic dispatching event: %v", r)
		}
	}()
	dispatch(evt)
}

func (c *Coordinator) sleepBackoff(ctx context.Context, attempt int) bool {
	d := c.backoff.Compute(attempt)
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
