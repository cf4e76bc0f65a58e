// Package playback drives the clip playback state machine: a FIFO queue,
// a single background command loop, and a per-clip failure quarantine.
package playback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"clipbot/internal/models"
)

// SceneController is the subset of the scene controller the engine drives
// directly, for the visibility contract around Loading/Cooldown/Stop.
type SceneController interface {
	IsConnected() bool
	EnsureVisible(ctx context.Context) error
	EnsureHidden(ctx context.Context) error
}

// HealthRecorder records a repair action against a named component.
// Satisfied by *health.Registry; the engine reports under "playback".
type HealthRecorder interface {
	RecordRepair(name, action string)
}

const (
	maxFailures   = 3
	cooldownDwell = 2 * time.Second
	stoppedDwell  = 1 * time.Second
)

type cmdKind int

const (
	cmdPlay cmdKind = iota
	cmdStop
)

// Engine is the playback state machine. All state is owned by the single
// goroutine running Run; Enqueue/Stop/Replay only ever write to the
// command channel or the thread-safe Queue, never touch state directly.
type Engine struct {
	queue  *Queue
	scene  SceneController
	health HealthRecorder
	cmds   chan cmdKind

	mu          sync.Mutex
	state       models.PlaybackState
	currentClip *models.ClipData
	failures    map[string]int
	quarantined map[string]bool
}

// NewEngine constructs an Engine over queue, driving scene for visibility
// and reporting quarantine repair actions to health. health may be nil in
// tests that don't care about repair-history reporting.
func NewEngine(queue *Queue, scene SceneController, health HealthRecorder) *Engine {
	return &Engine{
		queue:       queue,
		scene:       scene,
		health:      health,
		cmds:        make(chan cmdKind, 256),
		state:       models.StateIdle,
		failures:    make(map[string]int),
		quarantined: make(map[string]bool),
	}
}

// Enqueue adds clip to the queue and signals the loop to attempt a Play.
func (e *Engine) Enqueue(clip models.ClipData) {
	e.queue.Push(clip)
	e.post(cmdPlay)
}

// Stop signals the loop to stop any in-progress playback immediately.
func (e *Engine) Stop() {
	e.post(cmdStop)
}

// Replay re-enqueues the last-played clip and signals Play. Returns false
// if there is no last-played clip.
func (e *Engine) Replay() bool {
	clip, ok := e.queue.LastPlayed()
	if !ok {
		return false
	}
	e.Enqueue(clip)
	return true
}

// State returns the engine's current state, safe to call concurrently.
func (e *Engine) State() models.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentClip returns the clip currently loaded or playing, if any.
func (e *Engine) CurrentClip() (models.ClipData, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentClip == nil {
		return models.ClipData{}, false
	}
	return *e.currentClip, true
}

// QueueLen reports the number of clips currently queued.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// LastPlayed returns the most recently played clip, if any.
func (e *Engine) LastPlayed() (models.ClipData, bool) {
	return e.queue.LastPlayed()
}

func (e *Engine) setState(s models.PlaybackState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) post(k cmdKind) {
	select {
	case e.cmds <- k:
	default:
		log.Printf("[Playback] command channel full, dropping %v", k)
	}
}

// Run drains the command loop until ctx is canceled. It is the engine's
// only goroutine: every state transition happens here, so no mutex is
// needed to serialize transitions, mirroring the teacher's single-select
// hub loop.
func (e *Engine) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	arm := func(d time.Duration) {
		timer = time.NewTimer(d)
		timerC = timer.C
	}
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			e.setState(models.StateIdle)
			return

		case k := <-e.cmds:
			switch k {
			case cmdPlay:
				e.handlePlay(ctx, arm)
			case cmdStop:
				e.handleStop(ctx, disarm, arm)
			}

		case <-timerC:
			e.handleTimerFired(ctx, arm)
		}
	}
}

func (e *Engine) handlePlay(ctx context.Context, arm func(time.Duration)) {
	switch e.State() {
	case models.StateLoading, models.StatePlaying:
		log.Printf("[Playback] play requested while busy, clip stays queued")
		return
	}

	clip, ok := e.queue.Pop()
	if !ok {
		e.setState(models.StateIdle)
		return
	}
	if e.isQuarantined(clip.ID) {
		log.Printf("[Playback] skipping quarantined clip %s", clip.ID)
		if e.queue.Len() > 0 {
			e.post(cmdPlay)
		}
		return
	}

	e.mu.Lock()
	cp := clip
	e.currentClip = &cp
	e.mu.Unlock()
	e.setState(models.StateLoading)

	if failed := e.showOverlay(ctx, clip.ID); failed {
		e.abortToIdle()
		return
	}

	e.setState(models.StatePlaying)
	arm(time.Duration(clip.Duration) * time.Second)
}

func (e *Engine) handleStop(ctx context.Context, disarm func(), arm func(time.Duration)) {
	if e.State() != models.StatePlaying {
		log.Printf("[Playback] stop requested with nothing playing")
		return
	}
	disarm()
	e.hideOverlayBestEffort(ctx)
	e.setState(models.StateStopped)
	arm(stoppedDwell)
}

func (e *Engine) handleTimerFired(ctx context.Context, arm func(time.Duration)) {
	switch e.State() {
	case models.StatePlaying:
		e.mu.Lock()
		clip := *e.currentClip
		e.mu.Unlock()
		e.queue.SetLastPlayed(clip)
		e.resetFailures(clip.ID)
		e.hideOverlayBestEffort(ctx)
		e.setState(models.StateCooldown)
		arm(cooldownDwell)

	case models.StateCooldown, models.StateStopped:
		e.mu.Lock()
		e.currentClip = nil
		e.mu.Unlock()
		e.setState(models.StateIdle)
		if e.queue.Len() > 0 {
			e.post(cmdPlay)
		}
	}
}

// abortToIdle is used when a runtime failure makes the current Play
// attempt unrecoverable; it returns to Idle and keeps the queue draining.
func (e *Engine) abortToIdle() {
	e.mu.Lock()
	e.currentClip = nil
	e.mu.Unlock()
	e.setState(models.StateIdle)
	if e.queue.Len() > 0 {
		e.post(cmdPlay)
	}
}

// showOverlay asks the scene controller to reveal the overlay. A
// disconnected controller is tolerated (best-effort); a connected
// controller that errors counts as a playback runtime failure. Returns
// true if the failure should abort this Play attempt.
func (e *Engine) showOverlay(ctx context.Context, clipID string) bool {
	if !e.scene.IsConnected() {
		log.Printf("[Playback] scene controller disconnected, proceeding without overlay")
		return false
	}
	if err := e.scene.EnsureVisible(ctx); err != nil {
		log.Printf("[Playback] show overlay failed: %v", err)
		return e.recordFailure(clipID)
	}
	return false
}

func (e *Engine) hideOverlayBestEffort(ctx context.Context) {
	if !e.scene.IsConnected() {
		return
	}
	if err := e.scene.EnsureHidden(ctx); err != nil {
		log.Printf("[Playback] hide overlay failed: %v", err)
	}
}

// recordFailure bumps clipID's failure counter and quarantines it at the
// threshold. Returns true (failure should abort the in-flight attempt).
func (e *Engine) recordFailure(clipID string) bool {
	e.mu.Lock()
	e.failures[clipID]++
	quarantined := e.failures[clipID] >= maxFailures
	if quarantined {
		e.quarantined[clipID] = true
	}
	count := e.failures[clipID]
	e.mu.Unlock()

	if quarantined {
		log.Printf("[Playback] clip %s quarantined after %d failures", clipID, count)
		if e.health != nil {
			e.health.RecordRepair("playback", fmt.Sprintf("quarantined clip %s after %d playback failures", clipID, count))
		}
	}
	return true
}

func (e *Engine) resetFailures(clipID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failures, clipID)
}

func (e *Engine) isQuarantined(clipID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quarantined[clipID]
}
