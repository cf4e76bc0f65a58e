// Package health tracks the coarse status of each long-running subsystem
// (ingestion, scene controller, token store) plus repair actions such as
// playback quarantines, and reports transitions into Unhealthy to Sentry on
// a best-effort basis.
package health

import (
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"clipbot/internal/models"
)

// Registry is a concurrency-safe store of per-component health snapshots.
type Registry struct {
	mu         sync.RWMutex
	components map[string]models.ComponentHealth
	onChange   []func(models.ComponentHealth)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]models.ComponentHealth)}
}

// OnChange registers fn to be called, synchronously from Report, whenever
// a component's status changes.
func (r *Registry) OnChange(fn func(models.ComponentHealth)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Report records a new status for name. Any status change emits a
// health-changed notification to registered OnChange subscribers; a
// non-Healthy status is logged at warning level; a transition into
// Unhealthy is additionally captured to Sentry. All of this is
// best-effort, matching the teacher's fire-and-forget telemetry sends:
// failure to report never blocks or errors the caller.
func (r *Registry) Report(name string, status models.HealthStatus, errMsg string) {
	r.mu.Lock()
	prev := r.components[name]
	next := models.ComponentHealth{
		Name:        name,
		Status:      status,
		LastError:   errMsg,
		LastChecked: time.Now(),
	}
	next.RepairActions = prev.RepairActions
	r.components[name] = next
	changed := prev.Status != status
	subscribers := append([]func(models.ComponentHealth){}, r.onChange...)
	r.mu.Unlock()

	if status != models.HealthHealthy {
		log.Printf("[Health] component %q is %s: %s", name, status, errMsg)
	}

	if changed {
		for _, fn := range subscribers {
			r.safeNotify(fn, next)
		}
	}

	if status == models.HealthUnhealthy && prev.Status != models.HealthUnhealthy {
		r.captureToSentry(name, errMsg)
	}
}

// safeNotify guards a subscriber callback so a panicking observer never
// takes down the reporting goroutine.
func (r *Registry) safeNotify(fn func(models.ComponentHealth), c models.ComponentHealth) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Health] recovered panic in health-change subscriber: %v", rec)
		}
	}()
	fn(c)
}

// RecordRepair appends a repair-action description to name's history,
// keeping only the newest MaxRepairHistory entries.
func (r *Registry) RecordRepair(name string, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.components[name]
	c.Name = name
	c.RepairActions = append(c.RepairActions, action)
	if len(c.RepairActions) > models.MaxRepairHistory {
		c.RepairActions = c.RepairActions[len(c.RepairActions)-models.MaxRepairHistory:]
	}
	r.components[name] = c
}

// Snapshot returns a copy of every tracked component's current health.
func (r *Registry) Snapshot() []models.ComponentHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ComponentHealth, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	return out
}

// captureToSentry reports a component going unhealthy. Sentry may be
// uninitialized (no DSN configured) in which case CaptureMessage is a
// harmless no-op; either way this never returns an error to the caller.
func (r *Registry) captureToSentry(name, errMsg string) {
	defer func() {
		_ = recover()
	}()
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", name)
		sentry.CaptureMessage("component unhealthy: " + name + ": " + errMsg)
	})
}
