package health

import (
	"testing"

	"clipbot/internal/models"
)

func TestReportAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Report("ingestion", models.HealthHealthy, "")
	r.Report("scene", models.HealthDegraded, "drift detected")

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 components, got %d", len(snap))
	}
}

func TestRecordRepairTrimsHistory(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < models.MaxRepairHistory+5; i++ {
		r.RecordRepair("scene", "re-enabled source")
	}
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 component, got %d", len(snap))
	}
	if len(snap[0].RepairActions) != models.MaxRepairHistory {
		t.Fatalf("expected history trimmed to %d, got %d", models.MaxRepairHistory, len(snap[0].RepairActions))
	}
}

func TestUnhealthyTransitionDoesNotPanic(t *testing.T) {
	r := NewRegistry()
	r.Report("platform", models.HealthHealthy, "")
	r.Report("platform", models.HealthUnhealthy, "connection refused")
	r.Report("platform", models.HealthUnhealthy, "still down")
}

func TestOnChangeFiresOnlyOnStatusTransitions(t *testing.T) {
	r := NewRegistry()
	var notified []models.HealthStatus
	r.OnChange(func(c models.ComponentHealth) { notified = append(notified, c.Status) })

	r.Report("scene", models.HealthHealthy, "")
	r.Report("scene", models.HealthHealthy, "") // no change, should not notify again
	r.Report("scene", models.HealthDegraded, "drift detected")
	r.Report("scene", models.HealthUnhealthy, "reconnect exhausted")

	if len(notified) != 3 {
		t.Fatalf("expected 3 notifications for 3 distinct transitions, got %d: %v", len(notified), notified)
	}
	if notified[0] != models.HealthHealthy || notified[1] != models.HealthDegraded || notified[2] != models.HealthUnhealthy {
		t.Fatalf("unexpected notification sequence: %v", notified)
	}
}

func TestOnChangeSubscriberPanicDoesNotPropagate(t *testing.T) {
	r := NewRegistry()
	r.OnChange(func(c models.ComponentHealth) { panic("boom") })
	r.Report("scene", models.HealthDegraded, "drift detected")
}
