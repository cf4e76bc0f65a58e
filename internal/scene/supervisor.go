package scene

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/robfig/cron/v3"

	"clipbot/internal/backoffpolicy"
	"clipbot/internal/health"
	"clipbot/internal/models"
)

const maxReconnectAttempts = 10

// Supervisor keeps the compositor connection alive, enforces desired
// state on connect, and runs a scheduled drift check.
type Supervisor struct {
	client      *Client
	desired     models.SceneDesiredState
	host        string
	port        int
	password    string
	checkPeriod time.Duration
	backoff     backoffpolicy.Policy
	health      *health.Registry
	cron        *cron.Cron
}

// NewSupervisor constructs a Supervisor for client, bound to desired
// state and the compositor's connection parameters. checkPeriod governs
// the drift-check cadence; 0 defaults to the spec's once-a-minute cadence.
func NewSupervisor(client *Client, desired models.SceneDesiredState, host string, port int, password string, checkPeriod time.Duration, registry *health.Registry) *Supervisor {
	if checkPeriod <= 0 {
		checkPeriod = time.Minute
	}
	return &Supervisor{
		client:      client,
		desired:     desired,
		host:        host,
		port:        port,
		password:    password,
		checkPeriod: checkPeriod,
		backoff:     backoffpolicy.Policy{Base: time.Second, Max: 30 * time.Second},
		health:      registry,
		cron:        cron.New(),
	}
}

// Run connects (retrying forever until shutdown), enforces initial state,
// and schedules the periodic drift check until ctx is done. Reconnecting
// after a disconnect event is not done here; that is Reconnect's job.
func (s *Supervisor) Run(ctx context.Context) {
	if !s.connectWithRetryForever(ctx) {
		return
	}

	spec := fmt.Sprintf("@every %s", s.checkPeriod)
	if _, err := s.cron.AddFunc(spec, func() { s.checkDrift(ctx) }); err != nil {
		log.Printf("[Scene] failed to schedule drift check: %v", err)
	}
	s.cron.Start()
	defer s.cron.Stop()

	<-ctx.Done()
}

func (s *Supervisor) connectWithRetryForever(ctx context.Context) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		err := s.client.Connect(ctx, s.host, s.port, s.password)
		if err == nil {
			break
		}
		log.Printf("[Scene] connect attempt %d failed: %v", attempt, err)
		select {
		case <-time.After(s.backoff.Compute(attempt)):
		case <-ctx.Done():
			return false
		}
		attempt++
	}

	if err := s.client.EnsureClipSceneAndSourceExists(ctx, s.desired.SceneName, s.desired.SourceName, s.desired.PlayerURL, s.desired.Width, s.desired.Height); err != nil {
		log.Printf("[Scene] initial desired-state enforcement failed: %v", err)
		s.health.Report("scene", models.HealthDegraded, err.Error())
	} else {
		s.health.Report("scene", models.HealthHealthy, "")
	}
	return true
}

func (s *Supervisor) checkDrift(ctx context.Context) {
	drifted, err := s.client.CheckConfigurationDrift(ctx, s.desired.SourceName, s.desired.PlayerURL, s.desired.Width, s.desired.Height)
	if err != nil {
		log.Printf("[Scene] drift check failed: %v", err)
		s.health.Report("scene", models.HealthDegraded, err.Error())
		return
	}
	if !drifted {
		return
	}
	log.Printf("[Scene] configuration drift detected, repairing")
	if err := s.client.EnsureClipSceneAndSourceExists(ctx, s.desired.SceneName, s.desired.SourceName, s.desired.PlayerURL, s.desired.Width, s.desired.Height); err != nil {
		log.Printf("[Scene] drift repair failed: %v", err)
		s.health.Report("scene", models.HealthDegraded, err.Error())
		return
	}
	if err := s.client.RefreshBrowserSource(ctx, s.desired.SourceName); err != nil {
		log.Printf("[Scene] post-repair refresh failed: %v", err)
	}
	s.health.RecordRepair("scene", fmt.Sprintf("repaired configuration drift at %s", time.Now().UTC().Format(time.RFC3339)))
	s.health.Report("scene", models.HealthHealthy, "")
	s.client.NotifyDriftRepaired()
}

// Reconnect runs a bounded retry loop in response to a Disconnected
// event, using retry-go for the attempt/backoff bookkeeping. Exceeding
// the cap marks the component Unhealthy and returns false.
func (s *Supervisor) Reconnect(ctx context.Context) bool {
	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return s.client.Connect(ctx, s.host, s.port, s.password)
		},
		retry.Context(ctx),
		retry.Attempts(maxReconnectAttempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return s.backoff.Compute(int(n))
		}),
	)
	if err != nil {
		log.Printf("[Scene] reconnect exhausted after %d attempts: %v", maxReconnectAttempts, err)
		s.health.Report("scene", models.HealthUnhealthy, err.Error())
		return false
	}

	if err := s.client.EnsureClipSceneAndSourceExists(ctx, s.desired.SceneName, s.desired.SourceName, s.desired.PlayerURL, s.desired.Width, s.desired.Height); err != nil {
		log.Printf("[Scene] post-reconnect desired-state enforcement failed: %v", err)
		s.health.Report("scene", models.HealthDegraded, err.Error())
		return true
	}
	s.health.Report("scene", models.HealthHealthy, "")
	return true
}
