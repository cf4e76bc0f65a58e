// Package main is the entry point for the clip relay bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/oauth2"

	"clipbot/internal/approval"
	"clipbot/internal/chatfeedback"
	"clipbot/internal/clipsearch"
	"clipbot/internal/command"
	"clipbot/internal/config"
	"clipbot/internal/health"
	"clipbot/internal/httpapi"
	"clipbot/internal/ingestion"
	"clipbot/internal/models"
	"clipbot/internal/platform"
	"clipbot/internal/playback"
	"clipbot/internal/scene"
	"clipbot/internal/tokenstore"
)

// twitchOAuthEndpoint is hardcoded rather than pulled from
// golang.org/x/oauth2/endpoints, which doesn't carry a Twitch entry.
var twitchOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://id.twitch.tv/oauth2/authorize",
	TokenURL: "https://id.twitch.tv/oauth2/token",
}

// main initializes every subsystem, wires their collaborators, starts the
// background loops, and blocks until a shutdown signal is received.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Critical error loading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthRegistry := health.NewRegistry()

	oauthCfg := oauth2.Config{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		RedirectURL:  cfg.Twitch.RedirectURL,
		Endpoint:     twitchOAuthEndpoint,
		Scopes:       []string{"chat:read", "chat:edit", "clips:edit", "moderator:manage:shoutouts"},
	}
	tokens, err := tokenstore.New(cfg.APIEncryptionKey, oauthCfg)
	if err != nil {
		log.Fatalf("Critical error! Failed to initialize token store: %v", err)
	}
	if valid, err := tokens.HasValidTokens(ctx); err != nil || !valid {
		log.Fatalf("No valid platform tokens found; complete the account-linking flow before starting the bot (err=%v)", err)
	}

	platformClient := platform.NewClient(cfg.Twitch.ClientID, tokens, cfg.HTTPClientTimeout)

	identity, err := platformClient.GetAuthenticatedUser(ctx)
	if err != nil {
		log.Fatalf("Critical error! Failed to resolve the authenticated account: %v", err)
	}
	log.Printf("[Main] authenticated as %s (%s)", identity.Login, identity.ID)

	// --- Dependency injection ---

	ircSource := ingestion.NewIRCSource(&ircCredentials{tokens: tokens, login: identity.Login})
	wsSource := ingestion.NewWSSource(platformClient)
	coordinator := ingestion.NewCoordinator(wsSource, ircSource, healthRegistry, cfg.ReconnectMaxDelay)

	chat := &chatRouter{
		coordinator:       coordinator,
		irc:               ircSource,
		rest:              platformClient,
		homeBroadcasterID: identity.ID,
	}

	approvalSvc := approval.NewService(approval.Config{
		RequireApproval: cfg.ClipSearch.RequireApproval,
		Timeout:         time.Duration(cfg.ClipSearch.ApprovalTimeoutSeconds) * time.Second,
		ExemptRoles:     cfg.ClipSearch.ExemptRoles,
	}, chat)

	feedback := chatfeedback.NewSender(chat, chatfeedback.Config{
		Enabled:           cfg.ChatFeedback.Enabled,
		RateLimit:         cfg.ChatFeedback.RateLimit,
		ShowApprovalState: cfg.ChatFeedback.ShowApprovalState,
	})

	searchSvc := clipsearch.NewService(platformClient, clipsearch.Config{
		SearchWindowDays:    cfg.ClipSearch.SearchWindowDays,
		FuzzyMatchThreshold: cfg.ClipSearch.FuzzyMatchThreshold,
		MaxResults:          10,
	})

	queue := playback.NewQueue()

	var supervisor *scene.Supervisor
	sceneClient := scene.NewClient(func(name string) {
		switch name {
		case "Disconnected":
			healthRegistry.Report("scene", models.HealthDegraded, "compositor connection lost")
			go func() {
				if supervisor != nil {
					supervisor.Reconnect(ctx)
				}
			}()
		case "Connected":
			log.Printf("[Main] scene compositor connected")
		case "ConfigurationDriftRepaired":
			log.Printf("[Main] scene compositor drift repaired")
		}
	})
	desired := models.SceneDesiredState{
		SceneName:  cfg.OBS.SceneName,
		SourceName: cfg.OBS.SourceName,
		PlayerURL:  cfg.Player.URL,
		Width:      cfg.OBS.Width,
		Height:     cfg.OBS.Height,
	}
	overlay := scene.NewOverlay(sceneClient, desired)
	supervisor = scene.NewSupervisor(sceneClient, desired, cfg.OBS.Host, cfg.OBS.Port, cfg.OBS.Password, cfg.HealthCheckPeriod, healthRegistry)

	engine := playback.NewEngine(queue, overlay, healthRegistry)

	var shoutoutSvc command.ShoutoutService
	if cfg.Shoutout.Enabled {
		orchestrator, err := clipsearch.NewOrchestrator(searchSvc, platformClient, platformClient, platformClient, engine, clipsearch.ShoutoutConfig{
			MaxClipLength:         cfg.Shoutout.MaxClipLength,
			UseFeaturedClipsFirst: cfg.Shoutout.FeaturedFirst,
			SendChatMessage:       cfg.Shoutout.SendChatMessage,
			MessageTemplate:       cfg.Shoutout.MessageTemplate,
			MaxMessageLen:         cfg.Shoutout.MaxMessageLen,
			SendNativeShoutout:    cfg.Shoutout.SendNativeShoutout,
		}, identity.ID, identity.ID)
		if err != nil {
			log.Fatalf("Critical error! Failed to build shoutout orchestrator: %v", err)
		}
		shoutoutSvc = orchestrator
	} else {
		shoutoutSvc = disabledShoutout{}
	}

	router := command.NewRouter(platformClient, engine, approvalSvc, searchSvc, shoutoutSvc, feedback)

	dispatch := func(evt models.Event) {
		switch evt.Kind {
		case models.EventChat:
			msg := *evt.Chat
			if approvalSvc.HandleResponse(msg) {
				return
			}
			router.Dispatch(ctx, msg)
		case models.EventRaid:
			log.Printf("[Main] raid from %s (%d viewers)", evt.Raid.RaiderLogin, evt.Raid.ViewerCount)
		}
	}

	httpServer := httpapi.NewServer(cfg.ServerAddr, engine, healthRegistry, coordinator)

	// --- Background goroutines ---

	go engine.Run(ctx)
	go supervisor.Run(ctx)
	go coordinator.Run(ctx, dispatch)

	tokenCron := cron.New()
	if _, err := tokenCron.AddFunc("@every 5m", func() { checkTokenLookahead(ctx, tokens, cfg.TokenLookaheadLead, healthRegistry) }); err != nil {
		log.Printf("[Main] failed to schedule token lookahead check: %v", err)
	}
	tokenCron.Start()
	defer tokenCron.Stop()

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatalf("Critical error! Diagnostics server failed: %v", err)
		}
	}()

	log.Printf("[Main] clipbot is running; diagnostics on %s", cfg.ServerAddr)
	<-ctx.Done()

	log.Println("[Main] shutdown signal received, stopping gracefully...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("[Main] error during diagnostics server shutdown: %v", err)
	}
	ircSource.Disconnect()
	sceneClient.Disconnect()
	log.Println("[Main] exiting.")
}

// ircCredentials adapts the token store and resolved identity to
// ingestion.IRCCredentials: the bot always authenticates and joins as the
// account whose tokens it holds.
type ircCredentials struct {
	tokens *tokenstore.Store
	login  string
}

func (c *ircCredentials) AccessToken(ctx context.Context) (string, error) {
	bundle, err := c.tokens.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("main: load access token for irc: %w", err)
	}
	return bundle.AccessToken, nil
}

func (c *ircCredentials) Login() string        { return c.login }
func (c *ircCredentials) ChannelLogin() string { return c.login }

// chatRouter implements approval.ChatSender and chatfeedback.ChatSender,
// routing outgoing chat text over whichever ingestion source is currently
// active: a PRIVMSG over IRC, or the REST chat/messages endpoint when the
// websocket source is primary.
type chatRouter struct {
	coordinator       *ingestion.Coordinator
	irc               *ingestion.IRCSource
	rest              *platform.Client
	homeBroadcasterID string
}

func (c *chatRouter) SendMessage(ctx context.Context, channel, text string) error {
	if c.coordinator.ActiveSource() == c.irc.SourceName() {
		c.irc.SendMessage(channel, text)
		return nil
	}
	return c.rest.SendChatMessage(ctx, c.homeBroadcasterID, c.homeBroadcasterID, text)
}

// disabledShoutout implements command.ShoutoutService as a no-op, used
// when Shoutout.Enabled is false so the router still has a collaborator
// to call without special-casing the command.
type disabledShoutout struct{}

func (disabledShoutout) Shoutout(ctx context.Context, requester models.ChatMessage, targetUsername string) error {
	return fmt.Errorf("main: shoutout command is disabled")
}

// checkTokenLookahead proactively refreshes the platform token if it's
// within lead of expiring, so the first authenticated call after a long
// idle period never pays the refresh latency inline. Run on a 5-minute
// cron schedule rather than reactively to a 401 on the hot path.
func checkTokenLookahead(ctx context.Context, tokens *tokenstore.Store, lead time.Duration, registry *health.Registry) {
	if lead <= 0 {
		lead = 10 * time.Minute
	}
	soon, err := tokens.ExpiringSoon(lead)
	if err != nil {
		log.Printf("[Main] token lookahead check failed: %v", err)
		registry.Report("tokenstore", models.HealthDegraded, err.Error())
		return
	}
	if !soon {
		registry.Report("tokenstore", models.HealthHealthy, "")
		return
	}
	bundle, err := tokens.Get(ctx)
	if err == nil && bundle.ExpiresAt.Before(time.Now().Add(lead)) {
		_, err = tokens.Refresh(ctx, bundle)
	}
	if err != nil {
		log.Printf("[Main] proactive token refresh failed: %v", err)
		registry.Report("tokenstore", models.HealthDegraded, err.Error())
		return
	}
	registry.Report("tokenstore", models.HealthHealthy, "")
}
