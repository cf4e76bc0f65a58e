package clipsearch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"clipbot/internal/models"
)

// ChannelInfo fetches a broadcaster's current game/title.
type ChannelInfo interface {
	GetChannelInfo(ctx context.Context, broadcasterID string) (gameName, title string, err error)
}

// ChatPoster posts a message to a broadcaster's chat on behalf of
// senderID.
type ChatPoster interface {
	SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) error
}

// NativeShoutout issues the platform's built-in shoutout action.
type NativeShoutout interface {
	SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error
}

// Enqueuer accepts a clip for playback.
type Enqueuer interface {
	Enqueue(clip models.ClipData)
}

// Orchestrator implements the full `!so`/`!shoutout` command: resolve
// the target, pick a clip, enqueue it, and post a chat message and/or a
// native platform shoutout.
type Orchestrator struct {
	search   *Service
	channel  ChannelInfo
	chat     ChatPoster
	native   NativeShoutout
	playback Enqueuer
	cfg      ShoutoutConfig

	homeBroadcasterID string
	moderatorID       string
}

// NewOrchestrator constructs an Orchestrator. homeBroadcasterID and
// moderatorID identify the bot's own channel and account, required by the
// native-shoutout and chat-message-posting APIs.
func NewOrchestrator(search *Service, channel ChannelInfo, chat ChatPoster, native NativeShoutout, playback Enqueuer, cfg ShoutoutConfig, homeBroadcasterID, moderatorID string) (*Orchestrator, error) {
	if cfg.MessageTemplate == "" {
		return nil, fmt.Errorf("clipsearch: shoutout message template is empty")
	}
	return &Orchestrator{
		search:            search,
		channel:           channel,
		chat:              chat,
		native:            native,
		playback:          playback,
		cfg:               cfg,
		homeBroadcasterID: homeBroadcasterID,
		moderatorID:       moderatorID,
	}, nil
}

// Shoutout resolves targetUsername, selects a clip, enqueues it for
// playback, and (depending on cfg) posts a chat message and/or issues a
// native platform shoutout. A target with no eligible clips still
// receives the chat/native shoutout, just without a clip queued.
func (o *Orchestrator) Shoutout(ctx context.Context, requester models.ChatMessage, targetUsername string) error {
	target, err := o.search.ResolveBroadcaster(ctx, targetUsername)
	if err != nil {
		return fmt.Errorf("clipsearch: resolve shoutout target %q: %w", targetUsername, err)
	}
	if target.ID == "" {
		return fmt.Errorf("clipsearch: shoutout target %q: %w", targetUsername, models.ErrUserNotFound)
	}

	clip, found, err := o.search.SelectShoutoutClip(ctx, target.ID, o.cfg)
	if err != nil {
		log.Printf("[Shoutout] clip selection failed for %s: %v", targetUsername, err)
	} else if found {
		o.playback.Enqueue(clip)
	} else {
		log.Printf("[Shoutout] no eligible clip found for %s", targetUsername)
	}

	if o.cfg.SendChatMessage {
		o.postChatMessage(ctx, requester, target)
	}
	if o.cfg.SendNativeShoutout {
		if err := o.native.SendShoutout(ctx, o.homeBroadcasterID, target.ID, o.moderatorID); err != nil {
			log.Printf("[Shoutout] native shoutout failed for %s: %v", targetUsername, err)
		}
	}
	return nil
}

func (o *Orchestrator) postChatMessage(ctx context.Context, requester models.ChatMessage, target models.ClipParty) {
	game, _, err := o.channel.GetChannelInfo(ctx, target.ID)
	if err != nil {
		log.Printf("[Shoutout] failed to fetch channel info for %s: %v", target.Login, err)
		game = ""
	}

	broadcaster := target.Display
	if broadcaster == "" {
		broadcaster = target.Login
	}
	replacer := strings.NewReplacer(
		"{channel}", target.Login,
		"{broadcaster}", broadcaster,
		"{game}", game,
	)
	message := replacer.Replace(o.cfg.MessageTemplate)
	if o.cfg.MaxMessageLen > 0 && len(message) > o.cfg.MaxMessageLen {
		message = message[:o.cfg.MaxMessageLen]
	}

	if err := o.chat.SendChatMessage(ctx, requester.ChannelID, o.moderatorID, message); err != nil {
		log.Printf("[Shoutout] failed to post chat message for %s: %v", target.Login, err)
	}
}
