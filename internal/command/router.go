package command

import (
	"context"
	"log"

	"clipbot/internal/models"
)

// ClipResolver fetches clip metadata by platform id or by URL.
type ClipResolver interface {
	GetClipByID(ctx context.Context, id string) (models.ClipData, error)
	GetClipByURL(ctx context.Context, url string) (models.ClipData, error)
}

// PlaybackEngine is the subset of the playback engine's public API the
// router drives.
type PlaybackEngine interface {
	Enqueue(clip models.ClipData)
	Stop()
	Replay() bool
}

// Approver decides whether a requester needs moderator approval and, if
// so, runs the approval workflow to completion.
type Approver interface {
	// RequiresApproval reports whether msg's author must be gated.
	RequiresApproval(msg models.ChatMessage) bool
	// RequestApproval blocks until approved, denied, or timed out.
	RequestApproval(ctx context.Context, requester models.ChatMessage, clip models.ClipData) models.ApprovalOutcome
}

// Searcher finds the best-matching clip for a search command.
type Searcher interface {
	SearchClip(ctx context.Context, broadcasterName, terms string) (models.ClipData, bool, error)
}

// ShoutoutService performs the full shoutout flow for a target user.
type ShoutoutService interface {
	Shoutout(ctx context.Context, requester models.ChatMessage, targetUsername string) error
}

// Feedback sends a short chat notice back to the requester's channel.
type Feedback interface {
	ClipNotFound(ctx context.Context, channel string)
	SearchNoResults(ctx context.Context, channel string)
	AwaitingApproval(ctx context.Context, channel string)
	ApprovalTimeout(ctx context.Context, channel string)
	ApprovalDenied(ctx context.Context, channel string)
	GenericError(ctx context.Context, channel string)
}

// Router dispatches parsed commands to the appropriate subsystem. Every
// handler recovers from panics and logs failures; nothing propagates back
// to the event loop.
type Router struct {
	clips     ClipResolver
	playback  PlaybackEngine
	approval  Approver
	search    Searcher
	shoutouts ShoutoutService
	feedback  Feedback
}

// NewRouter wires a Router's collaborators.
func NewRouter(clips ClipResolver, playback PlaybackEngine, approval Approver, search Searcher, shoutouts ShoutoutService, feedback Feedback) *Router {
	return &Router{
		clips:     clips,
		playback:  playback,
		approval:  approval,
		search:    search,
		shoutouts: shoutouts,
		feedback:  feedback,
	}
}

// Dispatch parses msg and routes the resulting command, if any. It never
// panics or returns an error: all failures are logged.
func (r *Router) Dispatch(ctx context.Context, msg models.ChatMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Command] recovered panic handling message: %v", rec)
		}
	}()

	cmd, ok := Parse(msg)
	if !ok {
		return
	}

	switch cmd.Kind {
	case models.CmdWatchClip:
		r.handleWatchClip(ctx, cmd)
	case models.CmdWatchSearch:
		r.handleWatchSearch(ctx, cmd)
	case models.CmdStop:
		r.playback.Stop()
	case models.CmdReplay:
		if !r.playback.Replay() {
			log.Printf("[Command] replay requested with no prior clip")
		}
	case models.CmdShoutout:
		if err := r.shoutouts.Shoutout(ctx, cmd.Source, cmd.TargetUsername); err != nil {
			log.Printf("[Command] shoutout failed: %v", err)
			r.feedback.GenericError(ctx, cmd.Source.ChannelLogin)
		}
	}
}

func (r *Router) handleWatchClip(ctx context.Context, cmd models.Command) {
	clip, err := r.resolveClip(ctx, cmd.ClipIdentifier)
	if err != nil {
		log.Printf("[Command] clip %q not found: %v", cmd.ClipIdentifier, err)
		r.feedback.ClipNotFound(ctx, cmd.Source.ChannelLogin)
		return
	}
	r.playback.Enqueue(clip)
}

// resolveClip tries the identifier as a platform clip id first, falling
// back to URL parsing, matching the teacher's pattern of attempting the
// cheaper lookup before the more permissive one.
func (r *Router) resolveClip(ctx context.Context, identifier string) (models.ClipData, error) {
	clip, err := r.clips.GetClipByID(ctx, identifier)
	if err == nil {
		return clip, nil
	}
	return r.clips.GetClipByURL(ctx, identifier)
}

func (r *Router) handleWatchSearch(ctx context.Context, cmd models.Command) {
	clip, found, err := r.search.SearchClip(ctx, cmd.BroadcasterName, cmd.SearchTerms)
	if err != nil || !found {
		if err != nil {
			log.Printf("[Command] search failed: %v", err)
		}
		r.feedback.SearchNoResults(ctx, cmd.Source.ChannelLogin)
		return
	}

	if r.approval.RequiresApproval(cmd.Source) {
		r.feedback.AwaitingApproval(ctx, cmd.Source.ChannelLogin)
		switch r.approval.RequestApproval(ctx, cmd.Source, clip) {
		case models.ApprovalDenied:
			r.feedback.ApprovalDenied(ctx, cmd.Source.ChannelLogin)
			return
		case models.ApprovalTimedOut:
			r.feedback.ApprovalTimeout(ctx, cmd.Source.ChannelLogin)
			return
		}
	}
	r.playback.Enqueue(clip)
}
