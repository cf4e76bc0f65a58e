// Package models defines the core data structures shared across the clip
// relay bot: chat events, clip metadata, commands, playback state, and the
// persisted token bundle.
package models

import (
	"errors"
	"math"
	"time"
)

// --- Chat and events ---

// ChatMessage is an immutable record of a single chat line. It is produced
// only by the ingestion layer and never mutated afterwards.
type ChatMessage struct {
	AuthorLogin    string
	AuthorDisplay  string
	AuthorID       string
	ChannelLogin   string
	ChannelID      string
	Text           string
	IsBroadcaster  bool
	IsModerator    bool
	IsVip          bool
	IsSubscriber   bool
}

// IsAuthorized reports whether the message's author may approve or deny a
// pending clip request: broadcasters and moderators always can.
func (c ChatMessage) IsAuthorized() bool {
	return c.IsBroadcaster || c.IsModerator
}

// EventKind tags the variants of Event.
type EventKind int

const (
	EventChat EventKind = iota
	EventRaid
)

// RaidEvent describes an incoming raid notification.
type RaidEvent struct {
	RaiderLogin string
	RaiderID    string
	ViewerCount int
}

// Event is a tagged sum of the event kinds the ingestion layer can produce.
// Exactly one of Chat/Raid is populated, selected by Kind.
type Event struct {
	Kind EventKind
	Chat *ChatMessage
	Raid *RaidEvent
}

// NewChatEvent wraps a ChatMessage as an Event.
func NewChatEvent(m ChatMessage) Event { return Event{Kind: EventChat, Chat: &m} }

// NewRaidEvent wraps a RaidEvent as an Event.
func NewRaidEvent(r RaidEvent) Event { return Event{Kind: EventRaid, Raid: &r} }

// --- Clips ---

// ClipParty identifies either the creator or the broadcaster of a clip.
type ClipParty struct {
	ID      string
	Login   string
	Display string
}

// ClipData is reference data fetched from the platform; it is never mutated
// after construction.
type ClipData struct {
	ID          string
	URL         string
	Title       string
	Creator     ClipParty
	Broadcaster ClipParty
	GameName    string
	Duration    int // seconds, ceil of the source double
	CreatedAt   time.Time
	ViewCount   int
	IsFeatured  bool // derived: ViewCount >= 100
}

// featuredThreshold is the view-count floor at which a clip is considered
// featured. Resolved per spec: always derived, never read from upstream.
const featuredThreshold = 100

// NewClipData constructs a ClipData, normalizing duration (ceil of the
// source float, floored at 1 second) and deriving IsFeatured.
func NewClipData(id, url, title string, creator, broadcaster ClipParty, gameName string, durationSeconds float64, createdAt time.Time, viewCount int) (ClipData, error) {
	if id == "" || url == "" {
		return ClipData{}, errors.New("models: clip id and url must be non-empty")
	}
	d := int(math.Ceil(durationSeconds))
	if d < 1 {
		d = 1
	}
	return ClipData{
		ID:          id,
		URL:         url,
		Title:       title,
		Creator:     creator,
		Broadcaster: broadcaster,
		GameName:    gameName,
		Duration:    d,
		CreatedAt:   createdAt,
		ViewCount:   viewCount,
		IsFeatured:  viewCount >= featuredThreshold,
	}, nil
}

// --- Commands ---

// CommandKind tags the variants of Command.
type CommandKind int

const (
	CmdWatchClip CommandKind = iota
	CmdWatchSearch
	CmdStop
	CmdReplay
	CmdShoutout
)

// Command is a tagged sum of the five chat commands the router recognizes.
// Each carries the ChatMessage that produced it.
type Command struct {
	Kind   CommandKind
	Source ChatMessage

	// Populated when Kind == CmdWatchClip.
	ClipIdentifier string

	// Populated when Kind == CmdWatchSearch.
	BroadcasterName string
	SearchTerms     string

	// Populated when Kind == CmdShoutout.
	TargetUsername string
}

// --- Playback ---

// PlaybackState is the playback engine's state machine position.
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateLoading
	StatePlaying
	StateCooldown
	StateStopped
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateCooldown:
		return "cooldown"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// --- Approval ---

// ApprovalOutcome distinguishes why a pending approval resolved, since the
// router and chat feedback must react differently to an explicit denial
// than to a timeout (spec scenario 3 vs. scenario 4).
type ApprovalOutcome int

const (
	ApprovalApproved ApprovalOutcome = iota
	ApprovalDenied
	ApprovalTimedOut
)

// PendingApproval tracks one in-flight moderator-approval request.
type PendingApproval struct {
	ID        string
	Requester ChatMessage
	Clip      ClipData
	ExpiresAt time.Time
	// Result is a single-shot rendezvous written only by the approve/deny
	// handler; RequestApproval selects on it against its timeout and
	// shutdown, and whichever fires first decides the outcome.
	Result chan ApprovalOutcome
}

// --- Auth / token store ---

// TokenBundle is the persisted OAuth2 state for the platform account.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
}

// refreshSkew is the minimum remaining lifetime below which a token is
// treated as needing refresh, per spec: "exactly at now+5min" counts as
// needing refresh.
const refreshSkew = 5 * time.Minute

// Valid reports whether the bundle can be used without refreshing first:
// an access token is present, and either it is not about to expire or a
// refresh token exists to renew it.
func (t TokenBundle) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.After(now.Add(refreshSkew)) {
		return true
	}
	return t.RefreshToken != ""
}

// --- Health ---

// HealthStatus is the coarse health of one named component.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MaxRepairHistory bounds the repair-action history kept per component.
const MaxRepairHistory = 20

// ComponentHealth is a snapshot of one component's health, safe to copy.
type ComponentHealth struct {
	Name          string
	Status        HealthStatus
	LastError     string
	LastChecked   time.Time
	RepairActions []string
}

// --- Scene ---

// SceneDesiredState is the fixed point the scene controller drives the
// compositor toward.
type SceneDesiredState struct {
	SceneName  string
	SourceName string
	PlayerURL  string
	Width      int
	Height     int
}
