// Package approval gates risky playback commands behind a moderator
// approve/deny workflow, modeled as a single-shot rendezvous per pending
// request.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"clipbot/internal/models"
)

// ChatSender posts a message back to a channel, used to notify moderators
// of a pending request.
type ChatSender interface {
	SendMessage(ctx context.Context, channel, text string) error
}

// Config controls whether approval is required and how long a request
// waits before timing out.
type Config struct {
	RequireApproval bool
	Timeout         time.Duration
	ExemptRoles     []string
}

// Service tracks in-flight approval requests and resolves them from
// incoming chat messages.
type Service struct {
	cfg   Config
	chat  ChatSender
	mu    sync.Mutex
	byID  map[string]*models.PendingApproval
}

// NewService constructs a Service.
func NewService(cfg Config, chat ChatSender) *Service {
	return &Service{cfg: cfg, chat: chat, byID: make(map[string]*models.PendingApproval)}
}

// RequiresApproval reports whether msg's author must pass through the
// approval gate before their clip plays.
func (s *Service) RequiresApproval(msg models.ChatMessage) bool {
	if !s.cfg.RequireApproval {
		return false
	}
	for _, role := range s.cfg.ExemptRoles {
		switch strings.ToLower(role) {
		case "broadcaster":
			if msg.IsBroadcaster {
				return false
			}
		case "moderator":
			if msg.IsModerator {
				return false
			}
		case "vip":
			if msg.IsVip {
				return false
			}
		case "subscriber":
			if msg.IsSubscriber {
				return false
			}
		}
	}
	return true
}

// RequestApproval registers a pending approval, notifies moderators, and
// blocks until approved, denied, timed out, or ctx is canceled. Whichever
// fires first determines the outcome; timeout and cancellation both
// resolve to ApprovalTimedOut so callers can't tell them apart (both are
// "no answer in time" from the requester's perspective).
func (s *Service) RequestApproval(ctx context.Context, requester models.ChatMessage, clip models.ClipData) models.ApprovalOutcome {
	id, err := newID()
	if err != nil {
		log.Printf("[Approval] failed to generate id: %v", err)
		return models.ApprovalTimedOut
	}

	entry := &models.PendingApproval{
		ID:        id,
		Requester: requester,
		Clip:      clip,
		ExpiresAt: time.Now().Add(s.cfg.Timeout),
		Result:    make(chan models.ApprovalOutcome, 1),
	}

	s.mu.Lock()
	s.byID[id] = entry
	s.mu.Unlock()
	defer s.remove(id)

	notice := fmt.Sprintf("Approval needed for %q (%ds): reply !approve %s or !deny %s", clip.Title, clip.Duration, id, id)
	if err := s.chat.SendMessage(ctx, requester.ChannelLogin, notice); err != nil {
		log.Printf("[Approval] failed to post approval notice: %v", err)
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case result := <-entry.Result:
		return result
	case <-timer.C:
		return models.ApprovalTimedOut
	case <-ctx.Done():
		return models.ApprovalTimedOut
	}
}

// HandleResponse scans msg for a `!approve <id>`/`!deny <id>` reply and
// resolves the matching pending entry if the responder is authorized and
// the entry hasn't expired. Returns true if msg was consumed as a
// response (and should not also be parsed as a command).
func (s *Service) HandleResponse(msg models.ChatMessage) bool {
	text := strings.TrimSpace(msg.Text)
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return false
	}

	var outcome models.ApprovalOutcome
	switch strings.ToLower(fields[0]) {
	case "!approve":
		outcome = models.ApprovalApproved
	case "!deny":
		outcome = models.ApprovalDenied
	default:
		return false
	}
	id := fields[1]

	s.mu.Lock()
	entry, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		log.Printf("[Approval] unknown approval id %q", id)
		return true
	}

	if !msg.IsAuthorized() {
		log.Printf("[Approval] unauthorized response to %q from %s", id, msg.AuthorLogin)
		return true
	}
	if time.Now().After(entry.ExpiresAt) {
		log.Printf("[Approval] response to expired entry %q", id)
		return true
	}

	select {
	case entry.Result <- outcome:
	default:
	}
	return true
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func newID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("approval: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
