package clipsearch

import (
	"context"
	"testing"
	"time"

	"clipbot/internal/models"
)

type fakeChannelInfo struct {
	game string
}

func (f *fakeChannelInfo) GetChannelInfo(ctx context.Context, broadcasterID string) (string, string, error) {
	return f.game, "", nil
}

type fakeChatPoster struct {
	sent []string
}

func (f *fakeChatPoster) SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) error {
	f.sent = append(f.sent, message)
	return nil
}

type fakeNativeShoutout struct {
	called bool
}

func (f *fakeNativeShoutout) SendShoutout(ctx context.Context, from, to, mod string) error {
	f.called = true
	return nil
}

type fakeEnqueuer struct {
	enqueued []models.ClipData
}

func (f *fakeEnqueuer) Enqueue(clip models.ClipData) { f.enqueued = append(f.enqueued, clip) }

func TestShoutoutEnqueuesClipAndPostsMessage(t *testing.T) {
	lister := &fakeLister{
		broadcasterID: "456",
		clips:         []models.ClipData{mustClip(t, "z", "epic moment", 10)},
	}
	searchSvc := NewService(lister, Config{})
	channel := &fakeChannelInfo{game: "Just Chatting"}
	chat := &fakeChatPoster{}
	native := &fakeNativeShoutout{}
	enq := &fakeEnqueuer{}

	orch, err := NewOrchestrator(searchSvc, channel, chat, native, enq, ShoutoutConfig{
		SendChatMessage:    true,
		MessageTemplate:    "Go check out {broadcaster}, last seen playing {game} over at twitch.tv/{channel}!",
		SendNativeShoutout: true,
	}, "home-id", "mod-id")
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	requester := models.ChatMessage{ChannelID: "home-id", ChannelLogin: "home"}
	if err := orch.Shoutout(context.Background(), requester, "target"); err != nil {
		t.Fatalf("Shoutout: %v", err)
	}

	if len(enq.enqueued) != 1 || enq.enqueued[0].ID != "z" {
		t.Fatalf("expected clip z enqueued, got %+v", enq.enqueued)
	}
	if len(chat.sent) != 1 {
		t.Fatalf("expected one chat message, got %d", len(chat.sent))
	}
	if !native.called {
		t.Fatal("expected native shoutout to be invoked")
	}
}

func TestShoutoutUnknownTargetErrors(t *testing.T) {
	lister := &fakeLister{}
	searchSvc := NewService(lister, Config{})
	orch, err := NewOrchestrator(searchSvc, &fakeChannelInfo{}, &fakeChatPoster{}, &fakeNativeShoutout{}, &fakeEnqueuer{}, ShoutoutConfig{
		MessageTemplate: "{channel}",
	}, "home-id", "mod-id")
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	err = orch.Shoutout(context.Background(), models.ChatMessage{}, "nobody")
	if err == nil {
		t.Fatal("expected error for unresolvable target")
	}
}

func TestShoutoutWithNoEligibleClipStillPostsMessage(t *testing.T) {
	lister := &fakeLister{broadcasterID: "456"}
	searchSvc := NewService(lister, Config{})
	chat := &fakeChatPoster{}

	orch, err := NewOrchestrator(searchSvc, &fakeChannelInfo{}, chat, &fakeNativeShoutout{}, &fakeEnqueuer{}, ShoutoutConfig{
		SendChatMessage: true,
		MessageTemplate: "Go check out {broadcaster}!",
	}, "home-id", "mod-id")
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	if err := orch.Shoutout(context.Background(), models.ChatMessage{ChannelID: "home-id"}, "target"); err != nil {
		t.Fatalf("Shoutout: %v", err)
	}
	if len(chat.sent) != 1 {
		t.Fatalf("expected chat message even with no clip, got %d", len(chat.sent))
	}
	_ = time.Second
}
