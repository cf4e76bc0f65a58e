package chatfeedback

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeChat struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeChat) SendMessage(ctx context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitForCount(t *testing.T, chat *fakeChat, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if chat.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends, got %d", n, chat.count())
}

func TestClipNotFoundSendsWhenEnabled(t *testing.T) {
	chat := &fakeChat{}
	s := NewSender(chat, Config{Enabled: true})

	s.ClipNotFound(context.Background(), "streamer")
	waitForCount(t, chat, 1)
}

func TestDisabledSenderSendsNothing(t *testing.T) {
	chat := &fakeChat{}
	s := NewSender(chat, Config{Enabled: false})

	s.ClipNotFound(context.Background(), "streamer")
	time.Sleep(50 * time.Millisecond)
	if chat.count() != 0 {
		t.Fatalf("expected no sends while disabled, got %d", chat.count())
	}
}

func TestApprovalStateMessagesRespectShowApprovalState(t *testing.T) {
	chat := &fakeChat{}
	s := NewSender(chat, Config{Enabled: true, ShowApprovalState: false})

	s.AwaitingApproval(context.Background(), "streamer")
	s.ApprovalTimeout(context.Background(), "streamer")
	s.ApprovalDenied(context.Background(), "streamer")
	time.Sleep(50 * time.Millisecond)
	if chat.count() != 0 {
		t.Fatalf("expected approval-state messages suppressed, got %d sends", chat.count())
	}
}

func TestRateLimitSuppressesBurst(t *testing.T) {
	chat := &fakeChat{}
	s := NewSender(chat, Config{Enabled: true, RateLimit: time.Hour})

	s.ClipNotFound(context.Background(), "streamer")
	waitForCount(t, chat, 1)
	s.SearchNoResults(context.Background(), "streamer")
	time.Sleep(50 * time.Millisecond)
	if chat.count() != 1 {
		t.Fatalf("expected second send to be rate-limited, got %d sends", chat.count())
	}
}
