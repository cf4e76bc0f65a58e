package command

import (
	"context"
	"errors"
	"testing"

	"clipbot/internal/models"
)

type fakeClips struct {
	byID  map[string]models.ClipData
	byURL map[string]models.ClipData
}

func (f *fakeClips) GetClipByID(ctx context.Context, id string) (models.ClipData, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return models.ClipData{}, errors.New("not found")
}

func (f *fakeClips) GetClipByURL(ctx context.Context, url string) (models.ClipData, error) {
	if c, ok := f.byURL[url]; ok {
		return c, nil
	}
	return models.ClipData{}, errors.New("not found")
}

type fakePlayback struct {
	enqueued []models.ClipData
	stopped  bool
	replayOK bool
}

func (f *fakePlayback) Enqueue(clip models.ClipData) { f.enqueued = append(f.enqueued, clip) }
func (f *fakePlayback) Stop()                        { f.stopped = true }
func (f *fakePlayback) Replay() bool                  { return f.replayOK }

type fakeApproval struct {
	required bool
	outcome  models.ApprovalOutcome
}

func (f *fakeApproval) RequiresApproval(msg models.ChatMessage) bool { return f.required }
func (f *fakeApproval) RequestApproval(ctx context.Context, requester models.ChatMessage, clip models.ClipData) models.ApprovalOutcome {
	return f.outcome
}

type fakeSearch struct {
	clip  models.ClipData
	found bool
	err   error
}

func (f *fakeSearch) SearchClip(ctx context.Context, broadcasterName, terms string) (models.ClipData, bool, error) {
	return f.clip, f.found, f.err
}

type fakeShoutout struct{ called bool }

func (f *fakeShoutout) Shoutout(ctx context.Context, requester models.ChatMessage, target string) error {
	f.called = true
	return nil
}

type fakeFeedback struct {
	clipNotFound, searchNoResults, awaitingApproval, approvalTimeout, approvalDenied, genericError int
}

func (f *fakeFeedback) ClipNotFound(ctx context.Context, channel string)      { f.clipNotFound++ }
func (f *fakeFeedback) SearchNoResults(ctx context.Context, channel string)   { f.searchNoResults++ }
func (f *fakeFeedback) AwaitingApproval(ctx context.Context, channel string)  { f.awaitingApproval++ }
func (f *fakeFeedback) ApprovalTimeout(ctx context.Context, channel string)   { f.approvalTimeout++ }
func (f *fakeFeedback) ApprovalDenied(ctx context.Context, channel string)    { f.approvalDenied++ }
func (f *fakeFeedback) GenericError(ctx context.Context, channel string)     { f.genericError++ }

func TestDispatchWatchClipFound(t *testing.T) {
	clips := &fakeClips{byID: map[string]models.ClipData{"abc": {ID: "abc"}}}
	playback := &fakePlayback{}
	fb := &fakeFeedback{}
	r := NewRouter(clips, playback, &fakeApproval{}, &fakeSearch{}, &fakeShoutout{}, fb)

	r.Dispatch(context.Background(), msg("!watch abc"))

	if len(playback.enqueued) != 1 || playback.enqueued[0].ID != "abc" {
		t.Fatalf("expected clip enqueued, got %+v", playback.enqueued)
	}
	if fb.clipNotFound != 0 {
		t.Fatalf("expected no feedback, got %d clip-not-found calls", fb.clipNotFound)
	}
}

func TestDispatchWatchClipNotFound(t *testing.T) {
	clips := &fakeClips{}
	playback := &fakePlayback{}
	fb := &fakeFeedback{}
	r := NewRouter(clips, playback, &fakeApproval{}, &fakeSearch{}, &fakeShoutout{}, fb)

	r.Dispatch(context.Background(), msg("!watch missing"))

	if len(playback.enqueued) != 0 {
		t.Fatalf("expected no clip enqueued, got %+v", playback.enqueued)
	}
	if fb.clipNotFound != 1 {
		t.Fatalf("expected 1 clip-not-found feedback, got %d", fb.clipNotFound)
	}
}

func TestDispatchWatchSearchRequiresApprovalAndApproved(t *testing.T) {
	playback := &fakePlayback{}
	search := &fakeSearch{clip: models.ClipData{ID: "found"}, found: true}
	approval := &fakeApproval{required: true, outcome: models.ApprovalApproved}
	fb := &fakeFeedback{}
	r := NewRouter(&fakeClips{}, playback, approval, search, &fakeShoutout{}, fb)

	r.Dispatch(context.Background(), msg("!watch @streamer cool clip"))

	if len(playback.enqueued) != 1 {
		t.Fatalf("expected clip enqueued after approval, got %+v", playback.enqueued)
	}
	if fb.awaitingApproval != 1 {
		t.Fatalf("expected awaiting-approval feedback once, got %d", fb.awaitingApproval)
	}
}

func TestDispatchWatchSearchApprovalDenied(t *testing.T) {
	playback := &fakePlayback{}
	search := &fakeSearch{clip: models.ClipData{ID: "found"}, found: true}
	approval := &fakeApproval{required: true, outcome: models.ApprovalDenied}
	fb := &fakeFeedback{}
	r := NewRouter(&fakeClips{}, playback, approval, search, &fakeShoutout{}, fb)

	r.Dispatch(context.Background(), msg("!watch @streamer cool clip"))

	if len(playback.enqueued) != 0 {
		t.Fatalf("expected no clip enqueued after denial, got %+v", playback.enqueued)
	}
	if fb.approvalDenied != 1 {
		t.Fatalf("expected approval-denied feedback, got %d", fb.approvalDenied)
	}
	if fb.approvalTimeout != 0 {
		t.Fatalf("expected no approval-timeout feedback on denial, got %d", fb.approvalTimeout)
	}
}

func TestDispatchWatchSearchApprovalTimedOut(t *testing.T) {
	playback := &fakePlayback{}
	search := &fakeSearch{clip: models.ClipData{ID: "found"}, found: true}
	approval := &fakeApproval{required: true, outcome: models.ApprovalTimedOut}
	fb := &fakeFeedback{}
	r := NewRouter(&fakeClips{}, playback, approval, search, &fakeShoutout{}, fb)

	r.Dispatch(context.Background(), msg("!watch @streamer cool clip"))

	if len(playback.enqueued) != 0 {
		t.Fatalf("expected no clip enqueued after timeout, got %+v", playback.enqueued)
	}
	if fb.approvalTimeout != 1 {
		t.Fatalf("expected approval-timeout feedback, got %d", fb.approvalTimeout)
	}
	if fb.approvalDenied != 0 {
		t.Fatalf("expected no approval-denied feedback on timeout, got %d", fb.approvalDenied)
	}
}

func TestDispatchStopAndReplay(t *testing.T) {
	playback := &fakePlayback{replayOK: true}
	r := NewRouter(&fakeClips{}, playback, &fakeApproval{}, &fakeSearch{}, &fakeShoutout{}, &fakeFeedback{})

	r.Dispatch(context.Background(), msg("!stop"))
	if !playback.stopped {
		t.Fatal("expected Stop to be called")
	}

	r.Dispatch(context.Background(), msg("!replay"))
	// replayOK true means no additional feedback path is exercised; this
	// only checks that dispatching !replay doesn't panic.
}

func TestDispatchShoutout(t *testing.T) {
	shoutouts := &fakeShoutout{}
	r := NewRouter(&fakeClips{}, &fakePlayback{}, &fakeApproval{}, &fakeSearch{}, shoutouts, &fakeFeedback{})

	r.Dispatch(context.Background(), msg("!so @otherStreamer"))

	if !shoutouts.called {
		t.Fatal("expected shoutout service to be invoked")
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	clips := &panicClips{}
	r := NewRouter(clips, &fakePlayback{}, &fakeApproval{}, &fakeSearch{}, &fakeShoutout{}, &fakeFeedback{})

	// Must not panic out of Dispatch.
	r.Dispatch(context.Background(), msg("!watch abc"))
}

type panicClips struct{}

func (panicClips) GetClipByID(ctx context.Context, id string) (models.ClipData, error) {
	panic("boom")
}
func (panicClips) GetClipByURL(ctx context.Context, url string) (models.ClipData, error) {
	return models.ClipData{}, errors.New("not found")
}
