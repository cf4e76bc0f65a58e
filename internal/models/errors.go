package models

import "errors"

// Sentinel errors for the error taxonomy named in spec.md §7. Callers
// compare with errors.Is/errors.As rather than matching error strings.
var (
	// ErrTransient marks a network/5xx/429 failure a caller already
	// retried locally and exhausted; the coordinator/supervisor decide
	// whether to escalate health status from here.
	ErrTransient = errors.New("transient error")

	// ErrAuthExpired means a 401 persisted even after an inline token
	// refresh and retry.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrSubscriptionFailed means the EventSub chat subscription request
	// was rejected while the websocket source was connecting. It is not
	// returned for notification frames: a frame that is not valid JSON ends
	// the source's read loop, and a notification whose event payload fails
	// to decode is logged and dropped.
	ErrSubscriptionFailed = errors.New("event subscription failed")

	// ErrClipNotFound means a clip id or URL resolved to nothing.
	ErrClipNotFound = errors.New("clip not found")

	// ErrNoClips means a broadcaster has no clips matching the search
	// window and filters in use.
	ErrNoClips = errors.New("no clips available")

	// ErrUserNotFound means a login name didn't resolve to a platform
	// account.
	ErrUserNotFound = errors.New("user not found")
)
