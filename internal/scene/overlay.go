package scene

import (
	"context"

	"clipbot/internal/models"
)

// Overlay adapts Client to the narrow IsConnected/EnsureVisible/
// EnsureHidden contract the playback engine depends on, binding it to one
// fixed desired state (scene name, source name, player URL, dimensions).
type Overlay struct {
	client  *Client
	desired models.SceneDesiredState
}

// NewOverlay constructs an Overlay bound to desired.
func NewOverlay(client *Client, desired models.SceneDesiredState) *Overlay {
	return &Overlay{client: client, desired: desired}
}

func (o *Overlay) IsConnected() bool { return o.client.IsConnected() }

// EnsureVisible shows the overlay source in the current program scene,
// enforcing desired state first since a fresh connection may not have it
// yet.
func (o *Overlay) EnsureVisible(ctx context.Context) error {
	if err := o.client.EnsureClipSceneAndSourceExists(ctx, o.desired.SceneName, o.desired.SourceName, o.desired.PlayerURL, o.desired.Width, o.desired.Height); err != nil {
		return err
	}
	return o.client.SetSourceVisibility(ctx, o.desired.SceneName, o.desired.SourceName, true)
}

// EnsureHidden hides the overlay source.
func (o *Overlay) EnsureHidden(ctx context.Context) error {
	return o.client.SetSourceVisibility(ctx, o.desired.SceneName, o.desired.SourceName, false)
}
