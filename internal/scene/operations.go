package scene

import (
	"context"
	"encoding/json"
	"fmt"
)

type sceneListResponse struct {
	Scenes         []struct{ SceneName string `json:"sceneName"` } `json:"scenes"`
	CurrentProgram string                                          `json:"currentProgramSceneName"`
}

type sceneItemListResponse struct {
	SceneItems []struct {
		SourceName string `json:"sourceName"`
	} `json:"sceneItems"`
}

type inputSettingsResponse struct {
	InputSettings struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"inputSettings"`
}

// browserSourceSettings are the fixed settings every clip-overlay browser
// source is created with, per the spec's desired-state contract.
type browserSourceSettings struct {
	URL                 string `json:"url"`
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	FPS                 int    `json:"fps"`
	FPSCustom           bool   `json:"fps_custom"`
	RerouteAudio        bool   `json:"reroute_audio"`
	RestartWhenActive   bool   `json:"restart_when_active"`
	Shutdown            bool   `json:"shutdown"`
	WebpageControlLevel int    `json:"webpage_control_level"`
}

func newBrowserSourceSettings(url string, width, height int) browserSourceSettings {
	return browserSourceSettings{
		URL: url, Width: width, Height: height,
		FPS: 60, FPSCustom: true, RerouteAudio: true,
		RestartWhenActive: true, Shutdown: true, WebpageControlLevel: 2,
	}
}

// getSceneList returns every scene name and the current program scene.
func (c *Client) getSceneList(ctx context.Context) (sceneListResponse, error) {
	resp, err := c.call(ctx, "GetSceneList", nil)
	if err != nil {
		return sceneListResponse{}, err
	}
	var out sceneListResponse
	if err := json.Unmarshal(resp.ResponseData, &out); err != nil {
		return sceneListResponse{}, fmt.Errorf("scene: decode GetSceneList: %w", err)
	}
	return out, nil
}

func (c *Client) createScene(ctx context.Context, sceneName string) error {
	_, err := c.call(ctx, "CreateScene", map[string]string{"sceneName": sceneName})
	return err
}

func (c *Client) getSceneItemList(ctx context.Context, sceneName string) (sceneItemListResponse, error) {
	resp, err := c.call(ctx, "GetSceneItemList", map[string]string{"sceneName": sceneName})
	if err != nil {
		return sceneItemListResponse{}, err
	}
	var out sceneItemListResponse
	if err := json.Unmarshal(resp.ResponseData, &out); err != nil {
		return sceneItemListResponse{}, fmt.Errorf("scene: decode GetSceneItemList: %w", err)
	}
	return out, nil
}

func (c *Client) createBrowserInput(ctx context.Context, sceneName, sourceName, url string, width, height int) error {
	_, err := c.call(ctx, "CreateInput", map[string]any{
		"sceneName":        sceneName,
		"inputName":        sourceName,
		"inputKind":        "browser_source",
		"inputSettings":    newBrowserSourceSettings(url, width, height),
		"sceneItemEnabled": true,
	})
	return err
}

func (c *Client) createSceneItem(ctx context.Context, parentScene, childSceneName string) error {
	_, err := c.call(ctx, "CreateSceneItem", map[string]any{
		"sceneName":        parentScene,
		"sourceName":       childSceneName,
		"sceneItemEnabled": true,
	})
	return err
}

func (c *Client) getInputSettings(ctx context.Context, inputName string) (inputSettingsResponse, error) {
	resp, err := c.call(ctx, "GetInputSettings", map[string]string{"inputName": inputName})
	if err != nil {
		return inputSettingsResponse{}, err
	}
	var out inputSettingsResponse
	if err := json.Unmarshal(resp.ResponseData, &out); err != nil {
		return inputSettingsResponse{}, fmt.Errorf("scene: decode GetInputSettings: %w", err)
	}
	return out, nil
}

func (c *Client) setInputSettings(ctx context.Context, inputName string, settings browserSourceSettings) error {
	_, err := c.call(ctx, "SetInputSettings", map[string]any{
		"inputName":     inputName,
		"inputSettings": settings,
		"overlay":       true,
	})
	return err
}

func (c *Client) getCurrentProgramScene(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := json.Unmarshal(resp.ResponseData, &out); err != nil {
		return "", fmt.Errorf("scene: decode GetCurrentProgramScene: %w", err)
	}
	return out.CurrentProgramSceneName, nil
}

// EnsureClipSceneAndSourceExists enforces the desired state: the clip
// scene exists, its browser source exists with the right settings, and it
// is reachable (directly or nested) from the current program scene.
func (c *Client) EnsureClipSceneAndSourceExists(ctx context.Context, sceneName, sourceName, url string, width, height int) error {
	scenes, err := c.getSceneList(ctx)
	if err != nil {
		return err
	}
	if !containsScene(scenes.Scenes, sceneName) {
		if err := c.createScene(ctx, sceneName); err != nil {
			return fmt.Errorf("scene: create scene %q: %w", sceneName, err)
		}
	}

	items, err := c.getSceneItemList(ctx, sceneName)
	if err != nil {
		return err
	}
	if !containsSource(items.SceneItems, sourceName) {
		if err := c.createBrowserInput(ctx, sceneName, sourceName, url, width, height); err != nil {
			return fmt.Errorf("scene: create browser source %q: %w", sourceName, err)
		}
	}

	current, err := c.getCurrentProgramScene(ctx)
	if err != nil {
		return err
	}
	if current != sceneName {
		currentItems, err := c.getSceneItemList(ctx, current)
		if err != nil {
			return err
		}
		if !containsSource(currentItems.SceneItems, sceneName) {
			if err := c.createSceneItem(ctx, current, sceneName); err != nil {
				return fmt.Errorf("scene: nest clip scene into %q: %w", current, err)
			}
		}
	}
	return nil
}

// SetBrowserSourceUrl updates sourceName's browser-source URL, preserving
// the other fixed settings.
func (c *Client) SetBrowserSourceUrl(ctx context.Context, sceneName, sourceName, url string) error {
	existing, err := c.getInputSettings(ctx, sourceName)
	if err != nil {
		return err
	}
	settings := newBrowserSourceSettings(url, existing.InputSettings.Width, existing.InputSettings.Height)
	return c.setInputSettings(ctx, sourceName, settings)
}

// RefreshBrowserSource forces sourceName to reload without using its
// cache.
func (c *Client) RefreshBrowserSource(ctx context.Context, sourceName string) error {
	_, err := c.call(ctx, "PressInputPropertiesButton", map[string]string{
		"inputName":    sourceName,
		"propertyName": "refreshnocache",
	})
	return err
}

// SetSourceVisibility shows or hides sourceName within sceneName.
func (c *Client) SetSourceVisibility(ctx context.Context, sceneName, sourceName string, visible bool) error {
	_, err := c.call(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        sceneName,
		"itemName":         sourceName,
		"sceneItemEnabled": visible,
	})
	return err
}

// CheckConfigurationDrift reports whether sourceName's live url/width/
// height differ from the desired values.
func (c *Client) CheckConfigurationDrift(ctx context.Context, sourceName, expectedURL string, width, height int) (bool, error) {
	settings, err := c.getInputSettings(ctx, sourceName)
	if err != nil {
		return false, err
	}
	drifted := settings.InputSettings.URL != expectedURL ||
		settings.InputSettings.Width != width ||
		settings.InputSettings.Height != height
	return drifted, nil
}

func containsScene(scenes []struct {
	SceneName string `json:"sceneName"`
}, name string) bool {
	for _, s := range scenes {
		if s.SceneName == name {
			return true
		}
	}
	return false
}

func containsSource(items []struct {
	SourceName string `json:"sourceName"`
}, name string) bool {
	for _, it := range items {
		if it.SourceName == name {
			return true
		}
	}
	return false
}
