package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// ExtractClipID pulls the clip slug out of any of the platform's clip URL
// shapes (clips.twitch.tv/<slug>, twitch.tv/<channel>/clip/<slug>) or
// returns raw unchanged if it doesn't look like a URL at all.
func ExtractClipID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("platform: empty clip identifier")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("platform: parse clip url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return "", fmt.Errorf("platform: no clip slug found in %q", raw)
	}
	return segments[len(segments)-1], nil
}
