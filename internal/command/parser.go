// Package command parses chat messages into typed commands and routes
// them to the playback, approval, and shoutout services.
package command

import (
	"regexp"
	"strings"

	"clipbot/internal/models"
)

// clipURLPattern matches clip URLs in either canonical shape, with or
// without scheme/www, capturing the trailing slug.
var clipURLPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:clips\.twitch\.tv/|twitch\.tv/\w+/clip/)([A-Za-z0-9_-]+)`)

// Parse turns a chat message's text into a Command, or returns ok=false if
// the text is not a recognized command. Parsing is purely syntactic: it
// never calls out to the platform.
func Parse(msg models.ChatMessage) (models.Command, bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "!") {
		return models.Command{}, false
	}

	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])

	switch name {
	case "!watch":
		return parseWatch(msg, fields)
	case "!stop":
		return models.Command{Kind: models.CmdStop, Source: msg}, true
	case "!replay":
		return models.Command{Kind: models.CmdReplay, Source: msg}, true
	case "!so", "!shoutout":
		return parseShoutout(msg, fields)
	default:
		return models.Command{}, false
	}
}

func parseWatch(msg models.ChatMessage, fields []string) (models.Command, bool) {
	rest := strings.Join(fields[1:], " ")
	if m := clipURLPattern.FindStringSubmatch(rest); m != nil {
		return models.Command{Kind: models.CmdWatchClip, Source: msg, ClipIdentifier: m[1]}, true
	}

	if len(fields) < 2 {
		return models.Command{}, false
	}
	second := fields[1]
	if strings.HasPrefix(second, "@") {
		terms := strings.TrimSpace(strings.Join(fields[2:], " "))
		broadcaster := strings.TrimPrefix(second, "@")
		if terms == "" {
			return models.Command{}, false
		}
		return models.Command{
			Kind:            models.CmdWatchSearch,
			Source:          msg,
			BroadcasterName: broadcaster,
			SearchTerms:     terms,
		}, true
	}

	return models.Command{Kind: models.CmdWatchClip, Source: msg, ClipIdentifier: second}, true
}

func parseShoutout(msg models.ChatMessage, fields []string) (models.Command, bool) {
	if len(fields) < 2 {
		return models.Command{}, false
	}
	target := strings.TrimPrefix(fields[1], "@")
	return models.Command{Kind: models.CmdShoutout, Source: msg, TargetUsername: target}, true
}
