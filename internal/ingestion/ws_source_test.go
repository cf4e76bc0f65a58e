package ingestion

import (
	"encoding/json"
	"testing"

	"clipbot/internal/models"
)

func TestDecodeNotificationChatMessage(t *testing.T) {
	s := NewWSSource(nil)
	raw := `{
		"metadata": {"message_type": "notification"},
		"payload": {
			"subscription": {"type": "channel.chat.message"},
			"event": {
				"chatter_user_id": "1", "chatter_user_login": "viewer", "chatter_user_name": "Viewer",
				"broadcaster_user_id": "2", "broadcaster_user_login": "streamer",
				"message": {"text": "!watch abc"},
				"badges": [{"set_id": "vip"}]
			}
		}
	}`
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	evt, ok := s.decodeNotification(env)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if evt.Kind != models.EventChat || evt.Chat.Text != "!watch abc" || !evt.Chat.IsVip {
		t.Fatalf("unexpected event: %+v", evt.Chat)
	}
}

func TestDecodeNotificationRaid(t *testing.T) {
	s := NewWSSource(nil)
	raw := `{
		"metadata": {"message_type": "notification"},
		"payload": {
			"subscription": {"type": "channel.raid"},
			"event": {"from_broadcaster_user_id": "9", "from_broadcaster_user_login": "raider", "viewers": 17}
		}
	}`
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	evt, ok := s.decodeNotification(env)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if evt.Kind != models.EventRaid || evt.Raid.ViewerCount != 17 {
		t.Fatalf("unexpected event: %+v", evt.Raid)
	}
}

func TestDecodeNotificationUnknownType(t *testing.T) {
	s := NewWSSource(nil)
	raw := `{"metadata": {"message_type": "notification"}, "payload": {"subscription": {"type": "channel.follow"}}}`
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if _, ok := s.decodeNotification(env); ok {
		t.Fatal("expected unknown subscription type to be dropped")
	}
}
