package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clipbot/internal/models"
)

const (
	eventWSURL = "wss://eventsub.wss.twitch.tv/ws"
	wsReadWait = 70 * time.Second
)

type envelope struct {
	Metadata struct {
		MessageType string `json:"message_type"`
	} `json:"metadata"`
	Payload struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Subscription struct {
			Type string `json:"type"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

type chatMessageEventDTO struct {
	ChatterUserID    string `json:"chatter_user_id"`
	ChatterUserLogin string `json:"chatter_user_login"`
	ChatterUserName  string `json:"chatter_user_name"`
	BroadcasterID    string `json:"broadcaster_user_id"`
	BroadcasterLogin string `json:"broadcaster_user_login"`
	Message          struct {
		Text string `json:"text"`
	} `json:"message"`
	Badges []struct {
		SetID string `json:"set_id"`
	} `json:"badges"`
}

type raidEventDTO struct {
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	Viewers                  int    `json:"viewers"`
}

// subscriber issues the authenticated HTTPS subscription calls that pair
// with an established WS session. Implemented by internal/platform in
// production, faked in tests.
type subscriber interface {
	SubscribeChatMessage(ctx context.Context, sessionID string) error
	SubscribeRaid(ctx context.Context, sessionID string) error
}

// WSSource is the primary event source: a push-event WebSocket connection.
type WSSource struct {
	subscriber subscriber

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	events    chan models.Event
	done      chan struct{}
}

// NewWSSource constructs a WSSource. sub performs the HTTPS subscription
// calls once the session id is known.
func NewWSSource(sub subscriber) *WSSource {
	return &WSSource{
		subscriber: sub,
		events:     make(chan models.Event, 256),
	}
}

func (s *WSSource) SourceName() string { return "eventsub-websocket" }

func (s *WSSource) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *WSSource) Events() <-chan models.Event { return s.events }

// Done returns the channel for the most recently established connection,
// closed when its read loop exits for any reason.
func (s *WSSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connect dials the event WebSocket, waits for session_welcome, issues
// subscriptions, then launches the background read loop.
func (s *WSSource) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, eventWSURL, nil)
	if err != nil {
		return fmt.Errorf("ingestion: dial event websocket: %w", err)
	}

	sessionID, err := s.awaitWelcome(conn)
	if err != nil {
		conn.Close()
		return err
	}

	if err := s.subscriber.SubscribeChatMessage(ctx, sessionID); err != nil {
		conn.Close()
		return fmt.Errorf("ingestion: chat subscription failed: %w: %w", models.ErrSubscriptionFailed, err)
	}
	if err := s.subscriber.SubscribeRaid(ctx, sessionID); err != nil {
		log.Printf("[Ingestion] raid subscription failed (tolerated): %v", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn, s.done)
	return nil
}

func (s *WSSource) awaitWelcome(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("ingestion: read session_welcome: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("ingestion: decode session_welcome: %w", err)
	}
	if env.Metadata.MessageType != "session_welcome" {
		return "", fmt.Errorf("ingestion: expected session_welcome, got %q", env.Metadata.MessageType)
	}
	conn.SetReadDeadline(time.Time{})
	return env.Payload.Session.ID, nil
}

// readLoop decodes frames until the connection closes or a subscription
// failure is detected. ReadMessage already reassembles fragmented frames
// up to the final fragment, so no manual buffering is needed here.
func (s *WSSource) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[Ingestion] websocket read error: %v", err)
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("[Ingestion] malformed frame, treating as subscription failure: %v", err)
			return
		}
		switch env.Metadata.MessageType {
		case "session_keepalive":
			continue
		case "session_reconnect":
			log.Printf("[Ingestion] server requested reconnect")
			return
		case "notification":
			evt, ok := s.decodeNotification(env)
			if !ok {
				continue
			}
			select {
			case s.events <- evt:
			default:
				log.Printf("[Ingestion] event buffer full, dropping event")
			}
		default:
			log.Printf("[Ingestion] unrecognized message_type %q, dropping", env.Metadata.MessageType)
		}
	}
}

func (s *WSSource) decodeNotification(env envelope) (models.Event, bool) {
	switch env.Payload.Subscription.Type {
	case "channel.chat.message":
		var d chatMessageEventDTO
		if err := json.Unmarshal(env.Payload.Event, &d); err != nil {
			log.Printf("[Ingestion] decode chat notification: %v", err)
			return models.Event{}, false
		}
		msg := models.ChatMessage{
			AuthorLogin:   d.ChatterUserLogin,
			AuthorDisplay: d.ChatterUserName,
			AuthorID:      d.ChatterUserID,
			ChannelLogin:  d.BroadcasterLogin,
			ChannelID:     d.BroadcasterID,
			Text:          d.Message.Text,
		}
		for _, b := range d.Badges {
			switch b.SetID {
			case "broadcaster":
				msg.IsBroadcaster = true
			case "moderator":
				msg.IsModerator = true
			case "vip":
				msg.IsVip = true
			case "subscriber":
				msg.IsSubscriber = true
			}
		}
		return models.NewChatEvent(msg), true
	case "channel.raid":
		var d raidEventDTO
		if err := json.Unmarshal(env.Payload.Event, &d); err != nil {
			log.Printf("[Ingestion] decode raid notification: %v", err)
			return models.Event{}, false
		}
		return models.NewRaidEvent(models.RaidEvent{
			RaiderLogin: d.FromBroadcasterUserLogin,
			RaiderID:    d.FromBroadcasterUserID,
			ViewerCount: d.Viewers,
		}), true
	default:
		log.Printf("[Ingestion] dropping unhandled subscription type %q", env.Payload.Subscription.Type)
		return models.Event{}, false
	}
}

// Disconnect closes the underlying connection and waits for the read loop
// to exit.
func (s *WSSource) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.connected = false
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}
