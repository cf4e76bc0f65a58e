package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"clipbot/internal/models"
)

const (
	ircHost = "irc.chat.twitch.tv"
	ircPort = "6667"
)

// IRCCredentials supplies the identity the IRC source authenticates with.
type IRCCredentials interface {
	AccessToken(ctx context.Context) (string, error)
	Login() string
	ChannelLogin() string
}

// IRCSource is the fallback event source: a raw TCP connection to the
// platform's IRC-compatible chat gateway.
type IRCSource struct {
	creds IRCCredentials

	mu        sync.Mutex
	conn      net.Conn
	writer    *bufio.Writer
	connected bool
	events    chan models.Event
	done      chan struct{}
}

// NewIRCSource constructs an IRCSource.
func NewIRCSource(creds IRCCredentials) *IRCSource {
	return &IRCSource{
		creds:  creds,
		events: make(chan models.Event, 256),
	}
}

func (s *IRCSource) SourceName() string { return "irc" }

func (s *IRCSource) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *IRCSource) Events() <-chan models.Event { return s.events }

// Done returns the channel for the most recently established connection,
// closed when its read loop exits for any reason.
func (s *IRCSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connect dials the IRC gateway, registers, requests capabilities, and
// joins the configured channel, then launches the background read loop.
func (s *IRCSource) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ircHost, ircPort))
	if err != nil {
		return fmt.Errorf("ingestion: dial irc: %w", err)
	}

	token, err := s.creds.AccessToken(ctx)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ingestion: fetch token for irc: %w", err)
	}

	w := bufio.NewWriter(conn)
	writeLine := func(line string) error {
		_, err := w.WriteString(line + "\r\n")
		if err != nil {
			return err
		}
		return w.Flush()
	}

	login := s.creds.Login()
	channel := s.creds.ChannelLogin()
	if err := writeLine("PASS oauth:" + token); err != nil {
		conn.Close()
		return fmt.Errorf("ingestion: irc PASS: %w", err)
	}
	if err := writeLine("NICK " + login); err != nil {
		conn.Close()
		return fmt.Errorf("ingestion: irc NICK: %w", err)
	}
	if err := writeLine("CAP REQ :twitch.tv/tags twitch.tv/commands"); err != nil {
		conn.Close()
		return fmt.Errorf("ingestion: irc CAP REQ: %w", err)
	}
	if err := writeLine("JOIN #" + channel); err != nil {
		conn.Close()
		return fmt.Errorf("ingestion: irc JOIN: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.writer = w
	s.connected = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn, channel, s.done)
	return nil
}

func (s *IRCSource) readLoop(conn net.Conn, channel string, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		close(done)
	}()

	reader := textproto.NewReader(bufio.NewReader(conn))
	for {
		line, err := reader.ReadLine()
		if err != nil {
			log.Printf("[Ingestion] irc read error: %v", err)
			return
		}
		s.handleLine(line, channel)
	}
}

func (s *IRCSource) handleLine(line, channel string) {
	tags, rest := splitTags(line)

	switch {
	case strings.HasPrefix(rest, "PING"):
		pong := strings.Replace(rest, "PING", "PONG", 1)
		s.send(pong)
	case strings.Contains(rest, " PRIVMSG "):
		msg, ok := parsePrivmsg(tags, rest, channel)
		if ok {
			s.emit(models.NewChatEvent(msg))
		}
	case strings.Contains(rest, " USERNOTICE "):
		if tags["msg-id"] == "raid" {
			viewers, _ := strconv.Atoi(tags["msg-param-viewerCount"])
			s.emit(models.NewRaidEvent(models.RaidEvent{
				RaiderLogin: tags["msg-param-login"],
				RaiderID:    tags["user-id"],
				ViewerCount: viewers,
			}))
		}
	}
}

func (s *IRCSource) emit(evt models.Event) {
	select {
	case s.events <- evt:
	default:
		log.Printf("[Ingestion] event buffer full, dropping event")
	}
}

// send writes a raw line to the connection. Used for PONG replies and
// outgoing PRIVMSGs (the chat-feedback layer's IRC path).
func (s *IRCSource) send(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.writer
	if w == nil {
		return
	}
	if _, err := w.WriteString(line + "\r\n"); err != nil {
		log.Printf("[Ingestion] irc write error: %v", err)
		return
	}
	if err := w.Flush(); err != nil {
		log.Printf("[Ingestion] irc flush error: %v", err)
	}
}

// SendMessage sends a PRIVMSG to the joined channel. Used by the chat
// feedback layer when IRC is the active source.
func (s *IRCSource) SendMessage(channel, text string) {
	s.send(fmt.Sprintf("PRIVMSG #%s :%s", channel, text))
}

// Disconnect closes the underlying connection and waits for the read loop
// to exit.
func (s *IRCSource) Disconnect() error {
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

// splitTags separates an IRCv3 `@tag=val;...` prefix from the remainder of
// the line, returning an empty map if no tags are present.
func splitTags(line string) (map[string]string, string) {
	if !strings.HasPrefix(line, "@") {
		return map[string]string{}, line
	}
	sp := strings.SplitN(line, " ", 2)
	if len(sp) != 2 {
		return map[string]string{}, line
	}
	tags := make(map[string]string)
	for _, kv := range strings.Split(strings.TrimPrefix(sp[0], "@"), ";") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			tags[parts[0]] = parts[1]
		}
	}
	return tags, sp[1]
}

// parsePrivmsg extracts a ChatMessage from an IRC PRIVMSG line, given its
// IRCv3 tags.
func parsePrivmsg(tags map[string]string, rest, channel string) (models.ChatMessage, bool) {
	idx := strings.Index(rest, " PRIVMSG ")
	if idx < 0 {
		return models.ChatMessage{}, false
	}
	after := rest[idx+len(" PRIVMSG "):]
	colon := strings.Index(after, " :")
	if colon < 0 {
		return models.ChatMessage{}, false
	}
	text := after[colon+2:]

	msg := models.ChatMessage{
		AuthorLogin:   tags["login"],
		AuthorDisplay: tags["display-name"],
		AuthorID:      tags["user-id"],
		ChannelLogin:  channel,
		ChannelID:     tags["room-id"],
		Text:          text,
	}
	if msg.AuthorLogin == "" {
		// Fall back to parsing the nick out of the prefix (:nick!user@host).
		if strings.HasPrefix(rest, ":") {
			if bang := strings.Index(rest, "!"); bang > 0 {
				msg.AuthorLogin = rest[1:bang]
			}
		}
	}
	for _, badge := range strings.Split(tags["badges"], ",") {
		name := strings.SplitN(badge, "/", 2)[0]
		switch name {
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
	return msg, true
}
