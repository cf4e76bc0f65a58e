// Package platform is the REST client for the streaming platform's Helix-
// style API: clip lookup, user/channel lookup, chat messages, and
// shoutouts. Calls are retried with backoff and carry a single inline
// 401-refresh-and-retry path.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"clipbot/internal/backoffpolicy"
	"clipbot/internal/models"
	"clipbot/internal/tokenstore"
)

// baseURL is a var rather than a const so tests can point it at an
// httptest server.
var baseURL = "https://api.twitch.tv/helix/"

// Client calls the platform's REST API on behalf of the bot account.
type Client struct {
	http       *http.Client
	clientID   string
	tokens     *tokenstore.Store
	backoff    backoffpolicy.Policy
	retryCount uint
}

// NewClient builds a Client. clientID is the app's registered client id;
// tokens supplies and refreshes bearer tokens.
func NewClient(clientID string, tokens *tokenstore.Store, timeout time.Duration) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		clientID:   clientID,
		tokens:     tokens,
		backoff:    backoffpolicy.Default(30 * time.Second),
		retryCount: 3,
	}
}

// doJSON executes req, retrying transient failures, handling a single
// inline 401-refresh-and-retry, and decoding the JSON body into out (which
// may be nil if the caller doesn't need the body).
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body any, out any) error {
	correlationID := uuid.NewString()

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: marshal request body: %w", err)
		}
		bodyBytes = b
	}

	attempt401 := false
	execute := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytesReader(bodyBytes))
		if err != nil {
			return nil, retry.Unrecoverable(fmt.Errorf("platform: build request: %w", err))
		}
		req.Header.Set("Client-ID", c.clientID)
		req.Header.Set("X-Correlation-Id", correlationID)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		bundle, err := c.tokens.Get(ctx)
		if err != nil {
			return nil, retry.Unrecoverable(fmt.Errorf("platform: load token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrTransient, err) // network error: retryable
		}
		if resp.StatusCode == http.StatusUnauthorized && !attempt401 {
			attempt401 = true
			resp.Body.Close()
			refreshed, rerr := c.tokens.Refresh(ctx, bundle)
			if rerr != nil {
				return nil, retry.Unrecoverable(fmt.Errorf("platform: refresh after 401: %w", rerr))
			}
			req2, err := http.NewRequestWithContext(ctx, method, rawURL, bytesReader(bodyBytes))
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			req2.Header.Set("Client-ID", c.clientID)
			req2.Header.Set("X-Correlation-Id", correlationID)
			if bodyBytes != nil {
				req2.Header.Set("Content-Type", "application/json")
			}
			req2.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
			resp2, err := c.http.Do(req2)
			if err != nil {
				return nil, err
			}
			if resp2.StatusCode == http.StatusUnauthorized {
				resp2.Body.Close()
				return nil, retry.Unrecoverable(fmt.Errorf("platform: auth expired even after refresh: %w", models.ErrAuthExpired))
			}
			return resp2, nil
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, fmt.Errorf("platform: transient status %d: %w", resp.StatusCode, models.ErrTransient)
		}
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			return nil, retry.Unrecoverable(fmt.Errorf("platform: status %d: %s", resp.StatusCode, string(b)))
		}
		return resp, nil
	}

	resp, err := retry.DoWithData(execute,
		retry.Context(ctx),
		retry.Attempts(c.retryCount),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.backoff.Compute(int(n))
		}),
	)
	if err != nil {
		return fmt.Errorf("platform: request %s %s [correlation=%s]: %w", method, rawURL, correlationID, err)
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return &byteReader{b: b}
}

// byteReader is a minimal re-readable-once io.Reader to avoid importing
// bytes solely for bytes.NewReader in this file's narrow use.
type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

type helixEnvelope[T any] struct {
	Data []T `json:"data"`
}

type clipDTO struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	CreatorID       string  `json:"creator_id"`
	CreatorName     string  `json:"creator_name"`
	BroadcasterID   string  `json:"broadcaster_id"`
	BroadcasterName string  `json:"broadcaster_name"`
	GameID          string  `json:"game_id"`
	CreatedAt       string  `json:"created_at"`
	Duration        float64 `json:"duration"`
	ViewCount       int     `json:"view_count"`
}

func (d clipDTO) toModel(gameName string) (models.ClipData, error) {
	createdAt, _ := time.Parse(time.RFC3339, d.CreatedAt)
	return models.NewClipData(
		d.ID, d.URL, d.Title,
		models.ClipParty{ID: d.CreatorID, Login: d.CreatorName, Display: d.CreatorName},
		models.ClipParty{ID: d.BroadcasterID, Login: d.BroadcasterName, Display: d.BroadcasterName},
		gameName, d.Duration, createdAt, d.ViewCount,
	)
}

// GetClipByID fetches a single clip by its platform id.
func (c *Client) GetClipByID(ctx context.Context, id string) (models.ClipData, error) {
	var env helixEnvelope[clipDTO]
	u := baseURL + "clips?id=" + url.QueryEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &env); err != nil {
		return models.ClipData{}, err
	}
	if len(env.Data) == 0 {
		return models.ClipData{}, fmt.Errorf("platform: clip %q: %w", id, models.ErrClipNotFound)
	}
	games, err := c.gameNamesByID(ctx, []string{env.Data[0].GameID})
	if err != nil {
		log.Printf("[Platform] game-name hydration failed for clip %s: %v", id, err)
	}
	return env.Data[0].toModel(games[env.Data[0].GameID])
}

// GetClipByURL extracts the clip id/slug from a clip URL and fetches it.
func (c *Client) GetClipByURL(ctx context.Context, clipURL string) (models.ClipData, error) {
	id, err := ExtractClipID(clipURL)
	if err != nil {
		return models.ClipData{}, err
	}
	return c.GetClipByID(ctx, id)
}

// GetClipsByBroadcaster lists clips for broadcasterID created within
// [startedAt, endedAt), in the order the API returns them, capped at first
// results.
func (c *Client) GetClipsByBroadcaster(ctx context.Context, broadcasterID string, first int, startedAt, endedAt time.Time) ([]models.ClipData, error) {
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("first", strconv.Itoa(first))
	q.Set("started_at", startedAt.UTC().Format(time.RFC3339))
	q.Set("ended_at", endedAt.UTC().Format(time.RFC3339))

	var env helixEnvelope[clipDTO]
	if err := c.doJSON(ctx, http.MethodGet, baseURL+"clips?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}

	gameIDs := make([]string, 0, len(env.Data))
	seen := make(map[string]bool)
	for _, d := range env.Data {
		if d.GameID != "" && !seen[d.GameID] {
			seen[d.GameID] = true
			gameIDs = append(gameIDs, d.GameID)
		}
	}
	games, err := c.gameNamesByID(ctx, gameIDs)
	if err != nil {
		log.Printf("[Platform] game-name hydration failed: %v", err)
	}

	out := make([]models.ClipData, 0, len(env.Data))
	for _, d := range env.Data {
		m, err := d.toModel(games[d.GameID])
		if err != nil {
			log.Printf("[Platform] skipping malformed clip %s: %v", d.ID, err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type gameDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// gameNamesByID batches unique, non-empty game ids into games?id=...
// lookups (at most 100 ids per call) and returns id->name.
func (c *Client) gameNamesByID(ctx context.Context, gameIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(gameIDs))
	if len(gameIDs) == 0 {
		return out, nil
	}
	for start := 0; start < len(gameIDs); start += 100 {
		end := start + 100
		if end > len(gameIDs) {
			end = len(gameIDs)
		}
		q := url.Values{}
		for _, id := range gameIDs[start:end] {
			q.Add("id", id)
		}
		var env helixEnvelope[gameDTO]
		if err := c.doJSON(ctx, http.MethodGet, baseURL+"games?"+q.Encode(), nil, &env); err != nil {
			return out, err
		}
		for _, g := range env.Data {
			out[g.ID] = g.Name
		}
	}
	return out, nil
}

type userDTO struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// GetBroadcasterIDByName resolves a login name to a platform user id.
func (c *Client) GetBroadcasterIDByName(ctx context.Context, login string) (models.ClipParty, error) {
	var env helixEnvelope[userDTO]
	u := baseURL + "users?login=" + url.QueryEscape(login)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &env); err != nil {
		return models.ClipParty{}, err
	}
	if len(env.Data) == 0 {
		return models.ClipParty{}, fmt.Errorf("platform: user %q: %w", login, models.ErrUserNotFound)
	}
	return models.ClipParty{ID: env.Data[0].ID, Login: env.Data[0].Login, Display: env.Data[0].DisplayName}, nil
}

// GetAuthenticatedUserID resolves the bot's own user id.
func (c *Client) GetAuthenticatedUserID(ctx context.Context) (string, error) {
	user, err := c.GetAuthenticatedUser(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// GetAuthenticatedUser resolves the full identity (id, login, display
// name) of the account the current token belongs to. Used at startup to
// learn the home channel's login for the IRC fallback source.
func (c *Client) GetAuthenticatedUser(ctx context.Context) (models.ClipParty, error) {
	var env helixEnvelope[userDTO]
	if err := c.doJSON(ctx, http.MethodGet, baseURL+"users", nil, &env); err != nil {
		return models.ClipParty{}, err
	}
	if len(env.Data) == 0 {
		return models.ClipParty{}, fmt.Errorf("platform: no authenticated user returned")
	}
	d := env.Data[0]
	return models.ClipParty{ID: d.ID, Login: d.Login, Display: d.DisplayName}, nil
}

type channelDTO struct {
	BroadcasterID string `json:"broadcaster_id"`
	GameName      string `json:"game_name"`
	Title         string `json:"title"`
}

// GetChannelInfo fetches the current game/title for broadcasterID.
func (c *Client) GetChannelInfo(ctx context.Context, broadcasterID string) (gameName, title string, err error) {
	var env helixEnvelope[channelDTO]
	u := baseURL + "channels?broadcaster_id=" + url.QueryEscape(broadcasterID)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &env); err != nil {
		return "", "", err
	}
	if len(env.Data) == 0 {
		return "", "", fmt.Errorf("platform: channel %q not found", broadcasterID)
	}
	return env.Data[0].GameName, env.Data[0].Title, nil
}

// SendChatMessage posts a message to broadcasterID's chat as senderID.
func (c *Client) SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) error {
	body := map[string]string{
		"broadcaster_id": broadcasterID,
		"sender_id":      senderID,
		"message":        message,
	}
	return c.doJSON(ctx, http.MethodPost, baseURL+"chat/messages", body, nil)
}

// SendShoutout issues a platform-native shoutout from fromBroadcasterID to
// toBroadcasterID, attributed to moderatorID.
func (c *Client) SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error {
	q := url.Values{}
	q.Set("from_broadcaster_id", fromBroadcasterID)
	q.Set("to_broadcaster_id", toBroadcasterID)
	q.Set("moderator_id", moderatorID)
	return c.doJSON(ctx, http.MethodPost, baseURL+"chat/shoutouts?"+q.Encode(), nil, nil)
}

// eventSubSubscription pairs a subscription type/version with the websocket
// session it should be delivered to.
type eventSubSubscription struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Condition any    `json:"condition"`
	Transport struct {
		Method    string `json:"method"`
		SessionID string `json:"session_id"`
	} `json:"transport"`
}

func (c *Client) subscribe(ctx context.Context, subType, version string, condition any, sessionID string) error {
	body := eventSubSubscription{Type: subType, Version: version, Condition: condition}
	body.Transport.Method = "websocket"
	body.Transport.SessionID = sessionID
	return c.doJSON(ctx, http.MethodPost, baseURL+"eventsub/subscriptions", body, nil)
}

// SubscribeChatMessage subscribes sessionID to channel.chat.message for
// the bot's own channel. Failure here is fatal to the caller's websocket
// source: without it the session carries no chat events at all.
func (c *Client) SubscribeChatMessage(ctx context.Context, sessionID string) error {
	userID, err := c.tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("platform: load token for chat subscription: %w", err)
	}
	condition := map[string]string{
		"broadcaster_user_id": userID.UserID,
		"user_id":             userID.UserID,
	}
	return c.subscribe(ctx, "channel.chat.message", "1", condition, sessionID)
}

// SubscribeRaid subscribes sessionID to channel.raid for the bot's own
// channel as the raided (to) broadcaster. Failure here is tolerated by the
// caller: raids are a non-critical event.
func (c *Client) SubscribeRaid(ctx context.Context, sessionID string) error {
	userID, err := c.tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("platform: load token for raid subscription: %w", err)
	}
	condition := map[string]string{"to_broadcaster_user_id": userID.UserID}
	return c.subscribe(ctx, "channel.raid", "1", condition, sessionID)
}
