package scene

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newFakeCompositor starts a minimal server speaking just enough of the
// protocol for Connect + one GetSceneList round trip: Hello, Identified,
// then a canned response to any request.
func newFakeCompositor(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]any{"op": 0, "d": map[string]any{}}); err != nil {
			return
		}
		var identify map[string]any
		if err := conn.ReadJSON(&identify); err != nil {
			return
		}
		if err := conn.WriteJSON(map[string]any{"op": 2, "d": map[string]any{}}); err != nil {
			return
		}

		for {
			var frame incomingFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			var req requestData
			if err := json.Unmarshal(frame.D, &req); err != nil {
				return
			}
			resp := map[string]any{
				"op": opResponse,
				"d": map[string]any{
					"requestType": req.RequestType,
					"requestId":   req.RequestID,
					"requestStatus": map[string]any{
						"result": true,
						"code":   100,
					},
					"responseData": map[string]any{
						"scenes":                   []map[string]string{{"sceneName": "Main"}},
						"currentProgramSceneName": "Main",
					},
				},
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	return srv
}

func TestClientConnectAndCall(t *testing.T) {
	srv := newFakeCompositor(t)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	host, portStr, _ := strings.Cut(u.Host, ":")
	port, _ := strconv.Atoi(portStr)

	var events []string
	client := NewClient(func(name string) { events = append(events, name) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx, host, port, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.IsConnected() {
		t.Fatal("expected client to report connected")
	}

	resp, err := client.getSceneList(ctx)
	if err != nil {
		t.Fatalf("getSceneList: %v", err)
	}
	if resp.CurrentProgram != "Main" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(events) != 1 || events[0] != "Connected" {
		t.Fatalf("expected a single Connected event, got %v", events)
	}

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if client.IsConnected() {
		t.Fatal("expected client to report disconnected")
	}
}
