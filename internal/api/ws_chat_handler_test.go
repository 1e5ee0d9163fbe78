package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"attune/internal/auth"
)

func wsDial(t *testing.T, deps Deps) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.ContextUserKey, "ws-user")
		c.Next()
	})
	r.GET("/ws/chat", WSChatHandler(deps))

	s := httptest.NewServer(r)
	t.Cleanup(s.Close)

	wsURL := "ws" + s.URL[4:] + "/ws/chat"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWSChatHandler_StreamsReply(t *testing.T) {
	deps := testDeps(t, "No pressure at all. One step at a time and you will get there.")
	ws := wsDial(t, deps)

	payload := WSChatPrompt{SessionID: "ws-sess", Prompt: "I'm stressed about my deadline"}
	b, _ := json.Marshal(payload)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}

	var tokens []string
	var done map[string]interface{}
	for {
		_, resp, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("WebSocket read failed: %v", err)
		}
		var frame map[string]interface{}
		if err := json.Unmarshal(resp, &frame); err != nil {
			t.Fatalf("bad frame %q: %v", resp, err)
		}
		if frame["event"] == "done" {
			done = frame
			break
		}
		if errMsg, ok := frame["error"]; ok {
			t.Fatalf("unexpected error frame: %v", errMsg)
		}
		tokens = append(tokens, frame["token"].(string))
	}

	if len(tokens) == 0 {
		t.Fatal("expected streamed tokens before the done event")
	}
	text := strings.Join(tokens, "")
	if !strings.Contains(text, "One step at a time") {
		t.Fatalf("streamed text = %q", text)
	}
	if done["personality"] != "supportive" {
		t.Fatalf("done personality = %v, want supportive", done["personality"])
	}
}

func TestWSChatHandler_MissingSessionID(t *testing.T) {
	deps := testDeps(t, "hi")
	ws := wsDial(t, deps)

	payload := WSChatPrompt{Prompt: "hello"}
	b, _ := json.Marshal(payload)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}
	_, resp, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	if !bytes.Contains(resp, []byte("missing sessionId")) {
		t.Errorf("expected missing sessionId error, got: %s", string(resp))
	}
}

func TestWSChatHandler_InvalidJSON(t *testing.T) {
	deps := testDeps(t, "hi")
	ws := wsDial(t, deps)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}
	_, resp, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	if !bytes.Contains(resp, []byte("invalid JSON")) {
		t.Errorf("expected invalid JSON error, got: %s", string(resp))
	}
}

func TestWSChatHandler_OverrideInPayload(t *testing.T) {
	deps := testDeps(t, "Ha, good one. Tell me more.")
	ws := wsDial(t, deps)

	payload := WSChatPrompt{SessionID: "ws-ov", Prompt: "I'm stressed", Personality: "playful"}
	b, _ := json.Marshal(payload)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}

	for {
		_, resp, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("WebSocket read failed: %v", err)
		}
		var frame map[string]interface{}
		if err := json.Unmarshal(resp, &frame); err != nil {
			t.Fatalf("bad frame %q: %v", resp, err)
		}
		if frame["event"] == "done" {
			if frame["personality"] != "playful" {
				t.Fatalf("personality = %v, want the overridden playful", frame["personality"])
			}
			return
		}
	}
}
