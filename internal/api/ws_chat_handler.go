package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"attune/internal/auth"
	"attune/internal/engine"
	"attune/internal/llm"
	"attune/internal/personality"
)

// WSChatPrompt is the initial client payload on the chat socket.
type WSChatPrompt struct {
	SessionID        string `json:"sessionId"`
	Prompt           string `json:"prompt"`
	Personality      string `json:"personality"`
	ClearPersonality bool   `json:"clear_personality"`
}

// WSChatToken is one streamed piece of the reply.
type WSChatToken struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket connection wrapper with mutex for thread-safe writes
type safeWSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeWSConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *safeWSConn) Close() error {
	return s.conn.Close()
}

func WSChatHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		rawConn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("WebSocket upgrade failed:", err)
			return
		}
		conn := &safeWSConn{conn: rawConn}
		defer conn.Close()

		_, msg, err := rawConn.ReadMessage()
		if err != nil {
			conn.WriteJSON(map[string]string{"error": "invalid initial payload"})
			return
		}
		var req WSChatPrompt
		if err := json.Unmarshal(msg, &req); err != nil {
			conn.WriteJSON(map[string]string{"error": "invalid JSON"})
			return
		}
		if req.SessionID == "" {
			conn.WriteJSON(map[string]string{"error": "missing sessionId"})
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// The client can abort a reply mid-stream with {"event":"stop"};
		// a closed socket aborts too.
		go func() {
			for {
				_, msg, err := rawConn.ReadMessage()
				if err != nil {
					cancel()
					return
				}
				var ev map[string]interface{}
				if json.Unmarshal(msg, &ev) == nil && ev["event"] == "stop" {
					cancel()
					return
				}
			}
		}()

		var override *personality.Override
		if req.ClearPersonality {
			override = &personality.Override{Clear: true}
		} else if req.Personality != "" {
			override = &personality.Override{ProfileID: req.Personality}
		}

		reply, err := deps.Engine.Process(ctx, engine.Request{
			UserID:    userID,
			SessionID: req.SessionID,
			Text:      req.Prompt,
			Override:  override,
		})
		if err != nil {
			var ge *llm.GenerationError
			if errors.As(err, &ge) {
				conn.WriteJSON(map[string]string{"error": "generation failed", "detail": ge.Reason})
			} else {
				log.Printf("[API] chat processing failed: %v", err)
				conn.WriteJSON(map[string]string{"error": "processing failed"})
			}
			return
		}

		index := 0
		for token := range reply.Chunks {
			if err := conn.WriteJSON(WSChatToken{Token: token, Index: index}); err != nil {
				cancel()
				break
			}
			index++
		}

		conn.WriteJSON(map[string]interface{}{
			"event":       "done",
			"personality": reply.Personality,
			"warnings":    reply.Warnings,
		})
	}
}
