package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attune/internal/auth"
	"attune/internal/chat"
	"attune/internal/engine"
	"attune/internal/memory"
	"attune/internal/personality"
	"attune/internal/session"
)

// Deps carries the wired components the handlers work against.
type Deps struct {
	Engine   *engine.Orchestrator
	Registry *personality.Registry
	Memory   memory.Store
	Sessions *session.Store
	History  *chat.History
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type profileView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tone        []string `json:"tone"`
	Default     bool     `json:"default"`
}

func listPersonalitiesHandler(registry *personality.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defaultID := registry.Default().ID
		var views []profileView
		for _, id := range registry.IDs() {
			p := registry.Get(id)
			views = append(views, profileView{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Tone:        p.Tone,
				Default:     p.ID == defaultID,
			})
		}
		c.JSON(http.StatusOK, gin.H{"personalities": views})
	}
}

func createSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessionId": uuid.NewString()})
	}
}

func sessionStateHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		state, err := deps.Engine.SessionState(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session state unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sessionId":   sessionID,
			"personality": state.Current,
			"pinned":      state.Pinned,
			"lastSwitch":  state.LastSwitch,
		})
	}
}

type overrideRequest struct {
	Personality string `json:"personality" binding:"required"`
}

func setOverrideHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing personality"})
			return
		}
		state, err := deps.Engine.ApplyOverride(c.Request.Context(), c.Param("id"), personality.Override{ProfileID: req.Personality})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"personality": state.Current, "pinned": state.Pinned})
	}
}

func clearOverrideHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := deps.Engine.ApplyOverride(c.Request.Context(), c.Param("id"), personality.Override{Clear: true})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session state unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"personality": state.Current, "pinned": state.Pinned})
	}
}

func deleteSessionHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to reset session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	}
}

func listMessagesHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, err := deps.History.Recent(c.Request.Context(), c.Param("id"), 100)
		if err != nil {
			log.Printf("[API] history read failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages})
	}
}

type memoryEntryView struct {
	Kind       string  `json:"kind"`
	Key        string  `json:"key,omitempty"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

func getMemoryHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		mem, err := deps.Memory.Get(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory unavailable"})
			return
		}
		view := func(entries []memory.Entry) []memoryEntryView {
			out := make([]memoryEntryView, 0, len(entries))
			for _, e := range entries {
				out = append(out, memoryEntryView{
					Kind:       string(e.Kind),
					Key:        e.Key,
					Content:    e.Content,
					Confidence: e.Confidence,
				})
			}
			return out
		}
		c.JSON(http.StatusOK, gin.H{
			"preferences": view(mem.Preferences),
			"facts":       view(mem.Facts),
			"emotions":    view(mem.Emotions),
		})
	}
}
