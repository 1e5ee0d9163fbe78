package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attune/internal/auth"
	"attune/internal/chat"
	"attune/internal/config"
	"attune/internal/engine"
	"attune/internal/llm"
	"attune/internal/memory"
	"attune/internal/personality"
	"attune/internal/pipeline"
	"attune/internal/session"
)

type echoGenerator struct {
	reply string
}

func (g *echoGenerator) Generate(_ context.Context, _ []llm.Message) (*llm.Stream, error) {
	return llm.NewStaticStream(nil, g.reply), nil
}

func testDeps(t *testing.T, reply string) Deps {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gormDB.AutoMigrate(&memory.EntryRecord{}, &chat.Conversation{}, &chat.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	registry, err := personality.NewRegistry(config.PersonalityConfig{
		DefaultID:       "calm",
		SwitchThreshold: 0.4,
		Profiles:        config.DefaultProfiles(),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	store := memory.NewGormStore(gormDB)
	history := chat.NewHistory(gormDB)
	sessions := session.NewStore(rdb, time.Hour)

	eng := &engine.Orchestrator{
		Registry:   registry,
		Classifier: personality.NewClassifier(registry),
		Selector:   personality.NewSelector(registry),
		Store:      store,
		Extractors: []memory.Extractor{
			memory.NewPreferenceExtractor(),
			memory.NewFactExtractor(),
			memory.NewEmotionExtractor(),
		},
		Pipeline: pipeline.New(&echoGenerator{reply: reply}),
		Sessions: sessions,
		History:  history,
	}
	return Deps{
		Engine:   eng,
		Registry: registry,
		Memory:   store,
		Sessions: sessions,
		History:  history,
	}
}

func testRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Server.Subpath = "/attune"
	cfg.Server.JWTSecret = "test-secret"
	config.ApplyDefaults(cfg)
	return SetupRouter(cfg, deps)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, cookies []*http.Cookie) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("bad JSON response %q: %v", w.Body.String(), err)
		}
	}
	return w, parsed
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))
	w, body := doJSON(t, r, "GET", "/attune/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestListPersonalities(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))
	w, body := doJSON(t, r, "GET", "/attune/personalities", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list, ok := body["personalities"].([]interface{})
	if !ok || len(list) != 3 {
		t.Fatalf("personalities = %v", body["personalities"])
	}
	foundDefault := false
	for _, item := range list {
		p := item.(map[string]interface{})
		if p["id"] == "calm" && p["default"] == true {
			foundDefault = true
		}
	}
	if !foundDefault {
		t.Fatal("calm should be marked as the default personality")
	}
}

func TestCreateSessionMintsID(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))
	w, body := doJSON(t, r, "POST", "/attune/sessions", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if id, _ := body["sessionId"].(string); id == "" {
		t.Fatalf("sessionId missing: %v", body)
	}
	// First contact also mints an identity cookie.
	found := false
	for _, ck := range w.Result().Cookies() {
		if ck.Name == auth.IdentityCookie && ck.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected identity cookie on first contact")
	}
}

func TestSessionStateDefaultsToCalm(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))
	w, body := doJSON(t, r, "GET", "/attune/sessions/fresh", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%v", w.Code, body)
	}
	if body["personality"] != "calm" {
		t.Fatalf("personality = %v, want calm", body["personality"])
	}
	if body["pinned"] != false {
		t.Fatalf("pinned = %v, want false", body["pinned"])
	}
}

func TestOverrideSetAndClear(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))

	w, body := doJSON(t, r, "POST", "/attune/sessions/s1/personality", `{"personality":"playful"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%v", w.Code, body)
	}
	if body["personality"] != "playful" || body["pinned"] != true {
		t.Fatalf("body = %v", body)
	}

	w, body = doJSON(t, r, "GET", "/attune/sessions/s1", "", nil)
	if w.Code != http.StatusOK || body["personality"] != "playful" {
		t.Fatalf("state after override = %v", body)
	}

	w, body = doJSON(t, r, "DELETE", "/attune/sessions/s1/personality", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%v", w.Code, body)
	}
	if body["pinned"] != false {
		t.Fatalf("pinned = %v after clear", body["pinned"])
	}
}

func TestOverrideUnknownPersonality(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))
	w, _ := doJSON(t, r, "POST", "/attune/sessions/s1/personality", `{"personality":"grumpy"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMemoryEndpointEmpty(t *testing.T) {
	r := testRouter(t, testDeps(t, "ok"))

	// First request mints the identity; replay its cookie.
	w, _ := doJSON(t, r, "GET", "/attune/memory", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	cookies := w.Result().Cookies()
	w, body := doJSON(t, r, "GET", "/attune/memory", "", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, key := range []string{"preferences", "facts", "emotions"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %q in %v", key, body)
		}
	}
}
