package chat

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testHistory(t *testing.T) *History {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewHistory(db)
}

func TestHistory_AppendAndRecent(t *testing.T) {
	h := testHistory(t)
	ctx := context.Background()

	if err := h.Append(ctx, "user-a", "sess-1", "user", "hello", ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.Append(ctx, "user-a", "sess-1", "bot", "hi there", "calm"); err != nil {
		t.Fatalf("append: %v", err)
	}

	messages, err := h.Recent(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Sender != "user" || messages[1].Sender != "bot" {
		t.Errorf("messages out of order: %+v", messages)
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	h := testHistory(t)
	messages, err := h.Recent(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected empty history, got %d", len(messages))
	}
}

func TestBuildSlidingWindow(t *testing.T) {
	long := strings.Repeat("x", 4000)
	messages := []Message{
		{Content: long},
		{Content: "recent one"},
		{Content: "recent two"},
	}
	window := BuildSlidingWindow(messages, 1000) // budget 3400 chars
	if len(window) != 2 {
		t.Fatalf("expected oldest message dropped, got %d messages", len(window))
	}
	if window[0].Content != "recent one" || window[1].Content != "recent two" {
		t.Errorf("window kept wrong messages: %+v", window)
	}
}
