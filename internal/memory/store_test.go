package memory

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)&mode=memory"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&EntryRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// each test gets a clean table; the shared-cache DSN reuses one DB
	if err := db.Exec("DELETE FROM memory_entries").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewGormStore(db)
}

func TestUpsert_PreferenceLatestWins(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now()

	first := Entry{Kind: KindPreference, Key: "communication", Content: "short answers", Confidence: 0.8, CreatedAt: now}
	second := Entry{Kind: KindPreference, Key: "communication", Content: "detailed answers", Confidence: 0.8, CreatedAt: now}

	if err := store.Upsert(ctx, "user-a", []Entry{first}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, "user-a", []Entry{second}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	mem, err := store.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(mem.Preferences) != 1 {
		t.Fatalf("expected single preference, got %d", len(mem.Preferences))
	}
	if mem.Preferences[0].Content != "detailed answers" {
		t.Errorf("expected latest value, got %q", mem.Preferences[0].Content)
	}
}

func TestUpsert_FactDedup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	fact := Entry{Kind: KindFact, Content: "I work as a nurse", Confidence: 0.6}
	variant := Entry{Kind: KindFact, Content: "  i work AS a  nurse ", Confidence: 0.6}

	for _, e := range []Entry{fact, variant, fact} {
		if err := store.Upsert(ctx, "user-a", []Entry{e}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	mem, err := store.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(mem.Facts) != 1 {
		t.Errorf("expected one deduped fact, got %d", len(mem.Facts))
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	batch := []Entry{
		{Kind: KindPreference, Key: "food", Content: "sushi", Confidence: 0.7},
		{Kind: KindFact, Content: "I live in Lisbon", Confidence: 0.6},
		{Kind: KindEmotion, Content: "supportive", Confidence: 0.5},
	}
	if err := store.Upsert(ctx, "user-a", batch); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	before, _ := store.Get(ctx, "user-a")

	if err := store.Upsert(ctx, "user-a", batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	after, _ := store.Get(ctx, "user-a")

	if len(after.Preferences) != len(before.Preferences) ||
		len(after.Facts) != len(before.Facts) ||
		len(after.Emotions) != len(before.Emotions) {
		t.Errorf("second application changed the entry set: before=%+v after=%+v", before, after)
	}
}

func TestStore_UserIsolation(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "user-a", []Entry{{Kind: KindFact, Content: "I have a dog"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	mem, err := store.Get(ctx, "user-b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(mem.Facts) != 0 || len(mem.Preferences) != 0 || len(mem.Emotions) != 0 {
		t.Errorf("user-b must not see user-a entries: %+v", mem)
	}
}

func TestUpsert_EmptyBatchNoop(t *testing.T) {
	store := testStore(t)
	if err := store.Upsert(context.Background(), "user-a", nil); err != nil {
		t.Errorf("empty upsert must succeed: %v", err)
	}
}
