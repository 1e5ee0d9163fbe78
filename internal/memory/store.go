package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EntryRecord is the persisted form of an Entry.
type EntryRecord struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     string `gorm:"index:idx_user_kind"`
	Kind       string `gorm:"index:idx_user_kind"`
	Key        string
	Content    string
	Normalized string
	Confidence float64
	Meta       datatypes.JSON
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (EntryRecord) TableName() string {
	return "memory_entries"
}

// GormStore persists user memory through gorm. The merge policy lives
// here so every writer shares it.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get returns every entry for userID, grouped by kind in insertion order.
func (s *GormStore) Get(ctx context.Context, userID string) (UserMemory, error) {
	mem := UserMemory{UserID: userID}
	var records []EntryRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return mem, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, rec := range records {
		entry := recordToEntry(rec)
		switch Kind(rec.Kind) {
		case KindPreference:
			mem.Preferences = append(mem.Preferences, entry)
		case KindFact:
			mem.Facts = append(mem.Facts, entry)
		case KindEmotion:
			mem.Emotions = append(mem.Emotions, entry)
		}
	}
	return mem, nil
}

// Upsert merges entries for userID in a single transaction: preference
// entries replace by (kind, key), fact/emotion entries append unless a
// normalized-content duplicate exists. All-or-nothing.
func (s *GormStore) Upsert(ctx context.Context, userID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			if err := mergeEntry(tx, userID, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func mergeEntry(tx *gorm.DB, userID string, entry Entry) error {
	rec := entryToRecord(userID, entry)

	switch entry.Kind {
	case KindPreference:
		var existing EntryRecord
		err := tx.Where("user_id = ? AND kind = ? AND key = ?",
			userID, string(KindPreference), entry.Key).First(&existing).Error
		switch {
		case err == nil:
			existing.Content = rec.Content
			existing.Normalized = rec.Normalized
			existing.Confidence = rec.Confidence
			existing.Meta = rec.Meta
			return tx.Save(&existing).Error
		case err == gorm.ErrRecordNotFound:
			return tx.Create(&rec).Error
		default:
			return err
		}
	case KindFact, KindEmotion:
		var count int64
		err := tx.Model(&EntryRecord{}).
			Where("user_id = ? AND kind = ? AND normalized = ?",
				userID, string(entry.Kind), rec.Normalized).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&rec).Error
	default:
		return fmt.Errorf("unknown entry kind: %s", entry.Kind)
	}
}

func entryToRecord(userID string, entry Entry) EntryRecord {
	rec := EntryRecord{
		UserID:     userID,
		Kind:       string(entry.Kind),
		Key:        entry.Key,
		Content:    entry.Content,
		Normalized: Normalize(entry.Content),
		Confidence: entry.Confidence,
	}
	if len(entry.Meta) > 0 {
		if raw, err := json.Marshal(entry.Meta); err == nil {
			rec.Meta = datatypes.JSON(raw)
		}
	}
	return rec
}

func recordToEntry(rec EntryRecord) Entry {
	entry := Entry{
		Kind:       Kind(rec.Kind),
		Key:        rec.Key,
		Content:    rec.Content,
		Confidence: rec.Confidence,
		CreatedAt:  rec.CreatedAt,
	}
	if len(rec.Meta) > 0 {
		var meta map[string]string
		if err := json.Unmarshal(rec.Meta, &meta); err == nil {
			entry.Meta = meta
		}
	}
	return entry
}
