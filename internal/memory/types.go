package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind classifies a durable memory entry.
type Kind string

const (
	KindPreference Kind = "preference"
	KindFact       Kind = "fact"
	KindEmotion    Kind = "emotion"
)

// Entry is one durable fact about a user, produced by an extractor.
// Preference entries carry a Key; a later preference with the same key
// replaces the earlier value. Fact and emotion entries are append-only
// and deduplicated by normalized content.
type Entry struct {
	Kind       Kind              `json:"kind"`
	Key        string            `json:"key,omitempty"`
	Content    string            `json:"content"`
	Confidence float64           `json:"confidence"`
	Meta       map[string]string `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// UserMemory is the full entry set for one user, grouped by kind.
type UserMemory struct {
	UserID      string  `json:"user_id"`
	Preferences []Entry `json:"preferences"`
	Facts       []Entry `json:"facts"`
	Emotions    []Entry `json:"emotions"`
}

// ErrStoreUnavailable marks a persistence failure the engine degrades
// around rather than surfaces to the user.
var ErrStoreUnavailable = errors.New("memory store unavailable")

// Store is the persistence boundary. Implementations own the merge
// policy; callers never read-modify-write entries themselves.
type Store interface {
	Get(ctx context.Context, userID string) (UserMemory, error)
	Upsert(ctx context.Context, userID string, entries []Entry) error
}

// Normalize is the equality key for dedup and preference replacement.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
