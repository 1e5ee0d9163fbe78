package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"attune/internal/personality"
)

const stateKeyFmt = "personality:%s"

// Store persists the per-session PersonalityState between turns. The
// engine itself stays stateless; this is the session-keyed store the
// caller owns.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Get returns the stored state for sessionID and whether one existed.
func (s *Store) Get(ctx context.Context, sessionID string) (personality.State, bool, error) {
	key := fmt.Sprintf(stateKeyFmt, sessionID)
	raw, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return personality.State{}, false, nil
	}
	if err != nil {
		return personality.State{}, false, err
	}
	var state personality.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return personality.State{}, false, fmt.Errorf("corrupt session state: %w", err)
	}
	return state, true, nil
}

// Put stores state for sessionID, refreshing the TTL.
func (s *Store) Put(ctx context.Context, sessionID string, state personality.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(stateKeyFmt, sessionID)
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

// Delete removes the state for sessionID.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf(stateKeyFmt, sessionID)
	return s.rdb.Del(ctx, key).Err()
}
