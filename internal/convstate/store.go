// Package convstate persists the resumable per-chat conversation state in the
// shared key-value store. The state is an open key-value bag the bot frontend
// reads and writes between messages; this service only merges finalize
// results into it (see services.Reconciler), keyed by chat id so the
// reconciliation logic stays decoupled from any chat SDK session type.
package convstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fitpilot/go-coach-backend/internal/kv"
)

// Well-known state keys shared with the bot frontend.
const (
	KeyLastRequestID  = "last_request_id"
	KeySubscriptionID = "subscription_id"
	KeyExercises      = "exercises"
	KeySplit          = "split"
	KeyDayIndex       = "day_index"
)

// Store reads and writes one conversation-state document per chat id.
type Store struct {
	store kv.Store
}

// NewStore wraps the shared key-value store. Conversation state never expires.
func NewStore(store kv.Store) *Store {
	return &Store{store: store}
}

func key(chatID int64) string { return fmt.Sprintf("conversation:%d", chatID) }

// Get returns the current state bag, or an empty bag when none exists yet.
func (s *Store) Get(ctx context.Context, chatID int64) (map[string]any, error) {
	raw, err := s.store.Get(ctx, key(chatID))
	if err == kv.ErrNotFound {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	state := map[string]any{}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("conversation %d: corrupt state: %w", chatID, err)
	}
	return state, nil
}

// Set replaces the state bag for chatID.
func (s *Store) Set(ctx context.Context, chatID int64, state map[string]any) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key(chatID), b, 0)
}
