// Package services – Reconciler
//
// This file merges finalize results into the per-chat conversation state
// without clobbering state the user has already advanced past. The
// last_request_id marker is a second, cheaper line of defense layered under
// the delivery tracker: even a duplicate callback that slipped past the
// tracker's claim cannot re-mutate conversation state.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fitpilot/go-coach-backend/internal/convstate"
)

// Reconciler merges finalize updates into conversation state.
type Reconciler struct {
	State *convstate.Store
}

// NewReconciler constructs a Reconciler over the given state store.
func NewReconciler(s *convstate.Store) *Reconciler {
	return &Reconciler{State: s}
}

// Merge applies updates to the chat's state bag and records requestID as the
// last applied request. When the state already carries requestID the merge
// was applied before and is skipped.
func (r *Reconciler) Merge(ctx context.Context, chatID int64, updates map[string]any, requestID string) error {
	state, err := r.State.Get(ctx, chatID)
	if err != nil {
		return err
	}

	if last, _ := state[convstate.KeyLastRequestID].(string); last != "" && last == requestID {
		log.Debug().
			Int64("chat_id", chatID).
			Str("request_id", requestID).
			Msg("conversation state already reflects request; skipping merge")
		return nil
	}

	for k, v := range updates {
		state[k] = v
	}
	state[convstate.KeyLastRequestID] = requestID
	return r.State.Set(ctx, chatID, state)
}
