// Package delivery implements the per-request durable state machine that
// guarantees at-most-once user-visible side effects for generation callbacks.
//
// State lives in the shared key-value store under delivery:{request_id} and
// transitions pending → delivered or pending → failed exactly once per
// terminal outcome. The claim operation is a single SETNX so that concurrent
// callback deliveries for the same request id race safely across processes:
// whichever caller performs the write owns processing, all others observe an
// existing key and back off.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fitpilot/go-coach-backend/internal/kv"
)

// Status is the delivery lifecycle phase of one request id.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// State is the persisted delivery record for one request id.
type State struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Tracker coordinates delivery state through the shared store. All methods
// are safe for concurrent use from any number of processes.
type Tracker struct {
	store     kv.Store
	retention time.Duration
}

// NewTracker builds a Tracker. retention bounds how long terminal and stale
// pending records survive before the store expires them.
func NewTracker(store kv.Store, retention time.Duration) *Tracker {
	return &Tracker{store: store, retention: retention}
}

func stateKey(requestID string) string    { return "delivery:" + requestID }
func notifiedKey(requestID string) string { return stateKey(requestID) + ":notified" }

// Claim atomically takes ownership of processing requestID.
//
// It returns true exactly once for an unseen request id across any
// interleaving of concurrent callers. A request already delivered, already
// failed (unless force is set), or currently claimed by another caller
// returns false. force re-arms a failed request for one more attempt and
// clears the failure-notification marker so the re-run may notify again;
// delivered requests are never re-armed.
//
// A store error means the claim state is unknown; callers must fail closed
// (skip processing) rather than risk a duplicate side effect.
func (t *Tracker) Claim(ctx context.Context, requestID string, force bool) (bool, error) {
	pending, err := json.Marshal(State{Status: StatusPending})
	if err != nil {
		return false, err
	}

	// Two rounds cover the window where a key expires between the failed
	// SETNX and the Get.
	for range 2 {
		ok, err := t.store.SetNX(ctx, stateKey(requestID), pending, t.retention)
		if err != nil {
			return false, fmt.Errorf("claim %s: %w", requestID, err)
		}
		if ok {
			return true, nil
		}

		raw, err := t.store.Get(ctx, stateKey(requestID))
		if err == kv.ErrNotFound {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("claim %s: %w", requestID, err)
		}

		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			// Corrupt record: fail closed, operators clean up by key.
			return false, fmt.Errorf("claim %s: corrupt state: %w", requestID, err)
		}

		switch st.Status {
		case StatusFailed:
			if !force {
				return false, nil
			}
			// Operator-initiated re-delivery. Not a single atomic op, which
			// is acceptable: force is a manual path, not a retry storm.
			if err := t.store.Set(ctx, stateKey(requestID), pending, t.retention); err != nil {
				return false, fmt.Errorf("re-arm %s: %w", requestID, err)
			}
			if err := t.store.Del(ctx, notifiedKey(requestID)); err != nil {
				return false, fmt.Errorf("re-arm %s: %w", requestID, err)
			}
			return true, nil
		default:
			// Delivered, or pending under another caller's claim.
			return false, nil
		}
	}
	return false, nil
}

// MarkDelivered records the terminal success state. Calling it again for the
// same request id is a no-op by construction (the value is identical).
func (t *Tracker) MarkDelivered(ctx context.Context, requestID string) error {
	b, err := json.Marshal(State{Status: StatusDelivered})
	if err != nil {
		return err
	}
	return t.store.Set(ctx, stateKey(requestID), b, t.retention)
}

// MarkFailed records the terminal failure state and reports whether this call
// performed the first transition into failed. Only the first caller receives
// true, which callers use to send the single user-visible failure message.
//
// Delivered is terminal: a request that already reached delivered is left
// untouched and reported not-first, so a late dead letter racing the success
// callback cannot take the request back or message the user a second time.
func (t *Tracker) MarkFailed(ctx context.Context, requestID, reason string) (bool, error) {
	b, err := json.Marshal(State{Status: StatusFailed, Reason: reason})
	if err != nil {
		return false, err
	}

	// First writer wins for an unseen id: dead letters may arrive before any
	// callback ever claims the request.
	ok, err := t.store.SetNX(ctx, stateKey(requestID), b, t.retention)
	if err != nil {
		return false, fmt.Errorf("mark failed %s: %w", requestID, err)
	}
	if !ok {
		st, err := t.State(ctx, requestID)
		if err != nil && err != kv.ErrNotFound {
			return false, fmt.Errorf("mark failed %s: %w", requestID, err)
		}
		if err == nil && st.Status == StatusDelivered {
			return false, nil
		}
		if err := t.store.Set(ctx, stateKey(requestID), b, t.retention); err != nil {
			return false, fmt.Errorf("mark failed %s: %w", requestID, err)
		}
	}

	first, err := t.store.SetNX(ctx, notifiedKey(requestID), []byte("1"), t.retention)
	if err != nil {
		return false, fmt.Errorf("mark failed %s: %w", requestID, err)
	}
	return first, nil
}

// IsDelivered reports whether requestID already reached the delivered state.
func (t *Tracker) IsDelivered(ctx context.Context, requestID string) (bool, error) {
	st, err := t.State(ctx, requestID)
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Status == StatusDelivered, nil
}

// IsFailed reports whether requestID is currently in the failed state.
func (t *Tracker) IsFailed(ctx context.Context, requestID string) (bool, error) {
	st, err := t.State(ctx, requestID)
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Status == StatusFailed, nil
}

// State returns the current delivery record, or kv.ErrNotFound for an unseen
// (or expired) request id.
func (t *Tracker) State(ctx context.Context, requestID string) (State, error) {
	raw, err := t.store.Get(ctx, stateKey(requestID))
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("state %s: corrupt record: %w", requestID, err)
	}
	return st, nil
}
