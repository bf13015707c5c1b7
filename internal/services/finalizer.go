// Package services – Finalizer
//
// This file defines the polymorphic finalization contract: the component that
// turns a raw generation result into a persisted artifact, a repaired cache,
// reconciled conversation state, and a user notification. One implementation
// exists per plan type, selected by an explicit switch in the callback
// processor so dispatch stays exhaustiveness-checkable.
package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fitpilot/go-coach-backend/internal/domain"
)

// FinalizeContext bundles everything a finalizer needs for one callback: the
// raw result payload, the resolved profile, the request id driving all
// idempotency decisions, and the artifact references carried by the callback.
type FinalizeContext struct {
	RequestID string
	Profile   *domain.Profile
	Action    domain.PlanAction
	Plan      map[string]any

	// SubscriptionID optionally pins the subscription an update applies to.
	SubscriptionID int64
	// PreviousSubscriptionID identifies a superseded subscription to disable.
	PreviousSubscriptionID int64
}

// Finalizer persists a generation result and performs its user-visible
// delivery. Implementations notify the (deduplicated) failure path themselves
// on any unrecoverable step and return without marking delivered; a nil
// return means the request reached the delivered state.
type Finalizer interface {
	Finalize(ctx context.Context, fc *FinalizeContext) error
}

// ----------------------------------------------------------------------------
// Payload helpers
//
// Generation payloads arrive as decoded JSON (map[string]any), so numbers are
// float64 and nested structures are maps/slices. The helpers below keep the
// finalizers free of type-assertion noise.

func payloadInt(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func payloadString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// decodeVia re-marshals a decoded JSON fragment into a typed structure.
func decodeVia(src, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// stateInt64 reads a numeric value out of a conversation-state bag, which
// stores numbers as float64 after a JSON round trip.
func stateInt64(state map[string]any, key string) (int64, bool) {
	v, ok := state[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// dropNulls returns a copy of the payload without nil-valued fields. Workers
// emit explicit nulls for sub-fields they did not regenerate; those must not
// overwrite existing values on update.
func dropNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
