// Package services – CallbackProcessor
//
// This file drives the full callback lifecycle for one generation result:
// claim the request id for at-most-once delivery, resolve the profile, route
// the payload to the finalizer for its plan type, and record the terminal
// state. Every fault after a successful claim funnels into the deduplicated
// failure notification so the user hears about a request exactly once.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
)

var callbacksProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plan_callbacks_total",
		Help: "Plan generation callbacks by plan type and outcome.",
	},
	[]string{"plan_type", "outcome"},
)

func init() {
	prometheus.MustRegister(callbacksProcessed)
}

const (
	outcomeDelivered = "delivered"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

// Callback is one generation result reported by a worker.
type Callback struct {
	RequestID     string
	ProfileID     int64
	HintProfileID int64
	PlanType      domain.PlanType
	Action        domain.PlanAction

	// Status is "success" for a usable plan; anything else is a worker
	// failure, with Error carrying the worker's reason.
	Status string
	Error  string

	Plan map[string]any

	SubscriptionID         int64
	PreviousSubscriptionID int64

	// Force re-arms a request already in the failed state so the result can
	// be delivered on a manual retry.
	Force bool
}

// CallbackProcessor executes generation callbacks end to end.
type CallbackProcessor struct {
	Tracker       *delivery.Tracker
	Resolver      *ProfileResolver
	Programs      Finalizer
	Subscriptions Finalizer
	Notifier      *Notifier
}

// Process handles one callback. It never returns an error and never panics
// past its boundary: the caller already acknowledged the callback with 202,
// so every outcome is absorbed here as a tracker transition plus logs.
func (p *CallbackProcessor) Process(ctx context.Context, cb Callback) {
	logger := log.With().
		Str("request_id", cb.RequestID).
		Int64("profile_id", cb.ProfileID).
		Str("plan_type", string(cb.PlanType)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("callback processing panicked")
			p.Notifier.Failure(ctx, cb.RequestID, nil, fmt.Sprintf("panic: %v", r))
			callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeFailed).Inc()
		}
	}()

	claimed, err := p.Tracker.Claim(ctx, cb.RequestID, cb.Force)
	if err != nil {
		// Fail closed: without a claim we cannot rule out a concurrent
		// duplicate, so the callback is dropped without side effects.
		logger.Error().Err(err).Msg("delivery claim errored; dropping callback")
		callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeIgnored).Inc()
		return
	}
	if !claimed {
		logger.Info().Msg("duplicate callback ignored")
		callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeIgnored).Inc()
		return
	}

	profile, err := p.Resolver.Resolve(ctx, cb.ProfileID, cb.HintProfileID)
	if err != nil {
		// A missing profile and a cache/DB fault are different operator
		// signals; the probe endpoint surfaces the recorded reason.
		reason := ReasonProfileLookupFailed
		if errors.Is(err, ErrProfileNotFound) {
			reason = ReasonProfileNotFound
		}
		logger.Warn().Err(err).Str("reason", reason).Msg("profile resolution failed")
		p.Notifier.Failure(ctx, cb.RequestID, nil, reason)
		callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeFailed).Inc()
		return
	}

	if cb.Status != "success" {
		reason := cb.Error
		if reason == "" {
			reason = ReasonGenerationFailed
		}
		p.Notifier.Failure(ctx, cb.RequestID, profile, reason)
		callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeFailed).Inc()
		return
	}

	fc := &FinalizeContext{
		RequestID:              cb.RequestID,
		Profile:                profile,
		Action:                 cb.Action,
		Plan:                   cb.Plan,
		SubscriptionID:         cb.SubscriptionID,
		PreviousSubscriptionID: cb.PreviousSubscriptionID,
	}

	var fin Finalizer
	switch cb.PlanType {
	case domain.PlanProgram:
		fin = p.Programs
	case domain.PlanSubscription:
		fin = p.Subscriptions
	default:
		logger.Error().Msg("unknown plan type in claimed callback")
		p.Notifier.Failure(ctx, cb.RequestID, profile, ReasonUnknownPlanType)
		callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeFailed).Inc()
		return
	}

	if err := fin.Finalize(ctx, fc); err != nil {
		// The finalizer already notified the failure with its precise reason.
		logger.Warn().Err(err).Msg("finalize failed")
		callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeFailed).Inc()
		return
	}

	logger.Info().Msg("plan delivered")
	callbacksProcessed.WithLabelValues(string(cb.PlanType), outcomeDelivered).Inc()
}
