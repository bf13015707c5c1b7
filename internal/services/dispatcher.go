// Package services – RequestDispatcher
//
// This file implements job dispatch: it assigns a fresh request id, builds
// the generation job from the profile and caller payload, and submits it to
// the worker queue. Nothing user-visible happens until the worker's callback
// arrives; a submission failure is reported to the caller as a rejected
// enqueue, never as a panic.
package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/queue"
)

// RequestDispatcher builds and submits generation jobs.
type RequestDispatcher struct {
	Queue queue.Queue

	// Costs maps plan type to the credit cost attached to each job.
	Costs map[domain.PlanType]int
}

// NewRequestDispatcher constructs a dispatcher with the given per-type costs.
func NewRequestDispatcher(q queue.Queue, costs map[domain.PlanType]int) *RequestDispatcher {
	return &RequestDispatcher{Queue: q, Costs: costs}
}

// Enqueue submits a generation job for the profile and returns the assigned
// request id. ok is false when the job could not be built or submitted; the
// caller shows a generic error and nothing was queued. Enqueue never panics
// past its boundary.
func (d *RequestDispatcher) Enqueue(ctx context.Context, profile *domain.Profile, planType domain.PlanType, action domain.PlanAction, payload map[string]any) (requestID string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("dispatch panicked")
			requestID, ok = "", false
		}
	}()

	if profile == nil {
		return "", false
	}

	requestID = uuid.NewString()
	job := queue.Job{
		GenerationRequest: domain.GenerationRequest{
			RequestID: requestID,
			ProfileID: profile.ID,
			PlanType:  planType,
			Action:    action,
			Cost:      d.Costs[planType],
		},
		Language: profile.Language,
		Payload:  payload,
	}

	handle, err := d.Queue.Submit(ctx, job)
	if err != nil {
		log.Error().
			Str("request_id", requestID).
			Int64("profile_id", profile.ID).
			Err(err).
			Msg("job submission failed")
		return "", false
	}

	log.Info().
		Str("request_id", requestID).
		Str("job_handle", handle).
		Int64("profile_id", profile.ID).
		Str("plan_type", string(planType)).
		Str("action", string(action)).
		Msg("generation job queued")
	return requestID, true
}
