// Package services implements the plan-generation delivery pipeline: request
// dispatch, profile resolution, callback processing, plan finalization, and
// conversation-state reconciliation. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; mapping to
// HTTP statuses or user-facing messages happens at the handler layer, and the
// failure reasons recorded in delivery state use the stable snake_case codes
// below.
package services

import "errors"

var (
	// ErrProfileNotFound indicates that neither the cache nor the
	// source-of-truth service has the requested profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrMissingExercises is returned when a generation payload carries no
	// usable exercise structure.
	ErrMissingExercises = errors.New("payload has no exercises")

	// ErrMissingWorkoutLocation is returned when a subscription create
	// payload omits the workout location.
	ErrMissingWorkoutLocation = errors.New("payload has no workout location")

	// ErrSubscriptionNotFound is returned when an update callback cannot
	// resolve the subscription it should modify.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrPlanNotFound is returned when a profile has no persisted plan of the
	// requested type.
	ErrPlanNotFound = errors.New("plan not found")
)

// Stable failure reasons recorded in delivery state and surfaced to the
// operator probe endpoint.
const (
	ReasonGenerationFailed     = "generation_failed"
	ReasonProfileNotFound      = "profile_not_found"
	ReasonProfileLookupFailed  = "profile_lookup_failed"
	ReasonUnknownPlanType      = "unknown_plan_type"
	ReasonProgramMissingDays   = "program_missing_exercises"
	ReasonProgramPersistFailed = "program_persist_failed"
	ReasonSubMissingExercises  = "subscription_missing_exercises"
	ReasonSubMissingLocation   = "subscription_missing_workout_location"
	ReasonSubNotFound          = "subscription_not_found"
	ReasonSubPersistFailed     = "subscription_persist_failed"
	ReasonStateMergeFailed     = "conversation_merge_failed"
	ReasonNotifyFailed         = "notify_failed"
)
