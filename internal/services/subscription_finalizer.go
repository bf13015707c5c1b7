// Package services – SubscriptionFinalizer
//
// This file finalizes generated subscription plans. Creation resolves the
// billing period, defaults a non-positive generated price, requires a workout
// location, schedules the subscription as enabled with a computed next
// payment date, and disables a superseded previous subscription. Updates
// resolve their target from the callback, conversation state, or the latest
// persisted record, and preserve every field the new payload does not carry.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/convstate"
	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/repo"
)

const (
	// defaultPrice replaces non-positive generated prices. A zero price would
	// disable billing downstream, so a small non-zero placeholder is used and
	// corrected by the coach later.
	defaultPrice = 100

	// defaultPeriodDays applies when the payload carries neither an explicit
	// period nor a workout-day count.
	defaultPeriodDays = 30
)

// SubscriptionCache is the cache contract required by the subscription
// finalizer.
type SubscriptionCache interface {
	SetSubscription(ctx context.Context, s *domain.Subscription) error
}

// SubscriptionStore is the source-of-truth contract required by the
// subscription finalizer.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error
	GetSubscription(ctx context.Context, db *gorm.DB, id int64) (*domain.Subscription, error)
	LatestSubscription(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Subscription, error)
	SaveSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error
	DeactivateSubscription(ctx context.Context, db *gorm.DB, id int64) error
}

// SubscriptionFinalizer implements Finalizer for subscription plans.
type SubscriptionFinalizer struct {
	DB         *gorm.DB
	Store      SubscriptionStore
	Cache      SubscriptionCache
	State      *convstate.Store
	Reconciler *Reconciler
	Notifier   *Notifier
	Tracker    *delivery.Tracker
}

// Finalize implements Finalizer, branching on the callback action.
func (f *SubscriptionFinalizer) Finalize(ctx context.Context, fc *FinalizeContext) error {
	tr := otel.Tracer("services/SubscriptionFinalizer")
	ctx, span := tr.Start(ctx, "Finalize",
		trace.WithAttributes(
			attribute.String("request.id", fc.RequestID),
			attribute.Int64("profile.id", fc.Profile.ID),
			attribute.String("action", string(fc.Action)),
		),
	)
	defer span.End()

	if fc.Action == domain.ActionUpdate {
		return f.update(ctx, fc)
	}
	return f.create(ctx, fc)
}

func (f *SubscriptionFinalizer) create(ctx context.Context, fc *FinalizeContext) error {
	plan := dropNulls(fc.Plan)

	exercises, err := extractExercises(plan)
	if err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonSubMissingExercises)
		return err
	}

	location, _ := payloadString(plan, "workout_location")
	if location == "" {
		location, _ = payloadString(plan, "location")
	}
	if location == "" {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonSubMissingLocation)
		return ErrMissingWorkoutLocation
	}

	workoutDays, _ := payloadInt(plan, "workout_days")
	period := resolvePeriod(plan, workoutDays)

	price, _ := payloadInt(plan, "price")
	if price <= 0 {
		price = defaultPrice
	}

	payment := time.Now().UTC().AddDate(0, 0, period)
	sub := &domain.Subscription{
		ProfileID:   fc.Profile.ID,
		Exercises:   exercises,
		WorkoutDays: workoutDays,
		PeriodDays:  period,
		Price:       price,
		Enabled:     true,
		Location:    location,
		PaymentDate: &payment,
	}
	if err := f.Store.CreateSubscription(ctx, f.DB, sub); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonSubPersistFailed)
		return fmt.Errorf("persist subscription: %w", err)
	}

	f.deactivatePrevious(ctx, fc, sub.ID)

	if err := f.Cache.SetSubscription(ctx, sub); err != nil {
		log.Warn().Str("request_id", fc.RequestID).Err(err).Msg("subscription cache write failed")
	}

	updates := map[string]any{
		convstate.KeyExercises:      exercises,
		convstate.KeySubscriptionID: sub.ID,
	}
	if err := f.Reconciler.Merge(ctx, fc.Profile.ChatID, updates, fc.RequestID); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonStateMergeFailed)
		return fmt.Errorf("merge conversation state: %w", err)
	}

	if err := f.Notifier.SubscriptionCreated(ctx, fc.Profile); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonNotifyFailed)
		return fmt.Errorf("notify: %w", err)
	}
	return f.Tracker.MarkDelivered(ctx, fc.RequestID)
}

func (f *SubscriptionFinalizer) update(ctx context.Context, fc *FinalizeContext) error {
	existing, err := f.target(ctx, fc)
	if err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonSubNotFound)
		return err
	}

	// Sanitize: explicit nulls mean "not regenerated", never "clear".
	plan := dropNulls(fc.Plan)

	if raw, ok := plan["exercises"]; ok {
		var exercises domain.ExerciseList
		if err := decodeVia(raw, &exercises); err != nil || len(exercises) == 0 {
			f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonSubMissingExercises)
			return ErrMissingExercises
		}
		existing.Exercises = exercises
	}
	if wd, ok := payloadInt(plan, "workout_days"); ok {
		existing.WorkoutDays = wd
		existing.PeriodDays = resolvePeriod(plan, wd)
	}
	if loc, ok := payloadString(plan, "workout_location"); ok && loc != "" {
		existing.Location = loc
	}
	// Price, enabled flag, and payment date survive unless the payload
	// explicitly carries replacements.
	if price, ok := payloadInt(plan, "price"); ok && price > 0 {
		existing.Price = price
	}
	if enabled, ok := plan["enabled"].(bool); ok {
		existing.Enabled = enabled
	}
	if pd, ok := payloadString(plan, "payment_date"); ok {
		if ts, perr := time.Parse(time.RFC3339, pd); perr == nil {
			existing.PaymentDate = &ts
		}
	}

	if err := f.Store.SaveSubscription(ctx, f.DB, existing); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonSubPersistFailed)
		return fmt.Errorf("persist subscription: %w", err)
	}
	if err := f.Cache.SetSubscription(ctx, existing); err != nil {
		log.Warn().Str("request_id", fc.RequestID).Err(err).Msg("subscription cache write failed")
	}

	updates := map[string]any{
		convstate.KeyExercises:      existing.Exercises,
		convstate.KeySubscriptionID: existing.ID,
	}
	if err := f.Reconciler.Merge(ctx, fc.Profile.ChatID, updates, fc.RequestID); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonStateMergeFailed)
		return fmt.Errorf("merge conversation state: %w", err)
	}

	if err := f.Notifier.SubscriptionUpdated(ctx, fc.Profile); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonNotifyFailed)
		return fmt.Errorf("notify: %w", err)
	}
	return f.Tracker.MarkDelivered(ctx, fc.RequestID)
}

// target resolves the subscription an update applies to: the callback's
// explicit id, then the id carried in conversation state, then the latest
// persisted record for the profile.
func (f *SubscriptionFinalizer) target(ctx context.Context, fc *FinalizeContext) (*domain.Subscription, error) {
	if fc.SubscriptionID != 0 {
		return f.Store.GetSubscription(ctx, f.DB, fc.SubscriptionID)
	}

	state, err := f.State.Get(ctx, fc.Profile.ChatID)
	if err == nil {
		if id, ok := stateInt64(state, convstate.KeySubscriptionID); ok && id != 0 {
			s, gerr := f.Store.GetSubscription(ctx, f.DB, id)
			if gerr == nil {
				return s, nil
			}
			if !errors.Is(gerr, repo.ErrNotFound) {
				return nil, gerr
			}
		}
	} else {
		log.Warn().Int64("chat_id", fc.Profile.ChatID).Err(err).Msg("conversation state read failed")
	}

	s, err := f.Store.LatestSubscription(ctx, f.DB, fc.Profile.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return s, err
}

// deactivatePrevious disables the superseded subscription named by the
// callback or, failing that, by conversation state. Best-effort: a failure
// here never fails the create.
func (f *SubscriptionFinalizer) deactivatePrevious(ctx context.Context, fc *FinalizeContext, newID int64) {
	prev := fc.PreviousSubscriptionID
	if prev == 0 {
		if state, err := f.State.Get(ctx, fc.Profile.ChatID); err == nil {
			prev, _ = stateInt64(state, convstate.KeySubscriptionID)
		}
	}
	if prev == 0 || prev == newID {
		return
	}
	if err := f.Store.DeactivateSubscription(ctx, f.DB, prev); err != nil && !errors.Is(err, repo.ErrNotFound) {
		log.Warn().Int64("subscription_id", prev).Err(err).Msg("previous subscription deactivation failed")
	}
}

// extractExercises reads the flat exercise list required for subscriptions.
func extractExercises(plan map[string]any) (domain.ExerciseList, error) {
	raw, ok := plan["exercises"]
	if !ok || raw == nil {
		return nil, ErrMissingExercises
	}
	var exercises domain.ExerciseList
	if err := decodeVia(raw, &exercises); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingExercises, err)
	}
	if len(exercises) == 0 {
		return nil, ErrMissingExercises
	}
	return exercises, nil
}

// resolvePeriod determines the billing period in days: an explicit period
// wins, then four weekly cycles of the workout-day count, then the default.
func resolvePeriod(plan map[string]any, workoutDays int) int {
	if period, ok := payloadInt(plan, "period"); ok && period > 0 {
		return period
	}
	if workoutDays > 0 {
		return workoutDays * 4
	}
	return defaultPeriodDays
}
