// Package services – ProgramFinalizer
//
// This file finalizes generated training programs: it extracts the ordered
// day structure from the raw payload (tolerating the legacy field name),
// normalizes illustration keys against the static catalog, clamps the split
// count, persists through the source-of-truth service, mirrors into the
// cache, reconciles conversation state, and notifies the user with a deep
// link. The request is marked delivered only after the notification send
// succeeds.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/catalog"
	"github.com/fitpilot/go-coach-backend/internal/convstate"
	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
)

const (
	minSplit = 1
	maxSplit = 7
)

// ProgramCache is the cache contract required by the program finalizer.
type ProgramCache interface {
	SetProgram(ctx context.Context, p *domain.Program) error
}

// ProgramStore is the source-of-truth contract required by the program
// finalizer.
type ProgramStore interface {
	CreateProgram(ctx context.Context, db *gorm.DB, p *domain.Program) error
}

// ProgramFinalizer implements Finalizer for generated training programs.
type ProgramFinalizer struct {
	DB         *gorm.DB
	Store      ProgramStore
	Cache      ProgramCache
	Reconciler *Reconciler
	Notifier   *Notifier
	Tracker    *delivery.Tracker
	Catalog    *catalog.Catalog
}

// Finalize implements Finalizer.
func (f *ProgramFinalizer) Finalize(ctx context.Context, fc *FinalizeContext) error {
	tr := otel.Tracer("services/ProgramFinalizer")
	ctx, span := tr.Start(ctx, "Finalize",
		trace.WithAttributes(
			attribute.String("request.id", fc.RequestID),
			attribute.Int64("profile.id", fc.Profile.ID),
		),
	)
	defer span.End()

	days, err := extractDays(fc.Plan)
	if err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonProgramMissingDays)
		return err
	}
	for di := range days {
		if days[di].Day == 0 {
			days[di].Day = di + 1
		}
		for ei := range days[di].Exercises {
			f.normalizeIllustration(&days[di].Exercises[ei])
		}
	}

	split, _ := payloadInt(fc.Plan, "split_number")
	split = clampSplit(split)
	wishes, _ := payloadString(fc.Plan, "wishes")

	program := &domain.Program{
		ProfileID:   fc.Profile.ID,
		SplitNumber: split,
		Wishes:      wishes,
		Days:        days,
	}
	if err := f.Store.CreateProgram(ctx, f.DB, program); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonProgramPersistFailed)
		return fmt.Errorf("persist program: %w", err)
	}
	if err := f.Cache.SetProgram(ctx, program); err != nil {
		// Cache repairs itself on the next read miss.
		log.Warn().Str("request_id", fc.RequestID).Err(err).Msg("program cache write failed")
	}

	updates := map[string]any{
		convstate.KeyExercises: days,
		convstate.KeySplit:     split,
		convstate.KeyDayIndex:  0,
	}
	if err := f.Reconciler.Merge(ctx, fc.Profile.ChatID, updates, fc.RequestID); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonStateMergeFailed)
		return fmt.Errorf("merge conversation state: %w", err)
	}

	if err := f.Notifier.ProgramReady(ctx, fc.Profile); err != nil {
		f.Notifier.Failure(ctx, fc.RequestID, fc.Profile, ReasonNotifyFailed)
		return fmt.Errorf("notify: %w", err)
	}
	return f.Tracker.MarkDelivered(ctx, fc.RequestID)
}

// normalizeIllustration resolves the exercise's illustration key against the
// catalog: a valid key is kept, otherwise canonical-name lookup and fuzzy
// search run in order. An unresolved key is left as-is and logged; it never
// fails the finalize.
func (f *ProgramFinalizer) normalizeIllustration(ex *domain.Exercise) {
	if ex.Illustration != "" && f.Catalog.Has(ex.Illustration) {
		return
	}
	if key, ok := f.Catalog.Resolve(ex.Name); ok {
		ex.Illustration = key
		return
	}
	log.Debug().Str("exercise", ex.Name).Str("key", ex.Illustration).Msg("illustration unresolved")
}

// extractDays reads the ordered day structure. Current workers emit
// "exercises_by_day"; older ones emitted "days".
func extractDays(plan map[string]any) (domain.ExerciseDays, error) {
	raw, ok := plan["exercises_by_day"]
	if !ok || raw == nil {
		raw, ok = plan["days"]
	}
	if !ok || raw == nil {
		return nil, ErrMissingExercises
	}
	var days domain.ExerciseDays
	if err := decodeVia(raw, &days); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingExercises, err)
	}
	if len(days) == 0 {
		return nil, ErrMissingExercises
	}
	for _, d := range days {
		if len(d.Exercises) == 0 {
			return nil, ErrMissingExercises
		}
	}
	return days, nil
}

// clampSplit bounds the split count to [1,7]; non-positive values collapse
// to the minimum.
func clampSplit(n int) int {
	if n < minSplit {
		return minSplit
	}
	if n > maxSplit {
		return maxSplit
	}
	return n
}
