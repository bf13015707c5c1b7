// Package services – Pipeline
//
// This file wires the pipeline components into one assembly the HTTP layer
// and the dead-letter watcher share. Repository access goes through thin
// adapter structs so every service keeps a narrow, fake-friendly interface
// while the repo package stays plain functions over *gorm.DB.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/cache"
	"github.com/fitpilot/go-coach-backend/internal/catalog"
	"github.com/fitpilot/go-coach-backend/internal/convstate"
	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/kv"
	"github.com/fitpilot/go-coach-backend/internal/queue"
	"github.com/fitpilot/go-coach-backend/internal/repo"
	"github.com/fitpilot/go-coach-backend/internal/transport"
)

// PipelineOptions tune the assembled pipeline.
type PipelineOptions struct {
	// DeliveryTTL bounds delivery-state retention in the shared store.
	DeliveryTTL time.Duration
	// CacheTTL bounds entity cache entries.
	CacheTTL time.Duration
	// BotName builds notification deep links.
	BotName string
	// Costs maps plan type to the credit cost attached to dispatched jobs.
	Costs map[domain.PlanType]int
}

// Pipeline is the assembled plan-generation pipeline.
type Pipeline struct {
	DB         *gorm.DB
	Tracker    *delivery.Tracker
	Cache      *cache.Cache
	State      *convstate.Store
	Resolver   *ProfileResolver
	Dispatcher *RequestDispatcher
	Processor  *CallbackProcessor
	Notifier   *Notifier
	Plans      *PlanReader
}

// NewPipeline assembles the full pipeline over the given infrastructure.
func NewPipeline(db *gorm.DB, store kv.Store, q queue.Queue, chat transport.Chat, cat *catalog.Catalog, opts PipelineOptions) *Pipeline {
	entityCache := cache.New(store, opts.CacheTTL)
	tracker := delivery.NewTracker(store, opts.DeliveryTTL)
	state := convstate.NewStore(store)
	reconciler := NewReconciler(state)
	notifier := NewNotifier(chat, tracker, opts.BotName)
	resolver := NewProfileResolver(db, profileRepo{}, entityCache)

	programs := &ProgramFinalizer{
		DB:         db,
		Store:      planRepo{},
		Cache:      entityCache,
		Reconciler: reconciler,
		Notifier:   notifier,
		Tracker:    tracker,
		Catalog:    cat,
	}
	subscriptions := &SubscriptionFinalizer{
		DB:         db,
		Store:      planRepo{},
		Cache:      entityCache,
		State:      state,
		Reconciler: reconciler,
		Notifier:   notifier,
		Tracker:    tracker,
	}

	return &Pipeline{
		DB:         db,
		Tracker:    tracker,
		Cache:      entityCache,
		State:      state,
		Resolver:   resolver,
		Dispatcher: NewRequestDispatcher(q, opts.Costs),
		Processor: &CallbackProcessor{
			Tracker:       tracker,
			Resolver:      resolver,
			Programs:      programs,
			Subscriptions: subscriptions,
			Notifier:      notifier,
		},
		Notifier: notifier,
		Plans:    NewPlanReader(db, planRepo{}, entityCache),
	}
}

// HandleDeadLetter reports a job that exhausted worker processing. The profile
// lookup is best effort: with no resolvable profile the failure is still
// recorded so subsequent callbacks for the request id are rejected.
func (p *Pipeline) HandleDeadLetter(ctx context.Context, dl queue.DeadLetter) {
	profile, err := p.Resolver.Resolve(ctx, dl.ProfileID, 0)
	if err != nil {
		profile = nil
	}
	reason := dl.Reason
	if reason == "" {
		reason = ReasonGenerationFailed
	}
	p.Notifier.Failure(ctx, dl.RequestID, profile, reason)
}

// ----------------------------------------------------------------------------
// Repository adapters

type profileRepo struct{}

func (profileRepo) GetProfile(ctx context.Context, db *gorm.DB, id int64) (*domain.Profile, error) {
	return repo.GetProfile(ctx, db, id)
}

type planRepo struct{}

func (planRepo) CreateProgram(ctx context.Context, db *gorm.DB, p *domain.Program) error {
	return repo.CreateProgram(ctx, db, p)
}

func (planRepo) LatestProgram(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Program, error) {
	return repo.LatestProgram(ctx, db, profileID)
}

func (planRepo) CreateSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return repo.CreateSubscription(ctx, db, s)
}

func (planRepo) GetSubscription(ctx context.Context, db *gorm.DB, id int64) (*domain.Subscription, error) {
	return repo.GetSubscription(ctx, db, id)
}

func (planRepo) LatestSubscription(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Subscription, error) {
	return repo.LatestSubscription(ctx, db, profileID)
}

func (planRepo) SaveSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return repo.SaveSubscription(ctx, db, s)
}

func (planRepo) DeactivateSubscription(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.DeactivateSubscription(ctx, db, id)
}
