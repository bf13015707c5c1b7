package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/cache"
	"github.com/fitpilot/go-coach-backend/internal/convstate"
	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/kv"
	"github.com/fitpilot/go-coach-backend/internal/queue"
	"github.com/fitpilot/go-coach-backend/internal/repo"
)

// ----------------------------------------------------------------------------
// Chat transport fake

type sentMessage struct {
	chatID int64
	text   string
}

type chatRecorder struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (c *chatRecorder) Send(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (c *chatRecorder) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// ----------------------------------------------------------------------------
// Profile source fake

type fakeProfileSource struct {
	profiles map[int64]*domain.Profile
	err      error
	calls    int
}

func (f *fakeProfileSource) GetProfile(_ context.Context, _ *gorm.DB, id int64) (*domain.Profile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ----------------------------------------------------------------------------
// Plan store fake (programs and subscriptions)

type fakePlanStore struct {
	programs []*domain.Program
	subs     map[int64]*domain.Subscription
	nextID   int64

	createProgramErr error
	createSubErr     error
	saveSubErr       error
	deactivated      []int64
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{subs: map[int64]*domain.Subscription{}, nextID: 1000}
}

func (f *fakePlanStore) CreateProgram(_ context.Context, _ *gorm.DB, p *domain.Program) error {
	if f.createProgramErr != nil {
		return f.createProgramErr
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	cp := *p
	f.programs = append(f.programs, &cp)
	return nil
}

func (f *fakePlanStore) LatestProgram(_ context.Context, _ *gorm.DB, profileID int64) (*domain.Program, error) {
	var latest *domain.Program
	for _, p := range f.programs {
		if p.ProfileID != profileID {
			continue
		}
		if latest == nil || p.ID > latest.ID {
			latest = p
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakePlanStore) CreateSubscription(_ context.Context, _ *gorm.DB, s *domain.Subscription) error {
	if f.createSubErr != nil {
		return f.createSubErr
	}
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.subs[s.ID] = &cp
	return nil
}

func (f *fakePlanStore) GetSubscription(_ context.Context, _ *gorm.DB, id int64) (*domain.Subscription, error) {
	s, ok := f.subs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakePlanStore) LatestSubscription(_ context.Context, _ *gorm.DB, profileID int64) (*domain.Subscription, error) {
	var latest *domain.Subscription
	for _, s := range f.subs {
		if s.ProfileID != profileID {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			latest = s
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakePlanStore) SaveSubscription(_ context.Context, _ *gorm.DB, s *domain.Subscription) error {
	if f.saveSubErr != nil {
		return f.saveSubErr
	}
	cp := *s
	f.subs[s.ID] = &cp
	return nil
}

func (f *fakePlanStore) DeactivateSubscription(_ context.Context, _ *gorm.DB, id int64) error {
	s, ok := f.subs[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.Enabled = false
	f.deactivated = append(f.deactivated, id)
	return nil
}

// ----------------------------------------------------------------------------
// Queue fake

type fakeQueue struct {
	jobs []queue.Job
	err  error
}

func (f *fakeQueue) Submit(_ context.Context, job queue.Job) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, job)
	return fmt.Sprintf("handle-%d", len(f.jobs)), nil
}

// ----------------------------------------------------------------------------
// Finalizer fake

type fakeFinalizer struct {
	calls  int
	lastFC *FinalizeContext
	err    error

	// markDelivered mimics a real finalizer's terminal transition.
	tracker *delivery.Tracker
}

func (f *fakeFinalizer) Finalize(ctx context.Context, fc *FinalizeContext) error {
	f.calls++
	f.lastFC = fc
	if f.err != nil {
		return f.err
	}
	if f.tracker != nil {
		return f.tracker.MarkDelivered(ctx, fc.RequestID)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Environment helper

type testEnv struct {
	store      *kv.MemoryStore
	tracker    *delivery.Tracker
	cache      *cache.Cache
	state      *convstate.Store
	reconciler *Reconciler
	chat       *chatRecorder
	notifier   *Notifier
}

func newTestEnv() *testEnv {
	store := kv.NewMemoryStore()
	tracker := delivery.NewTracker(store, time.Hour)
	chat := &chatRecorder{}
	return &testEnv{
		store:      store,
		tracker:    tracker,
		cache:      cache.New(store, time.Hour),
		state:      convstate.NewStore(store),
		reconciler: NewReconciler(convstate.NewStore(store)),
		chat:       chat,
		notifier:   NewNotifier(chat, tracker, "fitpilot_bot"),
	}
}
