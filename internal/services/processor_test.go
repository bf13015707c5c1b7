package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fitpilot/go-coach-backend/internal/domain"
)

func newProcessor(env *testEnv, src *fakeProfileSource) (*CallbackProcessor, *fakeFinalizer, *fakeFinalizer) {
	programs := &fakeFinalizer{tracker: env.tracker}
	subscriptions := &fakeFinalizer{tracker: env.tracker}
	return &CallbackProcessor{
		Tracker:       env.tracker,
		Resolver:      NewProfileResolver(nil, src, env.cache),
		Programs:      programs,
		Subscriptions: subscriptions,
		Notifier:      env.notifier,
	}, programs, subscriptions
}

func successCallback(planType domain.PlanType) Callback {
	return Callback{
		RequestID: "req-c1",
		ProfileID: 1,
		PlanType:  planType,
		Action:    domain.ActionCreate,
		Status:    "success",
		Plan:      map[string]any{"exercises": []any{}},
	}
}

func oneProfile() *fakeProfileSource {
	return &fakeProfileSource{profiles: map[int64]*domain.Profile{
		1: {ID: 1, ChatID: 11, Language: "en"},
	}}
}

func TestProcess_RoutesByPlanType(t *testing.T) {
	env := newTestEnv()
	p, programs, subscriptions := newProcessor(env, oneProfile())
	ctx := context.Background()

	p.Process(ctx, successCallback(domain.PlanProgram))
	if programs.calls != 1 || subscriptions.calls != 0 {
		t.Fatalf("program callback routed to (%d, %d)", programs.calls, subscriptions.calls)
	}
	if programs.lastFC.Profile.ID != 1 || programs.lastFC.RequestID != "req-c1" {
		t.Fatalf("finalize context = %+v", programs.lastFC)
	}

	cb := successCallback(domain.PlanSubscription)
	cb.RequestID = "req-c2"
	p.Process(ctx, cb)
	if subscriptions.calls != 1 {
		t.Fatalf("subscription callback routed %d times", subscriptions.calls)
	}
}

func TestProcess_DuplicateCallbackHasNoEffect(t *testing.T) {
	env := newTestEnv()
	p, programs, _ := newProcessor(env, oneProfile())
	ctx := context.Background()

	p.Process(ctx, successCallback(domain.PlanProgram))
	p.Process(ctx, successCallback(domain.PlanProgram))

	if programs.calls != 1 {
		t.Fatalf("finalize ran %d times for one request id, want 1", programs.calls)
	}
	if len(env.chat.messages()) != 0 {
		t.Fatal("duplicate must not produce messages (fake finalizer sends none)")
	}
}

func TestProcess_ProfileNotFoundFailsRequest(t *testing.T) {
	env := newTestEnv()
	p, programs, _ := newProcessor(env, &fakeProfileSource{profiles: map[int64]*domain.Profile{}})
	ctx := context.Background()

	p.Process(ctx, successCallback(domain.PlanProgram))

	if programs.calls != 0 {
		t.Fatal("finalize must not run without a profile")
	}
	st, err := env.tracker.State(ctx, "req-c1")
	if err != nil || st.Reason != ReasonProfileNotFound {
		t.Fatalf("state = %+v, %v", st, err)
	}
	// No chat id known: the failure is recorded silently.
	if len(env.chat.messages()) != 0 {
		t.Fatal("no message should be sent without a resolved profile")
	}
}

func TestProcess_ProfileLookupFaultUsesTransientReason(t *testing.T) {
	env := newTestEnv()
	p, programs, _ := newProcessor(env, &fakeProfileSource{err: errors.New("db connection refused")})
	ctx := context.Background()

	p.Process(ctx, successCallback(domain.PlanProgram))

	if programs.calls != 0 {
		t.Fatal("finalize must not run on a lookup fault")
	}
	st, err := env.tracker.State(ctx, "req-c1")
	if err != nil || st.Reason != ReasonProfileLookupFailed {
		t.Fatalf("state = %+v, %v; want reason %s", st, err, ReasonProfileLookupFailed)
	}
}

func TestProcess_WorkerFailureNotifiesUser(t *testing.T) {
	env := newTestEnv()
	p, programs, _ := newProcessor(env, oneProfile())
	ctx := context.Background()

	cb := successCallback(domain.PlanProgram)
	cb.Status = "error"
	cb.Error = "model timeout"
	p.Process(ctx, cb)

	if programs.calls != 0 {
		t.Fatal("finalize must not run for a failed generation")
	}
	st, err := env.tracker.State(ctx, "req-c1")
	if err != nil || st.Reason != "model timeout" {
		t.Fatalf("state = %+v, %v", st, err)
	}
	if len(env.chat.messages()) != 1 {
		t.Fatalf("messages = %d, want 1 failure notification", len(env.chat.messages()))
	}
}

func TestProcess_WorkerFailureWithoutReasonGetsDefault(t *testing.T) {
	env := newTestEnv()
	p, _, _ := newProcessor(env, oneProfile())
	ctx := context.Background()

	cb := successCallback(domain.PlanProgram)
	cb.Status = "error"
	p.Process(ctx, cb)

	st, err := env.tracker.State(ctx, "req-c1")
	if err != nil || st.Reason != ReasonGenerationFailed {
		t.Fatalf("state = %+v, %v", st, err)
	}
}

func TestProcess_FinalizerPanicBecomesFailure(t *testing.T) {
	env := newTestEnv()
	src := oneProfile()
	programs := &fakeFinalizer{}
	p := &CallbackProcessor{
		Tracker:       env.tracker,
		Resolver:      NewProfileResolver(nil, src, env.cache),
		Programs:      panickingFinalizer{},
		Subscriptions: programs,
		Notifier:      env.notifier,
	}
	ctx := context.Background()

	p.Process(ctx, successCallback(domain.PlanProgram))

	failed, err := env.tracker.IsFailed(ctx, "req-c1")
	if err != nil || !failed {
		t.Fatalf("IsFailed = %v, %v; want true after a panicking finalizer", failed, err)
	}
}

type panickingFinalizer struct{}

func (panickingFinalizer) Finalize(context.Context, *FinalizeContext) error {
	panic("finalizer exploded")
}

func TestProcess_ForceReprocessesFailedRequest(t *testing.T) {
	env := newTestEnv()
	p, programs, _ := newProcessor(env, oneProfile())
	ctx := context.Background()

	// First attempt fails at the worker.
	cb := successCallback(domain.PlanProgram)
	cb.Status = "error"
	p.Process(ctx, cb)

	// A plain retry is rejected by the failed state.
	retry := successCallback(domain.PlanProgram)
	p.Process(ctx, retry)
	if programs.calls != 0 {
		t.Fatal("non-forced retry must not run finalize")
	}

	// A forced retry re-arms and delivers.
	retry.Force = true
	p.Process(ctx, retry)
	if programs.calls != 1 {
		t.Fatalf("forced retry finalize calls = %d, want 1", programs.calls)
	}
	done, err := env.tracker.IsDelivered(ctx, "req-c1")
	if err != nil || !done {
		t.Fatalf("IsDelivered = %v, %v; want true", done, err)
	}
}
