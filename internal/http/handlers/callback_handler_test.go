package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/kv"
	"github.com/fitpilot/go-coach-backend/internal/services"
	"github.com/fitpilot/go-coach-backend/internal/worker"
)

// ----------------------------------------------------------------------------
// Fakes

type fakeCallbackService struct {
	mu    sync.Mutex
	calls []services.Callback
}

func (f *fakeCallbackService) Process(_ context.Context, cb services.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cb)
}

func (f *fakeCallbackService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDispatchService struct {
	requestID string
	ok        bool

	lastProfile *domain.Profile
	lastType    domain.PlanType
}

func (f *fakeDispatchService) Enqueue(_ context.Context, p *domain.Profile, pt domain.PlanType, _ domain.PlanAction, _ map[string]any) (string, bool) {
	f.lastProfile = p
	f.lastType = pt
	return f.requestID, f.ok
}

type fakeProfileService struct {
	profile *domain.Profile
	err     error
}

func (f *fakeProfileService) Resolve(context.Context, int64, int64) (*domain.Profile, error) {
	return f.profile, f.err
}

type fakePlanReadService struct {
	program *domain.Program
	sub     *domain.Subscription
	err     error
}

func (f *fakePlanReadService) Program(context.Context, int64) (*domain.Program, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.program == nil {
		return nil, services.ErrPlanNotFound
	}
	return f.program, nil
}

func (f *fakePlanReadService) Subscription(context.Context, int64) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.sub == nil {
		return nil, services.ErrPlanNotFound
	}
	return f.sub, nil
}

// syncPool runs tasks inline so handler tests stay deterministic.
type syncPool struct {
	saturated bool
}

func (p *syncPool) TrySubmit(t worker.Task) bool {
	if p.saturated {
		return false
	}
	t(context.Background())
	return true
}

// ----------------------------------------------------------------------------
// Harness

type handlerEnv struct {
	tracker   *delivery.Tracker
	callbacks *fakeCallbackService
	dispatch  *fakeDispatchService
	profiles  *fakeProfileService
	plans     *fakePlanReadService
	pool      *syncPool
	router    *gin.Engine
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &handlerEnv{
		tracker:   delivery.NewTracker(kv.NewMemoryStore(), time.Hour),
		callbacks: &fakeCallbackService{},
		dispatch:  &fakeDispatchService{requestID: "req-new", ok: true},
		profiles:  &fakeProfileService{profile: &domain.Profile{ID: 1, ChatID: 10}},
		plans:     &fakePlanReadService{},
		pool:      &syncPool{},
	}
	h := New(env.callbacks, env.tracker, env.dispatch, env.profiles, env.plans, env.pool)

	r := gin.New()
	r.POST("/internal/ai/plan-ready", h.PlanReady)
	r.POST("/internal/ai/plan-requests", h.DispatchPlan)
	r.GET("/internal/ai/plan-requests/:id", h.PlanState)
	r.GET("/internal/ai/profiles/:id/plans/:plan_type", h.ProfilePlan)
	env.router = r
	return env
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func validCallback() map[string]any {
	return map[string]any{
		"request_id": "req-1",
		"profile_id": 1,
		"plan_type":  "program",
		"status":     "success",
		"plan":       map[string]any{"exercises_by_day": []any{}},
	}
}

// ----------------------------------------------------------------------------
// PlanReady

func TestPlanReady_Accepted(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodPost, "/internal/ai/plan-ready", validCallback())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", w.Code, w.Body.String())
	}
	if got := decodeJSON(t, w)["result"]; got != "accepted" {
		t.Fatalf("result = %v, want accepted", got)
	}
	if env.callbacks.count() != 1 {
		t.Fatalf("processed callbacks = %d, want 1", env.callbacks.count())
	}
	cb := env.callbacks.calls[0]
	if cb.RequestID != "req-1" || cb.PlanType != domain.PlanProgram || cb.Action != domain.ActionCreate {
		t.Fatalf("callback = %+v", cb)
	}
}

func TestPlanReady_ValidationErrors(t *testing.T) {
	env := newHandlerEnv(t)

	cases := []map[string]any{
		{},
		{"profile_id": 1, "plan_type": "program"},
		{"request_id": "r", "plan_type": "program"},
		{"request_id": "r", "profile_id": 1},
		{"request_id": "r", "profile_id": 1, "plan_type": "meal-plan"},
		{"request_id": "r", "profile_id": 1, "plan_type": "program", "action": "destroy"},
	}
	for i, body := range cases {
		w := env.do(t, http.MethodPost, "/internal/ai/plan-ready", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400; body %s", i, w.Code, w.Body.String())
		}
		if got := decodeJSON(t, w)["code"]; got != ErrCodeBadRequest {
			t.Errorf("case %d: code = %v, want %s", i, got, ErrCodeBadRequest)
		}
	}
	if env.callbacks.count() != 0 {
		t.Fatal("invalid callbacks must not reach the processor")
	}
}

func TestPlanReady_LateDuplicateIgnored(t *testing.T) {
	env := newHandlerEnv(t)
	if err := env.tracker.MarkDelivered(context.Background(), "req-1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/internal/ai/plan-ready", validCallback())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if got := decodeJSON(t, w)["result"]; got != "ignored" {
		t.Fatalf("result = %v, want ignored", got)
	}
	if env.callbacks.count() != 0 {
		t.Fatal("ignored duplicate must not reach the processor")
	}
}

func TestPlanReady_PoolSaturation(t *testing.T) {
	env := newHandlerEnv(t)
	env.pool.saturated = true

	w := env.do(t, http.MethodPost, "/internal/ai/plan-ready", validCallback())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := decodeJSON(t, w)["code"]; got != ErrCodeGatewayBusy {
		t.Fatalf("code = %v, want %s", got, ErrCodeGatewayBusy)
	}
}

// ----------------------------------------------------------------------------
// DispatchPlan

func TestDispatchPlan_Accepted(t *testing.T) {
	env := newHandlerEnv(t)

	body := map[string]any{"profile_id": 1, "plan_type": "subscription", "payload": map[string]any{"goal": "tone"}}
	w := env.do(t, http.MethodPost, "/internal/ai/plan-requests", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", w.Code, w.Body.String())
	}
	if got := decodeJSON(t, w)["request_id"]; got != "req-new" {
		t.Fatalf("request_id = %v, want req-new", got)
	}
	if env.dispatch.lastType != domain.PlanSubscription {
		t.Fatalf("dispatched type = %s", env.dispatch.lastType)
	}
}

func TestDispatchPlan_ProfileNotFound(t *testing.T) {
	env := newHandlerEnv(t)
	env.profiles.profile = nil
	env.profiles.err = services.ErrProfileNotFound

	w := env.do(t, http.MethodPost, "/internal/ai/plan-requests", map[string]any{"profile_id": 9, "plan_type": "program"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDispatchPlan_EnqueueFailure(t *testing.T) {
	env := newHandlerEnv(t)
	env.dispatch.requestID = ""
	env.dispatch.ok = false

	w := env.do(t, http.MethodPost, "/internal/ai/plan-requests", map[string]any{"profile_id": 1, "plan_type": "program"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := decodeJSON(t, w)["code"]; got != ErrCodeEnqueueFailed {
		t.Fatalf("code = %v, want %s", got, ErrCodeEnqueueFailed)
	}
}

// ----------------------------------------------------------------------------
// ProfilePlan

func TestProfilePlan_ReturnsLatestProgram(t *testing.T) {
	env := newHandlerEnv(t)
	env.plans.program = &domain.Program{
		ID:          7,
		ProfileID:   1,
		SplitNumber: 2,
		Days:        domain.ExerciseDays{{Day: 1, Exercises: []domain.Exercise{{Name: "squat"}}}},
	}

	w := env.do(t, http.MethodGet, "/internal/ai/profiles/1/plans/program", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	got := decodeJSON(t, w)
	if got["split_number"] != float64(2) || got["profile_id"] != float64(1) {
		t.Fatalf("body = %v", got)
	}
}

func TestProfilePlan_NoPlanAnswers404(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodGet, "/internal/ai/profiles/1/plans/subscription", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := decodeJSON(t, w)["code"]; got != ErrCodeNotFound {
		t.Fatalf("code = %v, want %s", got, ErrCodeNotFound)
	}
}

func TestProfilePlan_ValidationErrors(t *testing.T) {
	env := newHandlerEnv(t)

	for _, path := range []string{
		"/internal/ai/profiles/abc/plans/program",
		"/internal/ai/profiles/0/plans/program",
		"/internal/ai/profiles/1/plans/meal-plan",
	} {
		w := env.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestProfilePlan_ReaderFaultAnswers500(t *testing.T) {
	env := newHandlerEnv(t)
	env.plans.err = errors.New("store unavailable")

	w := env.do(t, http.MethodGet, "/internal/ai/profiles/1/plans/program", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

// ----------------------------------------------------------------------------
// PlanState

func TestPlanState_KnownAndUnknown(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	if _, err := env.tracker.MarkFailed(ctx, "req-f", "worker_failed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/internal/ai/plan-requests/req-f", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeJSON(t, w)
	if got["status"] != "failed" || got["reason"] != "worker_failed" {
		t.Fatalf("body = %v", got)
	}

	w = env.do(t, http.MethodGet, "/internal/ai/plan-requests/never-seen", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", w.Code)
	}
}
