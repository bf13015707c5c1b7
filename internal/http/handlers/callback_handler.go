// Plan pipeline HTTP handlers.
//
// This file exposes the internal endpoints of the generation pipeline:
//   - POST /internal/ai/plan-ready                        (worker callback gateway)
//   - POST /internal/ai/plan-requests                     (dispatch a generation job)
//   - GET  /internal/ai/plan-requests/{id}                (delivery-state probe)
//   - GET  /internal/ai/profiles/{id}/plans/{plan_type}   (latest persisted plan)
//
// Handlers are transport-thin: they validate input, hand the callback to the
// detached worker pool or the dispatcher, and translate results into HTTP
// responses. The gateway acknowledges callbacks with 202 before processing;
// everything after the acknowledgement is the processor's responsibility.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fitpilot/go-coach-backend/internal/delivery"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/http/middleware"
	"github.com/fitpilot/go-coach-backend/internal/kv"
	"github.com/fitpilot/go-coach-backend/internal/services"
	"github.com/fitpilot/go-coach-backend/internal/worker"
)

//
// Service contracts (context-aware)
//

// CallbackService executes one generation callback end to end. Implementations
// absorb every outcome (the HTTP response was already written).
type CallbackService interface {
	Process(ctx context.Context, cb services.Callback)
}

// DeliveryService exposes the delivery-state reads the gateway needs.
type DeliveryService interface {
	// IsDelivered reports whether a request id already reached delivered.
	IsDelivered(ctx context.Context, requestID string) (bool, error)
	// State returns the full delivery record or kv.ErrNotFound.
	State(ctx context.Context, requestID string) (delivery.State, error)
}

// DispatchService submits generation jobs for a resolved profile.
type DispatchService interface {
	Enqueue(ctx context.Context, profile *domain.Profile, planType domain.PlanType, action domain.PlanAction, payload map[string]any) (string, bool)
}

// ProfileService resolves profiles for dispatch requests.
type ProfileService interface {
	Resolve(ctx context.Context, id, hint int64) (*domain.Profile, error)
}

// PlanReadService serves the latest persisted plan per profile.
type PlanReadService interface {
	Program(ctx context.Context, profileID int64) (*domain.Program, error)
	Subscription(ctx context.Context, profileID int64) (*domain.Subscription, error)
}

// TaskPool accepts detached tasks without blocking.
type TaskPool interface {
	TrySubmit(t worker.Task) bool
}

//
// Handler wiring
//

// Handlers groups the internal pipeline endpoints. It depends on abstract
// service interfaces to keep transport concerns separate from pipeline logic.
type Handlers struct {
	callbacks  CallbackService
	deliveries DeliveryService
	dispatch   DispatchService
	profiles   ProfileService
	plans      PlanReadService
	pool       TaskPool
}

// New constructs a Handlers instance bound to the given services.
func New(cb CallbackService, del DeliveryService, disp DispatchService, prof ProfileService, plans PlanReadService, pool TaskPool) *Handlers {
	return &Handlers{callbacks: cb, deliveries: del, dispatch: disp, profiles: prof, plans: plans, pool: pool}
}

//
// DTOs
//

// PlanCallbackRequest is the JSON payload workers POST when a generation
// finishes. Exactly one callback per request id has user-visible effect;
// duplicates are acknowledged and ignored.
type PlanCallbackRequest struct {
	RequestID     string `json:"request_id" binding:"required"`
	ProfileID     int64  `json:"profile_id" binding:"required"`
	HintProfileID int64  `json:"profile_hint_id"`
	PlanType      string `json:"plan_type" binding:"required"`
	Action        string `json:"action"`

	// Status is "success" when Plan carries a usable result; any other value
	// marks the request failed with Error as the reason.
	Status string         `json:"status"`
	Error  string         `json:"error"`
	Plan   map[string]any `json:"plan"`

	SubscriptionID         int64 `json:"subscription_id"`
	PreviousSubscriptionID int64 `json:"previous_subscription_id"`

	// Force re-arms a request stuck in the failed state (operator retries).
	Force bool `json:"force"`
}

// DispatchRequest is the JSON payload for submitting a generation job.
type DispatchRequest struct {
	ProfileID int64          `json:"profile_id" binding:"required"`
	PlanType  string         `json:"plan_type" binding:"required"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
}

// PlanStateResponse reports the delivery state of one request id.
type PlanStateResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

//
// Handlers
//

// PlanReady is the worker callback gateway.
//
// It validates the payload, answers 202 {"result":"ignored"} for a request id
// that already reached delivered, and otherwise answers 202
// {"result":"accepted"} after handing the callback to the detached pool. Pool
// saturation is an internal fault (503): the worker fleet retries the callback
// and the delivery claim keeps the retry safe.
func (h *Handlers) PlanReady(c *gin.Context) {
	var req PlanCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request_id, profile_id and plan_type are required")
		return
	}
	planType, err := domain.ParsePlanType(req.PlanType)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown plan_type")
		return
	}
	action, err := domain.ParsePlanAction(req.Action)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown action")
		return
	}

	// Cheap synchronous probe: late duplicates are the common case after a
	// worker-side retry, and they should not consume pool capacity. The
	// claim inside the processor still guards the race this probe cannot.
	done, err := h.deliveries.IsDelivered(c.Request.Context(), req.RequestID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "delivery state unavailable")
		return
	}
	if done {
		ok(c, http.StatusAccepted, gin.H{"result": "ignored"})
		return
	}

	cb := services.Callback{
		RequestID:              req.RequestID,
		ProfileID:              req.ProfileID,
		HintProfileID:          req.HintProfileID,
		PlanType:               planType,
		Action:                 action,
		Status:                 req.Status,
		Error:                  req.Error,
		Plan:                   req.Plan,
		SubscriptionID:         req.SubscriptionID,
		PreviousSubscriptionID: req.PreviousSubscriptionID,
		Force:                  req.Force,
	}
	if !h.pool.TrySubmit(func(ctx context.Context) { h.callbacks.Process(ctx, cb) }) {
		fail(c, http.StatusServiceUnavailable, ErrCodeGatewayBusy, "callback queue saturated, retry later")
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("callback_request_id", req.RequestID).
		Str("plan_type", req.PlanType).
		Msg("callback accepted")
	ok(c, http.StatusAccepted, gin.H{"result": "accepted"})
}

// DispatchPlan submits a generation job for a profile and returns the
// assigned request id.
func (h *Handlers) DispatchPlan(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "profile_id and plan_type are required")
		return
	}
	planType, err := domain.ParsePlanType(req.PlanType)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown plan_type")
		return
	}
	action, err := domain.ParsePlanAction(req.Action)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown action")
		return
	}

	profile, err := h.profiles.Resolve(c.Request.Context(), req.ProfileID, 0)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "profile resolution failed")
		return
	}

	requestID, submitted := h.dispatch.Enqueue(c.Request.Context(), profile, planType, action, req.Payload)
	if !submitted {
		fail(c, http.StatusServiceUnavailable, ErrCodeEnqueueFailed, "job could not be queued")
		return
	}
	ok(c, http.StatusAccepted, gin.H{"request_id": requestID})
}

// ProfilePlan returns the latest persisted plan of the requested type for a
// profile, served cache-first from the reader.
func (h *Handlers) ProfilePlan(c *gin.Context) {
	profileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || profileID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid profile id")
		return
	}
	planType, err := domain.ParsePlanType(c.Param("plan_type"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown plan_type")
		return
	}

	var (
		plan    any
		readErr error
	)
	switch planType {
	case domain.PlanProgram:
		plan, readErr = h.plans.Program(c.Request.Context(), profileID)
	case domain.PlanSubscription:
		plan, readErr = h.plans.Subscription(c.Request.Context(), profileID)
	}
	if errors.Is(readErr, services.ErrPlanNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no plan of this type for the profile")
		return
	}
	if readErr != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "plan lookup failed")
		return
	}
	ok(c, http.StatusOK, plan)
}

// PlanState reports the delivery state of a request id for stuck-request
// triage. Unknown (or expired) ids answer 404.
func (h *Handlers) PlanState(c *gin.Context) {
	id := c.Param("id")
	st, err := h.deliveries.State(c.Request.Context(), id)
	if errors.Is(err, kv.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown request id")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeProbeFailed, "delivery state unavailable")
		return
	}
	ok(c, http.StatusOK, PlanStateResponse{
		RequestID: id,
		Status:    string(st.Status),
		Reason:    st.Reason,
	})
}
