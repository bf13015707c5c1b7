package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fitpilot/go-coach-backend/internal/kv"
)

func newTracker() *Tracker {
	return NewTracker(kv.NewMemoryStore(), time.Hour)
}

func TestClaim_FirstWinsOnly(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	ok, err := tr.Claim(ctx, "req-1", false)
	if err != nil || !ok {
		t.Fatalf("first Claim = %v, %v; want true, nil", ok, err)
	}
	ok, err = tr.Claim(ctx, "req-1", false)
	if err != nil || ok {
		t.Fatalf("second Claim = %v, %v; want false, nil", ok, err)
	}
}

func TestClaim_ConcurrentExactlyOne(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tr.Claim(ctx, "req-concurrent", false)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("claim winners = %d, want exactly 1", won)
	}
}

func TestClaim_DeliveredNeverReArmed(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	if ok, _ := tr.Claim(ctx, "req-2", false); !ok {
		t.Fatal("initial claim should succeed")
	}
	if err := tr.MarkDelivered(ctx, "req-2"); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	for _, force := range []bool{false, true} {
		ok, err := tr.Claim(ctx, "req-2", force)
		if err != nil || ok {
			t.Fatalf("Claim(force=%v) after delivered = %v, %v; want false, nil", force, ok, err)
		}
	}
	done, err := tr.IsDelivered(ctx, "req-2")
	if err != nil || !done {
		t.Fatalf("IsDelivered = %v, %v; want true, nil", done, err)
	}
}

func TestClaim_ForceReArmsFailed(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	if ok, _ := tr.Claim(ctx, "req-3", false); !ok {
		t.Fatal("initial claim should succeed")
	}
	first, err := tr.MarkFailed(ctx, "req-3", "worker_failed")
	if err != nil || !first {
		t.Fatalf("MarkFailed = %v, %v; want true, nil", first, err)
	}

	// Without force the failed state blocks re-processing.
	if ok, _ := tr.Claim(ctx, "req-3", false); ok {
		t.Fatal("Claim without force should not re-arm a failed request")
	}

	ok, err := tr.Claim(ctx, "req-3", true)
	if err != nil || !ok {
		t.Fatalf("forced Claim = %v, %v; want true, nil", ok, err)
	}
	st, err := tr.State(ctx, "req-3")
	if err != nil || st.Status != StatusPending {
		t.Fatalf("state after re-arm = %+v, %v; want pending", st, err)
	}

	// The notified marker was cleared, so a new failure notifies again.
	first, err = tr.MarkFailed(ctx, "req-3", "worker_failed_again")
	if err != nil || !first {
		t.Fatalf("MarkFailed after re-arm = %v, %v; want true, nil", first, err)
	}
}

func TestMarkFailed_FirstTransitionOnly(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := tr.MarkFailed(ctx, "req-4", "boom")
			if err != nil {
				t.Errorf("MarkFailed: %v", err)
				return
			}
			results <- first
		}()
	}
	wg.Wait()
	close(results)

	firsts := 0
	for f := range results {
		if f {
			firsts++
		}
	}
	if firsts != 1 {
		t.Fatalf("first transitions = %d, want exactly 1", firsts)
	}

	failed, err := tr.IsFailed(ctx, "req-4")
	if err != nil || !failed {
		t.Fatalf("IsFailed = %v, %v; want true, nil", failed, err)
	}
}

func TestMarkFailed_DeliveredStaysDelivered(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	if ok, _ := tr.Claim(ctx, "req-7", false); !ok {
		t.Fatal("initial claim should succeed")
	}
	if err := tr.MarkDelivered(ctx, "req-7"); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	// Dead letters carry no ordering guarantee against the success callback:
	// a late one must neither flip the state nor arm the failure notification.
	first, err := tr.MarkFailed(ctx, "req-7", "worker_crashed")
	if err != nil || first {
		t.Fatalf("MarkFailed after delivered = %v, %v; want false, nil", first, err)
	}
	st, err := tr.State(ctx, "req-7")
	if err != nil || st.Status != StatusDelivered || st.Reason != "" {
		t.Fatalf("state = %+v, %v; want delivered", st, err)
	}
	failed, err := tr.IsFailed(ctx, "req-7")
	if err != nil || failed {
		t.Fatalf("IsFailed = %v, %v; want false, nil", failed, err)
	}
}

func TestMarkFailed_UnseenRequestRecordsFailure(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	// A dead letter can be the first event ever seen for a request id.
	first, err := tr.MarkFailed(ctx, "req-8", "worker_crashed")
	if err != nil || !first {
		t.Fatalf("MarkFailed = %v, %v; want true, nil", first, err)
	}
	st, err := tr.State(ctx, "req-8")
	if err != nil || st.Status != StatusFailed || st.Reason != "worker_crashed" {
		t.Fatalf("state = %+v, %v; want failed/worker_crashed", st, err)
	}

	// The recorded failure blocks a plain claim afterwards.
	if ok, _ := tr.Claim(ctx, "req-8", false); ok {
		t.Fatal("claim after recorded failure should be rejected")
	}
}

func TestMarkDelivered_Idempotent(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tr.MarkDelivered(ctx, "req-5"); err != nil {
			t.Fatalf("MarkDelivered #%d: %v", i, err)
		}
	}
	st, err := tr.State(ctx, "req-5")
	if err != nil || st.Status != StatusDelivered {
		t.Fatalf("state = %+v, %v; want delivered", st, err)
	}
}

func TestState_UnseenRequest(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	if _, err := tr.State(ctx, "never-seen"); err != kv.ErrNotFound {
		t.Fatalf("State err = %v, want kv.ErrNotFound", err)
	}
	done, err := tr.IsDelivered(ctx, "never-seen")
	if err != nil || done {
		t.Fatalf("IsDelivered = %v, %v; want false, nil", done, err)
	}
	failed, err := tr.IsFailed(ctx, "never-seen")
	if err != nil || failed {
		t.Fatalf("IsFailed = %v, %v; want false, nil", failed, err)
	}
}

func TestClaim_CorruptStateFailsClosed(t *testing.T) {
	store := kv.NewMemoryStore()
	tr := NewTracker(store, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "delivery:req-6", []byte("{not json"), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ok, err := tr.Claim(ctx, "req-6", false)
	if err == nil || ok {
		t.Fatalf("Claim over corrupt state = %v, %v; want false, error", ok, err)
	}
}
