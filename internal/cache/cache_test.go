package cache

import (
	"context"
	"testing"
	"time"

	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/kv"
)

func TestCache_ProfileRoundTrip(t *testing.T) {
	store := kv.NewMemoryStore()
	c := New(store, time.Hour)
	ctx := context.Background()

	if _, err := c.Profile(ctx, 7); err != kv.ErrNotFound {
		t.Fatalf("Profile(miss) err = %v, want kv.ErrNotFound", err)
	}

	in := &domain.Profile{ID: 7, ChatID: 42, Language: "ru", Credits: 3}
	if err := c.SetProfile(ctx, in); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	out, err := c.Profile(ctx, 7)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if out.ID != 7 || out.ChatID != 42 || out.Language != "ru" || out.Credits != 3 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestCache_CorruptEntryEvicted(t *testing.T) {
	store := kv.NewMemoryStore()
	c := New(store, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "profile:9", []byte("{broken"), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := c.Profile(ctx, 9); err != kv.ErrNotFound {
		t.Fatalf("corrupt entry err = %v, want kv.ErrNotFound", err)
	}
	// The entry is gone, not just masked.
	if _, err := store.Get(ctx, "profile:9"); err != kv.ErrNotFound {
		t.Fatalf("corrupt entry still present: %v", err)
	}
}

func TestCache_PlanKeysAreProfileScoped(t *testing.T) {
	store := kv.NewMemoryStore()
	c := New(store, time.Hour)
	ctx := context.Background()

	prog := &domain.Program{ID: 100, ProfileID: 5, SplitNumber: 3}
	if err := c.SetProgram(ctx, prog); err != nil {
		t.Fatalf("SetProgram: %v", err)
	}
	sub := &domain.Subscription{ID: 200, ProfileID: 5, Price: 100, Enabled: true}
	if err := c.SetSubscription(ctx, sub); err != nil {
		t.Fatalf("SetSubscription: %v", err)
	}

	gotProg, err := c.Program(ctx, 5)
	if err != nil || gotProg.ID != 100 {
		t.Fatalf("Program = %+v, %v", gotProg, err)
	}
	gotSub, err := c.Subscription(ctx, 5)
	if err != nil || gotSub.ID != 200 || !gotSub.Enabled {
		t.Fatalf("Subscription = %+v, %v", gotSub, err)
	}

	// A newer plan for the same profile replaces the old entry.
	if err := c.SetProgram(ctx, &domain.Program{ID: 101, ProfileID: 5}); err != nil {
		t.Fatalf("SetProgram: %v", err)
	}
	gotProg, err = c.Program(ctx, 5)
	if err != nil || gotProg.ID != 101 {
		t.Fatalf("Program after overwrite = %+v, %v", gotProg, err)
	}
}
