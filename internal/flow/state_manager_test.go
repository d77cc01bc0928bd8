package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryStateManager_StartReplacesSession(t *testing.T) {
	ctx := context.Background()
	sm := NewInMemoryStateManager()

	if s, err := sm.Get(ctx, "52"); err != nil || s != nil {
		t.Fatalf("expected no session, got %+v err %v", s, err)
	}
	if _, err := sm.Start(ctx, "52", models.FlowTypeAppointment, models.StateOwnerName); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Start(ctx, "52", models.FlowTypeAssistant, models.StateQuestion); err != nil {
		t.Fatal(err)
	}
	s, _ := sm.Get(ctx, "52")
	if s == nil || s.Flow != models.FlowTypeAssistant || s.Step != models.StateQuestion {
		t.Fatalf("expected assistant session to replace appointment, got %+v", s)
	}
	all, _ := sm.List(ctx)
	if len(all) != 1 {
		t.Errorf("expected exactly one session for sender, got %d", len(all))
	}
}

func TestInMemoryStateManager_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	sm := NewInMemoryStateManager()
	_, _ = sm.Start(ctx, "52", models.FlowTypeAppointment, models.StateOwnerName)

	s, _ := sm.Get(ctx, "52")
	s.Step = models.StateReason
	again, _ := sm.Get(ctx, "52")
	if again.Step != models.StateOwnerName {
		t.Errorf("mutating a returned session must not change the store, got step %s", again.Step)
	}

	if err := sm.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	again, _ = sm.Get(ctx, "52")
	if again.Step != models.StateReason {
		t.Errorf("expected saved step, got %s", again.Step)
	}
}

func TestInMemoryStateManager_SaveValidation(t *testing.T) {
	sm := NewInMemoryStateManager()
	if err := sm.Save(context.Background(), nil); err != ErrInvalidSession {
		t.Errorf("expected ErrInvalidSession for nil, got %v", err)
	}
	if err := sm.Save(context.Background(), &models.Session{}); err != ErrInvalidSession {
		t.Errorf("expected ErrInvalidSession for empty sender, got %v", err)
	}
}

func TestInMemoryStateManager_ResetAndList(t *testing.T) {
	ctx := context.Background()
	sm := NewInMemoryStateManager()
	_, _ = sm.Start(ctx, "b", models.FlowTypeAssistant, models.StateQuestion)
	_, _ = sm.Start(ctx, "a", models.FlowTypeAppointment, models.StateOwnerName)

	all, _ := sm.List(ctx)
	if len(all) != 2 || all[0].SenderID != "a" || all[1].SenderID != "b" {
		t.Fatalf("expected sorted sessions a,b got %+v", all)
	}
	if err := sm.Reset(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if s, _ := sm.Get(ctx, "a"); s != nil {
		t.Errorf("expected session a removed, got %+v", s)
	}
	if err := sm.Reset(ctx, "missing"); err != nil {
		t.Errorf("reset of missing sender should be a no-op, got %v", err)
	}
}

func TestInMemoryStateManager_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	sm := NewInMemoryStateManager(WithIdleTimeout(10*time.Minute), WithClock(clock.Now))

	_, _ = sm.Start(ctx, "old", models.FlowTypeAppointment, models.StateOwnerName)
	clock.Advance(6 * time.Minute)
	_, _ = sm.Start(ctx, "new", models.FlowTypeAssistant, models.StateQuestion)
	clock.Advance(5 * time.Minute)

	if n := sm.Sweep(clock.Now()); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if s, _ := sm.Get(ctx, "old"); s != nil {
		t.Error("expected old session swept")
	}
	if s, _ := sm.Get(ctx, "new"); s == nil {
		t.Error("expected new session kept")
	}

	clock.Advance(10 * time.Minute)
	if s, _ := sm.Get(ctx, "new"); s != nil {
		t.Error("expected idle session to be dropped on read")
	}
}

func TestInMemoryStateManager_SweepDisabled(t *testing.T) {
	sm := NewInMemoryStateManager()
	_, _ = sm.Start(context.Background(), "52", models.FlowTypeAssistant, models.StateQuestion)
	if n := sm.Sweep(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Errorf("sweep without timeout should drop nothing, got %d", n)
	}
}

func TestInMemoryStateManager_LockSerializesSender(t *testing.T) {
	sm := NewInMemoryStateManager()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("52")
			defer unlock()
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("expected turns for one sender to be serialized, saw %d concurrent", maxSeen)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.locks) != 0 {
		t.Errorf("expected sender locks to be released, %d left", len(sm.locks))
	}
}

func TestInMemoryStateManager_UnlockIsIdempotent(t *testing.T) {
	sm := NewInMemoryStateManager()
	unlock := sm.Lock("52")
	unlock()
	unlock()
	done := make(chan struct{})
	go func() {
		sm.Lock("52")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock not reacquirable after double unlock")
	}
}
