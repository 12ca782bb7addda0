package tokens

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
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

func (c *fakeClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

func newTestService(t *testing.T, clock *fakeClock) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tokens.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate tokens: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}
	return service, db
}

func TestCreateIssuesURLSafeTokens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)

	first, err := service.Create(context.Background(), 42, "dune", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := service.Create(context.Background(), 42, "dune", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}
	if len(first) != 22 {
		t.Fatalf("expected 22 character token, got %d", len(first))
	}

	record, err := service.Lookup(context.Background(), first)
	if err != nil || record == nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if record.Used || record.UserID != 42 || record.MovieCode != "dune" || record.Part != 1 {
		t.Fatalf("unexpected stored record %+v", record)
	}
	if !record.CreatedAt().Equal(clock.Now().UTC()) {
		t.Fatalf("unexpected created at %v", record.CreatedAt())
	}
}

func TestCreateUsesConfiguredEntropy(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	_, db := newTestService(t, clock)
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock.Now,
		Entropy:  bytes.NewReader(bytes.Repeat([]byte{0}, tokenEntropyBytes)),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	token, err := service.Create(context.Background(), 1, "dune", 2)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if token != "AAAAAAAAAAAAAAAAAAAAAA" {
		t.Fatalf("unexpected deterministic token %q", token)
	}

	if _, err := service.Create(context.Background(), 1, "dune", 2); err == nil {
		t.Fatalf("expected exhausted entropy to fail")
	}
}

func TestVerifyRedeemsAtMostOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	token, err := service.Create(ctx, 7, "dune", 2)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	record, err := service.Verify(ctx, token, 7)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if record == nil {
		t.Fatalf("expected first redemption to succeed")
	}
	if record.Used {
		t.Fatalf("expected pre-update snapshot with used=false")
	}
	if record.MovieCode != "dune" || record.Part != 2 {
		t.Fatalf("unexpected record %+v", record)
	}

	again, err := service.Verify(ctx, token, 7)
	if err != nil {
		t.Fatalf("second verify errored: %v", err)
	}
	if again != nil {
		t.Fatalf("expected second redemption to fail")
	}

	stored, _ := service.Lookup(ctx, token)
	if stored == nil || !stored.Used {
		t.Fatalf("expected stored token to be marked used, got %+v", stored)
	}
}

func TestVerifyRejectsOtherUsers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	token, err := service.Create(ctx, 7, "dune", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if record, err := service.Verify(ctx, token, 8); err != nil || record != nil {
		t.Fatalf("expected foreign user to be rejected, got %+v, %v", record, err)
	}
	if record, err := service.Verify(ctx, token, 7); err != nil || record == nil {
		t.Fatalf("expected owner to still redeem, got %+v, %v", record, err)
	}
}

func TestVerifyConcurrentRedemptionSucceedsOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	token, err := service.Create(ctx, 9, "dune", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := service.Verify(ctx, token, 9)
			if err != nil {
				t.Errorf("verify errored: %v", err)
				return
			}
			if record != nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one redemption, got %d", successes)
	}
}

func TestVerifyRejectsExpiredTokenWithoutConsumingIt(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	token, err := service.Create(ctx, 7, "dune", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	clock.Advance(ValidityWindow + time.Second)

	record, err := service.Verify(ctx, token, 7)
	if err != nil {
		t.Fatalf("verify errored: %v", err)
	}
	if record != nil {
		t.Fatalf("expected expired token to be rejected")
	}

	stored, err := service.Lookup(ctx, token)
	if err != nil || stored == nil {
		t.Fatalf("expected expired token to remain until cleanup, got %+v, %v", stored, err)
	}
	if stored.Used {
		t.Fatalf("expected expiry rejection to leave used=false")
	}
}

func TestVerifyAcceptsTokenAtWindowBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	token, err := service.Create(ctx, 7, "dune", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	clock.Advance(ValidityWindow)

	if record, err := service.Verify(ctx, token, 7); err != nil || record == nil {
		t.Fatalf("expected token exactly at the window edge to redeem, got %+v, %v", record, err)
	}
}

func TestCleanupRemovesOnlyTokensPastRetention(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	oldUnused, _ := service.Create(ctx, 1, "dune", 1)
	oldUsed, _ := service.Create(ctx, 1, "dune", 1)
	if record, _ := service.Verify(ctx, oldUsed, 1); record == nil {
		t.Fatalf("expected fixture redemption")
	}

	clock.Advance(RetentionWindow - 10*time.Minute)
	recent, _ := service.Create(ctx, 1, "dune", 1)

	clock.Advance(10*time.Minute + time.Second)

	removed, err := service.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed tokens, got %d", removed)
	}

	for _, token := range []string{oldUnused, oldUsed} {
		if record, _ := service.Lookup(ctx, token); record != nil {
			t.Fatalf("expected %s to be removed", token)
		}
	}
	if record, _ := service.Lookup(ctx, recent); record == nil {
		t.Fatalf("expected recent token to survive cleanup")
	}
}

func TestJanitorSweepCountsRemovals(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := service.Create(ctx, 1, "dune", 1); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	clock.Advance(RetentionWindow + time.Minute)

	janitor := NewJanitor(service, time.Minute, nil)
	if removed := janitor.Sweep(ctx); removed != 1 {
		t.Fatalf("expected janitor to remove 1 token, got %d", removed)
	}
}
