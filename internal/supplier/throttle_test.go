package supplier

import (
	"context"
	"testing"
	"time"
)

func TestThrottleFirstCallDoesNotWait(t *testing.T) {
	th := newThrottle(1200*time.Millisecond, time.Now)

	start := time.Now()
	if err := th.wait(context.Background(), "order.create"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("first call should not sleep, took %v", elapsed)
	}
}

func TestThrottleSpacesRepeatedCalls(t *testing.T) {
	th := newThrottle(50*time.Millisecond, time.Now)

	if err := th.wait(context.Background(), "order.create"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	start := time.Now()
	if err := th.wait(context.Background(), "order.create"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected ~50ms spacing, got %v", elapsed)
	}
}

func TestThrottleOperationsAreIndependent(t *testing.T) {
	th := newThrottle(time.Second, time.Now)

	if err := th.wait(context.Background(), "order.create"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	start := time.Now()
	if err := th.wait(context.Background(), "product.search"); err != nil {
		t.Fatalf("wait different op: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("different operation should not wait, took %v", elapsed)
	}
}

func TestThrottleRespectsContextCancellation(t *testing.T) {
	th := newThrottle(time.Hour, time.Now)

	if err := th.wait(context.Background(), "order.create"); err != nil {
		t.Fatalf("wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := th.wait(ctx, "order.create")
	if err == nil {
		t.Fatal("expected context error for impossible wait")
	}
}
