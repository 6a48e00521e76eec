package budget

import (
	"testing"

	execerrors "github.com/jgavinray/urlexec/internal/errors"
)

func TestChargeCostLimit(t *testing.T) {
	t.Parallel()
	a := New(Limits{CostCents: 0.5})

	ok, kind := a.Charge(0.3, 0)
	if !ok {
		t.Fatalf("first charge should not exceed limit, got kind %q", kind)
	}

	ok, kind = a.Charge(0.3, 0)
	if ok || kind != execerrors.LimitCost {
		t.Fatalf("Charge() = %v, %q, want false, %q", ok, kind, execerrors.LimitCost)
	}
}

func TestChargeIterationLimit(t *testing.T) {
	t.Parallel()
	a := New(Limits{Iterations: 3})

	for i := 0; i < 2; i++ {
		if ok, kind := a.Charge(0, 1); !ok {
			t.Fatalf("iteration %d: unexpected limit %q", i, kind)
		}
	}

	ok, kind := a.Charge(0, 1)
	if ok || kind != execerrors.LimitIterations {
		t.Fatalf("Charge() = %v, %q, want false, %q", ok, kind, execerrors.LimitIterations)
	}
}

func TestChargeNoOpWhenUnderLimits(t *testing.T) {
	t.Parallel()
	a := New(Limits{CostCents: 10, ElapsedMS: 10_000, Iterations: 100})
	ok, kind := a.Charge(0, 0)
	if !ok || kind != "" {
		t.Fatalf("Charge(0,0) = %v, %q, want true, \"\"", ok, kind)
	}
}

func TestSnapshotMonotonic(t *testing.T) {
	t.Parallel()
	a := New(Limits{CostCents: 100, Iterations: 1000})

	a.Charge(0.1, 1)
	cost1, _, iter1 := a.Snapshot()

	a.Charge(0.1, 1)
	cost2, _, iter2 := a.Snapshot()

	if cost2 < cost1 {
		t.Errorf("cost decreased: %v -> %v", cost1, cost2)
	}
	if iter2 < iter1 {
		t.Errorf("iterations decreased: %v -> %v", iter1, iter2)
	}
}

func TestZeroLimitMeansUnbounded(t *testing.T) {
	t.Parallel()
	a := New(Limits{}) // all zero
	for i := 0; i < 1000; i++ {
		if ok, kind := a.Charge(1000, 1); !ok {
			t.Fatalf("iteration %d: unexpected limit %q with zero-value Limits", i, kind)
		}
	}
}
