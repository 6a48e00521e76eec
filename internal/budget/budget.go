// Package budget implements the cost/time/iteration accounting described in
// spec §4.5: a BudgetAccount tracks cents, milliseconds, and per-loop
// iterations, and reports limit_exceeded(kind) the moment any dimension
// crosses its configured ceiling.
package budget

import (
	"sync"
	"time"

	execerrors "github.com/jgavinray/urlexec/internal/errors"
)

// Limits bounds a BudgetAccount. Limits.Iterations is the "single do loop"
// bound from §3/§4.7.2; CostCents and ElapsedMS apply both to one do-loop
// instance and, with higher ceilings, to the aggregate request (callers
// construct two BudgetAccounts — one per do loop, one for the whole
// request — each with the Limits appropriate to its scope).
type Limits struct {
	CostCents float64
	ElapsedMS int64
	Iterations int
}

// DefaultDoLoopLimits are the bounds spec §3 gives for a single do loop:
// 0.5 cents, 500 000 ms, 500 iterations.
var DefaultDoLoopLimits = Limits{CostCents: 0.5, ElapsedMS: 500_000, Iterations: 500}

// Account is a mutable, per-scope budget tracker. The zero value is not
// usable; construct with New. Safe for concurrent use, though the engine's
// per-request sequential execution model (§5) means contention is not
// expected in practice.
type Account struct {
	mu sync.Mutex

	limits Limits
	start  time.Time

	costCents  float64
	elapsedMS  int64
	iterations int
}

// New constructs an Account bounded by limits, with its elapsed-time clock
// starting now.
func New(limits Limits) *Account {
	return &Account{limits: limits, start: time.Now()}
}

// Charge adds costCents and iterationDelta to the account (elapsed time is
// always recomputed from the wall clock rather than accumulated, since
// real time passes regardless of what callers report) and reports whether
// any dimension now exceeds its limit. A zero-valued charge
// (Charge(0, 0)) is the no-op limit check the engine performs before every
// stage (§4.6).
func (a *Account) Charge(costCents float64, iterationDelta int) (ok bool, kind execerrors.LimitKind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.costCents += costCents
	a.iterations += iterationDelta
	a.elapsedMS = time.Since(a.start).Milliseconds()

	switch {
	case a.limits.CostCents > 0 && a.costCents >= a.limits.CostCents:
		return false, execerrors.LimitCost
	case a.limits.ElapsedMS > 0 && a.elapsedMS >= a.limits.ElapsedMS:
		return false, execerrors.LimitTime
	case a.limits.Iterations > 0 && a.iterations >= a.limits.Iterations:
		return false, execerrors.LimitIterations
	default:
		return true, ""
	}
}

// Snapshot returns the account's current counters without mutating them.
// Counters are monotonically non-decreasing within an Account's lifetime
// (spec §8 property 9).
func (a *Account) Snapshot() (costCents float64, elapsedMS int64, iterations int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.costCents, time.Since(a.start).Milliseconds(), a.iterations
}
