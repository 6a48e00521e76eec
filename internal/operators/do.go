package operators

import (
	"github.com/jgavinray/urlexec/internal/budget"
	execerrors "github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/value"
)

// maxDoWhileVariable is the name of the store Variable read when a do loop
// omits its test-path (spec §4.7.2).
const maxDoWhileVariable = "max_do_while"

// Do implements spec §4.7.2: a bounded loop with its own per-instance
// BudgetAccount, concatenating body output byte-for-byte and reporting
// which limit (if any) ended the loop via X-Loop-Terminated.
func Do(ec *runctx.ExecutionContext, runner runctx.Runner, p pathparser.Pipeline, input value.Value) (value.Value, error) {
	bodyPath, testPath, foundWhile := pathparser.SplitBalanced(p, pathparser.KeywordDo, pathparser.KeywordWhile)
	if !foundWhile {
		// Identity form: /do/P with no matching while.
		return runner.Run(ec, p, input)
	}

	limits := budget.DefaultDoLoopLimits
	loopBudget := budget.New(limits)
	loopEc := ec.WithBudget(loopBudget)

	accumulated := value.Text("", "text/plain; charset=utf-8", 200)

	for {
		if err := ec.Ctx.Err(); err != nil {
			return errValue(execerrors.ErrCancelled), nil
		}
		if ok, kind := loopBudget.Charge(0, 0); !ok {
			return terminated(accumulated, kind), nil
		}

		bodyValue, err := runner.Run(loopEc, bodyPath, input)
		if err != nil {
			return bodyValue, err
		}
		accumulated.Output = append(accumulated.Output, bodyValue.Output...)
		accumulated.ContentType = bodyValue.ContentType

		loopBudget.Charge(0, 1)
		cost, elapsed, iterations := loopBudget.Snapshot()

		switch {
		case iterations >= limits.Iterations:
			return terminated(accumulated, execerrors.LimitIterations), nil
		case elapsed >= limits.ElapsedMS:
			return terminated(accumulated, execerrors.LimitTime), nil
		case cost >= limits.CostCents:
			return terminated(accumulated, execerrors.LimitCost), nil
		}

		test, terr := evalTest(loopEc, runner, testPath, input)
		if terr != nil {
			return test, terr
		}
		if test.Falsy() {
			break
		}
	}
	return accumulated, nil
}

// evalTest runs testPath if present, or else reads the implicit
// max_do_while variable from the Store (re-read on every call, per spec
// §9's resolution of the "re-read every iteration" open question).
func evalTest(ec *runctx.ExecutionContext, runner runctx.Runner, testPath pathparser.Pipeline, input value.Value) (value.Value, error) {
	if len(testPath) > 0 {
		return runner.Run(ec, testPath, input)
	}

	resolved, err := ec.Store.Resolve(ec.Ctx, store.KindVariable, maxDoWhileVariable)
	if err != nil {
		return value.Text("", "text/plain; charset=utf-8", 200), nil
	}
	if resolved.IsInline {
		return value.Text(resolved.Inline, "text/plain; charset=utf-8", 200), nil
	}
	data, err := ec.Store.Get(ec.Ctx, resolved.CID)
	if err != nil {
		return value.Text("", "text/plain; charset=utf-8", 200), nil
	}
	return value.Text(string(data), "text/plain; charset=utf-8", 200), nil
}

func terminated(v value.Value, kind execerrors.LimitKind) value.Value {
	h := v.Headers.Clone()
	h.Set("X-Loop-Terminated", string(kind))
	return v.WithHeaders(h)
}

// used by try.go and do.go alike; kept here to avoid a third tiny file.
func errValue(err *execerrors.ExecutorError) value.Value {
	return value.Text(err.Message, "text/plain; charset=utf-8", err.Status)
}

// truncate mirrors strings.TrimSpace-free byte truncation to n bytes,
// used by try.go when building X-Error-Message from a body this large.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
