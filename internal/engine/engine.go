// Package engine implements the Execution Engine component (spec §4.6): it
// drives a Pipeline to a Value, dispatching each stage to a control-flow
// operator or a registered handler, resolving aliases, and enforcing the
// budget and depth guards that bound a request.
package engine

import (
	"strconv"
	"strings"

	execerrors "github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/operators"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/registry"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/value"
)

// Engine implements runctx.Runner.
type Engine struct {
	Registry runctx.Registry
	Store    store.Store
}

// New constructs an Engine bound to the given registry and store.
func New(reg runctx.Registry, st store.Store) *Engine {
	return &Engine{Registry: reg, Store: st}
}

// Run reduces p to a single Value, per spec §4.6's dispatch loop. It never
// returns a non-nil error: every failure mode spec §7 names is converted to
// an error Value so that try/catch and the HTTP front-end see a uniform
// result.
func (e *Engine) Run(ec *runctx.ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error) {
	if ec.Runner == nil {
		ec.Runner = e
	}
	for {
		if err := ec.Ctx.Err(); err != nil {
			return errValue(execerrors.ErrCancelled), nil
		}

		if len(p) == 0 {
			return input, nil
		}

		if errVal, hit := e.checkBudget(ec); hit {
			return errVal, nil
		}

		seg := p[0]
		rest := p[1:]

		switch seg {
		case pathparser.KeywordIf:
			child, ok := ec.Child()
			if !ok {
				return errValue(execerrors.ErrDepthExceeded), nil
			}
			return operators.If(child, e, rest, input)

		case pathparser.KeywordDo:
			child, ok := ec.Child()
			if !ok {
				return errValue(execerrors.ErrDepthExceeded), nil
			}
			return operators.Do(child, e, rest, input)

		case pathparser.KeywordTry:
			child, ok := ec.Child()
			if !ok {
				return errValue(execerrors.ErrDepthExceeded), nil
			}
			return operators.Try(child, e, rest, input)
		}

		if h, ok := e.Registry.Lookup(string(seg)); ok {
			if err := registry.Authorize(h, ec.ReadOnly); err != nil {
				return errValue(err.(*execerrors.ExecutorError)), nil
			}

			e.chargeHandlerCost(ec, string(seg), input)

			out, remaining, err := h.Invoke(ec, rest, input)
			if err != nil {
				out = errValue(execerrors.Wrap(execerrors.ErrInternal, err))
			}

			p = remaining
			input = out
			continue
		}

		if resolved, err := e.Store.Resolve(ec.Ctx, store.KindAlias, string(seg)); err == nil {
			ok, _ := ec.Req.BumpAlias(runctx.MaxAliasSubstitutions)
			if !ok {
				return errValue(execerrors.ErrAliasCycle), nil
			}

			expansion, expErr := e.expand(ec, resolved)
			if expErr != nil {
				return errValue(execerrors.Wrap(execerrors.ErrInternal, expErr)), nil
			}

			p = append(append(pathparser.Pipeline{}, expansion...), rest...)
			continue
		}

		return errValue(execerrors.ErrNotFound), nil
	}
}

// expand turns a resolved alias entity into the Pipeline it stands for: an
// inline string is parsed directly as a path, a CID-backed alias is first
// fetched from the Store.
func (e *Engine) expand(ec *runctx.ExecutionContext, r store.Resolved) (pathparser.Pipeline, error) {
	if r.IsInline {
		return pathparser.Parse(r.Inline), nil
	}
	data, err := e.Store.Get(ec.Ctx, r.CID)
	if err != nil {
		return nil, err
	}
	return pathparser.Parse(string(data)), nil
}

// checkBudget performs the zero-cost limit check spec §4.6 requires before
// every stage, against both the scope currently in effect (ec.Budget — the
// whole request at the top level, or a do loop's own account inside one)
// and, when those differ, the aggregate request budget (spec §3: "aggregate
// cost and time apply to the whole request too").
func (e *Engine) checkBudget(ec *runctx.ExecutionContext) (value.Value, bool) {
	if ec.Req != nil && ec.Req.RequestBudget != nil {
		if ok, _ := ec.Req.RequestBudget.Charge(0, 0); !ok {
			return errValue(execerrors.ErrLimitExceeded), true
		}
	}
	if ec.Budget != nil && ec.Budget != ec.Req.RequestBudget {
		if ok, _ := ec.Budget.Charge(0, 0); !ok {
			return errValue(execerrors.ErrLimitExceeded), true
		}
	}
	return value.Value{}, false
}

// chargeHandlerCost asks the registered cost_estimate handler (spec §4.5:
// "itself a handler, named cost_estimate") how much invoking handlerName
// against input is expected to cost, and charges both the active and
// aggregate budgets. A missing cost_estimate handler, or one whose output
// does not parse as a decimal, costs nothing — the engine never hard-codes
// a cost model.
func (e *Engine) chargeHandlerCost(ec *runctx.ExecutionContext, handlerName string, input value.Value) {
	estimator, ok := e.Registry.Lookup("cost_estimate")
	if !ok {
		return
	}
	out, _, err := estimator.Invoke(ec, pathparser.Pipeline{pathparser.Segment(handlerName)}, input)
	if err != nil {
		return
	}
	cents, perr := strconv.ParseFloat(strings.TrimSpace(string(out.Output)), 64)
	if perr != nil {
		return
	}
	if ec.Budget != nil {
		ec.Budget.Charge(cents, 0)
	}
	if ec.Req != nil && ec.Req.RequestBudget != nil && ec.Req.RequestBudget != ec.Budget {
		ec.Req.RequestBudget.Charge(cents, 0)
	}
}

func errValue(err *execerrors.ExecutorError) value.Value {
	return value.Text(err.Message, "text/plain; charset=utf-8", err.Status)
}
