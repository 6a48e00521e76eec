// Package runctx defines the types shared between the execution engine,
// the control-flow operators, and the handler registry — ExecutionContext,
// Handler, and Registry — in a leaf package so that internal/engine and
// internal/operators can depend on them without depending on each other.
// internal/engine implements Runner; internal/operators calls back into it
// to execute sub-pipelines, which is how if/do/try recurse into the engine
// without an import cycle.
package runctx

import (
	"context"

	"github.com/jgavinray/urlexec/internal/budget"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/value"
)

// MaxDepth is the default operator-nesting ceiling from spec §3 ("a depth
// counter (nesting of operators); max 32").
const MaxDepth = 32

// MaxAliasSubstitutions is the default alias-cycle guard from spec §4.6
// ("substitute the alias's expansion into the pipeline and restart
// dispatch (guard with a 16-substitution limit)").
const MaxAliasSubstitutions = 16

// Request carries the fields that are fixed for the lifetime of one HTTP
// request and shared, by pointer, across every ExecutionContext derived
// from it (alias count and the aggregate request budget must be seen by
// every nested scope; spec §4.6, §8 property 9).
type Request struct {
	Method         string
	Path           string
	Query          string
	RequestHeaders *value.Header
	Body           []byte

	// RequestBudget enforces the aggregate cost/time ceiling across the
	// whole request (spec §3: "aggregate cost and time apply to the whole
	// request too"), independent of any per-do-loop budget in scope.
	RequestBudget *budget.Account

	// aliasSubstitutions counts alias expansions performed anywhere in
	// this request's dispatch tree (spec §4.6's 16-substitution guard).
	aliasSubstitutions *int
}

// NewRequest constructs a Request with its aggregate budget and alias
// counter initialised.
func NewRequest(method, path, query string, headers *value.Header, body []byte, requestBudget *budget.Account) *Request {
	n := 0
	return &Request{
		Method:             method,
		Path:               path,
		Query:              query,
		RequestHeaders:     headers,
		Body:               body,
		RequestBudget:      requestBudget,
		aliasSubstitutions: &n,
	}
}

// BumpAlias increments the shared alias-substitution counter and reports
// whether it is still within MaxAliasSubstitutions.
func (r *Request) BumpAlias(limit int) (ok bool, count int) {
	*r.aliasSubstitutions++
	return *r.aliasSubstitutions <= limit, *r.aliasSubstitutions
}

// ExecutionContext is the per-stage, request-scoped context threaded
// through every pipeline stage (spec §3). It is passed by pointer but
// treated as copy-on-descend: operators and the engine derive a child by
// copying the struct and incrementing Depth, so a deeper scope's mutations
// (e.g. a narrower Budget during a do loop) never leak back to the parent.
type ExecutionContext struct {
	Ctx context.Context

	Req *Request

	// Budget governs the scope currently executing: the request budget at
	// the top level, or a fresh per-loop budget.Account while inside a
	// do/while body (spec §4.7.2).
	Budget *budget.Account

	ReadOnly bool

	Store    store.Store
	Registry Registry

	// Runner lets a Handler recursively execute a sub-pipeline over its own
	// remaining segments — e.g. a transform handler like "upper" that
	// consumes the rest of the pipeline, runs it, and post-processes the
	// result. The engine sets this to itself if the caller left it nil.
	Runner Runner

	Depth      int
	DepthLimit int

	// ErrorContext carries the X-Error-* values a try/catch operator
	// injects into the request headers seen by its catch-path (spec
	// §4.7.3). nil outside of a catch-path.
	ErrorContext *ErrorContext
}

// ErrorContext is injected into a catch-path's view of request headers.
type ErrorContext struct {
	Message string
	Status  string
	Type    string // "exception" or "status"
}

// Child returns a copy of ec with Depth incremented by one, for operators
// descending into a sub-pipeline. Returns ok=false without incrementing if
// that would exceed DepthLimit (spec §4.6 depth guard, §8 property 5/508).
func (ec *ExecutionContext) Child() (*ExecutionContext, bool) {
	if ec.Depth+1 > ec.DepthLimit {
		return ec, false
	}
	child := *ec
	child.Depth = ec.Depth + 1
	return &child, true
}

// WithBudget returns a copy of ec scoped to budget b — used by the do
// operator to run its body/test under a loop-local BudgetAccount.
func (ec *ExecutionContext) WithBudget(b *budget.Account) *ExecutionContext {
	child := *ec
	child.Budget = b
	return &child
}

// WithErrorContext returns a copy of ec carrying the given ErrorContext,
// for a try operator's catch-path.
func (ec *ExecutionContext) WithErrorContext(errCtx *ErrorContext) *ExecutionContext {
	child := *ec
	child.ErrorContext = errCtx
	return &child
}

// Handler is a named unit of computation consuming zero or more pipeline
// segments (spec §4.4). It decides how many of remaining it consumes and
// returns the unconsumed suffix for the engine to continue dispatching.
type Handler interface {
	// Invoke executes the handler against input, given whatever segments
	// remain in the pipeline after its name. It returns the produced
	// Value and the segments it did not consume.
	Invoke(ec *ExecutionContext, remaining pathparser.Pipeline, input value.Value) (out value.Value, unconsumed pathparser.Pipeline, err error)

	// SideEffect classifies the handler per spec §4.4: pure, reads,
	// writes, or external. The engine rejects "writes" handlers when
	// ec.ReadOnly is set.
	SideEffect() SideEffectClass
}

// SideEffectClass is one of the four handler side-effect classes (spec §4.4).
type SideEffectClass string

const (
	SideEffectPure     SideEffectClass = "pure"
	SideEffectReads    SideEffectClass = "reads"
	SideEffectWrites   SideEffectClass = "writes"
	SideEffectExternal SideEffectClass = "external"
)

// Registry looks up named handlers (spec §4.4).
type Registry interface {
	Lookup(name string) (Handler, bool)
}

// Runner executes a Pipeline against input and returns the resulting
// Value. internal/engine implements Runner; internal/operators depends
// only on this interface so it can recurse into the engine (for test-path,
// true-path, body-path, etc.) without importing internal/engine.
type Runner interface {
	Run(ec *ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error)
}
