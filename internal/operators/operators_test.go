package operators

import (
	"context"
	"testing"

	"github.com/jgavinray/urlexec/internal/budget"
	execerrors "github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/store/memstore"
	"github.com/jgavinray/urlexec/internal/value"
)

// echoRunner is a stand-in for the engine: it joins whatever pipeline it
// receives (dropping a leading "echo") into the resulting Value's body, so
// operator tests don't need a real registry. A "notfound" or "fail500"
// segment anywhere in the pipeline sets the result status accordingly.
type echoRunner struct {
	calls int
}

func (r *echoRunner) Run(ec *runctx.ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error) {
	r.calls++
	if len(p) == 0 {
		return input, nil
	}

	rest := p
	if p[0] == "echo" {
		rest = p[1:]
	}
	body := rest.String()
	if len(body) > 0 {
		body = body[1:]
	}

	status := 200
	for _, seg := range p {
		switch seg {
		case "notfound":
			status = 404
		case "fail500":
			status = 500
		}
	}
	return value.Text(body, "text/plain; charset=utf-8", status), nil
}

func newTestEC() *runctx.ExecutionContext {
	req := runctx.NewRequest("GET", "/", "", value.NewHeader(), nil, budget.New(budget.Limits{}))
	return &runctx.ExecutionContext{
		Ctx:        context.Background(),
		Req:        req,
		Budget:     req.RequestBudget,
		Store:      memstore.New(),
		DepthLimit: runctx.MaxDepth,
	}
}

func TestIfTruePath(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	// if/true/then/yes/else/no  -> test "true" is truthy -> "yes"
	got, err := If(ec, runner, pathparser.Pipeline{"true", "then", "yes", "else", "no"}, value.Value{})
	if err != nil {
		t.Fatalf("If: %v", err)
	}
	if got.String() != "yes" {
		t.Errorf("If() = %q, want %q", got.String(), "yes")
	}
}

func TestIfFalsePath(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := If(ec, runner, pathparser.Pipeline{"false", "then", "yes", "else", "no"}, value.Value{})
	if err != nil {
		t.Fatalf("If: %v", err)
	}
	if got.String() != "no" {
		t.Errorf("If() = %q, want %q", got.String(), "no")
	}
}

func TestIfNoElseReturnsTestValue(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := If(ec, runner, pathparser.Pipeline{"null", "then", "yes"}, value.Value{})
	if err != nil {
		t.Fatalf("If: %v", err)
	}
	if got.String() != "null" {
		t.Errorf("If() = %q, want %q (the falsy test value itself)", got.String(), "null")
	}
}

func TestIfIdentityFormWithNoThen(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := If(ec, runner, pathparser.Pipeline{"echo", "hi"}, value.Value{})
	if err != nil {
		t.Fatalf("If: %v", err)
	}
	if got.String() != "hi" {
		t.Errorf("If() identity = %q, want %q", got.String(), "hi")
	}
}

func TestIfNestedDepthInTestPath(t *testing.T) {
	t.Parallel()

	// if/if/x/then/y/then/A/else/B
	// nested if's own "then" doesn't terminate the outer test-path scan.
	p := pathparser.Pipeline{"if", "x", "then", "y", "then", "A", "else", "B"}
	testPath, afterThen, found := pathparser.SplitBalanced(p, pathparser.KeywordIf, pathparser.KeywordThen)
	if !found {
		t.Fatal("expected to find outer then")
	}
	if testPath.String() != "/if/x/then/y" {
		t.Errorf("testPath = %q, want /if/x/then/y", testPath.String())
	}
	if afterThen.String() != "/A/else/B" {
		t.Errorf("afterThen = %q, want /A/else/B", afterThen.String())
	}
}

func TestDoTerminatesOnIterations(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := Do(ec, runner, pathparser.Pipeline{"x", "while", "true"}, value.Value{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	kind, ok := got.Headers.Get("X-Loop-Terminated")
	if !ok || kind != string(execerrors.LimitIterations) {
		t.Errorf("X-Loop-Terminated = %q, %v, want %q", kind, ok, execerrors.LimitIterations)
	}
	if len(got.Output) != len("x")*budget.DefaultDoLoopLimits.Iterations {
		t.Errorf("accumulated output length = %d, want %d iterations worth", len(got.Output), budget.DefaultDoLoopLimits.Iterations)
	}
}

func TestDoStopsOnFalsyTest(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := Do(ec, runner, pathparser.Pipeline{"x", "while", "false"}, value.Value{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if _, ok := got.Headers.Get("X-Loop-Terminated"); ok {
		t.Errorf("X-Loop-Terminated set on a loop that stopped via falsy test")
	}
	if got.String() != "x" {
		t.Errorf("Do() = %q, want a single iteration's worth of output %q", got.String(), "x")
	}
}

func TestDoIdentityFormWithNoWhile(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := Do(ec, runner, pathparser.Pipeline{"echo", "hi"}, value.Value{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got.String() != "hi" {
		t.Errorf("Do() identity = %q, want %q", got.String(), "hi")
	}
}

func TestDoImplicitTestReadsStoreVariable(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()
	mem := ec.Store.(*memstore.Store)
	mem.SeedEntityInline(store.KindVariable, "max_do_while", "false")

	got, err := Do(ec, runner, pathparser.Pipeline{"x", "while"}, value.Value{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got.String() != "x" {
		t.Errorf("Do() with implicit false test = %q, want a single iteration %q", got.String(), "x")
	}
}

func TestTryNoCatchReturnsValueAsIs(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := Try(ec, runner, pathparser.Pipeline{"notfound"}, value.Value{})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got.EffectiveStatus() != 404 {
		t.Errorf("Try() status = %d, want 404 (no catch-path means return as-is)", got.EffectiveStatus())
	}
}

func TestTryCatchRunsOnError(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := Try(ec, runner, pathparser.Pipeline{"notfound", "catch", "caught"}, value.Value{})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got.String() != "caught" {
		t.Errorf("Try() = %q, want %q", got.String(), "caught")
	}
}

func TestTryCatchNotInvokedOnSuccess(t *testing.T) {
	t.Parallel()
	runner := &echoRunner{}
	ec := newTestEC()

	got, err := Try(ec, runner, pathparser.Pipeline{"ok", "catch", "caught"}, value.Value{})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got.String() != "ok" {
		t.Errorf("Try() = %q, want %q (catch-path should not run on success)", got.String(), "ok")
	}
}

func TestTryInjectsErrorHeadersForCatchPath(t *testing.T) {
	t.Parallel()
	ec := newTestEC()

	var seenStatus, seenType string
	capture := runnerFunc(func(ec *runctx.ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error) {
		if len(p) == 1 && p[0] == "notfound" {
			return value.Text("", "text/plain", 404), nil
		}
		seenStatus, _ = ec.Req.RequestHeaders.Get("X-Error-Status")
		seenType, _ = ec.Req.RequestHeaders.Get("X-Error-Type")
		return value.Text("caught", "text/plain", 200), nil
	})

	_, err := Try(ec, capture, pathparser.Pipeline{"notfound", "catch", "caught"}, value.Value{})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if seenStatus != "404" {
		t.Errorf("X-Error-Status = %q, want 404", seenStatus)
	}
	if seenType != "status" {
		t.Errorf("X-Error-Type = %q, want status", seenType)
	}
}

// runnerFunc adapts a plain function to runctx.Runner.
type runnerFunc func(ec *runctx.ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error)

func (f runnerFunc) Run(ec *runctx.ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error) {
	return f(ec, p, input)
}
