// Package handlers provides the example handler set spec §4.14 names: the
// small library of side-effect-classified Handlers that exercise the
// engine end to end (echo, upper, cat, cost_estimate), grounded in the
// teacher's tool set (internal/tools/tool_executor.go) the way a registered
// handler corresponds to a registered tool there.
package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/value"
)

// Echo is a pure handler: it consumes exactly one remaining segment and
// returns it verbatim as plain text. /echo/hello -> "hello".
type Echo struct{}

func (Echo) Invoke(_ *runctx.ExecutionContext, remaining pathparser.Pipeline, _ value.Value) (value.Value, pathparser.Pipeline, error) {
	if len(remaining) == 0 {
		return value.Text("", "text/plain; charset=utf-8", 200), remaining, nil
	}
	return value.Text(string(remaining[0]), "text/plain; charset=utf-8", 200), remaining[1:], nil
}

func (Echo) SideEffect() runctx.SideEffectClass { return runctx.SideEffectPure }

// Upper is a pure transform handler: it takes no literal argument segment;
// instead it recursively runs the whole remaining pipeline through
// ec.Runner (consuming all of it), then upper-cases the resulting Value's
// output. It demonstrates
// a handler whose argument is "the rest of the program" rather than a
// literal segment.
type Upper struct{}

func (Upper) Invoke(ec *runctx.ExecutionContext, remaining pathparser.Pipeline, in value.Value) (value.Value, pathparser.Pipeline, error) {
	out, err := ec.Runner.Run(ec, remaining, in)
	if err != nil {
		return out, nil, err
	}
	out.Output = toUpperASCII(out.Output)
	return out, nil, nil
}

func (Upper) SideEffect() runctx.SideEffectClass { return runctx.SideEffectPure }

func toUpperASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// Cat is a reads-class handler: it concatenates the blobs addressed by each
// remaining segment, treating the whole rest of the pipeline as a list of
// CIDs rather than a sub-pipeline. /cat/<cid1>/<cid2> -> the two blobs'
// bytes joined with no separator.
type Cat struct {
	Store store.Store
}

func (c Cat) Invoke(ec *runctx.ExecutionContext, remaining pathparser.Pipeline, _ value.Value) (value.Value, pathparser.Pipeline, error) {
	var b strings.Builder
	for _, seg := range remaining {
		data, err := c.Store.Get(ctxOrBackground(ec), store.CID(seg))
		if err != nil {
			return value.Text("cid not found: "+string(seg), "text/plain; charset=utf-8", 404), nil, nil
		}
		b.Write(data)
	}
	return value.Text(b.String(), "application/octet-stream", 200), nil, nil
}

func (Cat) SideEffect() runctx.SideEffectClass { return runctx.SideEffectReads }

func ctxOrBackground(ec *runctx.ExecutionContext) context.Context {
	if ec.Ctx != nil {
		return ec.Ctx
	}
	return context.Background()
}

// CostEstimate is the pluggable cost estimator the engine's
// chargeHandlerCost calls before invoking any other handler (spec §4.5). It
// is itself a pure handler invoked with the target handler's name as its
// single segment, and returns a decimal number of cents as plain text. This
// minimal model charges a flat 0.001 cents per invocation plus
// 0.0001 cents per byte of the input Value, which is enough to make
// do/while's cost ceiling (spec §4.7.2, scenario S4) reachable without a
// real billing system behind it.
type CostEstimate struct{}

func (CostEstimate) Invoke(_ *runctx.ExecutionContext, remaining pathparser.Pipeline, in value.Value) (value.Value, pathparser.Pipeline, error) {
	cents := 0.001 + float64(len(in.Output))*0.0001
	return value.Text(strconv.FormatFloat(cents, 'f', -1, 64), "text/plain; charset=utf-8", 200), remaining, nil
}

func (CostEstimate) SideEffect() runctx.SideEffectClass { return runctx.SideEffectPure }

// Writer is a writes-class handler: it puts its single remaining segment's
// bytes into the Store and returns the resulting CID. Exercises the
// read-only-mode rejection path (spec §4.4) alongside Echo/Upper/Cat/
// CostEstimate's non-writes classes.
type Writer struct {
	Store store.Store
}

func (w Writer) Invoke(ec *runctx.ExecutionContext, remaining pathparser.Pipeline, _ value.Value) (value.Value, pathparser.Pipeline, error) {
	if len(remaining) == 0 {
		return value.Text("write requires a body segment", "text/plain; charset=utf-8", 400), nil, nil
	}
	cid, err := w.Store.Put(ctxOrBackground(ec), []byte(remaining[0]))
	if err != nil {
		return value.Text(err.Error(), "text/plain; charset=utf-8", 500), nil, err
	}
	return value.Text(string(cid), "text/plain; charset=utf-8", 200), remaining[1:], nil
}

func (Writer) SideEffect() runctx.SideEffectClass { return runctx.SideEffectWrites }

// Register adds every handler in this package to reg, wiring Cat and Writer
// to st for their Store-backed reads/writes.
func Register(reg interface{ Register(name string, h runctx.Handler) }, st store.Store) {
	reg.Register("echo", Echo{})
	reg.Register("upper", Upper{})
	reg.Register("cat", Cat{Store: st})
	reg.Register("cost_estimate", CostEstimate{})
	reg.Register("write", Writer{Store: st})
}
