// Package operators implements the three control-flow operators (spec
// §4.7): if/then/else, do/while, and try/catch. Each calls back into the
// engine only through runctx.Runner and uses pathparser for the balanced
// scan, so this package never imports the engine, and the engine package —
// which dispatches into these functions — can import it without creating a
// cycle.
package operators

import (
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/value"
)

// If implements spec §4.7.1. p is everything after the leading "if"
// segment; ec has already had its depth incremented for this descent.
func If(ec *runctx.ExecutionContext, runner runctx.Runner, p pathparser.Pipeline, input value.Value) (value.Value, error) {
	testPath, afterThen, foundThen := pathparser.SplitBalanced(p, pathparser.KeywordIf, pathparser.KeywordThen)
	if !foundThen {
		// Identity form: /if/P with no matching then.
		return runner.Run(ec, p, input)
	}

	truePath, falsePath, foundElse := pathparser.SplitBalanced(afterThen, pathparser.KeywordIf, pathparser.KeywordElse)
	if !foundElse {
		truePath = afterThen
		falsePath = nil
	}

	test, err := runner.Run(ec, testPath, input)
	if err != nil {
		return test, err
	}

	if test.Truthy() {
		return runner.Run(ec, truePath, input)
	}
	if falsePath != nil {
		return runner.Run(ec, falsePath, input)
	}
	return test, nil
}
