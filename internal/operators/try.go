package operators

import (
	"strconv"

	execerrors "github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/value"
)

// Try implements spec §4.7.3. Exceptions raised by try-path handlers are
// already converted to synthetic 500-status Values by the engine before
// Try ever sees them, so "catching exceptions" here reduces to inspecting
// the resulting Value's status. A result's X-Error-Type is reported as
// "exception" when its status is exactly 500 (the engine's catch-all for a
// handler that returned a Go error) and "status" for every other error
// status a handler or gateway returned deliberately.
func Try(ec *runctx.ExecutionContext, runner runctx.Runner, p pathparser.Pipeline, input value.Value) (value.Value, error) {
	tryPath, catchPath, foundCatch := pathparser.SplitBalanced(p, pathparser.KeywordTry, pathparser.KeywordCatch)

	result, err := runner.Run(ec, tryPath, input)
	if err != nil {
		return result, err
	}

	if !foundCatch || !result.IsError() {
		return result, nil
	}

	errType := "status"
	if result.EffectiveStatus() == 500 {
		errType = "exception"
	}

	headers := value.NewHeader()
	if ec.Req != nil && ec.Req.RequestHeaders != nil {
		headers = ec.Req.RequestHeaders.Clone()
	}
	headers.Set("X-Error-Message", truncate(result.String(), 500))
	headers.Set("X-Error-Status", strconv.Itoa(result.EffectiveStatus()))
	headers.Set("X-Error-Type", errType)

	catchEc, ok := ec.Child()
	if !ok {
		return errValue(execerrors.ErrDepthExceeded), nil
	}
	catchEc.Req = cloneRequestWithHeaders(ec.Req, headers)
	catchEc = catchEc.WithErrorContext(&runctx.ErrorContext{
		Message: truncate(result.String(), 500),
		Status:  strconv.Itoa(result.EffectiveStatus()),
		Type:    errType,
	})

	return runner.Run(catchEc, catchPath, input)
}

// cloneRequestWithHeaders returns a shallow copy of req with RequestHeaders
// replaced, so injecting X-Error-* for one catch-path never mutates
// sibling scopes' view of the request.
func cloneRequestWithHeaders(req *runctx.Request, headers *value.Header) *runctx.Request {
	if req == nil {
		return nil
	}
	clone := *req
	clone.RequestHeaders = headers
	return &clone
}
