// Package toolexec implements the LangGraph-style 4-phase pipeline:
// analyze & select, plan, execute, synthesize (spec §4.6).
package toolexec

import (
	"fmt"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/model"
)

// Resolve substitutes each StepRef parameter with the literal result
// recorded for that step number, leaving Literal parameters untouched.
// Dangling references (no recorded output for the referenced step) fail
// with ToolExecutionFailed rather than silently passing the ref through.
//
// Resolve is a fixed point: running it again on its own output (now
// built entirely of Literal params) returns the same values.
func Resolve(params map[string]model.Param, stepOutputs map[int]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for key, p := range params {
		switch v := p.(type) {
		case model.Literal:
			out[key] = v.Value
		case model.StepRef:
			result, ok := stepOutputs[v.N]
			if !ok {
				return nil, errs.New(errs.ToolExecutionFailed, fmt.Sprintf("parameter %q references output of step %d, which has no recorded result", key, v.N), nil)
			}
			out[key] = result
		default:
			return nil, errs.New(errs.ToolExecutionFailed, fmt.Sprintf("parameter %q has an unrecognized binding type", key), nil)
		}
	}
	return out, nil
}

// ResolveAgain re-resolves an already-resolved parameter map (all
// Literal) for idempotence tests: wrapping every value back into a
// Literal and resolving again must be a no-op.
func ResolveAgain(resolved map[string]any) (map[string]any, error) {
	wrapped := make(map[string]model.Param, len(resolved))
	for k, v := range resolved {
		wrapped[k] = model.Literal{Value: v}
	}
	return Resolve(wrapped, nil)
}
