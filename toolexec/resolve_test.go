package toolexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/model"
)

func TestResolve_SubstitutesLiteralAndStepRef(t *testing.T) {
	params := map[string]model.Param{
		"limit": model.Literal{Value: 10},
		"rows":  model.StepRef{N: 1},
	}
	stepOutputs := map[int]any{1: []int{1, 2, 3}}

	resolved, err := Resolve(params, stepOutputs)
	require.NoError(t, err)
	assert.Equal(t, 10, resolved["limit"])
	assert.Equal(t, []int{1, 2, 3}, resolved["rows"])
}

func TestResolve_DanglingStepRefFails(t *testing.T) {
	params := map[string]model.Param{"rows": model.StepRef{N: 99}}

	_, err := Resolve(params, map[int]any{})
	require.Error(t, err)
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.ToolExecutionFailed, gerr.Kind)
}

func TestResolve_IsFixedPointOverItsOwnOutput(t *testing.T) {
	params := map[string]model.Param{
		"a": model.Literal{Value: "x"},
		"b": model.StepRef{N: 1},
	}
	stepOutputs := map[int]any{1: "y"}

	first, err := Resolve(params, stepOutputs)
	require.NoError(t, err)

	second, err := ResolveAgain(first)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
