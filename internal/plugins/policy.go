package plugins

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// policyMaxSteps bounds a policy hook's execution, the same guard the
// teacher's workflow expression evaluator applies to untrusted starlark.
const policyMaxSteps = 10000

// evaluatePolicyHook runs a starlark boolean expression against params,
// exposed to the expression as the global `params`. A non-bool result is
// coerced via starlark truthiness, matching how condition expressions are
// evaluated elsewhere in the stack.
func evaluatePolicyHook(expression string, params map[string]interface{}) (bool, error) {
	thread := &starlark.Thread{Name: "plugin-policy"}
	thread.SetMaxExecutionSteps(policyMaxSteps)

	globals := starlark.StringDict{
		"params": goToStarlark(params),
	}

	fileOpts := syntax.FileOptions{}
	expr, err := fileOpts.ParseExpr("policy", expression, 0)
	if err != nil {
		return false, fmt.Errorf("parse policy hook: %w", err)
	}

	result, err := starlark.EvalExprOptions(&fileOpts, thread, expr, globals)
	if err != nil {
		return false, fmt.Errorf("evaluate policy hook: %w", err)
	}
	return result.Truth() == starlark.True, nil
}

func goToStarlark(v interface{}) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int:
		return starlark.MakeInt(val)
	case int64:
		return starlark.MakeInt64(val)
	case float64:
		return starlark.Float(val)
	case string:
		return starlark.String(val)
	case []interface{}:
		elems := make([]starlark.Value, len(val))
		for i, elem := range val {
			elems[i] = goToStarlark(elem)
		}
		return starlark.NewList(elems)
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, elem := range val {
			_ = dict.SetKey(starlark.String(k), goToStarlark(elem))
		}
		return dict
	default:
		return starlark.String(fmt.Sprintf("%v", val))
	}
}
