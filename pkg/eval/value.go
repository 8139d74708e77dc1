// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package eval

import (
	"math"
	"strconv"
	"strings"
)

// typeName returns the Python-flavored type name used in evaluation error
// messages, so last_exception stays readable for API clients.
func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "dict"
	}
	return "object"
}

// Truthy reports whether a value is true under Python truthiness rules:
// nil, false, zero, the empty string, the empty list and the empty map
// are all falsy.
func Truthy(v interface{}) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	}
	return true
}

func asFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// equalValues implements ==. Mismatched types compare unequal instead of
// raising, like the source language.
func equalValues(a, b interface{}) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	switch a := a.(type) {
	case nil:
		return b == nil
	case bool:
		vb, ok := b.(bool)
		return ok && a == vb
	case string:
		vb, ok := b.(string)
		return ok && a == vb
	case []interface{}:
		vb, ok := b.([]interface{})
		if !ok || len(a) != len(vb) {
			return false
		}
		for i := range a {
			if !equalValues(a[i], vb[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		vb, ok := b.(map[string]interface{})
		if !ok || len(a) != len(vb) {
			return false
		}
		for k, av := range a {
			bv, ok := vb[k]
			if !ok || !equalValues(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// orderCompare implements < <= > >=. Numbers compare numerically, strings
// lexicographically; anything else is a per-record error.
func orderCompare(op string, a, b interface{}) (bool, error) {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch op {
			case "<":
				return fa < fb, nil
			case "<=":
				return fa <= fb, nil
			case ">":
				return fa > fb, nil
			case ">=":
				return fa >= fb, nil
			}
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch op {
			case "<":
				return sa < sb, nil
			case "<=":
				return sa <= sb, nil
			case ">":
				return sa > sb, nil
			case ">=":
				return sa >= sb, nil
			}
		}
	}
	return false, newEvalError("%q not supported between instances of %q and %q", op, typeName(a), typeName(b))
}

// contains implements "in": list membership or substring search.
func contains(item, container interface{}) (bool, error) {
	switch c := container.(type) {
	case []interface{}:
		for _, v := range c {
			if equalValues(item, v) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, newEvalError("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case map[string]interface{}:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	}
	return false, newEvalError("argument of type %q is not iterable", typeName(container))
}

func binaryOp(op string, a, b interface{}) (interface{}, error) {
	switch op {
	case "+":
		if ia, ok := a.(int64); ok {
			if ib, ok := b.(int64); ok {
				return ia + ib, nil
			}
		}
		if fa, ok := asFloat(a); ok {
			if fb, ok := asFloat(b); ok {
				return fa + fb, nil
			}
		}
		if sa, ok := a.(string); ok {
			if sb, ok := b.(string); ok {
				return sa + sb, nil
			}
		}
		if la, ok := a.([]interface{}); ok {
			if lb, ok := b.([]interface{}); ok {
				out := make([]interface{}, 0, len(la)+len(lb))
				out = append(out, la...)
				return append(out, lb...), nil
			}
		}
	case "-":
		if ia, ok := a.(int64); ok {
			if ib, ok := b.(int64); ok {
				return ia - ib, nil
			}
		}
		if fa, ok := asFloat(a); ok {
			if fb, ok := asFloat(b); ok {
				return fa - fb, nil
			}
		}
	case "*":
		if ia, ok := a.(int64); ok {
			if ib, ok := b.(int64); ok {
				return ia * ib, nil
			}
		}
		if fa, ok := asFloat(a); ok {
			if fb, ok := asFloat(b); ok {
				return fa * fb, nil
			}
		}
	case "/":
		// true division, always a float
		if fa, ok := asFloat(a); ok {
			if fb, ok := asFloat(b); ok {
				if fb == 0 {
					return nil, newEvalError("division by zero")
				}
				return fa / fb, nil
			}
		}
	case "%":
		if ia, ok := a.(int64); ok {
			if ib, ok := b.(int64); ok {
				if ib == 0 {
					return nil, newEvalError("integer division or modulo by zero")
				}
				return ia % ib, nil
			}
		}
		if fa, ok := asFloat(a); ok {
			if fb, ok := asFloat(b); ok {
				if fb == 0 {
					return nil, newEvalError("float modulo by zero")
				}
				return math.Mod(fa, fb), nil
			}
		}
	}
	return nil, newEvalError("unsupported operand type(s) for %s: %q and %q", op, typeName(a), typeName(b))
}

func negate(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case int64:
		return -v, nil
	case float64:
		return -v, nil
	}
	return nil, newEvalError("bad operand type for unary -: %q", typeName(v))
}

// callFunction dispatches whitelisted free functions.
func callFunction(name string, args []interface{}) (interface{}, error) {
	switch name {
	case "int":
		if len(args) != 1 {
			return nil, newEvalError("int() takes exactly one argument (%d given)", len(args))
		}
		switch v := args[0].(type) {
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, newEvalError("invalid literal for int(): %q", v)
			}
			return n, nil
		}
		return nil, newEvalError("int() argument must be a string or a number, not %q", typeName(args[0]))
	case "round":
		if len(args) != 1 {
			return nil, newEvalError("round() takes exactly one argument (%d given)", len(args))
		}
		switch v := args[0].(type) {
		case int64:
			return v, nil
		case float64:
			return int64(math.Round(v)), nil
		}
		return nil, newEvalError("round() argument must be a number, not %q", typeName(args[0]))
	}
	return nil, newEvalError("name %q is not defined", name)
}

// callAttribute dispatches whitelisted string methods.
func callAttribute(name string, recv interface{}, args []interface{}) (interface{}, error) {
	s, ok := recv.(string)
	if !ok {
		return nil, newEvalError("%q object has no attribute %q", typeName(recv), name)
	}

	switch name {
	case "upper", "lower":
		if len(args) != 0 {
			return nil, newEvalError("%s() takes no arguments (%d given)", name, len(args))
		}
		if name == "upper" {
			return strings.ToUpper(s), nil
		}
		return strings.ToLower(s), nil
	case "startswith", "endswith":
		if len(args) != 1 {
			return nil, newEvalError("%s() takes exactly one argument (%d given)", name, len(args))
		}
		prefix, ok := args[0].(string)
		if !ok {
			return nil, newEvalError("%s argument must be a string, not %q", name, typeName(args[0]))
		}
		if name == "startswith" {
			return strings.HasPrefix(s, prefix), nil
		}
		return strings.HasSuffix(s, prefix), nil
	}
	return nil, newEvalError("%q object has no attribute %q", typeName(recv), name)
}
