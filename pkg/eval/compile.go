// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package eval compiles user-supplied filter expressions into reusable
// closure trees and evaluates them against a record binding. A Model
// whitelists the node kinds, attributes and functions an expression may
// use; everything else is rejected at compile time, so evaluation can
// never reach host functionality.
package eval

import (
	"strings"

	"github.com/alecthomas/participle/lexer"
)

// Context carries the per-record variable binding during evaluation.
type Context struct {
	Fields map[string]interface{}
}

type evalFnc func(ctx *Context) (interface{}, error)

// CompiledExpr is a validated, reusable representation of a user
// expression. It is immutable after Compile and safe for concurrent use.
type CompiledExpr struct {
	src  string
	eval evalFnc
}

// Source returns the original expression text.
func (c *CompiledExpr) Source() string {
	return c.src
}

// Eval evaluates the compiled expression with the given record as the
// variable binding. A returned error is an *EvalError: a per-record
// failure, not a fault of the expression itself.
func (c *CompiledExpr) Eval(fields map[string]interface{}) (interface{}, error) {
	return c.eval(&Context{Fields: fields})
}

// Compile parses src, validates every node against the model and builds
// the closure tree. It is called once per request (or once per stored
// named search) and the result is reused across all records.
func Compile(src string, model *Model) (*CompiledExpr, error) {
	astExpr, err := parseExpression(src)
	if err != nil {
		if perr, ok := err.(interface{ Position() lexer.Position }); ok {
			return nil, NewCompileError(perr.Position(), "syntax error: %s", err)
		}
		return nil, NewCompileError(lexer.Position{}, "syntax error: %s", err)
	}

	fnc, _, err := nodeToEvaluator(astExpr, model)
	if err != nil {
		return nil, err
	}

	return &CompiledExpr{src: src, eval: fnc}, nil
}

func checkNode(model *Model, kind string, pos lexer.Position) error {
	if !model.Nodes[kind] {
		return NewNodeDeniedError(pos, kind)
	}
	return nil
}

func constantEvaluator(v interface{}) evalFnc {
	return func(ctx *Context) (interface{}, error) {
		return v, nil
	}
}

func nodeToEvaluator(obj interface{}, model *Model) (evalFnc, lexer.Position, error) {
	switch obj := obj.(type) {
	case *Expression:
		left, pos, err := nodeToEvaluator(obj.Left, model)
		if err != nil {
			return nil, pos, err
		}
		if len(obj.Right) == 0 {
			return left, obj.Pos, nil
		}
		if err := checkNode(model, NodeBoolOp, obj.Pos); err != nil {
			return nil, obj.Pos, err
		}
		rights := make([]evalFnc, 0, len(obj.Right))
		for _, node := range obj.Right {
			next, pos, err := nodeToEvaluator(node, model)
			if err != nil {
				return nil, pos, err
			}
			rights = append(rights, next)
		}
		// "or" returns the first truthy operand, else the last one
		return func(ctx *Context) (interface{}, error) {
			v, err := left(ctx)
			if err != nil {
				return nil, err
			}
			for _, next := range rights {
				if Truthy(v) {
					return v, nil
				}
				if v, err = next(ctx); err != nil {
					return nil, err
				}
			}
			return v, nil
		}, obj.Pos, nil

	case *AndExpression:
		left, pos, err := nodeToEvaluator(obj.Left, model)
		if err != nil {
			return nil, pos, err
		}
		if len(obj.Right) == 0 {
			return left, obj.Pos, nil
		}
		if err := checkNode(model, NodeBoolOp, obj.Pos); err != nil {
			return nil, obj.Pos, err
		}
		rights := make([]evalFnc, 0, len(obj.Right))
		for _, node := range obj.Right {
			next, pos, err := nodeToEvaluator(node, model)
			if err != nil {
				return nil, pos, err
			}
			rights = append(rights, next)
		}
		// "and" returns the first falsy operand, else the last one
		return func(ctx *Context) (interface{}, error) {
			v, err := left(ctx)
			if err != nil {
				return nil, err
			}
			for _, next := range rights {
				if !Truthy(v) {
					return v, nil
				}
				if v, err = next(ctx); err != nil {
					return nil, err
				}
			}
			return v, nil
		}, obj.Pos, nil

	case *NotExpression:
		if obj.Not != nil {
			if err := checkNode(model, NodeUnaryOp, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			inner, pos, err := nodeToEvaluator(obj.Not, model)
			if err != nil {
				return nil, pos, err
			}
			return func(ctx *Context) (interface{}, error) {
				v, err := inner(ctx)
				if err != nil {
					return nil, err
				}
				return !Truthy(v), nil
			}, obj.Pos, nil
		}
		return nodeToEvaluator(obj.Comparison, model)

	case *Comparison:
		left, pos, err := nodeToEvaluator(obj.Left, model)
		if err != nil {
			return nil, pos, err
		}
		if len(obj.Ops) == 0 {
			return left, obj.Pos, nil
		}
		if err := checkNode(model, NodeCompare, obj.Pos); err != nil {
			return nil, obj.Pos, err
		}
		type cmpOp struct {
			op    string
			right evalFnc
		}
		ops := make([]cmpOp, 0, len(obj.Ops))
		for _, node := range obj.Ops {
			right, pos, err := nodeToEvaluator(node.Right, model)
			if err != nil {
				return nil, pos, err
			}
			ops = append(ops, cmpOp{op: node.Op, right: right})
		}
		// comparison chains short-circuit pairwise: a < b <= c
		return func(ctx *Context) (interface{}, error) {
			prev, err := left(ctx)
			if err != nil {
				return nil, err
			}
			for _, o := range ops {
				next, err := o.right(ctx)
				if err != nil {
					return nil, err
				}
				var ok bool
				switch o.op {
				case "==":
					ok = equalValues(prev, next)
				case "!=":
					ok = !equalValues(prev, next)
				case "in":
					if ok, err = contains(prev, next); err != nil {
						return nil, err
					}
				case "notin":
					if ok, err = contains(prev, next); err != nil {
						return nil, err
					}
					ok = !ok
				default:
					if ok, err = orderCompare(o.op, prev, next); err != nil {
						return nil, err
					}
				}
				if !ok {
					return false, nil
				}
				prev = next
			}
			return true, nil
		}, obj.Pos, nil

	case *ArithExpression:
		left, pos, err := nodeToEvaluator(obj.Left, model)
		if err != nil {
			return nil, pos, err
		}
		if len(obj.Ops) == 0 {
			return left, obj.Pos, nil
		}
		if err := checkNode(model, NodeBinOp, obj.Pos); err != nil {
			return nil, obj.Pos, err
		}
		type binOp struct {
			op    string
			right evalFnc
		}
		ops := make([]binOp, 0, len(obj.Ops))
		for _, node := range obj.Ops {
			right, pos, err := nodeToEvaluator(node.Right, model)
			if err != nil {
				return nil, pos, err
			}
			ops = append(ops, binOp{op: node.Op, right: right})
		}
		return func(ctx *Context) (interface{}, error) {
			v, err := left(ctx)
			if err != nil {
				return nil, err
			}
			for _, o := range ops {
				right, err := o.right(ctx)
				if err != nil {
					return nil, err
				}
				if v, err = binaryOp(o.op, v, right); err != nil {
					return nil, err
				}
			}
			return v, nil
		}, obj.Pos, nil

	case *Term:
		left, pos, err := nodeToEvaluator(obj.Left, model)
		if err != nil {
			return nil, pos, err
		}
		if len(obj.Ops) == 0 {
			return left, obj.Pos, nil
		}
		if err := checkNode(model, NodeBinOp, obj.Pos); err != nil {
			return nil, obj.Pos, err
		}
		type binOp struct {
			op    string
			right evalFnc
		}
		ops := make([]binOp, 0, len(obj.Ops))
		for _, node := range obj.Ops {
			right, pos, err := nodeToEvaluator(node.Right, model)
			if err != nil {
				return nil, pos, err
			}
			ops = append(ops, binOp{op: node.Op, right: right})
		}
		return func(ctx *Context) (interface{}, error) {
			v, err := left(ctx)
			if err != nil {
				return nil, err
			}
			for _, o := range ops {
				right, err := o.right(ctx)
				if err != nil {
					return nil, err
				}
				if v, err = binaryOp(o.op, v, right); err != nil {
					return nil, err
				}
			}
			return v, nil
		}, obj.Pos, nil

	case *Unary:
		inner, pos, err := nodeToEvaluator(obj.Postfix, model)
		if err != nil {
			return nil, pos, err
		}
		if obj.Minus == nil {
			return inner, obj.Pos, nil
		}
		if err := checkNode(model, NodeUnaryOp, obj.Pos); err != nil {
			return nil, obj.Pos, err
		}
		return func(ctx *Context) (interface{}, error) {
			v, err := inner(ctx)
			if err != nil {
				return nil, err
			}
			return negate(v)
		}, obj.Pos, nil

	case *Postfix:
		fnc, pos, err := nodeToEvaluator(obj.Primary, model)
		if err != nil {
			return nil, pos, err
		}
		for _, attr := range obj.Attrs {
			if err := checkNode(model, NodeAttribute, attr.Pos); err != nil {
				return nil, attr.Pos, err
			}
			if !model.Attributes[attr.Name] {
				return nil, attr.Pos, NewAttributeDeniedError(attr.Pos, attr.Name)
			}
			if attr.Call == nil {
				return nil, attr.Pos, NewCompileError(attr.Pos, "attribute %q must be called", attr.Name)
			}
			if err := checkNode(model, NodeCall, attr.Pos); err != nil {
				return nil, attr.Pos, err
			}
			args := make([]evalFnc, 0, len(attr.Call.Args))
			for _, a := range attr.Call.Args {
				arg, pos, err := nodeToEvaluator(a, model)
				if err != nil {
					return nil, pos, err
				}
				args = append(args, arg)
			}
			recv, name := fnc, attr.Name
			fnc = func(ctx *Context) (interface{}, error) {
				v, err := recv(ctx)
				if err != nil {
					return nil, err
				}
				vals := make([]interface{}, 0, len(args))
				for _, arg := range args {
					av, err := arg(ctx)
					if err != nil {
						return nil, err
					}
					vals = append(vals, av)
				}
				return callAttribute(name, v, vals)
			}
		}
		return fnc, obj.Pos, nil

	case *Primary:
		switch {
		case obj.Float != nil:
			if err := checkNode(model, NodeConstant, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			return constantEvaluator(*obj.Float), obj.Pos, nil
		case obj.Int != nil:
			if err := checkNode(model, NodeConstant, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			return constantEvaluator(*obj.Int), obj.Pos, nil
		case obj.String != nil:
			if err := checkNode(model, NodeConstant, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			s, err := unquoteString(*obj.String)
			if err != nil {
				return nil, obj.Pos, NewCompileError(obj.Pos, "bad string literal %s", *obj.String)
			}
			return constantEvaluator(s), obj.Pos, nil
		case obj.True:
			if err := checkNode(model, NodeConstant, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			return constantEvaluator(true), obj.Pos, nil
		case obj.False:
			if err := checkNode(model, NodeConstant, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			return constantEvaluator(false), obj.Pos, nil
		case obj.None:
			if err := checkNode(model, NodeConstant, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			return constantEvaluator(nil), obj.Pos, nil
		case obj.List != nil:
			if err := checkNode(model, NodeList, obj.List.Pos); err != nil {
				return nil, obj.List.Pos, err
			}
			items := make([]evalFnc, 0, len(obj.List.Items))
			for _, item := range obj.List.Items {
				fnc, pos, err := nodeToEvaluator(item, model)
				if err != nil {
					return nil, pos, err
				}
				items = append(items, fnc)
			}
			return func(ctx *Context) (interface{}, error) {
				out := make([]interface{}, 0, len(items))
				for _, item := range items {
					v, err := item(ctx)
					if err != nil {
						return nil, err
					}
					out = append(out, v)
				}
				return out, nil
			}, obj.List.Pos, nil
		case obj.Call != nil:
			if err := checkNode(model, NodeCall, obj.Call.Pos); err != nil {
				return nil, obj.Call.Pos, err
			}
			if !model.Functions[obj.Call.Name] {
				return nil, obj.Call.Pos, NewFunctionDeniedError(obj.Call.Pos, obj.Call.Name)
			}
			args := make([]evalFnc, 0, len(obj.Call.Args))
			for _, a := range obj.Call.Args {
				arg, pos, err := nodeToEvaluator(a, model)
				if err != nil {
					return nil, pos, err
				}
				args = append(args, arg)
			}
			name := obj.Call.Name
			return func(ctx *Context) (interface{}, error) {
				vals := make([]interface{}, 0, len(args))
				for _, arg := range args {
					v, err := arg(ctx)
					if err != nil {
						return nil, err
					}
					vals = append(vals, v)
				}
				return callFunction(name, vals)
			}, obj.Call.Pos, nil
		case obj.Ident != nil:
			if err := checkNode(model, NodeName, obj.Pos); err != nil {
				return nil, obj.Pos, err
			}
			name := *obj.Ident
			// uncalled names are record-field lookups, resolved per record
			return func(ctx *Context) (interface{}, error) {
				v, ok := ctx.Fields[name]
				if !ok {
					return nil, newEvalError("name %q is not defined", name)
				}
				return v, nil
			}, obj.Pos, nil
		case obj.Sub != nil:
			return nodeToEvaluator(obj.Sub, model)
		}
	}

	return nil, lexer.Position{}, NewCompileError(lexer.Position{}, "unknown expression node")
}

// unquoteString strips the surrounding quotes of a string token and
// processes backslash escapes. Both single and double quotes are accepted.
func unquoteString(tok string) (string, error) {
	if len(tok) < 2 {
		return "", newEvalError("short string token")
	}
	body := tok[1 : len(tok)-1]

	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i == len(body)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}
