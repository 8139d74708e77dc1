// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package eval

import (
	"fmt"

	"github.com/alecthomas/participle/lexer"
)

// CompileError is a compile-time rejection of a user expression, either a
// syntax error or a model whitelist violation. The facade maps it to a
// 400 response.
type CompileError struct {
	Pos  lexer.Position
	Text string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s at %s", e.Text, e.Pos)
}

// NewCompileError returns a new CompileError at the given position.
func NewCompileError(pos lexer.Position, format string, args ...interface{}) *CompileError {
	return &CompileError{Pos: pos, Text: fmt.Sprintf(format, args...)}
}

// NewNodeDeniedError reports a node kind outside the model.
func NewNodeDeniedError(pos lexer.Position, kind string) *CompileError {
	return NewCompileError(pos, "node type %q is not allowed", kind)
}

// NewAttributeDeniedError reports an attribute outside the model.
func NewAttributeDeniedError(pos lexer.Position, name string) *CompileError {
	return NewCompileError(pos, "attribute %q is not allowed", name)
}

// NewFunctionDeniedError reports a called function outside the model.
func NewFunctionDeniedError(pos lexer.Position, name string) *CompileError {
	return NewCompileError(pos, "function %q is not allowed", name)
}

// EvalError is a runtime failure while evaluating a compiled expression
// against one record. It is counted per record and never fails a search.
type EvalError struct {
	Text string
}

func (e *EvalError) Error() string {
	return e.Text
}

func newEvalError(format string, args ...interface{}) *EvalError {
	return &EvalError{Text: fmt.Sprintf(format, args...)}
}
