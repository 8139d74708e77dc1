// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package eval

import "fmt"

// Node kind names, matching the vocabulary used in master configs to
// extend the model.
const (
	NodeConstant  = "Constant"
	NodeName      = "Name"
	NodeList      = "List"
	NodeCompare   = "Compare"
	NodeBoolOp    = "BoolOp"
	NodeUnaryOp   = "UnaryOp"
	NodeBinOp     = "BinOp"
	NodeCall      = "Call"
	NodeAttribute = "Attribute"
)

// Model whitelists the syntactic constructs admissible in a user
// expression: node kinds, attribute names and free function names.
// Compile rejects any expression using something outside the model.
type Model struct {
	Nodes      map[string]bool
	Attributes map[string]bool
	Functions  map[string]bool
}

func newModel(nodes, attributes, functions []string) *Model {
	m := &Model{
		Nodes:      make(map[string]bool),
		Attributes: make(map[string]bool),
		Functions:  make(map[string]bool),
	}
	m.Extend(nodes, attributes, functions)
	return m
}

// Extend adds node kinds, attributes and functions to the model.
func (m *Model) Extend(nodes, attributes, functions []string) {
	for _, n := range nodes {
		m.Nodes[n] = true
	}
	for _, a := range attributes {
		m.Attributes[a] = true
	}
	for _, f := range functions {
		m.Functions[f] = true
	}
}

var baseNodes = []string{
	NodeConstant, NodeName, NodeList, NodeCompare, NodeBoolOp, NodeUnaryOp, NodeBinOp,
}

// BaseModel returns the minimal model: comparisons, boolean operators,
// membership, literals and arithmetic. No attributes, no calls.
func BaseModel() *Model {
	return newModel(baseNodes, nil, nil)
}

// DefaultModel returns the base model extended with calls and attributes,
// the string method whitelist and the int/round functions.
func DefaultModel() *Model {
	m := BaseModel()
	m.Extend(
		[]string{NodeCall, NodeAttribute},
		[]string{"startswith", "endswith", "upper", "lower"},
		[]string{"int", "round"},
	)
	return m
}

// NewModel builds a model from the master config `model` preset and the
// user-provided extension lists.
func NewModel(preset string, nodes, attributes, functions []string) (*Model, error) {
	switch preset {
	case "base":
		return BaseModel(), nil
	case "default", "":
		return DefaultModel(), nil
	case "extended":
		m := DefaultModel()
		m.Extend(nodes, attributes, functions)
		return m, nil
	case "custom":
		return newModel(nodes, attributes, functions), nil
	}
	return nil, fmt.Errorf("unknown eval model %q (must be one of base/default/extended/custom)", preset)
}
