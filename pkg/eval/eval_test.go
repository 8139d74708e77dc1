// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package eval

import (
	"testing"
)

func record() map[string]interface{} {
	return map[string]interface{}{
		"id":       int64(42),
		"title":    "iPhone 9",
		"brand":    "Apple",
		"price":    int64(549),
		"rating":   4.69,
		"in_stock": true,
		"tags":     []interface{}{"phone", "apple"},
		"extra":    nil,
	}
}

func eval(t *testing.T, src string) interface{} {
	t.Helper()

	expr, err := Compile(src, DefaultModel())
	if err != nil {
		t.Fatalf("%s => compile error: %v", src, err)
	}
	v, err := expr.Eval(record())
	if err != nil {
		t.Fatalf("%s => eval error: %v", src, err)
	}
	return v
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		src      string
		expected bool
	}{
		{src: `True`, expected: true},
		{src: `False`, expected: false},
		{src: `price > 20`, expected: true},
		{src: `price > 549`, expected: false},
		{src: `price >= 549`, expected: true},
		{src: `price < 1000`, expected: true},
		{src: `price <= 548`, expected: false},
		{src: `price == 549`, expected: true},
		{src: `price != 549`, expected: false},
		{src: `rating > 4.5`, expected: true},
		{src: `rating < 4`, expected: false},
		{src: `brand == 'Apple'`, expected: true},
		{src: `brand == "Samsung"`, expected: false},
		{src: `brand != 'Samsung'`, expected: true},
		{src: `brand > 'Aaa'`, expected: true},
		{src: `10 < price < 1000`, expected: true},
		{src: `10 < price < 100`, expected: false},
		{src: `extra == None`, expected: true},
		{src: `in_stock == True`, expected: true},
		// mismatched types are unequal, not an error
		{src: `brand == 42`, expected: false},
		{src: `brand != 42`, expected: true},
	}

	for _, test := range tests {
		if v := eval(t, test.src); v != interface{}(test.expected) {
			t.Errorf("%s => %v, expected %v", test.src, v, test.expected)
		}
	}
}

func TestStringLiteralCharacters(t *testing.T) {
	tests := []struct {
		src      string
		expected bool
	}{
		{src: `title == 'iPhone 9'`, expected: true},
		{src: `'one 9' in title`, expected: true},
		{src: `'!@#$%' == "!@#$%"`, expected: true},
		{src: `'héllo' == 'héllo'`, expected: true},
		{src: `'a\'b' == "a'b"`, expected: true},
		{src: `'a\tb' == 'a b'`, expected: false},
	}

	for _, test := range tests {
		if v := eval(t, test.src); v != interface{}(test.expected) {
			t.Errorf("%s => %v, expected %v", test.src, v, test.expected)
		}
	}
}

func TestBoolOpsAndMembership(t *testing.T) {
	tests := []struct {
		src      string
		expected bool
	}{
		{src: `price > 20 and brand == 'Apple'`, expected: true},
		{src: `price > 2000 or brand == 'Apple'`, expected: true},
		{src: `price > 2000 and brand == 'Apple'`, expected: false},
		{src: `not price > 2000`, expected: true},
		{src: `not (price > 20 and brand == 'Apple')`, expected: false},
		{src: `brand in ['Apple', 'Samsung']`, expected: true},
		{src: `brand in ['OPPO', 'Huawei']`, expected: false},
		{src: `brand not in ['OPPO', 'Huawei']`, expected: true},
		{src: `price in [549, 899]`, expected: true},
		{src: `'phone' in tags`, expected: true},
		{src: `'Phone' in title`, expected: true},
		{src: `'pixel' in title`, expected: false},
	}

	for _, test := range tests {
		v := eval(t, test.src)
		if b, ok := v.(bool); !ok || b != test.expected {
			t.Errorf("%s => %v, expected %v", test.src, v, test.expected)
		}
	}
}

func TestBoolOpReturnsOperand(t *testing.T) {
	// like the source semantics, and/or return the deciding operand
	if v := eval(t, `brand and price`); v != interface{}(int64(549)) {
		t.Errorf("brand and price => %v", v)
	}
	if v := eval(t, `extra or brand`); v != interface{}("Apple") {
		t.Errorf("extra or brand => %v", v)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src      string
		expected interface{}
	}{
		{src: `1 + 2`, expected: int64(3)},
		{src: `price - 49`, expected: int64(500)},
		{src: `2 * 3 + 1`, expected: int64(7)},
		{src: `1 + 2 * 3`, expected: int64(7)},
		{src: `10 / 4`, expected: 2.5},
		{src: `10 % 3`, expected: int64(1)},
		{src: `-price`, expected: int64(-549)},
		{src: `1.5 + 1`, expected: 2.5},
		{src: `'foo' + 'bar'`, expected: "foobar"},
		{src: `(1 + 2) * 3`, expected: int64(9)},
	}

	for _, test := range tests {
		if v := eval(t, test.src); v != test.expected {
			t.Errorf("%s => %#v, expected %#v", test.src, v, test.expected)
		}
	}
}

func TestAttributesAndCalls(t *testing.T) {
	tests := []struct {
		src      string
		expected interface{}
	}{
		{src: `brand.upper()`, expected: "APPLE"},
		{src: `brand.lower()`, expected: "apple"},
		{src: `brand.startswith('App')`, expected: true},
		{src: `brand.endswith('le')`, expected: true},
		{src: `brand.lower().startswith('app')`, expected: true},
		{src: `int(rating)`, expected: int64(4)},
		{src: `round(rating)`, expected: int64(5)},
		{src: `int('42') == id`, expected: true},
	}

	for _, test := range tests {
		if v := eval(t, test.src); v != test.expected {
			t.Errorf("%s => %#v, expected %#v", test.src, v, test.expected)
		}
	}
}

func TestModelValidation(t *testing.T) {
	tests := []struct {
		src   string
		model *Model
	}{
		{src: `brand.upper() == 'APPLE'`, model: BaseModel()},
		{src: `int(price) > 0`, model: BaseModel()},
		{src: `open('/etc/passwd')`, model: DefaultModel()},
		{src: `brand.strip() == 'Apple'`, model: DefaultModel()},
		{src: `price > 0`, model: newModel(nil, nil, nil)},
	}

	for _, test := range tests {
		_, err := Compile(test.src, test.model)
		if err == nil {
			t.Errorf("%s => expected a compile error", test.src)
			continue
		}
		if _, ok := err.(*CompileError); !ok {
			t.Errorf("%s => expected *CompileError, got %T", test.src, err)
		}
	}
}

func TestExtendedModel(t *testing.T) {
	m, err := NewModel("extended", nil, []string{"strip"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Attributes["strip"] || !m.Attributes["upper"] {
		t.Fatal("extended model should contain both default and user attributes")
	}

	m, err = NewModel("custom", []string{NodeConstant, NodeName, NodeCompare}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(`price > 20 and price < 50`, m); err == nil {
		t.Fatal("BoolOp should be rejected by the custom model")
	}
	if _, err := Compile(`price > 20`, m); err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if _, err := NewModel("fancy", nil, nil, nil); err == nil {
		t.Fatal("unknown preset should be rejected")
	}
}

func TestSyntaxError(t *testing.T) {
	for _, src := range []string{`price >`, `(price > 20`, `price ==`, `[1, 2`, ``} {
		if _, err := Compile(src, DefaultModel()); err == nil {
			t.Errorf("%q => expected a syntax error", src)
		}
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []string{
		`SomethingWrong`,
		`SomethingWrong > 10`,
		`price > 'abc'`,
		`price.upper() == 'X'`,
		`price / 0`,
		`int('abc') == 1`,
		`price in 5`,
	}

	for _, src := range tests {
		expr, err := Compile(src, DefaultModel())
		if err != nil {
			t.Fatalf("%s => compile error: %v", src, err)
		}
		_, err = expr.Eval(record())
		if err == nil {
			t.Errorf("%s => expected an eval error", src)
			continue
		}
		if _, ok := err.(*EvalError); !ok {
			t.Errorf("%s => expected *EvalError, got %T", src, err)
		}
	}
}

func TestCompiledExprReuse(t *testing.T) {
	expr, err := Compile(`price > 500`, DefaultModel())
	if err != nil {
		t.Fatal(err)
	}

	cheap := map[string]interface{}{"price": int64(10)}
	dear := map[string]interface{}{"price": int64(1749)}

	for i := 0; i != 3; i++ {
		if v, err := expr.Eval(dear); err != nil || v != interface{}(true) {
			t.Fatalf("dear => %v, %v", v, err)
		}
		if v, err := expr.Eval(cheap); err != nil || v != interface{}(false) {
			t.Fatalf("cheap => %v, %v", v, err)
		}
	}
}
