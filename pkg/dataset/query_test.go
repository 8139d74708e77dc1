// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveExprEmpty(t *testing.T) {
	sq := &SearchQuery{}
	expr, err := sq.EffectiveExpr()
	require.NoError(t, err)
	assert.Equal(t, "True", expr)
}

func TestEffectiveExprFilter(t *testing.T) {
	tests := []struct {
		name   string
		sq     SearchQuery
		expect string
	}{
		{
			name:   "scalar equality",
			sq:     SearchQuery{Filter: map[string]interface{}{"brand": "Apple"}},
			expect: "brand == 'Apple'",
		},
		{
			name:   "int equality",
			sq:     SearchQuery{Filter: map[string]interface{}{"id": int64(42)}},
			expect: "id == 42",
		},
		{
			name:   "list membership",
			sq:     SearchQuery{Filter: map[string]interface{}{"brand": []interface{}{"Apple", "Samsung"}}},
			expect: "brand in ['Apple', 'Samsung']",
		},
		{
			name:   "comparison suffix",
			sq:     SearchQuery{Filter: map[string]interface{}{"price__lt": int64(100)}},
			expect: "price < 100",
		},
		{
			name:   "ge suffix",
			sq:     SearchQuery{Filter: map[string]interface{}{"price__ge": 9.5}},
			expect: "price >= 9.5",
		},
		{
			name: "multiple keys sorted and joined",
			sq: SearchQuery{Filter: map[string]interface{}{
				"category":  "laptops",
				"price__le": int64(2000),
			}},
			expect: "category == 'laptops' and price <= 2000",
		},
		{
			name: "expr combined with filter",
			sq: SearchQuery{
				Expr:   "price > 10",
				Filter: map[string]interface{}{"brand": "Apple"},
			},
			expect: "(price > 10) and brand == 'Apple'",
		},
		{
			name:   "quote escaping",
			sq:     SearchQuery{Filter: map[string]interface{}{"title": "O'Brien"}},
			expect: `title == 'O\'Brien'`,
		},
		{
			name:   "bool and none literals",
			sq:     SearchQuery{Filter: map[string]interface{}{"active": true}},
			expect: "active == True",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := tt.sq.EffectiveExpr()
			require.NoError(t, err)
			assert.Equal(t, tt.expect, expr)
		})
	}
}

func TestEffectiveExprUnknownSuffix(t *testing.T) {
	sq := &SearchQuery{Filter: map[string]interface{}{"price__foo": int64(1)}}
	_, err := sq.EffectiveExpr()
	require.Error(t, err)
	assert.IsType(t, &InputError{}, err)
}

func TestDecodeQuery(t *testing.T) {
	sq, err := DecodeQuery(map[string]interface{}{
		"filter":  map[string]interface{}{"category": "laptops"},
		"sort":    "price",
		"reverse": true,
		"limit":   5,
	})
	require.NoError(t, err)
	assert.Equal(t, "price", sq.Sort)
	assert.True(t, sq.Reverse)
	require.NotNil(t, sq.Limit)
	assert.Equal(t, 5, *sq.Limit)
}

func TestDecodeQueryRejectsNonMap(t *testing.T) {
	for _, raw := range []interface{}{"price > 100", []interface{}{"sort"}, int64(7), nil} {
		_, err := DecodeQuery(raw)
		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr, "raw %#v", raw)
	}
}

func TestNormalizeQuery(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{"filter": {"id": 7, "tags": [1, 2.5]}, "update": {"price": 10}}`))
	require.NoError(t, err)
	sq, err := DecodeQuery(doc)
	require.NoError(t, err)
	sq.Normalize()
	assert.Equal(t, int64(7), sq.Filter["id"])
	assert.Equal(t, []interface{}{int64(1), 2.5}, sq.Filter["tags"])
	assert.Equal(t, int64(10), sq.Update["price"])
}
