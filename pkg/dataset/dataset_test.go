// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/eval"
)

func testRecords() []Record {
	return []Record{
		{"id": int64(1), "title": "iPhone 9", "brand": "Apple", "category": "smartphones", "price": int64(549)},
		{"id": int64(2), "title": "iPhone X", "brand": "Apple", "category": "smartphones", "price": int64(899)},
		{"id": int64(3), "title": "Samsung Universe 9", "brand": "Samsung", "category": "smartphones", "price": int64(1249)},
		{"id": int64(4), "title": "MacBook Pro", "brand": "Apple", "category": "laptops", "price": int64(1749)},
		{"id": int64(5), "title": "HP Pavilion", "brand": "HP", "category": "laptops", "price": 749.5},
	}
}

func testDataset(t *testing.T, cfgValues map[string]interface{}) *Dataset {
	t.Helper()
	cfg := config.NewNode(config.RoleDataset, nil)
	for k, v := range cfgValues {
		cfg.Set(k, v)
	}
	d := New("products", "shop", cfg, eval.DefaultModel(), clock.NewMock())
	d.SetData(testRecords(), "127.0.0.1", "")
	return d
}

func TestSearchAll(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, 5, resp.Matches)
	assert.False(t, resp.Truncated)
	assert.Equal(t, 0, resp.Exceptions)
	require.NotNil(t, resp.Result)
	assert.Len(t, *resp.Result, 5)
	require.NotNil(t, resp.Limit)
	assert.Equal(t, 20, *resp.Limit)
}

func TestSearchExpr(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Expr: "price > 800 and brand == 'Apple'"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Matches)
}

func TestSearchFilterAndSort(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{
		Filter:  map[string]interface{}{"category": "smartphones"},
		Sort:    "price",
		Reverse: true,
	})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Matches)
	result := *resp.Result
	assert.Equal(t, "Samsung Universe 9", result[0]["title"])
	assert.Equal(t, "iPhone 9", result[2]["title"])
}

func TestSearchReverseWithoutSort(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Reverse: true})
	require.NoError(t, err)
	result := *resp.Result
	require.Len(t, result, 5)
	assert.Equal(t, int64(1), result[0]["id"])
	assert.Equal(t, int64(5), result[4]["id"])
}

func TestSearchLimitAndOffset(t *testing.T) {
	limit := 2
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Sort: "id", Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Matches)
	assert.True(t, resp.Truncated)
	assert.Len(t, *resp.Result, 2)

	resp, err = d.Search(&SearchQuery{Sort: "id", Limit: &limit, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Matches)
	assert.False(t, resp.Truncated)
	result := *resp.Result
	require.Len(t, result, 1)
	assert.Equal(t, int64(5), result[0]["id"])
}

func TestSearchConfiguredLimitWins(t *testing.T) {
	requested := 50
	d := testDataset(t, map[string]interface{}{"limit": 3})
	resp, err := d.Search(&SearchQuery{Limit: &requested})
	require.NoError(t, err)
	require.NotNil(t, resp.Limit)
	assert.Equal(t, 3, *resp.Limit)
	assert.Len(t, *resp.Result, 3)
	assert.True(t, resp.Truncated)
}

func TestSearchFields(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{
		Filter: map[string]interface{}{"id": int64(1)},
		Fields: []string{"title", "price"},
	})
	require.NoError(t, err)
	result := *resp.Result
	require.Len(t, result, 1)
	assert.Equal(t, Record{"title": "iPhone 9", "price": int64(549)}, result[0])
}

func TestSearchMissingProjectedField(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Fields: []string{"nope"}})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Matches)
	assert.Equal(t, 5, resp.Exceptions)
	require.NotNil(t, resp.LastException)
	assert.Len(t, *resp.Result, 0)
}

func TestSearchEvalExceptions(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Expr: "missing_field > 10"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Matches)
	assert.Equal(t, 5, resp.Exceptions)
	require.NotNil(t, resp.LastException)
	assert.Contains(t, *resp.LastException, "missing_field")
}

func TestSearchCompileError(t *testing.T) {
	d := testDataset(t, nil)
	_, err := d.Search(&SearchQuery{Expr: "price >"})
	require.Error(t, err)
	var cerr *eval.CompileError
	assert.ErrorAs(t, err, &cerr)
}

func TestSearchDiscard(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Discard: true, Aggregate: []string{"sum:price"}})
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	assert.Equal(t, 5195.5, resp.Aggregation["sum:price"])
}

func TestSearchAggregations(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{
		Filter:    map[string]interface{}{"category": "smartphones"},
		Aggregate: []string{"sum:price", "min:price", "max:price", "avg:price", "distinct:brand", "distinct:price"},
	})
	require.NoError(t, err)
	agg := resp.Aggregation
	assert.Equal(t, int64(2697), agg["sum:price"])
	assert.Equal(t, int64(549), agg["min:price"])
	assert.Equal(t, int64(1249), agg["max:price"])
	assert.Equal(t, 899.0, agg["avg:price"])
	assert.Equal(t, []interface{}{"Apple", "Samsung"}, agg["distinct:brand"])
	assert.Equal(t, []interface{}{int64(549), int64(899), int64(1249)}, agg["distinct:price"])
}

func TestSearchAggregationBeforePagination(t *testing.T) {
	limit := 1
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{Limit: &limit, Aggregate: []string{"distinct:category"}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"laptops", "smartphones"}, resp.Aggregation["distinct:category"])
	assert.Len(t, *resp.Result, 1)
}

func TestSearchAggregationEmptyMatch(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Search(&SearchQuery{
		Filter:    map[string]interface{}{"brand": "Nokia"},
		Aggregate: []string{"sum:price"},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Aggregation["sum:price"])
	_, present := resp.Aggregation["sum:price"]
	assert.True(t, present)
}

func TestSearchAggregationErrors(t *testing.T) {
	d := testDataset(t, nil)
	for _, desc := range []string{"sum", "sum:", ":price", "median:price", "sum:nope", "sum:title"} {
		_, err := d.Search(&SearchQuery{Aggregate: []string{desc}})
		require.Error(t, err, desc)
		assert.IsType(t, &InputError{}, err, desc)
	}
}

func TestSortMixedTypes(t *testing.T) {
	d := testDataset(t, nil)
	d.Insert(Record{"id": int64(6), "title": "odd", "price": "cheap"})
	d.Insert(Record{"id": int64(7), "title": "odder"})
	resp, err := d.Search(&SearchQuery{Sort: "price"})
	require.NoError(t, err)
	result := *resp.Result
	// missing first, then numbers ascending, then strings
	assert.Equal(t, int64(7), result[0]["id"])
	assert.Equal(t, int64(1), result[1]["id"])
	assert.Equal(t, int64(6), result[6]["id"])
}

func TestDelete(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Delete(&SearchQuery{Filter: map[string]interface{}{"brand": "Apple"}})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.OldSize)
	assert.Equal(t, 2, resp.NewSize)
	assert.Equal(t, 2, d.Items())
}

func TestDeleteAbortsOnEvalError(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Delete(&SearchQuery{Expr: "ghost > 1"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Exceptions)
	assert.Equal(t, resp.OldSize, resp.NewSize)
	assert.Equal(t, 5, d.Items())
}

func TestUpdate(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Update(&SearchQuery{
		Filter: map[string]interface{}{"id": int64(1)},
		Update: map[string]interface{}{"price": int64(600), "sale": true},
	}, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Matches)
	assert.Equal(t, "10.0.0.1", d.UpdateIP())

	check, err := d.Search(&SearchQuery{Filter: map[string]interface{}{"id": int64(1)}})
	require.NoError(t, err)
	rec := (*check.Result)[0]
	assert.Equal(t, int64(600), rec["price"])
	assert.Equal(t, true, rec["sale"])
}

func TestUpdateLegacyForm(t *testing.T) {
	d := testDataset(t, nil)
	resp, err := d.Update(&SearchQuery{
		Filter:      map[string]interface{}{"id": int64(2)},
		UpdateField: "price",
		UpdateData:  "1000",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Matches)

	check, err := d.Search(&SearchQuery{Filter: map[string]interface{}{"id": int64(2)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), (*check.Result)[0]["price"])
}

func TestUpdateMissingPayload(t *testing.T) {
	d := testDataset(t, nil)
	_, err := d.Update(&SearchQuery{}, "")
	require.Error(t, err)
	assert.IsType(t, &InputError{}, err)
}

func TestAllowedOperations(t *testing.T) {
	d := testDataset(t, map[string]interface{}{
		"allowed_operations": []interface{}{"update"},
	})
	_, err := d.Delete(&SearchQuery{})
	require.Error(t, err)
	assert.IsType(t, &OpNotAllowedError{}, err)

	_, err = d.Update(&SearchQuery{Update: map[string]interface{}{"x": int64(1)}}, "")
	require.NoError(t, err)
}

func TestNamedSearchCache(t *testing.T) {
	d := testDataset(t, map[string]interface{}{
		"search": map[string]interface{}{
			"cheap": map[string]interface{}{
				"filter": map[string]interface{}{"price__lt": 800},
			},
		},
	})

	first, err := d.RunNamed("cheap")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Matches)

	second, err := d.RunNamed("cheap")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = d.Update(&SearchQuery{
		Filter: map[string]interface{}{"id": int64(2)},
		Update: map[string]interface{}{"price": int64(100)},
	}, "")
	require.NoError(t, err)

	third, err := d.RunNamed("cheap")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 3, third.Matches)
}

func TestNamedSearchUnknown(t *testing.T) {
	d := testDataset(t, nil)
	_, err := d.RunNamed("nope")
	require.Error(t, err)
	assert.IsType(t, &InputError{}, err)
}

func TestBrokenNamedSearchStatus(t *testing.T) {
	d := testDataset(t, map[string]interface{}{
		"search": map[string]interface{}{
			"bad": "not a query",
		},
	})
	assert.NotEqual(t, "OK", d.Status())
}

func TestSecret(t *testing.T) {
	d := testDataset(t, nil)
	d.SetData(testRecords(), "", "hunter2")
	assert.True(t, d.HasSecret())
	assert.False(t, d.CheckSecret("wrong"))
	assert.True(t, d.CheckSecret("hunter2"))
}
