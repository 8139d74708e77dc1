// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import "sort"

// typeRank orders values of different types so that mixed columns still
// sort deterministically: missing, then booleans, numbers, strings,
// lists, and everything else last.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	case []interface{}:
		return 4
	}
	return 5
}

func lessValue(a, b interface{}) bool {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 1:
		return !a.(bool) && b.(bool)
	case 2:
		fa, _ := asSortFloat(a)
		fb, _ := asSortFloat(b)
		return fa < fb
	case 3:
		return a.(string) < b.(string)
	case 4:
		la, lb := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(la) && i < len(lb); i++ {
			if lessValue(la[i], lb[i]) {
				return true
			}
			if lessValue(lb[i], la[i]) {
				return false
			}
		}
		return len(la) < len(lb)
	}
	return false
}

func asSortFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// sortRecords stable-sorts records ascending by the given field. Records
// without the field sort first. Callers reverse afterwards when needed.
func sortRecords(records []Record, field string) {
	sort.SliceStable(records, func(i, j int) bool {
		return lessValue(records[i][field], records[j][field])
	})
}

func reverseRecords(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
