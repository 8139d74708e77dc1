// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// aggregate evaluates "op:field" descriptors over the full post-filter
// match list, before pagination. An empty match list yields null for
// every descriptor; a malformed descriptor, unknown operation or a
// record missing the field is an input error.
func aggregate(records []Record, descriptors []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(descriptors))
	for _, desc := range descriptors {
		parts := strings.SplitN(desc, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, NewInputError("bad aggregation %q, expected op:field", desc)
		}
		op, field := parts[0], parts[1]

		if len(records) == 0 {
			out[desc] = nil
			continue
		}

		values := make([]interface{}, 0, len(records))
		for _, rec := range records {
			v, ok := rec[field]
			if !ok {
				return nil, NewInputError("missing field %q for aggregation %q", field, desc)
			}
			values = append(values, v)
		}

		result, err := aggregateOp(op, field, values)
		if err != nil {
			return nil, err
		}
		out[desc] = result
	}
	return out, nil
}

func aggregateOp(op, field string, values []interface{}) (interface{}, error) {
	switch op {
	case "distinct":
		return distinct(values), nil
	case "sum", "avg":
		var total float64
		integral := true
		for _, v := range values {
			f, ok := asSortFloat(v)
			if !ok {
				return nil, NewInputError("cannot aggregate non-numeric field %q", field)
			}
			if _, isInt := v.(int64); !isInt {
				integral = false
			}
			total += f
		}
		if op == "avg" {
			return total / float64(len(values)), nil
		}
		if integral {
			return int64(total), nil
		}
		return total, nil
	case "min", "max":
		best := values[0]
		if _, ok := asSortFloat(best); !ok {
			return nil, NewInputError("cannot aggregate non-numeric field %q", field)
		}
		for _, v := range values[1:] {
			if _, ok := asSortFloat(v); !ok {
				return nil, NewInputError("cannot aggregate non-numeric field %q", field)
			}
			if (op == "min") == lessValue(v, best) {
				best = v
			}
		}
		return best, nil
	}
	return nil, NewInputError("unknown aggregation operation %q", op)
}

// distinct returns the sorted unique values. Deduplication keys on the
// rendered form (so unhashable shapes cannot panic); ordering uses the
// same type-ranked comparator as sorting, keeping mixed-type columns
// deterministic.
func distinct(values []interface{}) []interface{} {
	seen := make(map[string]bool)
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		k := stringKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessValue(out[i], out[j])
	})
	return out
}

func stringKey(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	}
	return fmt.Sprintf("%v", v)
}
