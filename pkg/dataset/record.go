// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"bytes"
	"encoding/json"

	"github.com/sashimi-data/sashimi/pkg/config"
)

// Record is one heterogeneous key-value document of a dataset. Values are
// the JSON-compatible shapes: nil, bool, int64, float64, string,
// []interface{} and map[string]interface{}. Records within one dataset
// need not share a schema.
type Record = map[string]interface{}

// DecodeJSON decodes a JSON document preserving integers: integral
// numbers become int64 instead of float64.
func DecodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return normalizeJSON(doc), nil
}

// DecodeRecords decodes a JSON array of objects into records.
func DecodeRecords(raw []byte) ([]Record, error) {
	doc, err := DecodeJSON(raw)
	if err != nil {
		return nil, err
	}
	return CoerceRecords(doc)
}

// EncodeRecords serializes records back to JSON, for persisting
// uploaded datasets.
func EncodeRecords(records []Record) ([]byte, error) {
	return json.Marshal(records)
}

// CoerceRecords converts a decoded document into a record list.
func CoerceRecords(doc interface{}) ([]Record, error) {
	list, ok := doc.([]interface{})
	if !ok {
		return nil, NewInputError("dataset must be a list of records, got %T", doc)
	}
	records := make([]Record, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]interface{})
		if !ok {
			return nil, NewInputError("record %d is not an object", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NormalizeValue converts any decoded value (JSON with json.Number, raw
// YAML, plain Go values) into the canonical record value shapes.
func NormalizeValue(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		return normalizeNumber(v)
	case map[interface{}]interface{}, map[string]interface{}, []interface{}:
		return normalizeJSON(config.NormalizeValue(v))
	default:
		return config.NormalizeValue(v)
	}
}

func normalizeJSON(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		return normalizeNumber(v)
	case map[string]interface{}:
		for k, val := range v {
			v[k] = normalizeJSON(val)
		}
		return v
	case []interface{}:
		for i, val := range v {
			v[i] = normalizeJSON(val)
		}
		return v
	}
	return v
}

func normalizeNumber(n json.Number) interface{} {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// deepSize estimates the in-memory footprint of a value in bytes; it is
// reported in project listings, not used for accounting.
func deepSize(v interface{}) int64 {
	switch v := v.(type) {
	case nil:
		return 8
	case bool:
		return 1
	case int64:
		return 8
	case float64:
		return 8
	case string:
		return int64(16 + len(v))
	case []interface{}:
		size := int64(24)
		for _, item := range v {
			size += deepSize(item)
		}
		return size
	case map[string]interface{}:
		size := int64(48)
		for k, item := range v {
			size += int64(16+len(k)) + deepSize(item)
		}
		return size
	}
	return 16
}

func recordsSize(records []Record) int64 {
	size := int64(24)
	for _, rec := range records {
		size += deepSize(rec)
	}
	return size
}
