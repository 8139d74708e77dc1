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

	"github.com/mitchellh/mapstructure"
)

// SearchQuery is the body of a search, delete or update request, and the
// stored form of a named search. Filter is sugar compiled into Expr; the
// two are AND-combined when both are present.
type SearchQuery struct {
	// Op selects the mutation for PATCH requests: delete or update.
	Op string `json:"op,omitempty" mapstructure:"op"`

	// Token is accepted for wire compatibility; authorization reads the
	// Authorization header instead.
	Token string `json:"token,omitempty" mapstructure:"token"`

	// Data is a JSON-encoded record for insert requests.
	Data string `json:"data,omitempty" mapstructure:"data"`

	Expr    string                 `json:"expr,omitempty" mapstructure:"expr"`
	Filter  map[string]interface{} `json:"filter,omitempty" mapstructure:"filter"`
	Sort    string                 `json:"sort,omitempty" mapstructure:"sort"`
	Reverse bool                   `json:"reverse,omitempty" mapstructure:"reverse"`
	Limit   *int                   `json:"limit,omitempty" mapstructure:"limit"`
	Offset  int                    `json:"offset,omitempty" mapstructure:"offset"`
	Fields  []string               `json:"fields,omitempty" mapstructure:"fields"`

	// Aggregate entries are "op:field" descriptors, e.g. "sum:price".
	Aggregate []string `json:"aggregate,omitempty" mapstructure:"aggregate"`

	// Discard suppresses the result list, keeping only counters and
	// aggregations in the response.
	Discard bool `json:"discard,omitempty" mapstructure:"discard"`

	// Update carries field assignments for update requests. UpdateField
	// and UpdateData are the older single-field form; Update wins when
	// both are present.
	Update      map[string]interface{} `json:"update,omitempty" mapstructure:"update"`
	UpdateField string                 `json:"update_field,omitempty" mapstructure:"update_field"`
	UpdateData  string                 `json:"update_data,omitempty" mapstructure:"update_data"`
}

// DecodeQuery builds a SearchQuery from a loosely-typed map, as found in
// dataset configuration under the search key. Anything but a map is
// rejected so a broken definition surfaces in the dataset status.
func DecodeQuery(raw interface{}) (*SearchQuery, error) {
	if _, ok := raw.(map[string]interface{}); !ok {
		return nil, NewInputError("search definition must be a map, got %T", raw)
	}
	var sq SearchQuery
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sq,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	sq.Normalize()
	return &sq, nil
}

// Normalize canonicalizes the loosely-typed maps of a freshly decoded
// query. Callers decoding JSON with json.Number must call it before use.
func (sq *SearchQuery) Normalize() {
	for k, v := range sq.Filter {
		sq.Filter[k] = NormalizeValue(v)
	}
	for k, v := range sq.Update {
		sq.Update[k] = NormalizeValue(v)
	}
}

var filterOps = map[string]string{
	"lt": "<",
	"le": "<=",
	"gt": ">",
	"ge": ">=",
}

// EffectiveExpr folds Filter into Expr and returns the expression the
// engine will compile. An empty query matches everything.
func (sq *SearchQuery) EffectiveExpr() (string, error) {
	terms := make([]string, 0, len(sq.Filter)+1)
	if sq.Expr != "" {
		terms = append(terms, "("+sq.Expr+")")
	}

	keys := make([]string, 0, len(sq.Filter))
	for k := range sq.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		term, err := filterTerm(k, sq.Filter[k])
		if err != nil {
			return "", err
		}
		terms = append(terms, term)
	}

	if len(terms) == 0 {
		return "True", nil
	}
	return strings.Join(terms, " and "), nil
}

func filterTerm(key string, value interface{}) (string, error) {
	field, op := key, "=="
	if i := strings.Index(key, "__"); i >= 0 {
		suffix := key[i+2:]
		sym, ok := filterOps[suffix]
		if !ok {
			return "", NewInputError("unknown filter operation %q", suffix)
		}
		field, op = key[:i], sym
	}

	if list, ok := value.([]interface{}); ok && op == "==" {
		items := make([]string, 0, len(list))
		for _, item := range list {
			lit, err := renderLiteral(item)
			if err != nil {
				return "", err
			}
			items = append(items, lit)
		}
		return fmt.Sprintf("%s in [%s]", field, strings.Join(items, ", ")), nil
	}

	lit, err := renderLiteral(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", field, op, lit), nil
}

func renderLiteral(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "None", nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case string:
		return quoteSingle(v), nil
	}
	return "", NewInputError("cannot use %T as a filter value", v)
}

func quoteSingle(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
