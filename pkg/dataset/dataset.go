// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/eval"
	"github.com/sashimi-data/sashimi/pkg/util/log"
)

const statusOK = "OK"

// Operations that allowed_operations can grant. Search is always
// permitted; reload is accepted in configuration but not implemented.
var defaultAllowedOps = []string{"update", "reload", "delete"}

// Dataset is one named, independently locked collection of records with
// its own configuration node, named searches and result cache.
type Dataset struct {
	name    string
	project string
	cfg     *config.Node
	model   *eval.Model
	clock   clock.Clock

	// local marks datasets backed by a server-side location; the sandbox
	// sweep never evicts them.
	local bool

	mu       sync.RWMutex
	records  []Record
	size     int64
	loaded   time.Time
	updateIP string
	status   string
	secret   string

	searches map[string]*SearchQuery
	cache    *gocache.Cache
}

// New creates an empty dataset bound to its configuration node. The
// expression model and clock are injected by the owning project.
func New(name, project string, cfg *config.Node, model *eval.Model, clk clock.Clock) *Dataset {
	d := &Dataset{
		name:    name,
		project: project,
		cfg:     cfg,
		model:   model,
		clock:   clk,
		status:  statusOK,
		cache:   gocache.New(gocache.NoExpiration, 0),
	}
	d.reloadSearches()
	return d
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// Config returns the dataset's configuration node.
func (d *Dataset) Config() *config.Node {
	return d.cfg
}

// Status reports OK or the error recorded while parsing named searches.
func (d *Dataset) Status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Items returns the current record count.
func (d *Dataset) Items() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// SizeBytes returns the deep-measured byte size recorded at the last
// load or update.
func (d *Dataset) SizeBytes() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

// Loaded returns the time of the last full data load.
func (d *Dataset) Loaded() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// UpdateIP returns the client address recorded by the last mutation.
func (d *Dataset) UpdateIP() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updateIP
}

// IsLocal reports whether the dataset is backed by a server-side
// location rather than uploaded by a client.
func (d *Dataset) IsLocal() bool {
	return d.local
}

// MarkLocal flags the dataset as server-loaded, exempting it from
// sandbox expiry.
func (d *Dataset) MarkLocal() {
	d.local = true
}

// HasSecret reports whether an upload secret protects replacement.
func (d *Dataset) HasSecret() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.secret != ""
}

// CheckSecret reports whether the given secret allows replacing the
// dataset. An unset secret allows everything.
func (d *Dataset) CheckSecret(secret string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.secret == "" || d.secret == secret
}

// CheckAllowedOperation validates a mutating operation against the
// dataset's allowed_operations configuration.
func (d *Dataset) CheckAllowedOperation(op string) error {
	allowed := defaultAllowedOps
	if v := d.cfg.Get("allowed_operations"); v != nil {
		allowed = nil
		if list, ok := v.([]interface{}); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					allowed = append(allowed, s)
				}
			}
		}
	}
	for _, a := range allowed {
		if a == op {
			return nil
		}
	}
	return &OpNotAllowedError{Op: op, Dataset: d.name}
}

// SetData replaces the dataset contents. The previous secret, if any,
// must match; the new secret (possibly empty) is stored in its place.
func (d *Dataset) SetData(records []Record, ip, secret string) {
	d.mu.Lock()
	d.records = records
	d.size = recordsSize(records)
	d.loaded = d.clock.Now().UTC()
	d.updateIP = ip
	d.secret = secret
	d.status = statusOK
	d.mu.Unlock()
	d.DropCache()
}

// Insert appends one record and returns the new record count.
func (d *Dataset) Insert(rec Record) int {
	d.mu.Lock()
	d.records = append(d.records, rec)
	d.size += deepSize(rec)
	n := len(d.records)
	d.mu.Unlock()
	d.DropCache()
	return n
}

// Search runs the full pipeline: compile, scan, sort, aggregate,
// paginate. It never mutates the dataset.
func (d *Dataset) Search(sq *SearchQuery) (*SearchResponse, error) {
	exprSrc, err := sq.EffectiveExpr()
	if err != nil {
		return nil, err
	}
	compiled, err := eval.Compile(exprSrc, d.model)
	if err != nil {
		return nil, err
	}

	limit := minLimit(d.cfg.GetInt("limit"), sq.Limit)

	d.mu.RLock()
	resp := &SearchResponse{Status: statusOK, Limit: limit}
	out := make([]Record, 0, 64)
	for _, rec := range d.records {
		v, err := compiled.Eval(rec)
		if err != nil {
			resp.Exceptions++
			msg := err.Error()
			resp.LastException = &msg
			continue
		}
		if !eval.Truthy(v) {
			continue
		}
		resp.Matches++
		projected, err := project(rec, sq.Fields)
		if err != nil {
			resp.Exceptions++
			msg := err.Error()
			resp.LastException = &msg
			continue
		}
		out = append(out, projected)
	}
	d.mu.RUnlock()

	// reverse only applies to a sorted result; without a sort key the
	// insertion order stands
	if sq.Sort != "" {
		sortRecords(out, sq.Sort)
		if sq.Reverse {
			reverseRecords(out)
		}
	}

	if len(sq.Aggregate) > 0 {
		agg, err := aggregate(out, sq.Aggregate)
		if err != nil {
			return nil, err
		}
		resp.Aggregation = agg
	}

	if sq.Offset > 0 {
		if sq.Offset >= len(out) {
			out = out[:0]
		} else {
			out = out[sq.Offset:]
		}
	}
	if limit != nil && len(out) > *limit {
		out = out[:*limit]
		resp.Truncated = true
	}

	if !sq.Discard {
		resp.Result = &out
	}
	return resp, nil
}

// project copies the requested fields out of a record; a missing field
// is a per-record exception. With no field list the whole record is
// shallow-copied, so results stay stable under concurrent updates.
func project(rec Record, fields []string) (Record, error) {
	if len(fields) == 0 {
		out := make(Record, len(rec))
		for k, v := range rec {
			out[k] = v
		}
		return out, nil
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		v, ok := rec[f]
		if !ok {
			return nil, fmt.Errorf("no field %q in record", f)
		}
		out[f] = v
	}
	return out, nil
}

// Delete removes matching records. An evaluation error aborts the whole
// pass, leaving the dataset untouched.
func (d *Dataset) Delete(sq *SearchQuery) (*DeleteResponse, error) {
	if err := d.CheckAllowedOperation("delete"); err != nil {
		return nil, err
	}
	exprSrc, err := sq.EffectiveExpr()
	if err != nil {
		return nil, err
	}
	compiled, err := eval.Compile(exprSrc, d.model)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	resp := &DeleteResponse{Status: statusOK, OldSize: len(d.records)}
	kept := make([]Record, 0, len(d.records))
	for _, rec := range d.records {
		v, err := compiled.Eval(rec)
		if err != nil {
			msg := err.Error()
			resp.Exceptions = 1
			resp.LastException = &msg
			resp.NewSize = resp.OldSize
			d.mu.Unlock()
			d.DropCache()
			return resp, nil
		}
		if !eval.Truthy(v) {
			kept = append(kept, rec)
		}
	}
	d.records = kept
	d.size = recordsSize(kept)
	d.updateIP = ""
	resp.NewSize = len(kept)
	d.mu.Unlock()
	d.DropCache()
	return resp, nil
}

// Update assigns fields on matching records. Per-record evaluation
// errors are counted and skipped.
func (d *Dataset) Update(sq *SearchQuery, ip string) (*UpdateResponse, error) {
	if err := d.CheckAllowedOperation("update"); err != nil {
		return nil, err
	}
	assign, err := sq.assignments()
	if err != nil {
		return nil, err
	}
	exprSrc, err := sq.EffectiveExpr()
	if err != nil {
		return nil, err
	}
	compiled, err := eval.Compile(exprSrc, d.model)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	resp := &UpdateResponse{Status: statusOK}
	for _, rec := range d.records {
		v, err := compiled.Eval(rec)
		if err != nil {
			resp.Exceptions++
			msg := err.Error()
			resp.LastException = &msg
			continue
		}
		if !eval.Truthy(v) {
			continue
		}
		resp.Matches++
		for k, val := range assign {
			rec[k] = val
		}
	}
	d.size = recordsSize(d.records)
	d.updateIP = ip
	d.mu.Unlock()
	d.DropCache()
	return resp, nil
}

// assignments resolves the update payload: the update map when present,
// else the legacy update_field/update_data pair.
func (sq *SearchQuery) assignments() (map[string]interface{}, error) {
	if len(sq.Update) > 0 {
		return sq.Update, nil
	}
	if sq.UpdateField == "" {
		return nil, NewInputError("need update or update_field")
	}
	if sq.UpdateData == "" {
		return nil, NewInputError("need update_data")
	}
	value, err := DecodeJSON([]byte(sq.UpdateData))
	if err != nil {
		return nil, NewInputError("cannot parse update_data: %v", err)
	}
	return map[string]interface{}{sq.UpdateField: value}, nil
}

// NamedSearch returns the stored query for a name, or nil.
func (d *Dataset) NamedSearch(name string) *SearchQuery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.searches[name]
}

// RunNamed runs a configured named search, serving repeated calls from
// the result cache until a mutation invalidates it.
func (d *Dataset) RunNamed(name string) (*SearchResponse, error) {
	sq := d.NamedSearch(name)
	if sq == nil {
		return nil, NewInputError("no search named %q", name)
	}
	if cached, ok := d.cache.Get(name); ok {
		return cached.(*SearchResponse), nil
	}
	resp, err := d.Search(sq)
	if err != nil {
		return nil, err
	}
	d.cache.Set(name, resp, gocache.NoExpiration)
	return resp, nil
}

// DropCache discards all cached named-search results.
func (d *Dataset) DropCache() {
	d.cache.Flush()
}

// ReloadConfig re-reads the configuration node and the named searches
// defined under its search key.
func (d *Dataset) ReloadConfig() {
	d.cfg.Reload()
	d.reloadSearches()
	d.DropCache()
}

func (d *Dataset) reloadSearches() {
	searches := make(map[string]*SearchQuery)
	status := statusOK
	for name, raw := range d.cfg.GetStringMap("search") {
		sq, err := DecodeQuery(raw)
		if err != nil {
			status = fmt.Sprintf("broken search %q: %v", name, err)
			log.Warnf("dataset %s/%s: %s", d.project, d.name, status)
			continue
		}
		searches[name] = sq
	}
	d.mu.Lock()
	d.searches = searches
	d.status = status
	d.mu.Unlock()
}

// minLimit picks the effective limit: the smaller of the configured and
// the requested one, nil meaning unlimited.
func minLimit(configured, requested *int) *int {
	switch {
	case configured == nil:
		return requested
	case requested == nil:
		return configured
	case *requested < *configured:
		return requested
	}
	return configured
}
