// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"context"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	// PostgreSQL driver for db-backed dataset locations.
	_ "github.com/lib/pq"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v2"

	"github.com/sashimi-data/sashimi/pkg/util/log"
)

// Location describes where a server-side dataset comes from: exactly one
// of File, URL or DB+SQL, plus the optional post-processing keys.
type Location struct {
	File   string `mapstructure:"file"`
	URL    string `mapstructure:"url"`
	DB     string `mapstructure:"db"`
	SQL    string `mapstructure:"sql"`
	Format string `mapstructure:"format"`

	// Keypath descends into the decoded document before coercing it to a
	// record list, e.g. ["products"] for a wrapped payload.
	Keypath []string `mapstructure:"keypath"`

	// Multiply replicates the loaded records, for synthetic sizing.
	Multiply int `mapstructure:"multiply"`

	// Limit truncates the loaded records.
	Limit int `mapstructure:"limit"`
}

// ParseLocation decodes a dataset location from its configured form: a
// bare string is a file path, a map sets the struct fields.
func ParseLocation(raw interface{}) (*Location, error) {
	if path, ok := raw.(string); ok {
		return &Location{File: path}, nil
	}
	var loc Location
	if err := mapstructure.Decode(raw, &loc); err != nil {
		return nil, errors.Wrap(err, "bad dataset location")
	}
	if loc.File == "" && loc.URL == "" && loc.DB == "" {
		return nil, errors.New("dataset location needs one of file, url or db")
	}
	return &loc, nil
}

// Loader fetches datasets from their configured locations. The open
// hooks exist so tests can substitute fixtures for real backends.
type Loader struct {
	FS     afero.Fs
	Client *http.Client
	OpenDB func(driverName, dsn string) (*sqlx.DB, error)
}

// NewLoader returns a Loader over the real filesystem and network.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{
		FS:     fs,
		Client: &http.Client{Timeout: 30 * time.Second},
		OpenDB: sqlx.Open,
	}
}

// Load fetches, decodes and post-processes the records at a location.
func (l *Loader) Load(ctx context.Context, loc *Location) ([]Record, error) {
	var (
		doc interface{}
		err error
	)
	switch {
	case loc.File != "":
		doc, err = l.loadFile(loc)
	case loc.URL != "":
		doc, err = l.loadURL(ctx, loc)
	case loc.DB != "":
		return l.loadSQL(ctx, loc)
	default:
		return nil, errors.New("dataset location needs one of file, url or db")
	}
	if err != nil {
		return nil, err
	}

	for _, key := range loc.Keypath {
		m, ok := doc.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("keypath %q: not an object", key)
		}
		doc, ok = m[key]
		if !ok {
			return nil, errors.Errorf("keypath %q: no such key", key)
		}
	}

	records, err := CoerceRecords(doc)
	if err != nil {
		return nil, err
	}
	return postProcess(records, loc), nil
}

func (l *Loader) loadFile(loc *Location) (interface{}, error) {
	raw, err := afero.ReadFile(l.FS, loc.File)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read dataset file %s", loc.File)
	}

	format := loc.Format
	if format == "" {
		switch strings.TrimPrefix(filepath.Ext(loc.File), ".") {
		case "yaml", "yml":
			format = "yaml"
		default:
			format = "json"
		}
	}

	switch format {
	case "json":
		doc, err := DecodeJSON(raw)
		return doc, errors.Wrapf(err, "cannot parse %s", loc.File)
	case "yaml":
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Wrapf(err, "cannot parse %s", loc.File)
		}
		return NormalizeValue(doc), nil
	}
	return nil, errors.Errorf("unknown dataset format %q", format)
}

func (l *Loader) loadURL(ctx context.Context, loc *Location) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return nil, err
	}
	log.Infof("fetching dataset from %s", loc.URL)
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot fetch %s", loc.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("cannot fetch %s: %s", loc.URL, resp.Status)
	}
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	doc, err := DecodeJSON(raw)
	return doc, errors.Wrapf(err, "cannot parse response from %s", loc.URL)
}

func (l *Loader) loadSQL(ctx context.Context, loc *Location) ([]Record, error) {
	if loc.SQL == "" {
		return nil, errors.New("db location needs a sql query")
	}
	db, err := l.OpenDB(driverFor(loc.DB), loc.DB)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open database")
	}
	defer db.Close()

	rows, err := db.QueryxContext(ctx, loc.SQL)
	if err != nil {
		return nil, errors.Wrap(err, "dataset query failed")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			row[k] = normalizeSQLValue(v)
		}
		records = append(records, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return postProcess(records, loc), nil
}

func driverFor(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		switch dsn[:i] {
		case "postgres", "postgresql":
			return "postgres"
		}
	}
	return "postgres"
}

func normalizeSQLValue(v interface{}) interface{} {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	}
	return NormalizeValue(v)
}

func postProcess(records []Record, loc *Location) []Record {
	if loc.Multiply > 1 {
		multiplied := make([]Record, 0, len(records)*loc.Multiply)
		for i := 0; i < loc.Multiply; i++ {
			for _, rec := range records {
				copied := make(Record, len(rec))
				for k, v := range rec {
					copied[k] = v
				}
				multiplied = append(multiplied, copied)
			}
		}
		records = multiplied
	}
	if loc.Limit > 0 && len(records) > loc.Limit {
		records = records[:loc.Limit]
	}
	return records
}
