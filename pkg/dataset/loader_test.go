// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return NewLoader(fs)
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("/data/products.json")
	require.NoError(t, err)
	assert.Equal(t, "/data/products.json", loc.File)

	loc, err = ParseLocation(map[string]interface{}{
		"url":     "https://example.com/products.json",
		"keypath": []interface{}{"products"},
		"limit":   10,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/products.json", loc.URL)
	assert.Equal(t, []string{"products"}, loc.Keypath)
	assert.Equal(t, 10, loc.Limit)

	_, err = ParseLocation(map[string]interface{}{"format": "json"})
	require.Error(t, err)
}

func TestLoadJSONFile(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/data/items.json": `[{"id": 1, "price": 9.5}, {"id": 2}]`,
	})
	records, err := l.Load(context.Background(), &Location{File: "/data/items.json"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, 9.5, records[0]["price"])
}

func TestLoadYAMLFile(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/data/items.yaml": "- id: 1\n  name: first\n- id: 2\n  name: second\n",
	})
	records, err := l.Load(context.Background(), &Location{File: "/data/items.yaml"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[1]["id"])
	assert.Equal(t, "second", records[1]["name"])
}

func TestLoadKeypathMultiplyLimit(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/data/wrapped.json": `{"payload": {"products": [{"id": 1}, {"id": 2}]}}`,
	})
	records, err := l.Load(context.Background(), &Location{
		File:     "/data/wrapped.json",
		Keypath:  []string{"payload", "products"},
		Multiply: 3,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, int64(1), records[4]["id"])

	// multiplied records must be independent copies
	records[0]["id"] = int64(99)
	assert.Equal(t, int64(1), records[2]["id"])
}

func TestLoadMissingKeypath(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/data/wrapped.json": `{"products": []}`,
	})
	_, err := l.Load(context.Background(), &Location{
		File:    "/data/wrapped.json",
		Keypath: []string{"nope"},
	})
	require.Error(t, err)
}

func TestLoadNotAList(t *testing.T) {
	l := memLoader(t, map[string]string{
		"/data/obj.json": `{"id": 1}`,
	})
	_, err := l.Load(context.Background(), &Location{File: "/data/obj.json"})
	require.Error(t, err)
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": [{"id": 1, "title": "thing"}]}`))
	}))
	defer srv.Close()

	l := NewLoader(afero.NewMemMapFs())
	l.Client = srv.Client()
	records, err := l.Load(context.Background(), &Location{
		URL:     srv.URL,
		Keypath: []string{"products"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "thing", records[0]["title"])
}

func TestLoadURLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := NewLoader(afero.NewMemMapFs())
	l.Client = srv.Client()
	_, err := l.Load(context.Background(), &Location{URL: srv.URL})
	require.Error(t, err)
}

func TestLoadSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectQuery("SELECT id, title FROM products").WillReturnRows(
		sqlmock.NewRows([]string{"id", "title"}).
			AddRow(int64(1), []byte("first")).
			AddRow(int64(2), []byte("second")))
	mock.ExpectClose()

	l := NewLoader(afero.NewMemMapFs())
	l.OpenDB = func(driver, dsn string) (*sqlx.DB, error) {
		assert.Equal(t, "postgres", driver)
		return sqlx.NewDb(db, driver), nil
	}

	records, err := l.Load(context.Background(), &Location{
		DB:  "postgres://user@db/shop",
		SQL: "SELECT id, title FROM products",
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, "first", records[0]["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSQLNeedsQuery(t *testing.T) {
	l := NewLoader(afero.NewMemMapFs())
	_, err := l.Load(context.Background(), &Location{DB: "postgres://user@db/shop"})
	require.Error(t, err)
}
