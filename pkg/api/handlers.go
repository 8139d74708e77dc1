// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/dataset"
	"github.com/sashimi-data/sashimi/pkg/project"
)

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) (*project.Project, bool) {
	name := mux.Vars(r)["project"]
	p, ok := s.registry.Project(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No such project '%s'", name))
		return nil, false
	}
	return p, true
}

func (s *Server) getProjectDataset(w http.ResponseWriter, r *http.Request) (*project.Project, *dataset.Dataset, bool) {
	p, ok := s.getProject(w, r)
	if !ok {
		return nil, nil, false
	}
	name := mux.Vars(r)["ds"]
	ds, ok := p.Dataset(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No such dataset '%s' in project '%s'", name, p.Name()))
		return nil, nil, false
	}
	return p, ds, true
}

func decodeQuery(r *http.Request) (*dataset.SearchQuery, error) {
	var sq dataset.SearchQuery
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&sq); err != nil {
		return nil, dataset.NewInputError("cannot parse request body: %v", err)
	}
	sq.Normalize()
	return &sq, nil
}

// POST /ds/
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	if err := checkToken(r, s.registry.Master()); err != nil {
		respondError(w, err)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot parse request body: %v", err))
		return
	}
	apikey, err := s.registry.Create(r.Context(), body.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apikey": apikey})
}

// POST /ds/{project}
func (s *Server) projectOp(w http.ResponseWriter, r *http.Request) {
	if err := checkToken(r, s.registry.Master()); err != nil {
		respondError(w, err)
		return
	}
	p, ok := s.getProject(w, r)
	if !ok {
		return
	}
	var body struct {
		Op string `json:"op"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot parse request body: %v", err))
		return
	}
	switch body.Op {
	case "new-key":
		apikey, err := p.NewKey()
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"apikey": apikey})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown project operation '%s'", body.Op))
	}
}

// GET /ds/{project}
func (s *Server) projectInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.getProject(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, p.Config()); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Info())
}

// GET /ds/{project}/_config
func (s *Server) getProjectConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := s.getProject(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, p.Config()); err != nil {
		respondError(w, err)
		return
	}
	s.serveConfigFile(w, p.ConfigPath(), fmt.Sprintf("No config set for %s", p.Name()))
}

// POST /ds/{project}/_config
func (s *Server) postProjectConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := s.getProject(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, p.Config()); err != nil {
		respondError(w, err)
		return
	}
	if !s.saveConfig(w, r, p.Config()) {
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("Saved config for %s", p.Name()))
}

// GET /ds/{project}/{ds}/_config
func (s *Server) getDatasetConfig(w http.ResponseWriter, r *http.Request) {
	p, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, ds.Config()); err != nil {
		respondError(w, err)
		return
	}
	s.serveConfigFile(w, p.DatasetConfigPath(ds.Name()),
		fmt.Sprintf("No config set for %s / %s", p.Name(), ds.Name()))
}

// POST /ds/{project}/{ds}/_config
func (s *Server) postDatasetConfig(w http.ResponseWriter, r *http.Request) {
	p, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, ds.Config()); err != nil {
		respondError(w, err)
		return
	}
	if !s.saveConfig(w, r, ds.Config()) {
		return
	}
	ds.ReloadConfig()
	writeText(w, http.StatusOK, fmt.Sprintf("Saved config for %s / %s", p.Name(), ds.Name()))
}

func (s *Server) serveConfigFile(w http.ResponseWriter, path, missing string) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		writeError(w, http.StatusNotFound, missing)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *Server) saveConfig(w http.ResponseWriter, r *http.Request, node *config.Node) bool {
	raw, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := node.SaveRaw(raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("YAML error: %v", err))
		return false
	}
	return true
}

// POST /ds/{project}/{ds}
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	_, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	sq, err := decodeQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	start := time.Now()
	resp, err := ds.Search(sq)
	if err != nil {
		respondError(w, err)
		return
	}
	resp.Time = roundTime(time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// GET /ds/{project}/{ds}
func (s *Server) datasetStatus(w http.ResponseWriter, r *http.Request) {
	_, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Status())
}

// GET /ds/{project}/{ds}/{search}
func (s *Server) namedSearch(w http.ResponseWriter, r *http.Request) {
	_, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["search"]
	if ds.NamedSearch(name) == nil {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("No such named search '%s' in ds '%s'", name, ds.Name()))
		return
	}

	start := time.Now()
	cached, err := ds.RunNamed(name)
	if err != nil {
		respondError(w, err)
		return
	}
	// shallow copy so the cached envelope keeps its identity while each
	// response reports its own time
	resp := *cached
	resp.Time = roundTime(time.Since(start))
	writeJSON(w, http.StatusOK, &resp)
}

// PATCH /ds/{project}/{ds}
func (s *Server) patchDataset(w http.ResponseWriter, r *http.Request) {
	_, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, ds.Config()); err != nil {
		respondError(w, err)
		return
	}
	sq, err := decodeQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	start := time.Now()
	switch sq.Op {
	case "delete":
		resp, err := ds.Delete(sq)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Time = roundTime(time.Since(start))
		writeJSON(w, http.StatusOK, resp)
	case "update":
		ip, err := clientIP(r, ds.Config())
		if err != nil {
			respondError(w, err)
			return
		}
		resp, err := ds.Update(sq, ip)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Time = roundTime(time.Since(start))
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown PATCH operation '%s'", sq.Op))
	}
}

// PUT /ds/{project}/{ds}
func (s *Server) insertRecord(w http.ResponseWriter, r *http.Request) {
	p, ds, ok := s.getProjectDataset(w, r)
	if !ok {
		return
	}
	if err := checkToken(r, ds.Config()); err != nil {
		respondError(w, err)
		return
	}
	sq, err := decodeQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}
	doc, err := dataset.DecodeJSON([]byte(sq.Data))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot parse data: %v", err))
		return
	}
	rec, ok := doc.(map[string]interface{})
	if !ok {
		writeError(w, http.StatusBadRequest, "data must be a JSON object")
		return
	}

	size := ds.Insert(rec)
	writeText(w, http.StatusOK,
		fmt.Sprintf("Inserted record to '%s' in project '%s' new size: %d.", ds.Name(), p.Name(), size))
}

// PUT /ds/{project}
func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request) {
	s.registry.Cron()

	p, ok := s.getProject(w, r)
	if !ok {
		return
	}
	var body struct {
		Name   string        `json:"name"`
		DS     []interface{} `json:"ds"`
		Secret string        `json:"secret"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot parse request body: %v", err))
		return
	}
	if err := project.ValidateDatasetName(body.Name); err != nil {
		respondError(w, err)
		return
	}

	// auth against the dataset when it exists, else the project
	authNode := p.Config()
	if ds, ok := p.Dataset(body.Name); ok {
		authNode = ds.Config()
	}
	if err := checkToken(r, authNode); err != nil {
		respondError(w, err)
		return
	}
	if err := checkPermission(authNode, "upload"); err != nil {
		respondError(w, err)
		return
	}

	records, err := dataset.CoerceRecords(dataset.NormalizeValue(body.DS))
	if err != nil {
		respondError(w, err)
		return
	}

	ip, err := clientIP(r, authNode)
	if err != nil {
		respondError(w, err)
		return
	}
	if _, err := p.Upload(body.Name, records, ip, body.Secret); err != nil {
		respondError(w, err)
		return
	}
	writeText(w, http.StatusOK,
		fmt.Sprintf("Loaded dataset '%s' (%d records)", body.Name, len(records)))
}

// DELETE /ds/{project}
func (s *Server) removeDataset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.getProject(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot parse request body: %v", err))
		return
	}
	ds, ok := p.Dataset(body.Name)
	if !ok {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("Not found dataset '%s' in project '%s'", body.Name, p.Name()))
		return
	}
	if err := checkToken(r, ds.Config()); err != nil {
		respondError(w, err)
		return
	}
	if err := checkPermission(ds.Config(), "rm"); err != nil {
		respondError(w, err)
		return
	}

	p.Remove(body.Name)
	s.registry.Cron()
	writeText(w, http.StatusOK,
		fmt.Sprintf("Removed dataset '%s' from project '%s'.", body.Name, p.Name()))
}
