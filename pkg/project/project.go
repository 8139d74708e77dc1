// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package project

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"

	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/dataset"
	"github.com/sashimi-data/sashimi/pkg/eval"
	"github.com/sashimi-data/sashimi/pkg/util/log"
)

const (
	projectConfigFile = "__project.yml"
	loadedTimeFormat  = "2006-01-02 15:04:05"
)

// Project is one tenant: a directory of datasets with a shared
// configuration node under the master config.
type Project struct {
	name   string
	path   string
	fs     afero.Fs
	cfg    *config.Node
	model  *eval.Model
	clock  clock.Clock
	loader *dataset.Loader

	mu       sync.RWMutex
	datasets map[string]*dataset.Dataset
}

// Open reads a project directory: its __project.yml config and every
// *.json dataset file not starting with an underscore. A dataset that
// fails to load is logged and skipped, never fatal.
func Open(ctx context.Context, fs afero.Fs, path, name string, master *config.Node, model *eval.Model, clk clock.Clock, loader *dataset.Loader) *Project {
	p := &Project{
		name:     name,
		path:     path,
		fs:       fs,
		model:    model,
		clock:    clk,
		loader:   loader,
		datasets: make(map[string]*dataset.Dataset),
	}
	p.cfg = config.LoadNode(fs, p.ConfigPath(), config.RoleProject, master)

	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		log.Errorf("cannot scan project %s: %v", name, err)
		return p
	}
	for _, entry := range entries {
		fname := entry.Name()
		if entry.IsDir() || strings.HasPrefix(fname, "_") || !strings.HasSuffix(fname, ".json") {
			continue
		}
		dsname := strings.TrimSuffix(fname, ".json")
		ds := p.newDataset(dsname)
		records, err := loader.Load(ctx, &dataset.Location{File: filepath.Join(path, fname)})
		if err != nil {
			log.Errorf("project %s: cannot load dataset %s: %v", name, dsname, err)
			continue
		}
		ds.SetData(records, "", "")
		ds.MarkLocal()
		p.datasets[dsname] = ds
		log.Infof("project %s: loaded dataset %s (%d records)", name, dsname, len(records))
	}
	return p
}

func (p *Project) newDataset(name string) *dataset.Dataset {
	dsCfg := config.LoadNode(p.fs, p.DatasetConfigPath(name), config.RoleDataset, p.cfg)
	return dataset.New(name, p.name, dsCfg, p.model, p.clock)
}

// Name returns the project name.
func (p *Project) Name() string {
	return p.name
}

// Config returns the project configuration node.
func (p *Project) Config() *config.Node {
	return p.cfg
}

// ConfigPath returns the path of the project config file.
func (p *Project) ConfigPath() string {
	return filepath.Join(p.path, projectConfigFile)
}

// DatasetConfigPath returns the path of a dataset's config file.
func (p *Project) DatasetConfigPath(name string) string {
	return filepath.Join(p.path, "_"+name+".yaml")
}

// DatasetPath returns the backing file path for a server-side dataset.
func (p *Project) DatasetPath(name string) string {
	return filepath.Join(p.path, name+".json")
}

// Dataset looks up a dataset by name.
func (p *Project) Dataset(name string) (*dataset.Dataset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ds, ok := p.datasets[name]
	return ds, ok
}

// DatasetNames returns the dataset names, sorted.
func (p *Project) DatasetNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.datasets))
	for name := range p.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSandbox reports whether the project expires uploaded datasets.
func (p *Project) IsSandbox() bool {
	return p.cfg.GetBool("sandbox")
}

// Upload replaces or creates a dataset from client-provided records.
// In a sandbox project the secret is stored and must match on the next
// replacement; elsewhere secrets are ignored. When the project is not a
// sandbox the records are also persisted to the dataset file.
func (p *Project) Upload(name string, records []dataset.Record, ip, secret string) (*dataset.Dataset, error) {
	p.mu.Lock()
	ds, ok := p.datasets[name]
	if !ok {
		ds = p.newDataset(name)
		p.datasets[name] = ds
	}
	p.mu.Unlock()

	if p.IsSandbox() {
		if !ds.CheckSecret(secret) {
			return nil, ErrSecretMismatch
		}
	} else {
		secret = ""
	}
	ds.SetData(records, ip, secret)

	if !p.IsSandbox() {
		raw, err := dataset.EncodeRecords(records)
		if err != nil {
			return nil, err
		}
		if err := afero.WriteFile(p.fs, p.DatasetPath(name), raw, 0o644); err != nil {
			return nil, err
		}
		ds.MarkLocal()
	}
	return ds, nil
}

// Remove deletes a dataset and its backing files. It reports whether
// the dataset existed.
func (p *Project) Remove(name string) bool {
	p.mu.Lock()
	_, ok := p.datasets[name]
	delete(p.datasets, name)
	p.mu.Unlock()
	if !ok {
		return false
	}
	for _, path := range []string{p.DatasetConfigPath(name), p.DatasetPath(name)} {
		if exists, _ := afero.Exists(p.fs, path); exists {
			if err := p.fs.Remove(path); err != nil {
				log.Warnf("cannot remove %s: %v", path, err)
			}
		}
	}
	return true
}

// NewKey generates a fresh 50-character api key, appends it to the
// project's own tokens and persists the config. The in-memory node is
// reloaded so the key is valid immediately.
func (p *Project) NewKey() (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	// edit the file-backed values only, without inherited keys
	own := config.LoadNode(p.fs, p.ConfigPath(), config.RoleProject, nil)
	own.AppendString("tokens", token)
	if err := own.Save(); err != nil {
		return "", err
	}
	p.cfg.Reload()
	return token, nil
}

// Cron evicts expired sandbox datasets. Server-loaded datasets never
// expire.
func (p *Project) Cron(now time.Time) {
	if !p.IsSandbox() {
		return
	}
	expire := 86400
	if v := p.cfg.GetInt("sandbox_expire"); v != nil {
		expire = *v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, ds := range p.datasets {
		if ds.IsLocal() {
			continue
		}
		if now.After(ds.Loaded().Add(time.Duration(expire) * time.Second)) {
			log.Infof("project %s: sandbox dataset %s expired", p.name, name)
			delete(p.datasets, name)
		}
	}
}

// Info summarizes the project and its datasets for the listing
// endpoint.
func (p *Project) Info() map[string]interface{} {
	info := map[string]interface{}{
		"project": p.name,
	}
	sandbox := p.IsSandbox()
	if sandbox {
		info["sandbox"] = true
	}

	datasets := make(map[string]interface{})
	p.mu.RLock()
	for name, ds := range p.datasets {
		dsInfo := map[string]interface{}{
			"items":     ds.Items(),
			"size":      ds.SizeBytes(),
			"status":    ds.Status(),
			"local":     ds.IsLocal(),
			"update IP": ds.UpdateIP(),
			"loaded":    ds.Loaded().UTC().Format(loadedTimeFormat),
		}
		if sandbox {
			dsInfo["secret"] = ds.HasSecret()
		}
		datasets[name] = dsInfo
	}
	p.mu.RUnlock()
	info["datasets"] = datasets
	return info
}
