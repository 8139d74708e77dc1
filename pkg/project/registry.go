// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package project

import (
	"context"
	"crypto/rand"
	"math/big"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/dataset"
	"github.com/sashimi-data/sashimi/pkg/eval"
	"github.com/sashimi-data/sashimi/pkg/util/log"
)

const (
	apikeyLength = 50
	cronPeriod   = 10 * time.Second

	// BootstrapProject hosts datasets declared in the master config.
	BootstrapProject = "default"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateToken() (string, error) {
	var b strings.Builder
	for i := 0; i < apikeyLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Registry holds every project, the master configuration and the shared
// expression model. All lookups and the cron sweep go through it.
type Registry struct {
	path   string
	fs     afero.Fs
	master *config.Node
	model  *eval.Model
	clock  clock.Clock
	loader *dataset.Loader

	mu       sync.RWMutex
	projects map[string]*Project

	lastCron *atomic.Int64
}

// NewRegistry creates an empty registry over a projects directory.
func NewRegistry(fs afero.Fs, path string, master *config.Node, model *eval.Model, clk clock.Clock) *Registry {
	return &Registry{
		path:     path,
		fs:       fs,
		master:   master,
		model:    model,
		clock:    clk,
		loader:   dataset.NewLoader(fs),
		projects: make(map[string]*Project),
		lastCron: atomic.NewInt64(0),
	}
}

// Master returns the master configuration node.
func (r *Registry) Master() *config.Node {
	return r.master
}

// Model returns the shared expression model.
func (r *Registry) Model() *eval.Model {
	return r.model
}

// Read scans the projects directory and loads every subdirectory as a
// project.
func (r *Registry) Read(ctx context.Context) error {
	if r.path == "" {
		log.Info("no projects directory configured")
		return nil
	}
	entries, err := afero.ReadDir(r.fs, r.path)
	if err != nil {
		return err
	}
	log.Infof("loading projects from %s", r.path)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		p := Open(ctx, r.fs, filepath.Join(r.path, name), name, r.master, r.model, r.clock, r.loader)
		r.mu.Lock()
		r.projects[name] = p
		r.mu.Unlock()
	}
	return nil
}

// Bootstrap loads datasets declared under the master config's datasets
// key into the reserved default project.
func (r *Registry) Bootstrap(ctx context.Context) error {
	declared := r.master.GetStringMap("datasets")
	if len(declared) == 0 {
		return nil
	}

	p, ok := r.Project(BootstrapProject)
	if !ok {
		path := filepath.Join(r.path, BootstrapProject)
		if r.path != "" {
			if err := r.fs.MkdirAll(path, 0o755); err != nil {
				return err
			}
		}
		p = Open(ctx, r.fs, path, BootstrapProject, r.master, r.model, r.clock, r.loader)
		r.mu.Lock()
		r.projects[BootstrapProject] = p
		r.mu.Unlock()
	}

	for name, rawLoc := range declared {
		loc, err := dataset.ParseLocation(rawLoc)
		if err != nil {
			log.Errorf("dataset %s: %v", name, err)
			continue
		}
		records, err := r.loader.Load(ctx, loc)
		if err != nil {
			log.Errorf("dataset %s: %v", name, err)
			continue
		}
		ds, err := p.Upload(name, records, "", "")
		if err != nil {
			log.Errorf("dataset %s: %v", name, err)
			continue
		}
		ds.MarkLocal()
		log.Infof("bootstrap dataset %s (%d records)", name, len(records))
	}
	return nil
}

// Project looks up a project by name.
func (r *Registry) Project(name string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	return p, ok
}

// Names returns the project names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.projects))
	for name := range r.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

// Create makes a new sandbox project directory and returns its first
// api key.
func (r *Registry) Create(ctx context.Context, name string) (string, error) {
	if err := ValidateProjectName(name); err != nil {
		return "", err
	}

	r.mu.Lock()
	if _, ok := r.projects[name]; ok {
		r.mu.Unlock()
		return "", &AlreadyExistsError{Name: name}
	}
	r.mu.Unlock()

	path := filepath.Join(r.path, name)
	if exists, _ := afero.DirExists(r.fs, path); exists {
		return "", &AlreadyExistsError{Name: name}
	}
	if err := r.fs.MkdirAll(path, 0o755); err != nil {
		return "", err
	}

	// fresh sandbox config, then the project picks it up on open
	cfg := config.LoadNode(r.fs, filepath.Join(path, projectConfigFile), config.RoleProject, nil)
	cfg.Set("sandbox", true)
	if err := cfg.Save(); err != nil {
		return "", err
	}

	p := Open(ctx, r.fs, path, name, r.master, r.model, r.clock, r.loader)
	apikey, err := p.NewKey()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.projects[name] = p
	r.mu.Unlock()
	return apikey, nil
}

// Cron runs the sandbox sweep over all projects, at most once per
// period regardless of how many requests trigger it.
func (r *Registry) Cron() {
	now := r.clock.Now()
	last := r.lastCron.Load()
	if now.Unix() < last+int64(cronPeriod/time.Second) {
		return
	}
	if !r.lastCron.CompareAndSwap(last, now.Unix()) {
		return
	}

	r.mu.RLock()
	projects := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	r.mu.RUnlock()

	for _, p := range projects {
		p.Cron(now)
	}
}

var nameAllowed = func() map[rune]bool {
	allowed := make(map[rune]bool)
	for _, r := range "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-." {
		allowed[r] = true
	}
	return allowed
}()

// ValidateDatasetName enforces the dataset naming rules: no leading
// underscore, only letters, digits, "_", "-" and ".".
func ValidateDatasetName(name string) error {
	if name == "" {
		return &InvalidNameError{Name: name, Reason: "must not be empty"}
	}
	if strings.HasPrefix(name, "_") {
		return &InvalidNameError{Name: name, Reason: "must not start with underscore"}
	}
	for _, r := range name {
		if !nameAllowed[r] {
			return &InvalidNameError{Name: name, Reason: "invalid characters"}
		}
	}
	return nil
}

// ValidateProjectName enforces the same rules for project names, which
// double as directory names.
func ValidateProjectName(name string) error {
	if err := ValidateDatasetName(name); err != nil {
		return err
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return &InvalidNameError{Name: name, Reason: "invalid characters"}
	}
	return nil
}
