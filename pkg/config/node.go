// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
	yaml "gopkg.in/yaml.v2"

	"github.com/sashimi-data/sashimi/pkg/util/log"
)

// Role is the level of a configuration node in the tree.
type Role string

// Roles, root first.
const (
	RoleMaster  Role = "master"
	RoleProject Role = "project"
	RoleDataset Role = "dataset"
)

// Node is one level of the master/project/dataset configuration tree.
// Scalar keys resolve nearest-defined walking leaf to root (role defaults
// shadow parent values, like the original tree); tokens and trusted_ips
// accumulate over the whole chain. Unknown keys are preserved, never
// rejected.
type Node struct {
	role   Role
	parent *Node
	path   string
	fs     afero.Fs

	mu     sync.RWMutex
	values map[string]interface{}
}

var errNoBackingFile = errors.New("config node has no backing file")

var roleDefaults = map[Role]map[string]interface{}{
	RoleMaster: {
		"tokens":         []interface{}{},
		"trusted_ips":    []interface{}{},
		"datasets":       map[string]interface{}{},
		"sandbox":        false,
		"sandbox_expire": 86400,
	},
	RoleProject: {
		"tokens":         []interface{}{},
		"trusted_ips":    []interface{}{},
		"sandbox":        false,
		"sandbox_expire": 86400,
	},
	RoleDataset: {
		"tokens":      []interface{}{},
		"trusted_ips": []interface{}{},
		"format":      "json",
		"search":      map[string]interface{}{},
		"limit":       20,
	},
}

// NewNode creates a configuration node with no backing file.
func NewNode(role Role, parent *Node) *Node {
	return &Node{
		role:   role,
		parent: parent,
		values: make(map[string]interface{}),
	}
}

// LoadNode creates a node backed by a YAML file. A missing file leaves the
// node on role defaults; a YAML error is logged and does the same, so a
// broken config never takes a project down.
func LoadNode(fs afero.Fs, path string, role Role, parent *Node) *Node {
	n := &Node{
		role:   role,
		parent: parent,
		path:   path,
		fs:     fs,
		values: make(map[string]interface{}),
	}
	n.Reload()
	return n
}

// Role returns the node's role.
func (n *Node) Role() Role {
	return n.role
}

// Parent returns the parent node, nil for the master.
func (n *Node) Parent() *Node {
	return n.parent
}

// Path returns the backing file path, empty for in-memory nodes.
func (n *Node) Path() string {
	return n.path
}

// Reload re-reads the backing file, replacing the node's own values.
func (n *Node) Reload() {
	if n.path == "" || n.fs == nil {
		return
	}

	raw, err := afero.ReadFile(n.fs, n.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("cannot read config %s: %v", n.path, err)
		}
		return
	}

	var parsed map[interface{}]interface{}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		log.Errorf("YAML error in %s: %v", n.path, err)
		return
	}

	n.mu.Lock()
	n.values = NormalizeValue(parsed).(map[string]interface{})
	n.mu.Unlock()
}

// Get resolves a key: explicit value at this node, else the role default,
// else the parent chain.
func (n *Node) Get(key string) interface{} {
	n.mu.RLock()
	v, ok := n.values[key]
	n.mu.RUnlock()
	if ok {
		return v
	}
	if v, ok := roleDefaults[n.role][key]; ok {
		return v
	}
	if n.parent != nil {
		return n.parent.Get(key)
	}
	return nil
}

// GetString resolves a key as a string.
func (n *Node) GetString(key string) string {
	return cast.ToString(n.Get(key))
}

// GetBool resolves a key as a bool.
func (n *Node) GetBool(key string) bool {
	return cast.ToBool(n.Get(key))
}

// GetInt resolves a key as an int pointer, nil when unset or not a number.
func (n *Node) GetInt(key string) *int {
	v := n.Get(key)
	if v == nil {
		return nil
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return nil
	}
	return &i
}

// GetStringSlice resolves a key as a list of strings at this node only
// (no inheritance), nil when unset.
func (n *Node) GetStringSlice(key string) []string {
	n.mu.RLock()
	v, ok := n.values[key]
	n.mu.RUnlock()
	if !ok {
		return nil
	}
	return cast.ToStringSlice(v)
}

// GetStringMap resolves a key as a map, nil when unset.
func (n *Node) GetStringMap(key string) map[string]interface{} {
	v := n.Get(key)
	if v == nil {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return m
}

// Set assigns one of the node's own values.
func (n *Node) Set(key string, value interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[key] = value
}

// AppendString appends a value to one of the node's own list keys.
func (n *Node) AppendString(key string, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	list := cast.ToStringSlice(n.values[key])
	list = append(list, value)
	out := make([]interface{}, 0, len(list))
	for _, s := range list {
		out = append(out, s)
	}
	n.values[key] = out
}

// concat collects a list-valued key over the whole chain, leaf first.
func (n *Node) concat(key string) []string {
	var out []string
	for node := n; node != nil; node = node.parent {
		out = append(out, node.GetStringSlice(key)...)
	}
	return out
}

// Tokens returns the effective bearer tokens: the node's own plus all
// ancestors', concatenated.
func (n *Node) Tokens() []string {
	return n.concat("tokens")
}

// TrustedIPs returns the effective trusted CIDR blocks, concatenated the
// same way as Tokens.
func (n *Node) TrustedIPs() []string {
	return n.concat("trusted_ips")
}

// Own returns a copy of the node's explicit values, without defaults or
// inherited keys.
func (n *Node) Own() map[string]interface{} {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]interface{}, len(n.values))
	for k, v := range n.values {
		out[k] = v
	}
	return out
}

// Save serializes the node's own values as YAML to the backing file.
func (n *Node) Save() error {
	if n.fs == nil || n.path == "" {
		return errNoBackingFile
	}
	raw, err := yaml.Marshal(n.Own())
	if err != nil {
		return err
	}
	return afero.WriteFile(n.fs, n.path, raw, 0o644)
}

// SaveRaw validates a raw YAML body, writes it verbatim and reloads the
// node. The returned error distinguishes a YAML problem from an IO one.
func (n *Node) SaveRaw(raw []byte) error {
	if n.fs == nil || n.path == "" {
		return errNoBackingFile
	}
	var parsed map[interface{}]interface{}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return err
	}
	if err := afero.WriteFile(n.fs, n.path, raw, 0o644); err != nil {
		return err
	}
	n.Reload()
	return nil
}

// ApplyEnv seeds a master node from the environment:
// SASHIMI_DATASET ("name:location ..." pairs), SASHIMI_TOKEN,
// SASHIMI_TRUSTED_IP and SASHIMI_IP_HEADER.
func (n *Node) ApplyEnv() {
	if spec := os.Getenv("SASHIMI_DATASET"); spec != "" {
		datasets := make(map[string]interface{})
		for k, v := range n.GetStringMap("datasets") {
			datasets[k] = v
		}
		for _, dsline := range strings.Fields(spec) {
			parts := strings.SplitN(dsline, ":", 2)
			if len(parts) != 2 {
				log.Warnf("SASHIMI_DATASET: cannot parse %q, want name:location", dsline)
				continue
			}
			name, location := parts[0], parts[1]
			if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
				datasets[name] = map[string]interface{}{"url": location}
			} else {
				datasets[name] = map[string]interface{}{"file": location}
			}
		}
		n.Set("datasets", datasets)
	}

	if token := os.Getenv("SASHIMI_TOKEN"); token != "" {
		n.AppendString("tokens", token)
	}

	if ips := os.Getenv("SASHIMI_TRUSTED_IP"); ips != "" {
		for _, ip := range strings.Fields(ips) {
			n.AppendString("trusted_ips", ip)
		}
	}

	if header := os.Getenv("SASHIMI_IP_HEADER"); header != "" {
		n.Set("ip_header", header)
	}
}

// NormalizeValue rewrites a decoded YAML value into the JSON-compatible
// shapes the rest of the service works with: map keys become strings,
// integral numbers become int64, everything else stays.
func NormalizeValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[cast.ToString(k)] = NormalizeValue(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = NormalizeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, val := range v {
			out = append(out, NormalizeValue(val))
		}
		return out
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}
