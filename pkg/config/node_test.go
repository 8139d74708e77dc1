// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T, masterYAML, projectYAML, datasetYAML string) (*Node, *Node, *Node) {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/sashimi.yml", []byte(masterYAML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/p/__project.yml", []byte(projectYAML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/p/_products.yaml", []byte(datasetYAML), 0o644))

	master := LoadNode(fs, "/etc/sashimi.yml", RoleMaster, nil)
	project := LoadNode(fs, "/data/p/__project.yml", RoleProject, master)
	dataset := LoadNode(fs, "/data/p/_products.yaml", RoleDataset, project)
	return master, project, dataset
}

func TestTokenInheritance(t *testing.T) {
	_, project, dataset := newTree(t,
		"tokens: [master-token]\n",
		"tokens: [project-token]\n",
		"tokens: [dataset-token]\n")

	assert.ElementsMatch(t, []string{"dataset-token", "project-token", "master-token"}, dataset.Tokens())
	assert.ElementsMatch(t, []string{"project-token", "master-token"}, project.Tokens())
}

func TestScalarResolution(t *testing.T) {
	master, project, dataset := newTree(t,
		"ip_header: X-Real-IP\nsandbox_expire: 60\n",
		"sandbox: true\n",
		"")

	// nearest defined wins, walking to the root when nothing closer exists
	assert.Equal(t, "X-Real-IP", dataset.GetString("ip_header"))
	assert.True(t, project.GetBool("sandbox"))
	assert.False(t, master.GetBool("sandbox"))

	// role defaults shadow parent values
	limit := dataset.GetInt("limit")
	require.NotNil(t, limit)
	assert.Equal(t, 20, *limit)
	assert.Equal(t, "json", dataset.GetString("format"))

	// project role has no limit default, so it stays unset
	assert.Nil(t, project.GetInt("limit"))
}

func TestUnknownKeysPreserved(t *testing.T) {
	_, project, _ := newTree(t, "", "my_custom_key: hello\n", "")

	assert.Equal(t, "hello", project.GetString("my_custom_key"))
	assert.Contains(t, project.Own(), "my_custom_key")
}

func TestBrokenYAMLLeavesDefaults(t *testing.T) {
	_, _, dataset := newTree(t, "", "", ": : :\nnot yaml at all [")

	limit := dataset.GetInt("limit")
	require.NotNil(t, limit)
	assert.Equal(t, 20, *limit)
	assert.Empty(t, dataset.Own())
}

func TestSaveRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	node := LoadNode(fs, "/data/p/__project.yml", RoleProject, nil)
	node.Set("sandbox", true)
	node.AppendString("tokens", "abc")
	require.NoError(t, node.Save())

	reloaded := LoadNode(fs, "/data/p/__project.yml", RoleProject, nil)
	assert.True(t, reloaded.GetBool("sandbox"))
	assert.Equal(t, []string{"abc"}, reloaded.Tokens())
}

func TestSaveRawRejectsBadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	node := LoadNode(fs, "/data/p/__project.yml", RoleProject, nil)

	require.Error(t, node.SaveRaw([]byte("{{ not yaml")))

	require.NoError(t, node.SaveRaw([]byte("tokens: [tok]\n")))
	assert.Equal(t, []string{"tok"}, node.Tokens())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SASHIMI_DATASET", "products:/data/products.json remote:https://example.com/ds.json")
	t.Setenv("SASHIMI_TOKEN", "env-token")
	t.Setenv("SASHIMI_TRUSTED_IP", "10.0.0.0/8 192.168.1.1")
	t.Setenv("SASHIMI_IP_HEADER", "X-Forwarded-For")

	master := NewNode(RoleMaster, nil)
	master.ApplyEnv()

	datasets := master.GetStringMap("datasets")
	require.Len(t, datasets, 2)
	assert.Equal(t, map[string]interface{}{"file": "/data/products.json"}, datasets["products"])
	assert.Equal(t, map[string]interface{}{"url": "https://example.com/ds.json"}, datasets["remote"])

	assert.Equal(t, []string{"env-token"}, master.Tokens())
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, master.TrustedIPs())
	assert.Equal(t, "X-Forwarded-For", master.GetString("ip_header"))
}

func TestNormalizeValue(t *testing.T) {
	v := NormalizeValue(map[interface{}]interface{}{
		"n":    1,
		"f":    1.5,
		"list": []interface{}{map[interface{}]interface{}{"x": 2}},
	})

	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(1), m["n"])
	assert.Equal(t, 1.5, m["f"])
	inner := m["list"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, int64(2), inner["x"])
}
