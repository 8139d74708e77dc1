// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config implements the service configuration: a viper-backed
// process configuration plus the three-level master/project/dataset
// node tree with list-merging inheritance.
package config

import (
	"strings"
)

// Sashimi is the global process configuration object. Keys can be
// overridden with SASHIMI_* environment variables.
var Sashimi Config

func init() {
	Sashimi = NewConfig("sashimi", "SASHIMI", strings.NewReplacer(".", "_"))
	initConfig(Sashimi)
}

func initConfig(config Config) {
	config.BindEnvAndSetDefault("bind", ":8000")
	config.BindEnvAndSetDefault("log_level", "info")
	config.BindEnvAndSetDefault("log_file", "")
	config.BindEnvAndSetDefault("projects", "")
	config.BindEnvAndSetDefault("model", "default")
	config.BindEnvAndSetDefault("origins", []string{})
}

// ConfigSearchPaths are the default locations probed for sashimi.yml when
// neither --config nor SASHIMI_CONFIG is given.
var ConfigSearchPaths = []string{
	".",
	"/data/etc",
	"/etc",
}
