// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sashimi-data/sashimi/pkg/version"
)

var confPath string

// SashimiCmd is the root command.
var SashimiCmd = &cobra.Command{
	Use:          "sashimi [command]",
	Short:        "Fast and safe search inside structured data",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sashimi %s", version.Version)
		if version.Commit != "" {
			fmt.Printf(" (commit %s)", version.Commit)
		}
		if version.BuildTime != "" {
			fmt.Printf(" built %s", version.BuildTime)
		}
		fmt.Println()
	},
}

func init() {
	SashimiCmd.PersistentFlags().StringVarP(&confPath, "config", "c", "", "path to sashimi.yml")
	SashimiCmd.AddCommand(versionCmd)
}
