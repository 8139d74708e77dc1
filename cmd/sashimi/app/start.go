// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sashimi-data/sashimi/pkg/api"
	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/eval"
	"github.com/sashimi-data/sashimi/pkg/project"
	"github.com/sashimi-data/sashimi/pkg/util/log"
	"github.com/sashimi-data/sashimi/pkg/version"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sashimi server",
	RunE:  start,
}

func init() {
	SashimiCmd.AddCommand(startCmd)
}

func setupConfig() error {
	if confPath == "" {
		confPath = os.Getenv("SASHIMI_CONFIG")
	}
	if confPath != "" {
		config.Sashimi.SetConfigFile(confPath)
	} else {
		for _, path := range config.ConfigSearchPaths {
			config.Sashimi.AddConfigPath(path)
		}
	}
	if err := config.Sashimi.ReadInConfig(); err != nil {
		// a missing config file is fine, the env can carry everything
		if confPath != "" {
			return errors.Wrapf(err, "cannot read config %s", confPath)
		}
		log.Infof("no config file found, using defaults: %v", err)
	}
	return nil
}

func start(cmd *cobra.Command, args []string) error {
	if err := setupConfig(); err != nil {
		return err
	}
	if err := config.SetupLogger(config.Sashimi.GetString("log_level"), config.Sashimi.GetString("log_file")); err != nil {
		return errors.Wrap(err, "cannot set up logger")
	}
	defer log.Flush()

	log.Infof("starting sashimi %s", version.Version)

	fs := afero.NewOsFs()

	// the config file doubles as the master node of the tenant tree
	var master *config.Node
	if used := config.Sashimi.ConfigFileUsed(); used != "" {
		master = config.LoadNode(fs, used, config.RoleMaster, nil)
	} else {
		master = config.NewNode(config.RoleMaster, nil)
	}
	master.ApplyEnv()

	model, err := eval.NewModel(
		config.Sashimi.GetString("model"),
		master.GetStringSlice("nodes"),
		master.GetStringSlice("attributes"),
		master.GetStringSlice("functions"),
	)
	if err != nil {
		return err
	}

	registry := project.NewRegistry(fs, config.Sashimi.GetString("projects"), master, model, clock.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Sashimi.GetString("projects") != "" {
		if err := registry.Read(ctx); err != nil {
			return errors.Wrap(err, "cannot load projects")
		}
	}
	if err := registry.Bootstrap(ctx); err != nil {
		return errors.Wrap(err, "cannot bootstrap datasets")
	}

	server := api.NewServer(registry, fs)
	bind := config.Sashimi.GetString("bind")
	httpServer := &http.Server{
		Addr:    bind,
		Handler: server.Handler(),
	}

	go func() {
		log.Infof("listening on %s", bind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Criticalf("server error: %v", err)
			cancel()
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-signalCh:
		log.Infof("received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
