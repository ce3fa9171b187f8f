// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/googleapis/toolbox-federate/internal/config"
	"github.com/googleapis/toolbox-federate/internal/log"
	"github.com/googleapis/toolbox-federate/internal/lifecycle"
	"github.com/googleapis/toolbox-federate/internal/server"
	"github.com/googleapis/toolbox-federate/internal/sources"

	// Register the three connector kinds with internal/sources' factory
	// registry via their init() functions.
	_ "github.com/googleapis/toolbox-federate/internal/sources/file"
	_ "github.com/googleapis/toolbox-federate/internal/sources/relational"
	_ "github.com/googleapis/toolbox-federate/internal/sources/webapi"
)

var (
	// versionString indicates the version of this library.
	//go:embed version.txt
	versionString string
	// metadataString indicates additional build or distribution metadata.
	metadataString string
)

func init() {
	versionString = semanticVersion()
}

// semanticVersion returns the version of the CLI including compile-time metadata.
func semanticVersion() string {
	v := strings.TrimSpace(versionString)
	if metadataString != "" {
		v += "+" + metadataString
	}
	return v
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to the rootCmd.
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliConfig is the set of flags NewCommand exposes.
type cliConfig struct {
	configFile     string
	logLevel       string
	loggingFormat  string
	resultTmpDir   string
	resultExpiry   int
	requestTimeout int
}

// Command represents an invocation of the CLI.
type Command struct {
	*cobra.Command

	cfg       cliConfig
	logger    log.Logger
	outStream io.Writer
	errStream io.Writer
}

// NewCommand returns a Command object representing an invocation of the CLI.
func NewCommand() *Command {
	baseCmd := &cobra.Command{
		Use:           "federate",
		Version:       versionString,
		SilenceErrors: true,
	}
	cmd := &Command{
		Command:   baseCmd,
		outStream: os.Stdout,
		errStream: os.Stderr,
	}
	baseCmd.SetOut(cmd.outStream)
	baseCmd.SetErr(cmd.errStream)

	flags := cmd.Flags()
	flags.StringVarP(&cmd.cfg.configFile, "config", "c", "config.yaml", "File path specifying the data source, model, endpoint, and engine configuration.")
	flags.StringVar(&cmd.cfg.logLevel, "log-level", "info", "Specify the minimum level logged. Allowed: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&cmd.cfg.loggingFormat, "logging-format", "standard", "Specify logging format to use. Allowed: 'standard' or 'json'.")
	flags.StringVar(&cmd.cfg.resultTmpDir, "result-tmp-dir", "", "Override the configured result_tmp_dir spill directory.")
	flags.IntVar(&cmd.cfg.resultExpiry, "result-set-expiry-mins", 0, "Override the configured result_set_expiry, in minutes.")
	flags.IntVar(&cmd.cfg.requestTimeout, "request-timeout-mins", 5, "Maximum minutes a submitted query is allowed to run before its pipeline is cancelled.")

	cmd.RunE = func(*cobra.Command, []string) error { return run(cmd) }
	cmd.AddCommand(newPlanCmd(cmd))

	return cmd
}

func run(cmd *Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	switch strings.ToLower(cmd.cfg.loggingFormat) {
	case "json":
		logger, err := log.NewStructuredLogger(cmd.outStream, cmd.errStream, cmd.cfg.logLevel)
		if err != nil {
			return fmt.Errorf("unable to initialize logger: %w", err)
		}
		cmd.logger = logger
	case "standard":
		logger, err := log.NewStdLogger(cmd.outStream, cmd.errStream, cmd.cfg.logLevel)
		if err != nil {
			return fmt.Errorf("unable to initialize logger: %w", err)
		}
		cmd.logger = logger
	default:
		return fmt.Errorf("logging format invalid")
	}

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		cmd.logger.Error(err.Error())
		return err
	}

	if cmd.cfg.resultTmpDir != "" {
		cfg.Engine.ResultTmpDir = cmd.cfg.resultTmpDir
	}
	if cmd.cfg.resultExpiry > 0 {
		cfg.Engine.ResultSetExpiry = time.Duration(cmd.cfg.resultExpiry) * time.Minute
	}

	resolver := server.NewStaticResolver(cfg.Sources)
	manager, err := lifecycle.NewManager(lifecycle.Config{
		ResultDir:      cfg.Engine.ResultTmpDir,
		ResultExpiry:   cfg.Engine.ResultSetExpiry,
		RequestTimeout: time.Duration(cmd.cfg.requestTimeout) * time.Minute,
	}, cfg.Store, resolver, cmd.logger)
	if err != nil {
		errMsg := fmt.Errorf("federate failed to start with the following error: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	defer manager.Stop()

	_ = server.New(manager)
	cmd.logger.Info("engine ready to accept requests")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		cmd.logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	return nil
}

// loadConfig reads cmd.cfg.configFile and decodes it into a config.Config,
// wiring every connector kind's already-registered factory.
func loadConfig(ctx context.Context, cmd *Command) (*config.Config, error) {
	raw, err := os.ReadFile(cmd.cfg.configFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file at %q: %w", cmd.cfg.configFile, err)
	}
	types := defaultTypeRegistry()
	cfg, err := config.Load(ctx, raw, types, sources.NopObserver{})
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file at %q: %w", cmd.cfg.configFile, err)
	}
	return cfg, nil
}

// defaultTypeRegistry seeds the compiled-in (type, version) -> connector
// class / function-capability module table spec §4.2 describes as "static
// at startup from configuration": unlike data_sources, models, and
// endpoints, which name instances, these type entries name the kinds of
// data source this build understands, so they ship as code rather than as
// a fifth config document kind.
func defaultTypeRegistry() *sources.TypeRegistry {
	types := sources.NewTypeRegistry()
	relational := []string{"PostgreSQL", "MySQL", "Oracle", "SQLServer", "Snowflake", "Teradata"}
	for _, t := range relational {
		types.Add(t, nil, sources.ConnectorSpec{Class: sources.ClassRelational, FunctionModule: "relational"})
	}
	file := []string{"CSV", "JSON"}
	for _, t := range file {
		types.Add(t, nil, sources.ConnectorSpec{Class: sources.ClassFile, FunctionModule: "force_all"})
	}
	types.Add("REST", nil, sources.ConnectorSpec{Class: sources.ClassWebAPI, FunctionModule: "force_all"})
	return types
}
