// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the riskcrew CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	configPath string
	profile    string
	sets       []string
	envFile    string
	json       bool
}

// cli carries the state shared by the commands of one invocation.
type cli struct {
	flags    globalFlags
	cfg      *config.Config
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
	// newApp is replaced in tests.
	newApp func(ctx context.Context, opts appOptions) (*app, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	root := c.rootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err, c.flags.json)
		os.Exit(1)
	}
}

func (c *cli) rootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "riskcrew",
		Short: "Multi-agent project risk management",
		Long: `riskcrew analyses project risks with a crew of language-model agents
backed by vector memory, and serves a risk dashboard, a chat assistant and
an MCP tool server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.setup(stderr)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.shutdown == nil {
				return nil
			}
			return c.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "path to the YAML configuration file")
	pf.StringVar(&c.flags.profile, "profile", "", "configuration profile, loads config.<profile>.yaml")
	pf.StringArrayVar(&c.flags.sets, "set", nil, "override a configuration key (key=value), repeatable")
	pf.StringVar(&c.flags.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	pf.BoolVar(&c.flags.json, "json", false, "print results and errors as JSON")

	root.AddCommand(
		c.serveCommand(),
		c.askCommand(),
		c.seedCommand(),
		c.searchCommand(),
		c.reportCommand(),
		c.mcpCommand(),
		c.toolsCommand(),
		versionCommand(),
	)
	return root
}

// setup loads the environment and configuration and configures logging and
// telemetry.
func (c *cli) setup(stderr io.Writer) error {
	if c.flags.envFile != "" {
		if err := godotenv.Load(c.flags.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", c.flags.envFile, err)
		}
	}
	cfg, err := config.LoadOptions(c.flags.configPath, c.flags.profile, c.flags.sets)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = telemetry.ConfigureSlog(stderr, cfg.Log.Level, cfg.Log.Format)

	if c.shutdown == nil {
		shutdown, err := telemetry.InitWithConfig("riskcrew", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		c.shutdown = shutdown
	}
	if c.newApp == nil {
		c.newApp = func(ctx context.Context, opts appOptions) (*app, error) {
			return newApp(ctx, c.cfg, c.logger, opts)
		}
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "riskcrew %s (%s)\n", version, commit)
		},
	}
}
