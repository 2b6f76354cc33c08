// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/mcp"
	"github.com/jllopis/riskcrew/pkg/risk"
	"github.com/jllopis/riskcrew/pkg/riskdb"
	"github.com/jllopis/riskcrew/pkg/web"
)

// withApp builds the services, seeds an empty store and runs fn.
func (c *cli) withApp(ctx context.Context, opts appOptions, fn func(a *app) error) error {
	a, err := c.newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.seedIfEmpty(ctx); err != nil {
		return err
	}
	return fn(a)
}

func (c *cli) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the risk dashboard, chat assistant and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, appOptions{withCrew: true}, func(a *app) error {
				if addr == "" {
					addr = c.cfg.Web.Addr
				}
				history, err := a.newHistory()
				if err != nil {
					return err
				}

				refresher := riskdb.NewRefresher(a.repo, c.cfg.Refresh.Interval)
				refresher.Start(ctx)
				defer refresher.Stop()

				if c.flags.configPath != "" {
					watcher, err := config.NewWatcher(c.flags.configPath,
						config.WithProfile(c.flags.profile),
						config.WithOverrides(c.flags.sets),
						config.WithWatchLogger(c.logger),
					)
					if err != nil {
						return err
					}
					live := config.NewReloadableConfig(c.cfg)
					watcher.OnChange(func(cfg *config.Config) {
						live.Update(cfg)
						a.repo.SetScoring(ctx, risk.FromConfig(live.Risk()))
						c.logger.Info("config.reload.scoring", slog.Int("levels", len(live.Risk().Levels)))
					})
					watcher.Start(ctx)
					defer watcher.Stop()
				}

				tools := mcp.NewServer(c.cfg.App.Name, version, a.registry,
					mcp.WithMetrics(a.metrics),
					mcp.WithLogger(c.logger),
				)
				srv := web.New(web.Deps{
					Repo:       a.repo,
					Tools:      a.registry,
					Crew:       a.runner(),
					History:    history,
					Health:     a.health,
					Categories: c.cfg.Risk.Categories,
					Logger:     c.logger,
					Guard:      a.guard(),
					Debug:      c.cfg.App.Debug,
					MCP:        tools.HTTPHandler(),
				})
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default web.addr)")
	return cmd
}

func (c *cli) askCommand() *cobra.Command {
	var (
		project   string
		showTasks bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run the risk crew once and print its answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")
			return c.withApp(ctx, appOptions{withCrew: true}, func(a *app) error {
				if a.crew == nil {
					return errors.New(errors.CodeUnavailable, "the risk crew is disabled", nil).
						WithContext("vector.provider", c.cfg.Vector.Provider)
				}
				res, err := a.crew.Kickoff(ctx, question, project)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.flags.json {
					return c.printJSON(out, res)
				}
				if showTasks {
					for _, id := range a.crew.TaskOrder() {
						fmt.Fprintf(out, "## %s\n\n%s\n\n", id, res.Outputs[id])
					}
					return nil
				}
				fmt.Fprintln(out, res.Final)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", config.AllProjects, "project name or id")
	cmd.Flags().BoolVar(&showTasks, "tasks", false, "print the output of every task")
	return cmd
}

func (c *cli) seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Store the sample projects, risks and market signals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			counts, err := a.repo.Seed(ctx)
			if err != nil {
				return err
			}
			if _, err := a.repo.RecordScores(ctx); err != nil {
				return err
			}
			if c.flags.json {
				return c.printJSON(cmd.OutOrStdout(), counts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d projects, %d risks and %d market signals\n",
				counts.Projects, counts.Risks, counts.MarketData)
			return nil
		},
	}
}

func (c *cli) searchCommand() *cobra.Command {
	var (
		project string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Semantic search over the stored risks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			return c.withApp(ctx, appOptions{}, func(a *app) error {
				projectID := ""
				if project != "" && project != config.AllProjects {
					p, err := a.repo.FindProject(ctx, project)
					if err != nil {
						return err
					}
					projectID = p.ID
				}
				found, err := a.repo.QueryRisks(ctx, text, projectID, limit)
				if err != nil {
					return err
				}
				scored := a.repo.Scoring().Score(found)
				out := cmd.OutOrStdout()
				if c.flags.json {
					return c.printJSON(out, scored)
				}
				if len(scored) == 0 {
					fmt.Fprintln(out, "no matching risks")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPROJECT\tTITLE\tCATEGORY\tSCORE\tLEVEL\tSTATUS")
				for _, r := range scored {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.ProjectID, r.Title, r.Category, r.Score, r.Level, r.Status)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", config.AllProjects, "restrict the search to a project name or id")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum number of results")
	return cmd
}

func (c *cli) reportCommand() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate, store and print the markdown risk report of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, appOptions{}, func(a *app) error {
				rep, err := a.registry.GenerateReport(ctx, project)
				if err != nil {
					return err
				}
				if c.flags.json {
					return c.printJSON(cmd.OutOrStdout(), rep)
				}
				fmt.Fprintln(cmd.OutOrStdout(), rep.Content)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", config.AllProjects, "project name or id")
	return cmd
}

func (c *cli) mcpCommand() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the risk tools over MCP (stdio, or streamable HTTP with --http)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, appOptions{}, func(a *app) error {
				srv := mcp.NewServer(c.cfg.App.Name, version, a.registry,
					mcp.WithMetrics(a.metrics),
					mcp.WithLogger(c.logger),
				)
				if httpAddr == "" {
					return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
				}
				return serveHTTP(ctx, c.logger, httpAddr, srv.HTTPHandler())
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}

func serveHTTP(ctx context.Context, logger *slog.Logger, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp.http.start", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *cli) toolsCommand() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List or call the risk tools, locally or on a remote MCP server",
	}
	cmd.PersistentFlags().StringVar(&remote, "remote", "", "MCP server URL or command (default: in-process tools)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var infos []toolInfo
			if remote != "" {
				client, err := mcp.Dial(ctx, remote)
				if err != nil {
					return err
				}
				defer client.Close()
				listed, err := client.ListTools(ctx)
				if err != nil {
					return err
				}
				for _, t := range listed {
					infos = append(infos, toolInfo{Name: t.Name, Description: t.Description})
				}
			} else {
				a, err := c.newApp(ctx, appOptions{})
				if err != nil {
					return err
				}
				defer a.Close()
				for _, t := range a.registry.All() {
					infos = append(infos, toolInfo{Name: t.Name(), Description: t.Description()})
				}
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
			return c.printTools(cmd.OutOrStdout(), infos)
		},
	}

	call := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call a tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := map[string]any{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &input); err != nil {
					return errors.New(errors.CodeInvalidInput, "tool arguments must be a JSON object", err)
				}
			}
			out, err := c.callTool(ctx, remote, args[0], input)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.AddCommand(list, call)
	return cmd
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *cli) printTools(w io.Writer, infos []toolInfo) error {
	if c.flags.json {
		return c.printJSON(w, infos)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range infos {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}
	return tw.Flush()
}

func (c *cli) callTool(ctx context.Context, remote, name string, input map[string]any) (string, error) {
	if remote != "" {
		client, err := mcp.Dial(ctx, remote)
		if err != nil {
			return "", err
		}
		defer client.Close()
		return client.CallTool(ctx, name, input)
	}
	var out string
	err := c.withApp(ctx, appOptions{}, func(a *app) error {
		t, ok := a.registry.Get(name)
		if !ok {
			return errors.InvalidInput("unknown tool %q", name).WithContext("available", strings.Join(a.registry.Names(), ", "))
		}
		var err error
		out, err = t.Invoke(ctx, input)
		return err
	})
	return out, err
}
