package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mwantia/mdquery"
	"github.com/mwantia/mdquery/config"
	"github.com/spf13/cobra"

	"github.com/mwantia/mdquery/cli/tui"
)

func main() {
	var (
		source  string
		cfgPath string
		scopes  []string
		limit   int
		debug   string
	)

	cmd := &cobra.Command{
		Use:           "mdquery-tui [predicate]",
		Short:         "Interactive live search over a metadata index",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Source.Address = source
			}
			if cmd.Flags().Changed("scope") {
				cfg.Query.Scopes = scopes
			}
			if cmd.Flags().Changed("limit") {
				cfg.Query.Limit = limit
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			predicate := ""
			if len(args) > 0 {
				predicate = args[0]
			}
			return run(cfg, predicate, debug)
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source address (overrides the config file)")
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Search scope (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (0 for no limit)")
	cmd.Flags().StringVar(&debug, "debug-log", "", "Write debug output to this file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mdquery-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, predicate, debug string) error {
	ctx := context.Background()

	// The terminal belongs to the TUI, logs only go to the debug file
	logger := tui.InitDebugLog(debug)
	defer tui.CloseDebugLog()

	e, err := cfg.NewEngine(logger.Named("engine"))
	if err != nil {
		return err
	}
	if err := e.Open(ctx); err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		e.Close(closeCtx)
	}()

	adapter := tui.NewSearchAdapter(e,
		mdquery.WithScopes(cfg.Query.Scopes...),
		mdquery.WithMaxResultCount(cfg.Query.Limit),
		mdquery.WithLogger(logger.Named("query")),
	)
	defer adapter.Close()

	p := tea.NewProgram(tui.NewModel(adapter, predicate), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
