// Package cli implements the stock-council command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"stock-council/config"
	"stock-council/internal/app"
	"stock-council/models"
	"stock-council/observability"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// Bootstrapper builds the application. Tests substitute one that injects
// canned providers.
type Bootstrapper func(ctx context.Context, cfg *config.Config) (*app.App, error)

func defaultBootstrap(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.Bootstrap(ctx, cfg)
}

type runner struct {
	cfg       *config.Config
	bootstrap Bootstrapper
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(defaultBootstrap).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// NewRootCmd creates the root command
func NewRootCmd(bootstrap Bootstrapper) *cobra.Command {
	r := &runner{bootstrap: bootstrap}

	rootCmd := &cobra.Command{
		Use:   "stock-council",
		Short: "Multi-agent A-share stock analysis",
		Long: `stock-council runs a panel of LLM analysts, managers, risk officers and a
general manager over a Shanghai or Shenzhen stock and records their verdicts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Level = "debug"
			}
			observability.InitLoggerWithLevel(cfg.Log.Production, observability.ParseLevel(cfg.Log.Level))
			r.cfg = cfg
			return nil
		},
	}

	rootCmd.AddCommand(r.newServeCmd())
	rootCmd.AddCommand(r.newAnalyzeCmd())
	rootCmd.AddCommand(r.newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

// withApp bootstraps the application for one command and closes it after.
func (r *runner) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := r.bootstrap(ctx, r.cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			observability.Warn("Failed to close application", "error", err)
		}
	}()
	return fn(a)
}

func (r *runner) newAnalyzeCmd() *cobra.Command {
	var keys map[string]string

	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Run the full analysis for one stock and print every report",
		Long: `Run the analysis pipeline for a stock code such as 600519, sh600519 or 000001.
Provider keys are taken from --key provider=KEY, falling back to
<PROVIDER>_API_KEY environment variables (DEEPSEEK_API_KEY, OPENAI_API_KEY, ...).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(a *app.App) error {
				return runAnalyze(cmd.Context(), cmd.OutOrStdout(), a, args[0], credentials(keys, a.Providers(), r.cfg.Quotes.CredentialKey))
			})
		},
	}

	cmd.Flags().StringToStringVar(&keys, "key", nil, "Provider API key as provider=KEY (repeatable)")
	return cmd
}

// credentials merges flag keys over <NAME>_API_KEY environment variables
// for every provider and the quote credential.
func credentials(flags map[string]string, providers []string, quoteKey string) map[string]string {
	creds := make(map[string]string)
	names := append([]string{quoteKey}, providers...)
	for _, name := range names {
		if name == "" {
			continue
		}
		if v := os.Getenv(strings.ToUpper(name) + "_API_KEY"); v != "" {
			creds[name] = v
		}
	}
	for name, v := range flags {
		creds[strings.ToLower(name)] = v
	}
	return creds
}

func runAnalyze(ctx context.Context, out io.Writer, a *app.App, symbol string, creds map[string]string) error {
	session := a.Session()
	session.Reset(ctx)

	_, updates, unsubscribe := session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for state := range updates {
			fmt.Fprintln(out, renderProgress(state))
		}
	}()

	final, err := session.RunSync(ctx, symbol, creds)
	unsubscribe()
	<-done
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderReport(final))
	if final.Status == models.StatusError {
		return errors.New(final.Error)
	}
	return nil
}

func (r *runner) newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				r.cfg.HTTP.Addr = addr
			}
			return r.withApp(cmd.Context(), func(a *app.App) error {
				return serve(cmd.Context(), a, r.cfg)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func (r *runner) newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage past runs",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(a *app.App) error {
				items, err := a.Session().History(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && limit < len(items) {
					items = items[:limit]
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(items))
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many runs")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print every report of a past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(a *app.App) error {
				items, err := a.Session().History(cmd.Context())
				if err != nil {
					return err
				}
				for _, rec := range items {
					if rec.ID == args[0] {
						fmt.Fprintln(cmd.OutOrStdout(), renderRecord(rec))
						return nil
					}
				}
				return fmt.Errorf("no run with id %q", args[0])
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Session().DeleteHistory(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted "+args[0]))
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every past run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Session().ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("History cleared"))
				return nil
			})
		},
	}

	historyCmd.AddCommand(listCmd, showCmd, deleteCmd, clearCmd)
	return historyCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// The version needs no configuration.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stock-council %s\n", Version)
		},
	}
}

// sortedRoles returns the roles with output in pipeline order, then any others by name.
func sortedRoles(outputs map[models.Role]string) []models.Role {
	roles := make([]models.Role, 0, len(outputs))
	seen := make(map[models.Role]bool, len(outputs))
	for _, role := range models.AllRoles() {
		if _, ok := outputs[role]; ok {
			roles = append(roles, role)
			seen[role] = true
		}
	}
	var extra []models.Role
	for role := range outputs {
		if !seen[role] {
			extra = append(extra, role)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(roles, extra...)
}
