// Package cli implements the resort command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
)

// Ledger is the ledger maintenance surface used by the commands.
type Ledger interface {
	SeedChart(ctx context.Context) (int, error)
	CheckRoles(ctx context.Context, roles ledger.Roles) error
	VerifyBalances(ctx context.Context) ([]ledger.BalanceDrift, error)
}

// Reconciler posts missing billing transactions.
type Reconciler interface {
	Reconcile(ctx context.Context, opts billing.ReconcileOptions) (billing.ReconcileReport, error)
}

// Env carries the services a database-backed command needs.
type Env struct {
	Migrate func(ctx context.Context) ([]string, error)
	Ledger  Ledger
	Billing Reconciler
	Roles   ledger.Roles
	Close   func()
}

// Options wires the command tree to the process.
type Options struct {
	// Serve runs the HTTP API until ctx is done.
	Serve func(ctx context.Context) error
	// Open connects to the database and builds the services.
	Open func(ctx context.Context) (*Env, error)
	// OpenJobs connects to the job queue.
	OpenJobs func(ctx context.Context) (JobQueue, error)
}

// NewRootCommand builds the resort command tree. Without a subcommand it serves HTTP.
func NewRootCommand(opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "resort",
		Short:         "Resort operations API: ledger, stock, orders and billing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.Serve(cmd.Context())
			},
		},
		newMigrateCommand(opts.Open),
		newSeedChartCommand(opts.Open),
		newReconcileCommand(opts.Open),
		newVerifyBalancesCommand(opts.Open),
		newJobsCommand(opts.OpenJobs),
	)
	return root
}

func withEnv(open func(ctx context.Context) (*Env, error), run func(cmd *cobra.Command, env *Env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := open(cmd.Context())
		if err != nil {
			return err
		}
		if env.Close != nil {
			defer env.Close()
		}
		return run(cmd, env)
	}
}

func newMigrateCommand(open func(ctx context.Context) (*Env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, env *Env) error {
			applied, err := env.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		}),
	}
}

func newSeedChartCommand(open func(ctx context.Context) (*Env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-chart",
		Short: "Create the default chart of accounts and check the posting roles",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, env *Env) error {
			created, err := env.Ledger.SeedChart(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d accounts\n", created)
			return env.Ledger.CheckRoles(cmd.Context(), env.Roles)
		}),
	}
}

func newReconcileCommand(open func(ctx context.Context) (*Env, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Post ledger transactions missing for invoices and payments",
		Long: `Reconcile scans issued invoices and received payments and posts the ledger
transactions that are missing. Entities already posted are skipped, so the command
can be rerun safely.`,
		Example: "  resort reconcile --dry-run\n  resort reconcile --limit 500 --json",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().Bool("dry-run", false, "Compute postings and roll them back")
	cmd.Flags().Int("limit", 0, "Maximum invoices and payments to scan (0 scans all)")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.RunE = withEnv(open, func(cmd *cobra.Command, env *Env) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		if limit < 0 {
			return fmt.Errorf("limit must not be negative")
		}
		report, err := env.Billing.Reconcile(cmd.Context(), billing.ReconcileOptions{DryRun: dryRun, Limit: limit})
		if err != nil {
			return err
		}
		if asJSON {
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(report); err != nil {
				return err
			}
		} else {
			renderReconcile(cmd.OutOrStdout(), report)
		}
		if report.Failed > 0 {
			return fmt.Errorf("reconcile: %d entities failed", report.Failed)
		}
		return nil
	})
	return cmd
}

func renderReconcile(out io.Writer, report billing.ReconcileReport) {
	mode := "applied"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "reconcile (%s): invoices posted %d, payments posted %d, skipped %d, failed %d\n",
		mode, report.InvoicesPosted, report.PaymentsPosted, report.Skipped, report.Failed)
	for _, msg := range report.Errors {
		fmt.Fprintf(out, " - %s\n", msg)
	}
}

func newVerifyBalancesCommand(open func(ctx context.Context) (*Env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-balances",
		Short: "Compare stored account balances with the transaction log",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, env *Env) error {
			drifts, err := env.Ledger.VerifyBalances(cmd.Context())
			if err != nil {
				return err
			}
			if len(drifts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all balances match")
				return nil
			}
			for _, d := range drifts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s stored=%s computed=%s\n", d.Code, d.Stored.StringFixed(2), d.Computed.StringFixed(2))
			}
			return fmt.Errorf("verify-balances: %d accounts drifted", len(drifts))
		}),
	}
}
