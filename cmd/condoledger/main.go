package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/condolabs/condoledger/internal/audit"
	"github.com/condolabs/condoledger/internal/budget"
	"github.com/condolabs/condoledger/internal/clock"
	"github.com/condolabs/condoledger/internal/config"
	"github.com/condolabs/condoledger/internal/db"
	"github.com/condolabs/condoledger/internal/events"
	"github.com/condolabs/condoledger/internal/fee"
	"github.com/condolabs/condoledger/internal/joblock"
	"github.com/condolabs/condoledger/internal/license"
	"github.com/condolabs/condoledger/internal/migration"
	"github.com/condolabs/condoledger/internal/observability"
	"github.com/condolabs/condoledger/internal/payment"
	"github.com/condolabs/condoledger/internal/plan"
	"github.com/condolabs/condoledger/internal/scheduler"
	"github.com/condolabs/condoledger/internal/seed"
	"github.com/condolabs/condoledger/internal/server"
	"github.com/condolabs/condoledger/internal/subscription"
	"github.com/condolabs/condoledger/internal/tenant"
	tenantrepository "github.com/condolabs/condoledger/internal/tenant/repository"
	"github.com/condolabs/condoledger/internal/verify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "condoledger",
		Short:   "Condoledger subscription and fee accounting engine",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newServeCmd(),
		newGenerateFeesCmd(),
		newExpireSubscriptionsCmd(),
		newMarkOverdueCmd(),
		newDispatchEventsCmd(),
		newVerifyCmd(),
		newPurgeTenantCmd(),
	)
	return root
}

func baseModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		audit.Module,
		plan.Module,
		tenant.Module,
		license.Module,
		budget.Module,
		events.Module,
		subscription.Module,
		fee.Module,
		payment.Module,
		joblock.Module,
		verify.Module,
		scheduler.Module,
	)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(2*time.Minute, fx.Invoke(func(database *gorm.DB, log *zap.Logger) error {
				return migration.Migrate(cmd.Context(), database, log)
			}))
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the built-in reference plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(time.Minute, seed.Module, fx.Invoke(func(seeder *seed.Seeder) error {
				return seeder.Run(cmd.Context())
			}))
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				baseModules(),
				seed.Module,
				fx.Invoke(seedOnBoot),
				server.Module,
			)
			app.Run()
			return nil
		},
	}
}

func newGenerateFeesCmd() *cobra.Command {
	var (
		year     int
		month    int
		tenantID string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "generate-fees",
		Short: "Materialize regular monthly fees for every tenant with an approved budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseOptionalID(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			return runJob(cmd.Context(), func(ctx context.Context, s *scheduler.Scheduler) (*scheduler.JobReport, error) {
				return s.GenerateMonthlyFees(ctx, scheduler.GenerateMonthlyFeesRequest{
					Year:     year,
					Month:    month,
					TenantID: target,
					DryRun:   dryRun,
				})
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "billing period year")
	cmd.Flags().IntVar(&month, "month", 0, "billing period month (1-12)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "restrict the run to one tenant id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be created without writing")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newExpireSubscriptionsCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "expire-subscriptions",
		Short: "Expire subscriptions past their trial or paid period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, s *scheduler.Scheduler) (*scheduler.JobReport, error) {
				return s.ExpireSubscriptions(ctx, dryRun)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would expire without transitioning")
	return cmd
}

func newMarkOverdueCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Flip pending fees past their due date to overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, s *scheduler.Scheduler) (*scheduler.JobReport, error) {
				return s.MarkOverdueFees(ctx, dryRun)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be marked without writing")
	return cmd
}

func newDispatchEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-events",
		Short: "Deliver pending billing events to notification providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, s *scheduler.Scheduler) (*scheduler.JobReport, error) {
				return s.DispatchEvents(ctx)
			})
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check stored aggregates against recomputed values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, s *scheduler.Scheduler) (*scheduler.JobReport, error) {
				return s.Verify(ctx, fix)
			})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair findings that are safe to auto-correct")
	return cmd
}

func newPurgeTenantCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "purge-tenant <tenant-id>",
		Short: "Irrevocably delete a tenant and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to purge without --yes")
			}
			tenantID, err := snowflake.ParseString(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			return runOnce(time.Minute, fx.Invoke(func(database *gorm.DB) error {
				return tenantrepository.PurgeTenant(cmd.Context(), database, tenantID)
			}))
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the irreversible purge")
	return cmd
}

// runOnce starts a short-lived fx app, runs the invoked work, and tears it
// down again.
func runOnce(timeout time.Duration, extra ...fx.Option) error {
	opts := append([]fx.Option{baseModules()}, extra...)
	app := fx.New(opts...)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(context.Background())
}

// runJob executes one scheduler job and maps a failed report onto a non-zero
// process exit. Dry runs fail the same way live runs do.
func runJob(ctx context.Context, job func(context.Context, *scheduler.Scheduler) (*scheduler.JobReport, error)) error {
	var sched *scheduler.Scheduler
	app := fx.New(
		baseModules(),
		fx.Populate(&sched),
	)

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	report, err := job(ctx, sched)
	if err != nil {
		return err
	}
	fmt.Println(report.Summary())
	if report.Failed() {
		return fmt.Errorf("%s finished with %d errors", report.Job, len(report.Errors))
	}
	return nil
}

func seedOnBoot(lc fx.Lifecycle, cfg config.Config, seeder *seed.Seeder) {
	if !cfg.Bootstrap.SeedPlans {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return seeder.Run(ctx)
		},
	})
}

func registerSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.Bootstrap.SnowflakeID)
	if err != nil {
		panic(err)
	}
	return node
}

func parseOptionalID(raw string) (snowflake.ID, error) {
	if raw == "" {
		return 0, nil
	}
	return snowflake.ParseString(raw)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
