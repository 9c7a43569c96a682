package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benefits/accumulator/internal/config"
	"github.com/benefits/accumulator/internal/domain/ingest"
	"github.com/benefits/accumulator/internal/domain/query"
	"github.com/benefits/accumulator/internal/platform/auth"
	"github.com/benefits/accumulator/internal/platform/db"
	"github.com/benefits/accumulator/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "accumulator-server",
		Short: "Benefit accumulator API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the accumulator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolOptions{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationsFS(cfg))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolOptions{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(cfg)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load plans, members and claims from a YAML bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				return fmt.Errorf("seed needs STORE_BACKEND=postgres; in-memory stores do not outlive this command")
			}

			ctx := context.Background()
			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := ingest.LoadBundleFile(file)
			if err != nil {
				return err
			}
			sum, err := ingest.ApplyBundle(ctx, b, a.services)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded tenant %s: %d plan(s), %d member(s), %d claim(s) appended, %d unchanged.\n",
				b.TenantID, sum.Plans, sum.Members, sum.ClaimsAppended, sum.ClaimsUnchanged)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the YAML bundle")
	return cmd
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a member's family ledger and print the trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			memberID, _ := cmd.Flags().GetString("member")
			year, _ := cmd.Flags().GetInt("year")
			asJSON, _ := cmd.Flags().GetBool("json")
			if !auth.ValidTenantID(tenant) || memberID == "" {
				return fmt.Errorf("--tenant and --member are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			if year == 0 {
				year = a.facade.CurrentYear()
			}
			ex, err := a.facade.Explain(auth.WithTenant(ctx, tenant), tenant, memberID, year)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ex)
			}
			printTrace(cmd.OutOrStdout(), ex)
			return nil
		},
	}
	cmd.Flags().String("tenant", "", "Tenant id")
	cmd.Flags().String("member", "", "Member id")
	cmd.Flags().Int("year", 0, "Plan year (defaults to the current year)")
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	return cmd
}

func printTrace(w io.Writer, ex *query.Explanation) {
	st := ex.State
	fmt.Fprintf(w, "Family %s plan %s year %d (rule v%d, ledger %s)\n",
		st.FamilyID, st.PlanID, ex.PlanYear, ex.RuleVersion, ex.LedgerVersion)
	fmt.Fprintf(w, "%-12s %-10s %-10s %-10s %12s %12s %12s %s\n",
		"CLAIM", "MEMBER", "DATE", "TYPE", "RESP", "DEDUCTIBLE", "OOP AFTER", "FLAGS")
	for _, e := range ex.Trace {
		flags := ""
		if e.Frozen {
			flags += "frozen "
		}
		if e.OverCap {
			flags += "over-cap"
		}
		fmt.Fprintf(w, "%-12s %-10s %-10s %-10s %12s %12s %12s %s\n",
			e.ClaimID, e.MemberID, e.ServiceDate.Format("2006-01-02"), e.ClaimType,
			e.Responsibility.StringFixed(2), e.DeductibleCredited.StringFixed(2),
			e.IndividualOOPAfter.StringFixed(2), flags)
	}
	for _, id := range st.MemberOrder {
		m := st.Members[id]
		fmt.Fprintf(w, "member %s: deductible met %s, oop spent %s\n",
			id, m.DeductibleMet.StringFixed(2), m.OOPSpent.StringFixed(2))
	}
	fmt.Fprintf(w, "family: deductible met %s, oop spent %s\n",
		st.FamilyDeductibleMet.StringFixed(2), st.FamilyOOPSpent.StringFixed(2))
	for _, a := range ex.Anomalies {
		fmt.Fprintf(w, "anomaly %s on %s: %s\n", a.Kind, a.ClaimID, a.Detail)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	defer a.Close()

	e := a.newServer()
	a.startConsumer(ctx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
