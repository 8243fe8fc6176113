// Command rolemanagerctl is an operational front end for the rolemanager
// engine: it runs migrations against a Postgres database, seeds the demo
// scenario, reports health, and prints resolution/trace output for a user
// without requiring a calling application.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/nsrbac/rolemanager/pkg/rolemanager"
)

var flagDSN string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rolemanagerctl",
		Short:         "Operate a rolemanager-backed Postgres database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagDSN, "dsn", os.Getenv("ROLEMANAGER_DSN"), "Postgres connection string (defaults to $ROLEMANAGER_DSN)")

	root.AddCommand(
		newMigrateCmd(),
		newStatusCmd(),
		newHealthCmd(),
		newSeedCmd(),
		newResolveCmd(),
		newExplainCmd(),
	)

	return root
}

func openDB() (*sql.DB, error) {
	if flagDSN == "" {
		return nil, fmt.Errorf("no DSN given: pass --dsn or set ROLEMANAGER_DSN")
	}
	return sql.Open("postgres", flagDSN)
}

func newMigrateCmd() *cobra.Command {
	var dryRun, force bool
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to the latest (or a target) version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := rolemanager.NewMigrator(db, log.New(os.Stdout, "[rolemanagerctl] ", log.LstdFlags))
			return migrator.Init(cmd.Context(), &rolemanager.MigrationOptions{
				TargetVersion: target,
				DryRun:        dryRun,
				Force:         force,
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print pending migrations without executing them")
	cmd.Flags().BoolVar(&force, "force", false, "accepted but has no effect: migration checksums are recorded, never verified")
	cmd.Flags().IntVar(&target, "target", 0, "target schema version (0 = latest)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := rolemanager.NewMigrator(db, log.New(os.Stdout, "[rolemanagerctl] ", log.LstdFlags))
			status, err := migrator.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("current version: %d\nlatest version:  %d\npending:         %d\n", status.CurrentVersion, status.LatestVersion, status.PendingCount)
			for _, am := range status.AppliedMigrations {
				fmt.Printf("  %3d  %-40s applied %s (%dms)\n", am.Version, am.Name, am.AppliedAt.Format("2006-01-02 15:04:05"), am.ExecutionTimeMs)
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report whether the schema is installed and usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := rolemanager.CheckHealth(cmd.Context(), db)
			if err != nil {
				return err
			}

			fmt.Printf("healthy: %v\npermissions_version: %d\ndetail: %s\n", report.Healthy, report.PermissionsVersion, report.Detail)
			if !report.Healthy {
				os.Exit(1)
			}
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Load the alice/bob demo scenario into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			_, err = rolemanager.Setup(db, &rolemanager.SetupOptions{SeedDemoData: true})
			if err != nil {
				return err
			}
			fmt.Println("demo data seeded")
			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	var contextID int64
	var hasContext bool

	cmd := &cobra.Command{
		Use:   "resolve <user-id>",
		Short: "Print every right a user holds in a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}

			facade, db, err := openFacade()
			if err != nil {
				return err
			}
			defer db.Close()

			var ctxID *int64
			if hasContext {
				ctxID = &contextID
			}

			rights, err := facade.ResolveAll(rolemanager.WithRequestScope(cmd.Context()), userID, ctxID)
			if err != nil {
				return err
			}

			for name, right := range rights {
				if right.RightType == rolemanager.RightTypeRange {
					fmt.Printf("%s = %s\n", name, right.RangeValue.String())
				} else {
					fmt.Printf("%s = %v\n", name, right.Value)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&contextID, "context", 0, "context id to evaluate against (omit for Global)")
	cmd.Flags().BoolVar(&hasContext, "has-context", false, "set when --context should be treated as non-Global")
	return cmd
}

func newExplainCmd() *cobra.Command {
	var contextID int64
	var hasContext bool

	cmd := &cobra.Command{
		Use:   "explain <user-id> <right-name>",
		Short: "Print the full decision trace for one user and right",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rightName := args[1]

			facade, db, err := openFacade()
			if err != nil {
				return err
			}
			defer db.Close()

			var ctxID *int64
			if hasContext {
				ctxID = &contextID
			}

			explanation, err := facade.ExplainRight(cmd.Context(), userID, rightName, ctxID)
			if err != nil {
				return err
			}

			fmt.Printf("decision: %v\nvalue: %v\nreason: %s\n", explanation.Decision, explanation.Value, explanation.Reason)
			for _, entry := range explanation.Trace {
				fmt.Printf("  [%s] source=%s role=%s context=%s value=%v specificity=%d\n",
					entry.Status, entry.Source, entry.Role, entry.Context, entry.Value, entry.Specificity)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&contextID, "context", 0, "context id to evaluate against (omit for Global)")
	cmd.Flags().BoolVar(&hasContext, "has-context", false, "set when --context should be treated as non-Global")
	return cmd
}

func openFacade() (*rolemanager.Facade, *sql.DB, error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	store := rolemanager.NewSQLStore(db)
	return rolemanager.New(store, rolemanager.Options{}), db, nil
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
