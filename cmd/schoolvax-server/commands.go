package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehr/schoolvax/internal/config"
	"github.com/ehr/schoolvax/internal/domain/cohortimport"
	"github.com/ehr/schoolvax/internal/platform/db"
	"github.com/ehr/schoolvax/migrations"
)

// withApp loads config, connects and wires the services for a one-shot
// command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := buildApp(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
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
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				state, appliedAt := "pending", ""
				if s.Applied {
					state = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enroll <session-id>",
		Short: "Add eligible patients to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.sessions.Enroll(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session and move unvaccinated patients to the clinic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.sessions.Close(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})

	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import data files",
	}

	cohortCmd := &cobra.Command{
		Use:   "cohort",
		Short: "Import a cohort CSV from a local file or the import bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgRaw, _ := cmd.Flags().GetString("organisation")
			file, _ := cmd.Flags().GetString("file")
			key, _ := cmd.Flags().GetString("s3-key")
			sessionRaw, _ := cmd.Flags().GetString("session")

			orgID, err := uuid.Parse(orgRaw)
			if err != nil {
				return fmt.Errorf("invalid organisation: %w", err)
			}
			if (file == "") == (key == "") {
				return fmt.Errorf("exactly one of --file or --s3-key is required")
			}
			req := cohortimport.Request{OrganisationID: orgID}
			if sessionRaw != "" {
				id, err := uuid.Parse(sessionRaw)
				if err != nil {
					return fmt.Errorf("invalid session: %w", err)
				}
				req.SessionID = &id
			}

			return withApp(func(ctx context.Context, a *app) error {
				var content io.ReadCloser
				if file != "" {
					f, err := os.Open(file)
					if err != nil {
						return err
					}
					content = f
				} else {
					rc, err := a.blobs.Get(ctx, key)
					if err != nil {
						return fmt.Errorf("fetch %s: %w", key, err)
					}
					content = rc
				}
				defer content.Close()
				req.Content = content

				res, err := a.importer.Import(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cohortCmd.Flags().String("organisation", "", "Organisation id")
	cohortCmd.Flags().String("file", "", "Path to the cohort CSV")
	cohortCmd.Flags().String("s3-key", "", "Object key in the import bucket")
	cohortCmd.Flags().String("session", "", "Session to enroll once the import finishes")
	_ = cohortCmd.MarkFlagRequired("organisation")
	cmd.AddCommand(cohortCmd)

	return cmd
}
