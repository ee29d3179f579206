package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battery_log/internal/app"
	"battery_log/internal/cycles"
	"battery_log/internal/query"
	"battery_log/internal/server"
	"battery_log/internal/submission"
	"battery_log/internal/users"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:           "battery-log",
	Short:         "Battery charge log backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		setupEnvironment()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the admin account from ADMIN_EMAIL / ADMIN_PASS if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClients(cmd.Context(), func(ctx context.Context, cfg app.Config, clients *app.Clients) error {
			created, err := clients.Users.SeedAdmin(ctx, cfg.Admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created: %t\n", cfg.Admin.Email, created)
			return nil
		})
	},
}

var migrateUsersCmd = &cobra.Command{
	Use:   "migrate-users <file>",
	Short: "Import user accounts from a JSON or YAML list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		return withClients(cmd.Context(), func(ctx context.Context, _ app.Config, clients *app.Clients) error {
			sum, err := clients.Users.Import(ctx, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", sum.Created, sum.Skipped)
			return nil
		})
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, seedAdminCmd, migrateUsersCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func withClients(ctx context.Context, fn func(context.Context, app.Config, *app.Clients) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	clients, err := app.InitializeClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize clients: %w", err)
	}
	defer clients.Close()
	return fn(ctx, cfg, clients)
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withClients(ctx, func(ctx context.Context, cfg app.Config, clients *app.Clients) error {
		if err := clients.Rows.Ready(); err != nil {
			log.Warn().Err(err).Msg("Sheet not configured, row endpoints will fail")
		}
		if !clients.Mailer.Enabled() {
			log.Warn().Msg("Mail not configured, password reset codes cannot be sent")
		}
		if _, err := clients.Users.SeedAdmin(ctx, cfg.Admin); err != nil {
			return fmt.Errorf("failed to seed admin: %w", err)
		}

		srv := server.New(server.Deps{
			Issuer:      clients.Issuer,
			Users:       clients.Users,
			Submissions: submission.NewService(clients.Rows),
			Cycles:      cycles.NewCounter(clients.Rows),
			Query:       query.NewService(clients.Rows),
		}, server.Options{
			CORSOrigins:        cfg.CORSOrigins,
			UploadsDir:         cfg.UploadsDir,
			OTPRequestsPerHour: cfg.OTPMaxRequestsPerHour,
			LimiterStorage:     clients.LimiterStorage,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("Starting battery log server")
			return srv.Listen(":" + cfg.Port)
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.ShutdownWithContext(shutdownCtx)
		})
		return g.Wait()
	})
}

// readImportFile loads a list of accounts. YAML is a superset of JSON, so one
// decoder covers both formats.
func readImportFile(path string) ([]users.ImportRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var records []users.ImportRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, errors.New("no user records found")
	}
	return records, nil
}
