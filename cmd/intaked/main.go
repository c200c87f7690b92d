// Package main implements intaked - the intake protocol runtime and CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/intake/config"
	"github.com/c360studio/intake/httpapi"
	"github.com/c360studio/intake/intake"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		natsURL    string
	)

	rootCmd := &cobra.Command{
		Use:     "intaked",
		Short:   "Agent-oriented intake protocol runtime",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS server URL (default: embedded)")

	rootCmd.AddCommand(
		newServeCmd(&configPath, &natsURL),
		newCreateCmd(&configPath, &natsURL),
		newGetCmd(&configPath, &natsURL),
		newUpdateFieldCmd(&configPath, &natsURL),
		newSubmitCmd(&configPath, &natsURL),
		newReviewCmd(&configPath, &natsURL),
		newCancelCmd(&configPath, &natsURL),
		newResumeCmd(&configPath, &natsURL),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(configPath, natsURL string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.NewLoader(nil).Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if natsURL != "" {
		cfg.NATS.URL = natsURL
		cfg.NATS.Embedded = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newServeCmd runs the intake runtime as a long-lived HTTP service.
func newServeCmd(configPath, natsURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the intake HTTP service until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}

			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			mux := http.NewServeMux()
			handler := httpapi.NewHandler(app.Orchestrator(), nil)
			handler.Register("/v1", mux)

			server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				server.Shutdown(shutdownCtx)
			}()

			if cfg.HTTP.MetricsAddr != "" {
				metricsMux := http.NewServeMux()
				metricsMux.Handle("/metrics", promhttp.Handler())
				metricsServer := &http.Server{Addr: cfg.HTTP.MetricsAddr, Handler: metricsMux}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					metricsServer.Shutdown(shutdownCtx)
				}()
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
					}
				}()
			}

			fmt.Printf("intaked serving %s on %s\n", cfg.Intake.ID, cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}

func newCreateCmd(configPath, natsURL *string) *cobra.Command {
	var idempotencyKey, fieldsJSON, actorID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			var fields map[string]any
			if fieldsJSON != "" {
				if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
					return fmt.Errorf("parse --fields: %w", err)
				}
			}

			actor := intake.Actor{Kind: intake.ActorHuman, ID: actorID}
			env, ierr := app.Orchestrator().CreateSubmission(ctx, actor, idempotencyKey, fields, nil)
			return printResult(env, ierr)
		},
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", "Initial fields as a JSON object")
	cmd.Flags().StringVar(&actorID, "actor", "cli", "Actor ID to stamp onto this operation")
	return cmd
}

func newGetCmd(configPath, natsURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <submission-id>",
		Short: "Fetch a submission's full detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			env, ierr := app.Orchestrator().GetSubmission(ctx, args[0])
			return printResult(env, ierr)
		},
	}
	return cmd
}

func newUpdateFieldCmd(configPath, natsURL *string) *cobra.Command {
	var actorID, valueJSON string
	cmd := &cobra.Command{
		Use:   "update-field <submission-id> <path>",
		Short: "Set one field on a submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			var value any
			if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
				return fmt.Errorf("parse --value: %w", err)
			}

			actor := intake.Actor{Kind: intake.ActorHuman, ID: actorID}
			env, ierr := app.Orchestrator().UpdateField(ctx, args[0], actor, args[1], value)
			return printResult(env, ierr)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "Actor ID to stamp onto this operation")
	cmd.Flags().StringVar(&valueJSON, "value", "null", "New field value, as JSON")
	return cmd
}

func newSubmitCmd(configPath, natsURL *string) *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "submit <submission-id>",
		Short: "Validate and submit a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			actor := intake.Actor{Kind: intake.ActorHuman, ID: actorID}
			env, ierr := app.Orchestrator().Submit(ctx, args[0], actor)
			return printResult(env, ierr)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "Actor ID to stamp onto this operation")
	return cmd
}

func newReviewCmd(configPath, natsURL *string) *cobra.Command {
	var actorID string
	var approve bool
	cmd := &cobra.Command{
		Use:   "review <submission-id>",
		Short: "Approve or reject a submission under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			actor := intake.Actor{Kind: intake.ActorHuman, ID: actorID}
			env, ierr := app.Orchestrator().Review(ctx, args[0], actor, approve)
			return printResult(env, ierr)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "Actor ID to stamp onto this operation")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve instead of reject")
	return cmd
}

func newCancelCmd(configPath, natsURL *string) *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "cancel <submission-id>",
		Short: "Cancel a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			actor := intake.Actor{Kind: intake.ActorHuman, ID: actorID}
			env, ierr := app.Orchestrator().Cancel(ctx, args[0], actor)
			return printResult(env, ierr)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "Actor ID to stamp onto this operation")
	return cmd
}

func newResumeCmd(configPath, natsURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <resume-token>",
		Short: "Resolve a resume token back to its submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			app := NewApp(cfg, nil)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			env, ierr := app.Orchestrator().Resume(ctx, args[0])
			return printResult(env, ierr)
		},
	}
	return cmd
}

// printResult renders env or ierr (exactly one is non-nil) as pretty JSON on
// stdout, returning a non-nil error only for ierr so cobra exits non-zero.
func printResult(env any, ierr *intake.IntakeError) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if ierr != nil {
		enc.Encode(struct {
			OK bool `json:"ok"`
			*intake.IntakeError
		}{OK: false, IntakeError: ierr})
		return fmt.Errorf("%s", ierr.Error())
	}
	return enc.Encode(env)
}
