// Command loanflow runs the loan approval worker and talks to running loan workflows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cschleiden/loanflow/client"
	"github.com/cschleiden/loanflow/currency"
	"github.com/cschleiden/loanflow/internal/server"
	"github.com/cschleiden/loanflow/loan"
	"github.com/cschleiden/loanflow/processes/rest"
	"github.com/cschleiden/loanflow/worker"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:           "loanflow",
		Short:         "Durable loan approval workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing application.yaml and application-local.yaml")

	// withApp runs fn with the bootstrapped application and closes it afterwards
	withApp := func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			a, err := newApp(ctx, configDir)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, a.Close(context.Background()))
			}()

			return fn(ctx, a, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "worker",
			Short: "Run the worker and the HTTP ingress",
			Args:  cobra.NoArgs,
			RunE:  withApp(runWorker),
		},
		&cobra.Command{
			Use:   "start <process-id>",
			Short: "Start the loan workflow for a process",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				wfi, err := loan.Start(ctx, a.client, args[0])
				if err != nil {
					return err
				}

				return printJSON(wfi)
			}),
		},
		&cobra.Command{
			Use:   "signal <instance-id> <task-id>",
			Short: "Signal the completion of a task to a loan workflow",
			Args:  cobra.ExactArgs(2),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				return loan.SignalTaskCompleted(ctx, a.client, args[0], args[1])
			}),
		},
		newResultCommand(withApp),
		&cobra.Command{
			Use:   "cancel <instance-id>",
			Short: "Cancel the active loan workflow of a process",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				wfi, err := a.client.GetLatestInstance(ctx, args[0])
				if err != nil {
					return err
				}

				return a.client.CancelWorkflowInstance(ctx, wfi)
			}),
		},
	)

	return cmd
}

func newResultCommand(withApp func(func(context.Context, *app, []string) error) func(*cobra.Command, []string) error) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "result <instance-id>",
		Short: "Wait for a loan workflow to finish and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			wfi, err := a.client.GetLatestInstance(ctx, args[0])
			if err != nil {
				return err
			}

			r, err := client.GetWorkflowResult[loan.WorkflowResponse](ctx, a.client, wfi, timeout)
			if err != nil {
				return err
			}

			return printJSON(r)
		}),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the workflow to finish")

	return cmd
}

func runWorker(ctx context.Context, a *app, _ []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg

	service := rest.New(rest.Options{
		Endpoint:     cfg.Processes.API.Endpoint,
		ClientID:     cfg.Processes.API.ClientID,
		ClientSecret: cfg.Processes.API.ClientSecret,
		Timeout:      cfg.Processes.API.Timeout,
	})

	rates := currency.NewHTTPRateProvider(currency.HTTPOptions{
		Endpoint:        cfg.Currency.Endpoint,
		Timeout:         cfg.Currency.Timeout,
		CacheTTL:        cfg.Currency.CacheTTL,
		BreakerFailures: cfg.Currency.BreakerFailures,
		BreakerTimeout:  cfg.Currency.BreakerTimeout,
	})
	converter := currency.NewConverter(rates, currency.WithMetrics(a.metrics))

	options := worker.DefaultOptions
	options.WorkflowPollers = cfg.Worker.WorkflowPollers
	options.ActivityPollers = cfg.Worker.ActivityPollers
	options.MaxParallelWorkflowTasks = cfg.Worker.MaxParallelWorkflowTasks
	options.MaxParallelActivityTasks = cfg.Worker.MaxParallelActivityTasks
	options.WorkflowPollingInterval = cfg.Worker.PollingInterval
	options.ActivityPollingInterval = cfg.Worker.PollingInterval
	options.WorkflowExecutorCacheSize = cfg.Worker.CacheSize
	options.WorkflowExecutorCacheTTL = cfg.Worker.CacheTTL

	w := worker.New(a.backend, &options)
	if err := loan.Register(w, service, converter); err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	a.logger.Info("worker connection successfully established", "backend", cfg.Backend.Type)

	srv := server.New(cfg.Server.Address, a.client, a.logger, a.metrics.Handler())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = multierr.Combine(
		err,
		srv.Shutdown(shutdownCtx),
		w.WaitForCompletion(),
	)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
