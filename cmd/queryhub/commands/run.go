package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/queryhub/queryhub/pkg/config"
	"github.com/queryhub/queryhub/pkg/engine"
	"github.com/queryhub/queryhub/pkg/stores"
	"github.com/queryhub/queryhub/pkg/telemetry"
)

type runOptions struct {
	outputPath    string
	traceExporter string
	traceEndpoint string
	metricsAddr   string
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <report-id>",
		Short: "Execute a report",
		Long: `Execute a report: run all its components concurrently, render their
results and assemble the report document.

The command exits non-zero when no component succeeds. A partial result
(some components failed) exits zero and reports the failures.`,
		Example: `  # Run a report from ./config
  queryhub run daily-health -c ./config

  # Write the assembled document and record run history
  queryhub run daily-health -c ./config -o report.html --db runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "write the assembled document to this file")
	cmd.Flags().StringVar(&opts.traceExporter, "trace-exporter", "", "trace exporter (otlp, stdout)")
	cmd.Flags().StringVar(&opts.traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP trace endpoint")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address for the run")

	return cmd
}

func runReport(ctx context.Context, reportID string, opts runOptions) error {
	settings, err := config.NewLoader(configDir).WithLogger(log.Logger).Load(ctx)
	if err != nil {
		return err
	}

	executor := engine.NewReportExecutor(
		settings,
		builtinFactories(),
		builtinCredentialFactory,
		builtinRenderers{},
	).
		WithLogger(log.Logger).
		WithTemplateEngine(htmlTemplate{})

	if opts.traceExporter != "" {
		tracer, err := newTracer(opts.traceExporter, opts.traceEndpoint)
		if err != nil {
			return err
		}
		defer func() { _ = tracer.Shutdown(context.Background()) }()
		executor.WithTracer(tracer.Tracer())
	}

	if opts.metricsAddr != "" {
		metrics, err := newMetrics(opts.metricsAddr)
		if err != nil {
			return err
		}
		if err := metrics.StartServer(); err != nil {
			return err
		}
		executor.WithMetrics(metrics)
	}

	result, runErr := executor.ExecuteReport(ctx, reportID)
	defer func() {
		if err := executor.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("executor shutdown reported errors")
		}
	}()
	if result == nil {
		return runErr
	}
	if runErr != nil {
		// Template failure: component outcomes are still usable.
		log.Error().Err(runErr).Msg("report document could not be assembled")
	}

	if dbPath != "" {
		if err := saveRunHistory(ctx, result, runErr); err != nil {
			log.Warn().Err(err).Msg("failed to record run history")
		}
	}

	if opts.outputPath != "" && result.Document != "" {
		var email engine.EmailSpec
		if report, ok := settings.Report(reportID); ok {
			email = report.Email
		}
		if err := (fileSender{path: opts.outputPath}).Send(ctx, result, email); err != nil {
			return err
		}
	}

	if err := printResult(result); err != nil {
		return err
	}

	if result.Status == engine.RunStatusFailed {
		return fmt.Errorf("report %q failed: no component succeeded", reportID)
	}
	return nil
}

func newTracer(exporter, endpoint string) (*telemetry.Tracer, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = exporter
	cfg.Tracing.Endpoint = endpoint
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
}

func newMetrics(addr string) (*telemetry.Metrics, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = addr
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return telemetry.NewMetrics(cfg.Metrics)
}

func saveRunHistory(ctx context.Context, result *engine.ReportExecutionResult, runErr error) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	run, err := stores.NewRunFromResult(result, runErr)
	if err != nil {
		return err
	}
	return store.SaveRun(ctx, run)
}

func printResult(result *engine.ReportExecutionResult) error {
	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("run %s report=%s status=%s success=%d failed=%d duration=%s\n",
		result.RunID, result.ReportID, result.Status,
		result.SuccessCount, result.FailureCount, result.Duration)
	for _, component := range result.Components {
		if component.Success() {
			fmt.Printf("  ok   %-20s attempts=%d duration=%s\n",
				component.ComponentID, component.Attempts, component.Duration)
			continue
		}
		fmt.Printf("  FAIL %-20s attempts=%d duration=%s error=%s\n",
			component.ComponentID, component.Attempts, component.Duration, component.Err)
	}
	return nil
}
