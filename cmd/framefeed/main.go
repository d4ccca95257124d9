// Command framefeed runs a load worker over a stream of work entries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/internal/pipeline"
	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/source"
	"github.com/ajitpratap0/framefeed/pkg/workentry"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "framefeed",
		Short: "Concurrent column loader for pull pipelines",
		Long: `framefeed reads units of work, fetches the rows they name from every
configured source in parallel, and emits fixed-size column batches.`,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSourcesCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("framefeed v%s\n", version)
		},
	}
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List available source types",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := registerSources(nil, config.PostgresConfig{}); err != nil {
				return err
			}
			fmt.Println("Available sources:")
			for _, name := range source.List() {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build every configured source and report the first failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer rt.close()
			fmt.Printf("configuration ok: %d sources, %d columns, %d source threads\n",
				rt.worker.NumSources(), rt.worker.NumColumns(), rt.worker.PoolSize())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Worker configuration file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		configFile      string
		entriesFile     string
		outputPrefix    string
		deadLetterFile  string
		chunkSize       int
		continueOnError bool
		report          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load every work entry in a file",
		Long: `Run feeds each work entry in the entries file (JSON lines or Avro,
chosen by extension) to the load worker and evaluates the produced batches.
With --output every batch is written to the configured store as Arrow IPC.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			dc := &pipeline.DriverConfig{
				ChunkSize:       chunkSize,
				ContinueOnError: continueOnError,
			}
			if deadLetterFile != "" {
				f, err := os.Create(deadLetterFile)
				if err != nil {
					return fmt.Errorf("failed to create dead letter file: %w", err)
				}
				defer f.Close()
				w, err := workentry.NewWriter(f, workentry.FormatFromPath(deadLetterFile))
				if err != nil {
					return err
				}
				defer w.Close()
				dc.DeadLetter = w
			}
			return runWorker(ctx, configFile, entriesFile, outputPrefix, dc, report)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Worker configuration file (required)")
	cmd.Flags().StringVarP(&entriesFile, "entries", "e", "", "Work entries file, .jsonl or .avro (required)")
	cmd.Flags().StringVarP(&outputPrefix, "output", "o", "", "Write batches as Arrow IPC below this store prefix")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Rows per batch (defaults to work_packet_size)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Skip failing work entries")
	cmd.Flags().StringVar(&deadLetterFile, "dead-letter", "", "With --continue-on-error, write skipped entries here")
	cmd.Flags().BoolVar(&report, "report", true, "Print the profiler report when done")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("entries")
	return cmd
}

// runWorker executes the load stage over every entry in entriesFile.
func runWorker(ctx context.Context, configFile, entriesFile, outputPrefix string, dc *pipeline.DriverConfig, report bool) error {
	format := workentry.FormatFromPath(entriesFile)
	f, err := os.Open(entriesFile)
	if err != nil {
		return fmt.Errorf("failed to open entries: %w", err)
	}
	defer f.Close()

	reader, err := workentry.NewReader(f, format)
	if err != nil {
		return err
	}

	rt, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer rt.close()

	var eval pipeline.Evaluator = pipeline.NewStatsEvaluator()
	if outputPrefix != "" {
		eval = pipeline.NewArrowEvaluator(rt.store, outputPrefix)
	}
	defer eval.Close()

	rt.log.Info("starting load worker",
		zap.String("config", configFile),
		zap.String("entries", entriesFile),
		zap.String("format", string(format)),
		zap.Int("sources", rt.worker.NumSources()),
		zap.Int("source_threads", rt.worker.PoolSize()))

	stats, err := pipeline.NewDriver(rt.worker, reader, eval, dc).Run(ctx)
	if err != nil {
		return fmt.Errorf("load failed after %d entries: %w", stats.Entries, err)
	}

	fmt.Printf("entries=%d failed=%d dead_lettered=%d batches=%d rows=%d rows/s=%.0f\n",
		stats.Entries, stats.FailedEntries, stats.DeadLettered, stats.Batches, stats.Rows, stats.RowsPerSecond())
	if report {
		printReport(os.Stdout, rt.recorder.Report())
	}
	return nil
}
