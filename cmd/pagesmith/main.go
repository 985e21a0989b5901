package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/pagesmith/internal/config"
	"github.com/amosWeiskopf/pagesmith/internal/logging"
	"github.com/amosWeiskopf/pagesmith/pkg/analyzer"
	"github.com/amosWeiskopf/pagesmith/pkg/classifier"
	"github.com/amosWeiskopf/pagesmith/pkg/fetcher"
	"github.com/amosWeiskopf/pagesmith/pkg/reporter"
	"github.com/amosWeiskopf/pagesmith/pkg/server"
	"github.com/amosWeiskopf/pagesmith/pkg/store"
	"github.com/amosWeiskopf/pagesmith/pkg/verifier"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pagesmith",
	Short: "PageSmith - page analysis and broken link checker",
	Long: `PageSmith fetches a web page, summarizes its structure (title, HTML version,
headings, login form, internal and external links) and verifies every absolute
link it contains, reporting the ones that are broken.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [URL]",
	Short: "Analyze a page and check its links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		save, _ := cmd.Flags().GetBool("save")

		f, err := reporter.ParseFormat(format)
		if err != nil {
			return err
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		a, err := newAnalyzer(cfg, logger)
		if err != nil {
			return err
		}

		report, err := a.Analyze(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		if save {
			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := st.Save(cmd.Context(), report)
			if err != nil {
				return fmt.Errorf("failed to save result: %w", err)
			}
			logger.Info().Int64("id", result.ID).Str("path", cfg.Storage.Path).Msg("Result saved")
		}

		return writeOutput(cmd, output, func(w io.Writer) error {
			return reporter.Render(w, report, f)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		a, err := newAnalyzer(cfg, logger)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := server.New(cfg.Server, a, st, logger)
		return srv.ListenAndServe(cmd.Context())
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored analysis results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch format {
		case "table":
			return reporter.RenderTable(out, results)
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		default:
			return fmt.Errorf("unsupported format: %s", format)
		}
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [ID]",
	Short: "Render a stored analysis result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid result id %q", args[0])
		}
		f, err := reporter.ParseFormat(format)
		if err != nil {
			return err
		}

		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := st.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		return writeOutput(cmd, output, func(w io.Writer) error {
			return reporter.RenderResult(w, result, f)
		})
	},
}

func init() {
	// Analyze command flags
	analyzeCmd.Flags().String("format", "json", "Report format (json, markdown, html)")
	analyzeCmd.Flags().String("output", "", "Output file for the report")
	analyzeCmd.Flags().Bool("save", false, "Store the result in the database")

	// Results command flags
	resultsCmd.Flags().String("format", "table", "Output format (table, json)")

	// Report command flags
	reportCmd.Flags().String("format", "json", "Report format (json, markdown, html)")
	reportCmd.Flags().String("output", "", "Output file for the report")

	// Add commands to root
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(reportCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
}

// setup loads configuration and builds the logger for a command.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// newAnalyzer wires fetcher, classifier and verifier around one shared client.
func newAnalyzer(cfg *config.Config, logger zerolog.Logger) (*analyzer.Analyzer, error) {
	client := fetcher.NewClient(cfg.Fetcher.MaxRedirects)

	f := fetcher.New(client, fetcher.Options{
		Timeout:      cfg.Fetcher.Timeout,
		UserAgent:    cfg.Fetcher.UserAgent,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}, logger.With().Str("component", "fetcher").Logger())

	c, err := classifier.New(classifier.Policy(cfg.Classifier.Policy))
	if err != nil {
		return nil, err
	}

	v := verifier.New(client, verifier.Options{
		Timeout:           cfg.Verifier.Timeout,
		MaxWorkers:        cfg.Verifier.MaxWorkers,
		RequestsPerSecond: cfg.Verifier.RequestsPerSecond,
		Coalesce:          cfg.Verifier.Coalesce,
		UserAgent:         cfg.Fetcher.UserAgent,
	}, logger.With().Str("component", "verifier").Logger())

	return analyzer.New(f, c, v, analyzer.Config{Deadline: cfg.Analysis.Deadline}, logger), nil
}

func writeOutput(cmd *cobra.Command, path string, render func(io.Writer) error) error {
	if path == "" {
		return render(cmd.OutOrStdout())
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := render(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report saved to %s\n", path)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
