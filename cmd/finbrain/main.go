package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"finbrain/internal/chain"
	"finbrain/internal/config"
	"finbrain/internal/evaluation"
	"finbrain/internal/logging"
	"finbrain/internal/memory"
	"finbrain/internal/oracle"
	"finbrain/internal/refine"
	"finbrain/internal/research"
	"finbrain/internal/routing"
	"finbrain/internal/tools"
	"finbrain/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "finbrain",
	Short: "finbrain - quality-gated financial research agent",
	Long: `finbrain researches stocks with a generative oracle and refuses to ship
weak output: every analysis is scored against a fixed criterion table and
refined until it clears the quality threshold or runs out of iterations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logOpts := logging.Options{Enabled: cfg.Logging.Enabled, Level: cfg.Logging.Level}
		if verbose {
			logOpts.Enabled = true
			logOpts.Level = "debug"
		}
		if err := logging.Initialize(".", logOpts); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// researchCmd runs the full pipeline for one symbol.
var researchCmd = &cobra.Command{
	Use:   "research [symbol]",
	Short: "Run the full research pipeline for a stock symbol",
	Long: `Plans the research, collects provider data, drafts an analysis, refines
it through the evaluate-optimize loop, and prints the final report.

Example:
  finbrain research AAPL --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

// evaluateCmd scores an artifact file without refining it.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Score an analysis JSON file against the quality criteria",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

// refineCmd runs the evaluate-optimize loop over an artifact file.
var refineCmd = &cobra.Command{
	Use:   "refine [file]",
	Short: "Refine an analysis JSON file until it clears the quality threshold",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefine,
}

// chainCmd runs a news batch through the five-stage processing pipeline.
var chainCmd = &cobra.Command{
	Use:   "chain [file]",
	Short: "Process a news JSON array through ingest, classify, extract, and summarize",
	Args:  cobra.ExactArgs(1),
	RunE:  runChain,
}

// routeCmd classifies a content file and runs the matching specialist.
var routeCmd = &cobra.Command{
	Use:   "route [file]",
	Short: "Route a content JSON file to its specialist analyzer",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoute,
}

// statusCmd reports configuration and memory health.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and stored learning count",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default .finbrain/config.yaml)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 10*time.Minute, "overall operation timeout")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandContext returns a context cancelled by SIGINT/SIGTERM or timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancelTimeout()
		stop()
	}
}

func newOracleClient() (oracle.Client, error) {
	pc := &oracle.ProviderConfig{
		Provider: oracle.Provider(cfg.Oracle.Provider),
		APIKey:   cfg.Oracle.APIKey,
		Model:    cfg.Oracle.Model,
		BaseURL:  cfg.Oracle.BaseURL,
	}
	if pc.APIKey == "" {
		// Last resort: whatever the environment offers.
		return oracle.NewClientFromEnv()
	}
	client, err := oracle.NewClient(pc)
	if err != nil {
		return nil, err
	}

	sched := oracle.NewScheduler(oracle.SchedulerConfig{
		MaxConcurrentCalls: cfg.Workflow.MaxConcurrentCalls,
	})
	return oracle.NewScheduledClient("cli", sched, client), nil
}

func newWorkflow(client oracle.Client) (*refine.Workflow, error) {
	return refine.New(client, refine.Config{
		MaxIterations:    cfg.Workflow.MaxIterations,
		QualityThreshold: cfg.Workflow.QualityThreshold,
		MaxConcurrent:    cfg.Workflow.MaxConcurrentCalls,
	})
}

func openStore() *memory.Store {
	store, err := memory.NewStore(cfg.Memory.DatabasePath)
	if err != nil {
		logger.Warn("memory store unavailable, learnings will not persist", zap.Error(err))
		return nil
	}
	if cfg.Memory.EmbeddingAPIKey != "" {
		engine, err := memory.NewGenAIEngine(cfg.Memory.EmbeddingAPIKey, cfg.Memory.EmbeddingModel)
		if err != nil {
			logger.Warn("embedding engine unavailable, semantic search disabled", zap.Error(err))
		} else {
			store.SetEmbeddingEngine(engine)
		}
	}
	return store
}

func loadArtifactFile(path string) (types.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var artifact types.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%s is not a JSON object: %w", path, err)
	}
	return artifact, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newOracleClient()
	if err != nil {
		return err
	}
	workflow, err := newWorkflow(client)
	if err != nil {
		return err
	}
	store := openStore()
	if store != nil {
		defer store.Close()
	}

	agent := research.NewAgent(client, workflow, tools.NewManager(tools.Config{
		AlphaVantageKey: cfg.Tools.AlphaVantageKey,
		NewsAPIKey:      cfg.Tools.NewsAPIKey,
		FREDKey:         cfg.Tools.FREDKey,
	}), store)

	logger.Info("starting research", zap.String("symbol", args[0]))
	report, err := agent.Research(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Println(report.FinalReport)
	fmt.Println()
	fmt.Printf("Quality: %.1f/10 after %d iterations (threshold met: %v)\n",
		report.Refinement.FinalScore,
		report.Refinement.IterationsPerformed,
		report.Refinement.ThresholdMet)
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	artifact, err := loadArtifactFile(args[0])
	if err != nil {
		return err
	}
	client, err := newOracleClient()
	if err != nil {
		return err
	}

	result, err := evaluation.NewEvaluator(client).Evaluate(ctx, artifact, nil)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runRefine(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	artifact, err := loadArtifactFile(args[0])
	if err != nil {
		return err
	}
	client, err := newOracleClient()
	if err != nil {
		return err
	}
	workflow, err := newWorkflow(client)
	if err != nil {
		return err
	}

	result := workflow.Run(ctx, artifact, nil)
	return printJSON(result)
}

func runChain(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var articles []map[string]any
	if err := json.Unmarshal(data, &articles); err != nil {
		return fmt.Errorf("%s is not a JSON array of articles: %w", args[0], err)
	}
	client, err := newOracleClient()
	if err != nil {
		return err
	}

	result := chain.NewChain(client).Process(ctx, articles)
	return printJSON(result)
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	content, err := loadArtifactFile(args[0])
	if err != nil {
		return err
	}
	client, err := newOracleClient()
	if err != nil {
		return err
	}

	result := routing.NewDispatcher(client).Process(ctx, content, nil)
	return printJSON(result)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("Provider:          %s (model %s)\n", cfg.Oracle.Provider, cfg.Oracle.Model)
	fmt.Printf("API key:           %s\n", presence(cfg.Oracle.APIKey))
	fmt.Printf("Max iterations:    %d\n", cfg.Workflow.MaxIterations)
	fmt.Printf("Quality threshold: %.1f\n", cfg.Workflow.QualityThreshold)
	fmt.Printf("Concurrency:       %d\n", cfg.Workflow.MaxConcurrentCalls)
	fmt.Printf("Data sources:      alpha_vantage=%s news=%s fred=%s\n",
		presence(cfg.Tools.AlphaVantageKey), presence(cfg.Tools.NewsAPIKey), presence(cfg.Tools.FREDKey))

	store := openStore()
	if store == nil {
		fmt.Println("Memory:            unavailable")
		return nil
	}
	defer store.Close()
	n, err := store.Count()
	if err != nil {
		fmt.Printf("Memory:            error (%v)\n", err)
		return nil
	}
	fmt.Printf("Memory:            %d learnings at %s\n", n, cfg.Memory.DatabasePath)
	return nil
}

func presence(key string) string {
	if key == "" {
		return "missing"
	}
	return "configured"
}
