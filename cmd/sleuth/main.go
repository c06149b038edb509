package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"binsleuth/internal/config"
	"binsleuth/internal/engine"
	sleuthinit "binsleuth/internal/init"
	"binsleuth/internal/logging"
	"binsleuth/internal/state"
	"binsleuth/internal/tools"
	"binsleuth/internal/ux"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// analyze flags
	targetPath string
	goalText   string
	provider   string
	model      string
	turns      int
	useTUI     bool

	// report flags
	reportLimit int
	sessionID   string

	// init flags
	forceInit bool

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "binsleuth - LLM-driven binary analysis orchestrator",
	Long: `binsleuth runs an iterative analysis loop against a target binary:
an LLM decision function plans probes, a fixed tool registry executes them
(file, strings, hexdump, run_binary, gdb, web_search), observations accumulate
in an append-only state store, and a critic judges progress until the goal is
satisfied or the session aborts with an explicit reason.

The LLM decides WHAT to probe next; every execution path is deterministic code.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// analyzeCmd runs one analysis session to termination
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a binary against a stated goal",
	Long: `Runs the full turn loop against the target until the goal is satisfied,
the turn budget runs out, circular probing cannot be broken, or an
unrecoverable failure occurs. The terminal report always includes everything
learned up to that point.

Example:
  sleuth analyze --path ./crackme --goal "find the accepted password"`,
	RunE: runAnalyze,
}

// reportCmd renders past sessions from the trace database
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List or render past analysis sessions",
	RunE:  runReport,
}

// initCmd sets up the .sleuth/ workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .sleuth/ workspace in the current directory",
	RunE:  runInit,
}

// toolsCmd lists the registered tools
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered analysis tools",
	RunE:  runTools,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if targetPath == "" || goalText == "" {
		return fmt.Errorf("both --path and --goal are required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.LLM.Provider = provider
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if turns > 0 {
		cfg.Engine.TurnBudget = turns
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Hot-reload logging settings while the session runs.
	if watcher, err := config.NewWatcher(workspace); err == nil {
		if err := watcher.Start(ctx); err == nil {
			defer watcher.Stop()
		}
	}

	traces, err := openTraces(cfg)
	if err != nil {
		logger.Warn("trace persistence disabled", zap.Error(err))
	}
	if traces != nil {
		defer traces.Close()
	}

	svc, err := engine.NewService(cfg, traces)
	if err != nil {
		return err
	}

	if useTUI {
		return analyzeTUI(ctx, svc)
	}

	report, err := svc.Analyze(ctx, targetPath, goalText)
	if err != nil {
		return err
	}
	fmt.Print(ux.RenderReport(report, 100))
	if report.Reason.IsFatal() {
		return fmt.Errorf("session failed (%s): %w", report.Reason, report.Reason.Err())
	}
	return nil
}

// analyzeTUI runs the session behind the live viewer.
func analyzeTUI(ctx context.Context, svc *engine.Service) error {
	eng, err := svc.Prepare(targetPath, goalText)
	if err != nil {
		return err
	}

	reports := make(chan *engine.Report, 1)
	go func() {
		reports <- svc.RunPrepared(ctx, eng)
	}()

	program := tea.NewProgram(
		ux.NewViewer(eng.Events(), reports),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("viewer failed: %w", err)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	traces, err := openTraces(cfg)
	if err != nil {
		return err
	}
	defer traces.Close()

	if sessionID != "" {
		snap, reason, err := traces.LoadSession(sessionID)
		if err != nil {
			return err
		}
		report := &engine.Report{SessionID: sessionID, Reason: reason, Snapshot: snap}
		fmt.Print(ux.RenderReport(report, 100))
		return nil
	}

	records, err := traces.ListSessions(reportLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %-24s  %-40q  %d turns, %d artifacts\n",
			r.ID, r.TerminalReason, r.Objective, r.Turns, r.Artifacts)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := sleuthinit.DefaultInitConfig(workspace)
	cfg.Force = forceInit
	result, err := sleuthinit.NewInitializer(cfg).Initialize()
	if err != nil {
		return err
	}
	for _, dir := range result.CreatedDirs {
		fmt.Printf("✓ Created %s\n", dir)
	}
	if result.CreatedConfig {
		fmt.Printf("✓ Wrote %s\n", result.ConfigPath)
	} else {
		fmt.Printf("Config already present at %s (use --force to overwrite)\n", result.ConfigPath)
	}
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	registry := tools.NewDefaultRegistry()
	for _, name := range registry.Names() {
		tool := registry.Get(name)
		kind := "static"
		if tool.Interactive {
			kind = "interactive"
		}
		fmt.Printf("%-12s %-12s %s\n", name, kind, tool.Description)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromWorkspace(workspace)
}

func openTraces(cfg *config.Config) (*state.TraceStore, error) {
	dbPath := cfg.Trace.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	return state.OpenTraceStore(dbPath)
}

// signalContext cancels on SIGINT/SIGTERM so in-flight sessions get killed
// and the report still comes out.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.sleuth/config.yaml)")

	analyzeCmd.Flags().StringVar(&targetPath, "path", "", "Path to the target binary (required)")
	analyzeCmd.Flags().StringVar(&goalText, "goal", "", "Analysis objective (required)")
	analyzeCmd.Flags().StringVar(&provider, "provider", "", "LLM provider: groq or gemini")
	analyzeCmd.Flags().StringVar(&model, "model", "", "Override the LLM model")
	analyzeCmd.Flags().IntVar(&turns, "turns", 0, "Override the turn budget")
	analyzeCmd.Flags().BoolVar(&useTUI, "tui", false, "Show the live session viewer")

	reportCmd.Flags().StringVar(&sessionID, "session", "", "Render one session by id")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Max sessions to list")

	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
