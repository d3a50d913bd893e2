package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/intentcache"
	"voxnav/internal/logging"
	"voxnav/internal/orchestrator"
	"voxnav/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Request context flags
	pageURL   string
	pageTitle string
	htmlFile  string
	pageMode  string
	userID    string
	sessionID string
	role      string
	recentCSV string
	task      string

	// Classification flags
	skipCache      bool
	skipValidation bool
	reqTimeout     time.Duration

	// Feedback flags
	wasCorrect bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "voxnav",
	Short: "voxnav - voice intent recognition for web navigation",
	Long: `voxnav classifies short voice commands ("add this to my cart",
"scroll down", "go back") into a closed intent taxonomy, using page context,
a learning cache, and LLM ensemble validation.

Most commands classify a single utterance and print the JSON response.
Use "voxnav repl" for an interactive loop with config hot reload.`,
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
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.DebugMode, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to initialize pipeline logging: %w", err)
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

var classifyCmd = &cobra.Command{
	Use:   "classify [utterance]",
	Short: "Classify one utterance and print the JSON response",
	Long: `Runs one utterance through the full pipeline.

Page context can be supplied with --url, --title, --mode, and --html-file
(a saved DOM summary); session context with --user, --session, --recent,
and --task.

Example:
  voxnav classify "add this to my cart" --url https://shop.example/p/42 --role member`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback [utterance] [actual-intent]",
	Short: "Report whether a classification was right",
	Long: `Feeds the learning layer. With --correct, the actual-intent argument is
optional and the prior classification is reinforced; without it, the cache
and patterns are corrected toward the given intent.

Example:
  voxnav feedback "put it in the basket" add_to_cart --user u1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFeedback,
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the user's next intent from their recent sequence",
	RunE:  runPredict,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Build the pipeline from config and print its health",
	RunE:  runHealth,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print pipeline metrics and cache statistics",
	RunE:  runMetrics,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "voxnav.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive classification loop with config hot reload",
	Long: `Reads utterances from stdin, one per line, and classifies each.
While running, edits to the config file are picked up automatically; the
pipeline is rebuilt with the new settings between requests.`,
	RunE: runRepl,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "voxnav.yaml", "config file path")

	for _, cmd := range []*cobra.Command{classifyCmd, feedbackCmd, replCmd} {
		cmd.Flags().StringVar(&pageURL, "url", "", "current page URL")
		cmd.Flags().StringVar(&pageTitle, "title", "", "current page title")
		cmd.Flags().StringVar(&htmlFile, "html-file", "", "file holding a DOM summary of the page")
		cmd.Flags().StringVar(&pageMode, "mode", "view", "page mode: view, edit, media")
		cmd.Flags().StringVar(&userID, "user", "", "user identifier (enables per-user learning)")
		cmd.Flags().StringVar(&sessionID, "session", "", "session identifier")
		cmd.Flags().StringVar(&role, "role", "guest", "user role: admin, member, guest")
		cmd.Flags().StringVar(&recentCSV, "recent", "", "comma-separated recent intents")
		cmd.Flags().StringVar(&task, "task", "", "current task description")
	}

	classifyCmd.Flags().BoolVar(&skipCache, "skip-cache", false, "bypass the intent cache")
	classifyCmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "bypass ensemble validation")
	classifyCmd.Flags().DurationVar(&reqTimeout, "timeout", 0, "per-request budget (0 = configured default)")

	feedbackCmd.Flags().BoolVar(&wasCorrect, "correct", false, "the prior classification was correct")

	predictCmd.Flags().StringVar(&userID, "user", "", "user identifier")
	predictCmd.Flags().StringVar(&recentCSV, "recent", "", "comma-separated recent intents")

	rootCmd.AddCommand(classifyCmd, feedbackCmd, predictCmd, healthCmd, metricsCmd, initCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runClassify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	req, err := buildRequest(strings.Join(args, " "))
	if err != nil {
		return err
	}
	req.Options = types.RequestOptions{
		SkipCache:      skipCache,
		SkipValidation: skipValidation,
		Timeout:        reqTimeout,
	}

	resp, err := orch.ProcessIntent(ctx, req)
	if err != nil {
		if pe, ok := types.AsPipelineError(err); ok {
			logger.Error("classification failed",
				zap.String("kind", string(pe.Kind)),
				zap.Bool("retryable", pe.Retryable),
				zap.String("suggestion", pe.Suggestion))
		}
		return err
	}
	return printJSON(resp)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var actual types.IntentCategory
	if len(args) > 1 {
		actual = types.IntentCategory(args[1])
	} else if !wasCorrect {
		return fmt.Errorf("actual-intent is required unless --correct is set")
	}

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}
	if err := orch.LearnFromFeedback(ctx, orchestrator.Feedback{
		Text:         req.Text,
		Page:         req.Page,
		Session:      req.Session,
		Role:         req.Role,
		ActualIntent: actual,
		WasCorrect:   wasCorrect,
	}); err != nil {
		return err
	}
	logger.Info("feedback recorded", zap.String("utterance", args[0]), zap.Bool("correct", wasCorrect))
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	recent := make([]types.IntentCategory, 0)
	for _, r := range parseRecent() {
		recent = append(recent, types.IntentCategory(r))
	}
	pred, ok := orch.PredictNextIntent(userID, recent)
	if !ok {
		fmt.Println("no prediction available")
		return nil
	}
	return printJSON(pred)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer orch.Close()
	return printJSON(orch.GetSystemHealth())
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	return printJSON(map[string]interface{}{
		"pipeline": orch.GetMetrics(),
		"cache":    orch.CacheStats(),
	})
}

// runRepl loops over stdin. The orchestrator is rebuilt when the config file
// changes on disk, guarded so an in-flight request finishes first.
func runRepl(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var mu sync.Mutex
	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		mu.Lock()
		orch.Close()
		mu.Unlock()
	}()

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		rebuilt, err := orchestrator.New(ctx, next)
		if err != nil {
			logger.Warn("config reload: pipeline rebuild failed, keeping previous", zap.Error(err))
			return
		}
		mu.Lock()
		old := orch
		orch = rebuilt
		mu.Unlock()
		old.Close()
		logger.Info("config reloaded, pipeline rebuilt")
	})
	if err != nil {
		logger.Warn("config watching unavailable", zap.Error(err))
	} else if err := watcher.Start(); err != nil {
		logger.Warn("config watching unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	fmt.Println("voxnav repl: type an utterance, ctrl-d to exit")
	scanner := bufio.NewScanner(os.Stdin)
	recents := parseRecent()
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		req, err := buildRequest(text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		req.Session.RecentIntents = recents

		mu.Lock()
		current := orch
		mu.Unlock()
		resp, err := current.ProcessIntent(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Printf("%s (%.2f) via %s", resp.Result.Intent, resp.Result.Confidence, resp.Result.Source)
		if resp.Clarification != "" {
			fmt.Printf("  [%s]", resp.Clarification)
		}
		fmt.Println()
		recents = append(recents, string(resp.Result.Intent))
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func buildRequest(text string) (orchestrator.Request, error) {
	html := ""
	if htmlFile != "" {
		data, err := os.ReadFile(htmlFile)
		if err != nil {
			return orchestrator.Request{}, fmt.Errorf("failed to read html file: %w", err)
		}
		html = string(data)
	}
	return orchestrator.Request{
		Text: text,
		Page: types.PageSnapshot{
			URL:   pageURL,
			Title: pageTitle,
			HTML:  html,
			Mode:  pageMode,
		},
		Session: types.SessionSnapshot{
			SessionID:     sessionID,
			UserID:        userID,
			RecentIntents: parseRecent(),
			CurrentTask:   task,
		},
		Role: role,
	}, nil
}

func parseRecent() []string {
	if recentCSV == "" {
		return nil
	}
	parts := strings.Split(recentCSV, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = intentcache.NormalizeText(p)
		p = strings.ReplaceAll(p, " ", "_")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
