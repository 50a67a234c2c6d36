// aqua is a CLI agent for Ubuntu system operation and maintenance.
// It drives an LLM with an interactive SSH tool, web search, and a
// scrape-and-retrieve tool, configured from a YAML file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aquaagent/internal/agent"
	"aquaagent/internal/config"
	"aquaagent/internal/embedding"
	"aquaagent/internal/llm"
	"aquaagent/internal/logging"
	"aquaagent/internal/store"
	"aquaagent/internal/tools"
	"aquaagent/internal/tools/research"
	"aquaagent/internal/tools/ssh"
)

// Build info, overridden via -ldflags at release time.
var (
	version = "1.0.0-dev"
	commit  = "unknown"
)

var (
	// Global flags
	configPath string
	verbose    bool
	modelAlias string
	timeout    time.Duration

	// Logger for command plumbing; category loggers handle the subsystems.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aqua",
	Short: "aqua - LLM agent for Ubuntu system operation over SSH",
	Long: `aqua operates a remote Ubuntu host for you. Describe a task
("install docker on my server") and the agent researches the procedure,
runs commands over a persistent SSH session, answers interactive prompts,
and verifies the result.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
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
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var streamAnswer bool

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Execute a single task and print the final answer",
	Long: `Executes one task through the tool loop and prints the final answer.

With --stream the model answers directly, streamed as it is generated,
without touching the host or the web. Use it for questions that need no
tool access.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd.Context(), strings.Join(args, " "))
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools(cmd.Context())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the aqua configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInit()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionsList()
	},
}

var pruneDays int

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete conversations older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionsPrune()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aqua %s (%s)\n", version, commit)
	},
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle (runChat -> newRuntime -> loadConfig -> rootCmd).
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&modelAlias, "model", "m", "", "override the llms entry used by the agent")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall deadline for 'run' (0 = none)")

	runCmd.Flags().BoolVar(&streamAnswer, "stream", false, "stream a direct answer without the tool loop")
	sessionsPruneCmd.Flags().IntVar(&pruneDays, "days", 30, "age threshold in days")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsPruneCmd)
	rootCmd.AddCommand(runCmd, toolsCmd, configCmd, sessionsCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime bundles everything a conversation needs. Close releases the
// SSH session and the store.
type runtime struct {
	cfg      *config.Config
	client   llm.Client
	registry *tools.Registry
	store    *store.SessionStore
	session  *ssh.Session
	watcher  *config.Watcher
}

func (r *runtime) Close() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if r.session != nil {
		_ = r.session.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

// loadConfig loads the config file and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	if env := os.Getenv("AQUA_CONFIG"); env != "" && !rootCmd.PersistentFlags().Changed("config") {
		configPath = env
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if modelAlias != "" {
		if _, ok := cfg.LLMs[modelAlias]; !ok {
			return nil, fmt.Errorf("--model %q is not a configured llms entry", modelAlias)
		}
		cfg.Agent.Model = modelAlias
	}
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newRuntime wires the full stack: logging, LLM clients, tools, store.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cwd, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}

	llms, err := llm.NewRegistry(cfg.LLMs)
	if err != nil {
		return nil, err
	}
	client, err := llms.Get(cfg.Agent.Model)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()

	session, err := ssh.Register(registry, cfg.Tools.SSH)
	if err != nil {
		return nil, fmt.Errorf("failed to set up ssh tool: %w", err)
	}
	if session == nil {
		logger.Warn("no ssh host configured; the ssh tool is disabled")
	}

	var engine embedding.Engine
	if cfg.Embedding.Provider != "" {
		engine, err = embedding.NewEngine(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to set up embedding engine: %w", err)
		}
		if hc, ok := engine.(embedding.HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				logger.Warn("embedding backend unreachable; scraped pages will fail to index",
					zap.String("engine", engine.Name()), zap.Error(err))
			}
		}
	}
	if err := research.RegisterAll(registry, cfg.Tools, engine); err != nil {
		return nil, fmt.Errorf("failed to set up research tools: %w", err)
	}

	st, err := store.Open(cfg.Session.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// Hot-reload the logging section on config file edits.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		logging.Configure(logging.Settings{
			DebugMode:  next.Logging.DebugMode,
			Level:      next.Logging.Level,
			Categories: next.Logging.Categories,
			JSONFormat: next.Logging.JSONFormat,
		})
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
		watcher = nil
	}

	return &runtime{
		cfg:      cfg,
		client:   client,
		registry: registry,
		store:    st,
		session:  session,
		watcher:  watcher,
	}, nil
}

// runOneShot executes a single task and prints the final answer.
func runOneShot(ctx context.Context, task string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if streamAnswer {
		return runStreamed(ctx, rt, task)
	}

	a, err := agent.New(rt.client, rt.registry, rt.cfg, agent.Options{
		Store:        rt.store,
		HistoryLimit: rt.cfg.Session.HistoryLimit,
		Hooks: agent.Hooks{
			OnToolCall: func(call llm.ToolCall) {
				fmt.Fprintf(os.Stderr, "[tool] %s\n", call.Name)
			},
		},
	})
	if err != nil {
		return err
	}

	answer, err := a.Ask(ctx, task)
	if err != nil {
		return err
	}
	fmt.Println(answer)

	usage := a.Usage()
	logger.Info("task complete",
		zap.String("session", a.SessionID()),
		zap.Int("total_tokens", usage.TotalTokens))
	return nil
}

// runStreamed answers a task directly, without the tool loop, streaming
// text as the model produces it. Clients that cannot stream fall back to
// a single completion.
func runStreamed(ctx context.Context, rt *runtime, task string) error {
	prompt, err := agent.SystemPrompt(rt.cfg.Agent)
	if err != nil {
		return err
	}

	streamer, ok := rt.client.(llm.Streamer)
	if !ok {
		answer, err := rt.client.CompleteWithSystem(ctx, prompt, task)
		if err != nil {
			return err
		}
		fmt.Println(answer)
		return nil
	}

	contentCh, errCh := streamer.CompleteWithStreaming(ctx, prompt, task)
	wrote := false
	for delta := range contentCh {
		fmt.Print(delta)
		wrote = true
	}
	if wrote {
		fmt.Println()
	}
	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

// runTools prints the registered tool belt. Registration runs against the
// real config so disabled tools (no ssh host, no embedding backend) are
// reflected accurately.
func runTools(ctx context.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	all := rt.registry.All()
	if len(all) == 0 {
		fmt.Println("No tools registered. Check the tools section of the config.")
		return nil
	}
	for _, tool := range all {
		desc := tool.Description
		if idx := strings.IndexByte(desc, '\n'); idx >= 0 {
			desc = desc[:idx]
		}
		fmt.Printf("%-22s %-12s %s\n", tool.Name, tool.Category, desc)
	}
	return nil
}

func runConfigInit() error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first to reinitialize", configPath)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("Edit the llms and tools.ssh sections before first use.")
	return nil
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Print(renderRedactedConfig(cfg))
	return nil
}

// renderRedactedConfig renders the config as YAML with secrets masked.
func renderRedactedConfig(cfg *config.Config) string {
	redacted := *cfg
	redacted.LLMs = make(map[string]config.LLMConfig, len(cfg.LLMs))
	for name, entry := range cfg.LLMs {
		entry.APIKey = redact(entry.APIKey)
		redacted.LLMs[name] = entry
	}
	redacted.Tools.SSH.Password = redact(cfg.Tools.SSH.Password)
	redacted.Tools.WebSearch.TavilyAPIKey = redact(cfg.Tools.WebSearch.TavilyAPIKey)
	redacted.Embedding.APIKey = redact(cfg.Embedding.APIKey)

	return redacted.String()
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func runSessionsList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Session.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.Sessions(0)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %3d turns  %s\n",
			s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.Turns, title)
	}
	return nil
}

func runSessionsPrune() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Session.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.Prune(time.Duration(pruneDays) * 24 * time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d session(s) older than %d days\n", deleted, pruneDays)
	return nil
}
