package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/bus"
	"github.com/boardkit/dispatch/internal/config"
	"github.com/boardkit/dispatch/internal/dedup"
	"github.com/boardkit/dispatch/internal/embedding"
	"github.com/boardkit/dispatch/internal/llm"
	"github.com/boardkit/dispatch/internal/logger"
	"github.com/boardkit/dispatch/internal/orchestrator"
	"github.com/boardkit/dispatch/internal/pipeline"
	"github.com/boardkit/dispatch/internal/relevance"
	"github.com/boardkit/dispatch/internal/store"
	"github.com/boardkit/dispatch/internal/tools"
	"github.com/boardkit/dispatch/internal/workers"
)

var (
	runConfigPath string
	runMode       string
	runDebug      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dispatch engine",
	Long: `Start the dispatch engine. Transcript fragments are read from stdin,
one per line; lifecycle events and created cards are printed to stdout.`,
	Run: runHandler,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file path (default dispatch.toml if present)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "session mode override: fast, medium, slow, off")
	runCmd.Flags().BoolVarP(&runDebug, "debug", "d", false, "enable debug logging")
}

// lazySource defers ContextSource resolution until the orchestrator exists.
// The pool and orchestrator reference each other; the pool is built first.
type lazySource struct {
	orch *orchestrator.Orchestrator
}

func (l *lazySource) CurrentContext(d *agents.Descriptor) agents.Context {
	if l.orch == nil {
		return agents.Context{}
	}
	return l.orch.CurrentContext(d)
}

// persistentStore copies every appended card into the JSONL log.
type persistentStore struct {
	*store.MemoryStore
	storage *store.Storage
	logger  *logger.Logger
}

func (p *persistentStore) AppendItem(item store.Item) {
	p.MemoryStore.AppendItem(item)
	if err := p.storage.Append(item); err != nil {
		p.logger.Error("failed to persist card", err,
			logger.Field{Key: "item_id", Value: item.ID})
	}
}

func runHandler(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	switch {
	case runConfigPath != "":
		cfg, err = config.Load(runConfigPath)
	default:
		if _, statErr := os.Stat("dispatch.toml"); statErr == nil {
			cfg, err = config.Load("dispatch.toml")
		} else {
			cfg = config.Default()
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if runMode != "" {
		cfg.Session.Mode = runMode
	}
	if runDebug {
		cfg.Logging.Level = "debug"
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "configuration validation failed:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting dispatchd",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "mode", Value: cfg.Session.Mode})

	// Storage.
	memory := store.NewMemoryStore()
	var st store.Store = memory
	if cfg.Storage.Path != "" {
		storage := store.NewStorage(cfg.Storage.Path, log)
		items, loadErr := storage.Load()
		if loadErr != nil {
			log.Error("failed to load persisted cards", loadErr)
			os.Exit(1)
		}
		for _, item := range items {
			memory.AppendItem(item)
		}
		log.Info("cards loaded", logger.Field{Key: "count", Value: len(items)})
		st = &persistentStore{MemoryStore: memory, storage: storage, logger: log}
	}

	events := bus.New(bus.DefaultCapacity, log)
	defer events.Close()

	// Providers.
	var completions llm.Provider
	switch cfg.LLM.Provider {
	case "openai":
		completions = llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:         cfg.LLM.OpenAI.APIKey,
			BaseURL:        cfg.LLM.OpenAI.BaseURL,
			Model:          cfg.LLM.OpenAI.Model,
			Temperature:    cfg.LLM.OpenAI.Temperature,
			TimeoutSeconds: cfg.LLM.OpenAI.TimeoutSeconds,
		}, log)
	default:
		completions = llm.NewEchoProvider()
	}

	var embedder embedding.Provider
	switch cfg.Embedding.Provider {
	case "openai":
		embedder = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:         cfg.Embedding.OpenAI.APIKey,
			BaseURL:        cfg.Embedding.OpenAI.BaseURL,
			Model:          cfg.Embedding.OpenAI.Model,
			TimeoutSeconds: cfg.Embedding.OpenAI.TimeoutSeconds,
		}, log)
	default:
		embedder = embedding.NewMockProvider(nil)
	}

	// Gates.
	dedupGate := dedup.NewGate(embedder, st, log)
	for _, item := range st.Items("") {
		dedupGate.Warm(item)
	}
	relevanceGate := relevance.NewGate()

	// Tools.
	toolRegistry := tools.NewRegistry()
	registerTools(toolRegistry, cfg.Tools.Enabled, log)
	limiter := tools.NewRateLimiter(
		cfg.Tools.RateLimit.Capacity,
		time.Duration(cfg.Tools.RateLimit.RefillSeconds)*time.Second,
		cfg.Tools.RateLimit.RefillAmount,
	)
	executor := tools.NewExecutor(toolRegistry, limiter, log)

	// Agents.
	registry := agents.NewRegistry()
	if err := registerBuiltinAgents(registry); err != nil {
		log.Error("failed to register built-in agents", err)
		os.Exit(1)
	}
	if cfg.Agents.RosterPath != "" {
		if err := agents.LoadRoster(cfg.Agents.RosterPath, registry); err != nil {
			log.Error("failed to load agent roster", err,
				logger.Field{Key: "path", Value: cfg.Agents.RosterPath})
			os.Exit(1)
		}
	}

	plain := agents.NewLLMInvoker(completions, log)
	invoker := pipeline.New(completions, toolRegistry, executor, plain, log,
		pipeline.WithMaxCalls(cfg.Tools.MaxPlannedCalls))

	var metrics *workers.Metrics
	if cfg.Metrics.Enabled {
		metrics = workers.InitMetrics("dispatch", nil)
	}

	source := &lazySource{}
	pool := workers.NewPool(workers.Config{
		Concurrency:      cfg.Pool.Concurrency,
		BacklogThreshold: cfg.Pool.BacklogThreshold,
		CircuitThreshold: cfg.Pool.CircuitThreshold,
		DedupThreshold:   cfg.Dedup.Threshold,
		DedupMinScore:    cfg.Dedup.MinScore,
		DedupTopK:        cfg.Dedup.TopK,
	}, registry, invoker, dedupGate, st, events, source, log, metrics)
	pool.SetAllowList(cfg.Session.AllowedAgents)

	mode, _ := orchestrator.ParseMode(cfg.Session.Mode)
	orch := orchestrator.New(orchestrator.Config{
		SessionID:               fmt.Sprintf("session-%d", time.Now().Unix()),
		Mode:                    mode,
		WindowSize:              cfg.Orchestrator.WindowSize,
		PhaseEarlyUntil:         time.Duration(cfg.Orchestrator.PhaseEarlyUntilMinutes) * time.Minute,
		PhaseMidUntil:           time.Duration(cfg.Orchestrator.PhaseMidUntilMinutes) * time.Minute,
		SecondPassCheckInterval: time.Duration(cfg.Orchestrator.SecondPassCheckSeconds) * time.Second,
		SecondPassMinInterval:   time.Duration(cfg.Orchestrator.SecondPassMinIntervalSeconds) * time.Second,
		SecondPassMinNewItems:   cfg.Orchestrator.SecondPassMinNewItems,
	}, relevanceGate, pool, registry, st, events, log)
	source.orch = orch

	if err := orch.Start(); err != nil {
		log.Error("failed to start orchestrator", err)
		os.Exit(1)
	}

	// Event printer.
	sub := events.Subscribe()
	go func() {
		for event := range sub.Ch() {
			line, jsonErr := event.ToJSON()
			if jsonErr != nil {
				continue
			}
			fmt.Println(string(line))
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if httpErr := http.ListenAndServe(cfg.Metrics.Listen, nil); httpErr != nil {
				log.Error("metrics listener failed", httpErr)
			}
		}()
		log.Info("metrics listening", logger.Field{Key: "addr", Value: cfg.Metrics.Listen})
	}

	// Feed stdin fragments until EOF or a shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				orch.Flush()
				// Give in-flight tasks a moment to drain before shutdown.
				time.Sleep(2 * time.Second)
				break loop
			}
			orch.AddFragment(line)
		case sig := <-sigCh:
			log.Info("shutting down", logger.Field{Key: "signal", Value: sig.String()})
			break loop
		}
	}

	orch.Stop()
	pool.Stop()
	dedupGate.Clear()
	events.Unsubscribe(sub)
	log.Info("dispatchd stopped")
}

// registerTools registers the built-in toolset, optionally filtered.
func registerTools(registry *tools.Registry, enabled []string, log *logger.Logger) {
	builtins := []tools.Tool{
		tools.NewEchoTool(),
		tools.NewRegexExtractTool(),
		tools.NewWebFetchTool(),
	}

	allow := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		allow[name] = struct{}{}
	}

	for _, tool := range builtins {
		if len(allow) > 0 {
			if _, ok := allow[tool.Name()]; !ok {
				continue
			}
		}
		if err := registry.Register(tool); err != nil {
			log.Error("failed to register tool", err,
				logger.Field{Key: "tool", Value: tool.Name()})
		}
	}
}
