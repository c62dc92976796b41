package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/config"
	"deskbot/internal/conversation"
	"deskbot/internal/domain"
	"deskbot/internal/engine"
	"deskbot/internal/handoff"
	"deskbot/internal/intent"
	"deskbot/internal/knowledge"
	"deskbot/internal/metrics"
	"deskbot/internal/orchestrator"
	"deskbot/internal/provider"
	"deskbot/internal/responder"
	"deskbot/internal/safety"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "deskbot",
		Short:   "deskbot: multi-agent customer-support core",
		Long:    "deskbot routes customer messages through safety filtering, intent classification, and specialized responders, with human handoff when automation should step aside.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.deskbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(sweepCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	return cfg
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			w = f
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// serveMetrics exposes the Prometheus text endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		addr = "127.0.0.1:9090"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics endpoint stopped", "err", err)
	}
}

// stack bundles everything a command needs after wiring.
type stack struct {
	orch    *orchestrator.Orchestrator
	engine  *engine.Engine
	bus     *bus.InMemoryBus
	cleanup func()
}

func buildStack(cfg *config.Config) (*stack, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	factory := provider.NewFactory(cfg, logger)
	backend, err := factory.Build()
	if err != nil {
		logger.Warn("no completion backend available, running on deterministic fallbacks", "err", err)
		backend = nil
	}

	filter := safety.NewFilter(cfg.Safety, backend, logger)
	validator := safety.NewValidator(filter, cfg.Safety.MinReplyLength, logger)
	classifier := intent.NewClassifier(cfg.Routing, backend, logger)
	evaluator := handoff.NewEvaluator(cfg.Handoff, cfg.Routing.MinConfidence)

	var searcher domain.KnowledgeSearcher
	if cfg.Knowledge.Enabled {
		kbPath := cfg.Knowledge.DBPath
		if kbPath == "" {
			kbPath = filepath.Join(config.DefaultConfigDir(), "knowledge.db")
		}
		kbStore, err := knowledge.NewSQLiteStore(kbPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open knowledge base: %w", err)
		}
		closers = append(closers, func() { kbStore.Close() })
		searcher = knowledge.NewEngine(knowledge.EngineConfig{
			Store:     kbStore,
			ChunkSize: cfg.Knowledge.ChunkSize,
			Overlap:   cfg.Knowledge.ChunkOverlap,
			Logger:    logger,
		})
	}

	profiles, err := responder.LoadProfiles(cfg.Responders, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("load responder profiles: %w", err)
	}
	responders := make(map[responder.Kind]*responder.Responder)
	for _, kind := range responder.Kinds() {
		responders[kind] = responder.New(kind, backend, searcher, profiles[string(kind)], logger)
	}

	var store domain.ConversationStore
	if cfg.Conversations.Store == "sqlite" {
		sqlStore, err := conversation.NewSQLiteStore(cfg.Conversations.DBPath, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open conversation store: %w", err)
		}
		closers = append(closers, func() { sqlStore.Close() })
		store = sqlStore
	} else {
		store = conversation.NewMemoryStore()
	}

	orch := orchestrator.New(orchestrator.Config{
		Filter:           filter,
		Validator:        validator,
		Classifier:       classifier,
		Evaluator:        evaluator,
		Responders:       responders,
		Store:            store,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Breaker.RecoveryTimeoutSeconds) * time.Second,
		Retention:        time.Duration(cfg.Conversations.RetentionHours) * time.Hour,
		Logger:           logger,
	})

	messageBus := bus.New(100, logger)
	closers = append(closers, messageBus.Close)

	eng := engine.New(engine.Config{
		Orchestrator: orch,
		Bus:          messageBus,
		Concurrency:  cfg.General.MaxConcurrentMessages,
		SweepEvery:   time.Hour,
		Logger:       logger,
	})

	return &stack{orch: orch, engine: eng, bus: messageBus, cleanup: cleanup}, nil
}

func chatCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive support conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger = setupLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer st.cleanup()

			if cfg.Metrics.Enabled {
				go serveMetrics(ctx, cfg.Metrics.Listen)
			}

			conversationID := uuid.NewString()
			fmt.Printf("deskbot %s, conversation %s (ctrl-d to quit)\n", version, conversationID)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				if ctx.Err() != nil {
					break
				}

				resp := st.engine.ProcessDirect(ctx, domain.InboundMessage{
					ID:             uuid.NewString(),
					ConversationID: conversationID,
					TenantID:       tenant,
					CustomerID:     "cli-user",
					Channel:        domain.ChannelCLI,
					Content:        text,
					Timestamp:      time.Now(),
				})

				fmt.Println(resp.Content)
				if resp.RequiresHandoff {
					fmt.Println("(flagged for human follow-up)")
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant id for this conversation")
	return cmd
}

func statusCmd() *cobra.Command {
	var showMetrics bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend and responder health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			factory := provider.NewFactory(cfg, logger)
			backend, err := factory.Build()
			switch {
			case err != nil:
				fmt.Println("backend: not configured")
			case backend.Healthy(ctx) != nil:
				fmt.Printf("backend: %s (unreachable)\n", backend.Name())
			default:
				fmt.Printf("backend: %s (healthy)\n", backend.Name())
			}

			st, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer st.cleanup()

			health := st.orch.Health()
			names := make([]string, 0, len(health))
			for name := range health {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				h := health[name]
				fmt.Printf("responder %-11s %-10s breaker=%s success=%.0f%%\n",
					name, h.Status, h.Breaker, h.SuccessRate*100)
			}

			if showMetrics {
				fmt.Println()
				fmt.Print(metrics.Collector.Render())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "also print the metrics exposition text")
	return cmd
}

func ingestCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Add documents to the tenant's knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if !cfg.Knowledge.Enabled {
				return fmt.Errorf("knowledge base is disabled in config")
			}

			kbPath := cfg.Knowledge.DBPath
			if kbPath == "" {
				kbPath = filepath.Join(config.DefaultConfigDir(), "knowledge.db")
			}
			store, err := knowledge.NewSQLiteStore(kbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			eng := knowledge.NewEngine(knowledge.EngineConfig{
				Store:     store,
				ChunkSize: cfg.Knowledge.ChunkSize,
				Overlap:   cfg.Knowledge.ChunkOverlap,
				Logger:    logger,
			})

			ctx := context.Background()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				doc, err := eng.AddDocument(ctx, tenant, filepath.Base(path), string(data))
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("ingested %s (%d chunks)\n", doc.Name, doc.ChunkCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant id to ingest under")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove conversations past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.Conversations.Store != "sqlite" {
				return fmt.Errorf("sweep only applies to the sqlite conversation store")
			}

			store, err := conversation.NewSQLiteStore(cfg.Conversations.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().Add(-time.Duration(cfg.Conversations.RetentionHours) * time.Hour)
			n, err := store.SweepExpired(context.Background(), cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired conversations\n", n)
			return nil
		},
	}
}
