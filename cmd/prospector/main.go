package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prospector/internal/config"
	"prospector/internal/gateway"
	"prospector/internal/logging"
	"prospector/internal/memory"
	"prospector/internal/pipeline"
	"prospector/internal/service"
	"prospector/internal/store"
)

var (
	// Global flags
	configPath string
	workspace  string
	apiKey     string
	verbose    bool
	waitFor    time.Duration

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "prospector - AI-assisted prospect research pipeline",
	Long: `prospector runs multi-stage research on sales prospects: deep
research, vertical classification, competitor case studies, gap
analysis, and optional internal operations intelligence.

Jobs run asynchronously through a bounded worker pool. Projects group
iterative runs and carry forward what earlier iterations learned.`,
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
		if err := logging.Initialize(workspace); err != nil {
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

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <workspace>/.prospector/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (overrides config and env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().DurationVar(&waitFor, "timeout", 15*time.Minute, "maximum time to wait for a run to finish")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(iterateCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(statusCmd)
}

// app bundles everything a command needs.
type app struct {
	cfg     *config.Config
	store   *store.LocalStore
	memory  *memory.Store
	runner  *pipeline.Runner
	service *service.Service
}

func (a *app) close() {
	if a.runner != nil {
		a.runner.Shutdown()
	}
	if a.memory != nil {
		a.memory.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspace, ".prospector", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	return cfg, nil
}

// buildApp wires the full stack. Commands that never call the provider
// (status, compare) pass needGateway=false and work without an API key.
func buildApp(needGateway bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if needGateway && cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key configured (set GEMINI_API_KEY or --api-key)")
	}

	st, err := store.NewLocalStore(filepath.Join(workspace, cfg.Storage.DatabasePath))
	if err != nil {
		return nil, err
	}

	var mem *memory.Store
	if cfg.Storage.MemoryPath != "" {
		mem, err = memory.NewStore(filepath.Join(workspace, cfg.Storage.MemoryPath))
		if err != nil {
			logger.Warn("memory store unavailable, continuing without it", zap.Error(err))
			mem = nil
		} else if cfg.Embedding.Enabled && cfg.LLM.APIKey != "" {
			engine, err := memory.NewGenAIEngine(cfg.LLM.APIKey, cfg.Embedding.Model)
			if err != nil {
				logger.Warn("embedding engine unavailable, falling back to keyword search", zap.Error(err))
			} else {
				mem.SetEmbeddingEngine(engine)
			}
		}
	}

	gcfg := gateway.DefaultGeminiConfig(cfg.LLM.APIKey)
	gcfg.Model = cfg.LLM.Model
	gcfg.BaseURL = cfg.LLM.BaseURL
	gcfg.Timeout = cfg.GetLLMTimeout()
	gcfg.MaxOutputTokens = cfg.LLM.MaxOutputTokens
	gw := gateway.NewGeminiClient(gcfg)

	runner := pipeline.NewRunner(st, gw, mem, cfg)
	return &app{
		cfg:     cfg,
		store:   st,
		memory:  mem,
		runner:  runner,
		service: service.New(st, runner, cfg),
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
