package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/config"
	ctxengine "github.com/user/labkeeper/internal/context"
	"github.com/user/labkeeper/internal/deletion"
	"github.com/user/labkeeper/internal/filter"
	"github.com/user/labkeeper/internal/labdb"
	"github.com/user/labkeeper/internal/logging"
	"github.com/user/labkeeper/internal/runtime"
	"github.com/user/labkeeper/internal/runtime/tools"
	"github.com/user/labkeeper/internal/state"
	"github.com/user/labkeeper/internal/workflow"
	"github.com/user/labkeeper/pkg/llm"
	"github.com/user/labkeeper/pkg/llm/gemini"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "labkeeper",
	Short: "Conversational manager for the lab results database",
	RunE:  runRepl,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".labkeeper", "config.json"),
		"config file path")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// app bundles everything a turn needs. Both the REPL and the daemon build
// one and differ only in how they source messages and reach the operator.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *state.DB
	orch       func(operator workflow.Operator) *workflow.Orchestrator
	controller *workflow.Controller
}

func buildApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := state.Open(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	// Create the lab schema on first run.
	lab, err := labdb.Open(cfg.Lab.DBPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open lab db: %w", err)
	}
	lab.Close()

	provider, err := gemini.New(ctx, &llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create llm provider: %w", err)
	}

	engine, err := ctxengine.New(cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create context engine: %w", err)
	}

	resolver := filter.NewLLMResolver(provider, logger)
	delGateway := deletion.New(labdb.Execute, logger)

	registry := runtime.NewRegistry()
	registry.Register(tools.NewInferFilters(resolver))
	registry.Register(tools.NewDeleteRecords(delGateway))
	registry.Register(tools.NewValidateCSV())
	registry.Register(tools.NewInsertCSV())

	rt := runtime.New(provider, engine,
		store.Sessions(), store.Events(), store.Pending(),
		registry, cfg.MaxToolRounds, logger)

	controller := workflow.NewController(logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		controller: controller,
		orch: func(operator workflow.Operator) *workflow.Orchestrator {
			return workflow.NewOrchestrator(rt, controller, operator, logger)
		},
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Sync()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
