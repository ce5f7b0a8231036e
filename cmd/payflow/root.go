package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/payflow"
	"github.com/deepnoodle-ai/payflow/capability"
	"github.com/deepnoodle-ai/payflow/selector"
	"github.com/deepnoodle-ai/payflow/sqlite"
)

// commandContext carries the persistent flags shared by all subcommands.
type commandContext struct {
	dbPath     string
	configPath string
	verbose    bool
}

// services bundles the wired processing stack behind one Close.
type services struct {
	svc      *payflow.Service
	store    *sqlite.Store
	pipeline *payflow.Pipeline
	config   payflow.Config
	selector *selector.Selector
}

func (s *services) Close() {
	_ = s.store.Close()
}

// open wires the full stack: config, sqlite store, simulated capability
// providers, tool selector, pipeline, engine, service.
func (c *commandContext) open() (*services, error) {
	cfg := payflow.DefaultConfig()
	if c.configPath != "" {
		loaded, err := payflow.LoadConfigFile(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := c.logger()

	store, err := sqlite.Open(c.dbPath)
	if err != nil {
		return nil, err
	}

	capabilities, err := capability.NewClient(capability.ClientOptions{
		Local:    capability.NewSimulator(),
		External: capability.NewSimulator(),
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	tools := selector.New(selector.Options{
		Pools:  cfg.ToolPools,
		Logger: logger,
	})

	pipeline, err := payflow.NewInvoicePipeline(payflow.InvoicePipelineOptions{
		Capabilities: capabilities,
		Selector:     tools,
		Config:       cfg,
		Logger:       logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	engine, err := payflow.NewEngine(payflow.EngineOptions{
		Pipeline: pipeline,
		Store:    store,
		Audit:    store,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	svc, err := payflow.NewService(payflow.ServiceOptions{
		Engine:   engine,
		Store:    store,
		Audit:    store,
		Selector: tools,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &services{
		svc:      svc,
		store:    store,
		pipeline: pipeline,
		config:   cfg,
		selector: tools,
	}, nil
}

func (c *commandContext) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return payflow.NewLoggerWithLevel(level)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "payflow",
		Short:         "Invoice processing workflow with durable human review",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&ctx.dbPath, "db", "payflow.db", "path to the sqlite database")
	root.PersistentFlags().StringVar(&ctx.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newProcessCommand(ctx),
		newReviewsCommand(ctx),
		newShowCommand(ctx),
		newDecideCommand(ctx),
		newAuditCommand(ctx),
		newDecisionsCommand(ctx),
		newSelectionsCommand(ctx),
		newGraphCommand(ctx),
	)
	return root
}
