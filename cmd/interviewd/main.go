// interviewd is the interview orchestration daemon: it terminates the client
// WebSocket protocol, drives per-session interview state, and generates
// questions and feedback through an ordered list of AI providers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"interviewd/pkg/config"
	"interviewd/pkg/llm"
	"interviewd/pkg/llm/anthropic"
	"interviewd/pkg/llm/gemini"
	"interviewd/pkg/llm/lmstudio"
	"interviewd/pkg/llm/ollama"
	"interviewd/pkg/logx"
	"interviewd/pkg/metrics"
	"interviewd/pkg/persistence"
	"interviewd/pkg/server"
	"interviewd/pkg/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "interviewd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	// Local development keys live in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logx.NewLogger("main")
	recorder := metrics.NewRecorder()

	factory := llm.NewFactory(llm.WithMetrics(recorder), llm.WithLogging())
	factory.Register(config.ProviderOllama, func(spec llm.ProviderSpec) (llm.Client, error) {
		return ollama.New(spec.Endpoint, spec.Model), nil
	})
	factory.Register(config.ProviderLMStudio, func(spec llm.ProviderSpec) (llm.Client, error) {
		return lmstudio.New(spec.Endpoint, spec.Model), nil
	})
	factory.Register(config.ProviderGemini, func(spec llm.ProviderSpec) (llm.Client, error) {
		return gemini.New(spec.APIKey, spec.Model), nil
	})
	factory.Register(config.ProviderAnthropic, func(spec llm.ProviderSpec) (llm.Client, error) {
		return anthropic.New(spec.APIKey, spec.Model), nil
	})

	clients, err := factory.CreateClients(cfg.ProviderSpecs())
	if err != nil {
		return fmt.Errorf("create provider clients: %w", err)
	}
	router := llm.NewRouter(clients, cfg.Providers.AttemptTimeout)
	logger.Info("provider order: %v", router.Providers())

	var archiver session.Archiver
	if cfg.Archive.Enabled {
		archive, err := persistence.NewArchive(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() { _ = archive.Close() }()
		archiver = archive
		logger.Info("archiving interviews to %s", cfg.Archive.Path)
	}

	registry := session.NewRegistry(session.Limits{
		ReconnectWindow: cfg.Sessions.ReconnectWindow,
		EndedLinger:     cfg.Sessions.EndedLinger,
		SweepInterval:   cfg.Sessions.SweepInterval,
	}, recorder, archiver)

	srv := server.New(cfg, registry, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		registry.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	logger.Info("interviewd started")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("interviewd stopped")
	return nil
}
