// Package main is the gridskin CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gridskin/gridskin/internal/compositor"
	"github.com/gridskin/gridskin/internal/config"
	"github.com/gridskin/gridskin/internal/fetcher"
	"github.com/gridskin/gridskin/internal/overlay"
	"github.com/gridskin/gridskin/internal/pipeline"
	"github.com/gridskin/gridskin/internal/searchcache"
	"github.com/gridskin/gridskin/internal/server"
	"github.com/gridskin/gridskin/internal/sgdb"
	"github.com/gridskin/gridskin/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/gridskin/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	config.LoadDotEnv()
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "process":
		runProcess()
	case "consoles":
		runConsoles()
	case "version", "--version", "-v":
		fmt.Printf("gridskin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// components bundles the constructed pipeline stages.
type components struct {
	Store    *fetcher.Store
	Registry *overlay.Registry
	Pipeline *pipeline.Pipeline
}

func (c *components) Close() {
	_ = c.Store.Close()
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := fetcher.NewStore(cfg.Storage.CacheDir)
	if err != nil {
		return nil, err
	}

	client := sgdb.NewClient(&cfg.API, utils.ComponentLogger(logger, "sgdb"))
	cache := searchcache.New(client, cfg.Search.CacheCapacity)
	fetch := fetcher.New(store, client, utils.ComponentLogger(logger, "fetcher"))

	registry, err := overlay.NewRegistry(
		cfg.Storage.OverlaysDir,
		cfg.Compose.CanvasWidth,
		cfg.Compose.CanvasHeight,
		utils.ComponentLogger(logger, "overlay"),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	comp := compositor.New(
		cfg.Storage.OutputDir,
		cfg.Compose.CornerRadius,
		utils.ComponentLogger(logger, "compositor"),
	)

	return &components{
		Store:    store,
		Registry: registry,
		Pipeline: pipeline.New(cache, fetch, registry, comp, utils.ComponentLogger(logger, "pipeline")),
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.OverlaysOrDefault() {
		go func() {
			if err := comps.Registry.Watch(watchCtx); err != nil {
				logger.Warn("overlay watch stopped", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(comps.Pipeline, comps.Registry, comps.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: gridskin search [flags] <game name>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	candidates, err := comps.Pipeline.Search(context.Background(), query)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d candidates for %q:\n", len(candidates), query)
	for i, c := range candidates {
		fmt.Printf("%3d. id=%d %dx%d score=%.1f %s\n", i+1, c.ID, c.Width, c.Height, c.Score, c.FullURL)
	}
}

func runProcess() {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	consoleID := fs.String("console", "", "console id (overlay folder name)")
	_ = fs.Parse(os.Args[2:])

	names := fs.Args()
	if *consoleID == "" || len(names) == 0 {
		fmt.Println("Usage: gridskin process -console <id> <game name> [game name ...]")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	results, failures := comps.Pipeline.Process(context.Background(), names, *consoleID)
	for _, r := range results {
		fmt.Printf("✓ %s\n", r.OutputPath)
	}
	for name, ferr := range failures {
		fmt.Printf("✗ %s: %v\n", name, ferr)
	}
	if len(failures) > 0 {
		os.Exit(1)
	}
}

func runConsoles() {
	fs := flag.NewFlagSet("consoles", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry, err := overlay.NewRegistry(
		cfg.Storage.OverlaysDir,
		cfg.Compose.CanvasWidth,
		cfg.Compose.CanvasHeight,
		utils.ComponentLogger(logger, "overlay"),
	)
	if err != nil {
		fmt.Printf("Failed to load overlays: %v\n", err)
		os.Exit(1)
	}

	consoles := registry.Consoles()
	if len(consoles) == 0 {
		fmt.Printf("No consoles found in %s (each console is a folder with an overlay.png)\n", cfg.Storage.OverlaysDir)
		return
	}
	for _, id := range consoles {
		fmt.Println(id)
	}
}

func printUsage() {
	fmt.Println(`gridskin - SteamGridDB icon downloader with console overlays

Usage:
  gridskin server   [-config path] [-debug]        run the HTTP API
  gridskin search   [-config path] <game name>     list grid candidates
  gridskin process  [-config path] -console <id> <game name> ...
                                                   compose icons for games
  gridskin consoles [-config path]                 list available overlays
  gridskin version                                 print version`)
}
