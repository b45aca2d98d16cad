package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ganttforge/ganttforge/config"
	"github.com/ganttforge/ganttforge/pkg/api"
	"github.com/ganttforge/ganttforge/pkg/api/events"
	"github.com/ganttforge/ganttforge/pkg/api/handlers"
	"github.com/ganttforge/ganttforge/pkg/logger"
	"github.com/ganttforge/ganttforge/pkg/metrics"
	"github.com/ganttforge/ganttforge/pkg/plan"
	"github.com/ganttforge/ganttforge/pkg/render"
	"github.com/ganttforge/ganttforge/pkg/scheduler"
	"github.com/ganttforge/ganttforge/pkg/storage"
	"github.com/ganttforge/ganttforge/pkg/storage/badger"
	"github.com/ganttforge/ganttforge/pkg/storage/memory"
	"github.com/ganttforge/ganttforge/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// Modes
	planPath  = flag.String("plan", "", "Solve the plan file and print the schedule")
	watchMode = flag.Bool("watch", false, "Re-solve whenever the plan file changes")
	serveMode = flag.Bool("serve", false, "Run the HTTP API server")

	// Output
	outPath = flag.String("out", "", "Write rendered output to file instead of stdout")

	// CLI overrides
	formatFlag = flag.String("format", "", "Override render format (text, svg)")
	restarts   = flag.Int("restarts", -1, "Override solver restarts")
	seed       = flag.Int64("seed", 0, "Override solver seed")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	switch {
	case *serveMode:
		runServer(cfg, log)
	case *planPath != "":
		if *watchMode {
			runWatch(cfg, log)
		} else if err := solveOnce(cfg, log); err != nil {
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -plan <file> or -serve")
		printHelp()
		os.Exit(2)
	}
}

// solveOnce loads the plan, solves it, and writes the rendered schedule.
func solveOnce(cfg *config.Config, log logger.Logger) error {
	pl, err := plan.Load(*planPath)
	if err != nil {
		log.Error("Failed to load plan", "path", *planPath, "error", err)
		return err
	}
	result, err := solvePlan(context.Background(), cfg, log, pl)
	if err != nil {
		return err
	}
	return writeSchedule(cfg, log, result)
}

// solvePlan compiles the graph and runs the solver with the configured options.
func solvePlan(ctx context.Context, cfg *config.Config, log logger.Logger, pl *plan.Plan) (*scheduler.Result, error) {
	var graphOpts []plan.GraphOption
	if cfg.Solver.AllowNegativeLag {
		graphOpts = append(graphOpts, plan.WithNegativeLag())
	}

	g, err := pl.Graph(graphOpts...)
	if err != nil {
		log.Error("Invalid plan", "error", err)
		return nil, err
	}

	opts := scheduler.Options{
		Restarts:    cfg.Solver.Restarts,
		Seed:        cfg.Solver.Seed,
		Parallelism: cfg.Solver.Parallelism,
	}

	started := time.Now()
	result, err := scheduler.Schedule(ctx, g, pl.MaxResourcesInParallel, opts)
	if err != nil {
		log.Error("Solve failed", "error", err)
		return nil, err
	}

	log.Info("Plan solved",
		"projects", result.Len(),
		"makespan", result.Makespan(),
		"attempts", result.Stats().Attempts,
		"solve_time_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

// writeSchedule renders the result in the configured format.
func writeSchedule(cfg *config.Config, log logger.Logger, result *scheduler.Result) error {
	var out string
	switch cfg.Render.Format {
	case "svg":
		out = render.NewSVGRenderer(render.SVGOptions{Width: cfg.Render.Width}).Render(result)
	default:
		color := cfg.Render.Color && *outPath == ""
		out = render.NewTextRenderer(render.TextOptions{Width: cfg.Render.Width, Color: color}).Render(result)
	}

	if *outPath == "" {
		fmt.Print(out)
		return nil
	}
	if err := os.WriteFile(*outPath, []byte(out), 0o644); err != nil {
		log.Error("Failed to write output", "path", *outPath, "error", err)
		return err
	}
	log.Info("Schedule written", "path", *outPath, "format", cfg.Render.Format)
	return nil
}

// runWatch solves once, then re-solves on every plan file change.
func runWatch(cfg *config.Config, log logger.Logger) {
	if err := solveOnce(cfg, log); err != nil {
		os.Exit(1)
	}

	watcher, err := plan.NewWatcher(*planPath,
		plan.WithDebounce(cfg.Watch.Debounce),
		plan.WithErrorHandler(func(err error) {
			log.Error("Plan reload failed", "error", err)
		}),
	)
	if err != nil {
		log.Error("Failed to create plan watcher", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher.OnChange(func(pl *plan.Plan) {
		result, err := solvePlan(ctx, cfg, log, pl)
		if err != nil {
			return
		}
		if err := writeSchedule(cfg, log, result); err != nil {
			log.Error("Failed to write schedule", "error", err)
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	log.Info("Watching plan file", "path", *planPath, "debounce", cfg.Watch.Debounce)
	if err := watcher.Watch(ctx); err != nil && err != context.Canceled {
		log.Error("Watcher stopped", "error", err)
		os.Exit(1)
	}
}

// runServer starts the HTTP API, metrics server, and websocket event stream.
func runServer(cfg *config.Config, log logger.Logger) {
	log.Info("Starting GanttForge",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	store := openStorage(cfg, log)
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	// Metrics
	metricsCfg := metrics.Config{
		Enabled:              cfg.Metrics.Enabled,
		Port:                 cfg.Metrics.Port,
		Path:                 cfg.Metrics.Path,
		SolveDurationBuckets: metrics.DefaultConfig().SolveDurationBuckets,
		HTTPDurationBuckets:  metrics.DefaultConfig().HTTPDurationBuckets,
	}
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Config hot reload: only the log level changes without a restart.
	if *configPath != "" {
		cfgWatcher, err := config.NewWatcher(*configPath, config.NewLoader(),
			config.WithDebounce(cfg.Watch.Debounce))
		if err != nil {
			log.Warn("Config hot reload unavailable", "error", err)
		} else {
			current := config.ExtractHotReloadable(cfg)
			cfgWatcher.OnChange(func(newCfg *config.Config) {
				updated := config.ExtractHotReloadable(newCfg)
				if !current.Changed(updated) {
					return
				}
				if updated.LogLevel != current.LogLevel {
					log.SetLevel(logger.ParseLevel(updated.LogLevel))
					log.Info("Log level changed", "level", updated.LogLevel)
				}
				current = updated
			})
			go func() {
				if err := cfgWatcher.Watch(ctx); err != nil && err != context.Canceled {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
		}
	}

	// Event hub and websocket stream
	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	defer wsHandler.Close()
	go wsHandler.Run(ctx, broadcaster)

	// HTTP server
	apiHandlers := &api.Handlers{
		Schedule: handlers.NewScheduleHandler(store, cfg.Solver, log, metricsManager, broadcaster),
		Health:   handlers.NewHealthHandler(store),
		Events:   wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("GanttForge is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	log.Info("GanttForge stopped gracefully")
}

// openStorage builds the configured storage backend, falling back to
// the in-memory store for unknown types.
func openStorage(cfg *config.Config, log logger.Logger) storage.Storage {
	switch cfg.Storage.Type {
	case "badger":
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Storage.Badger.Path,
			SyncWrites:        cfg.Storage.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Storage.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Storage.Badger.NumVersionsToKeep,
		})
		if err != nil {
			log.Error("Failed to open Badger storage", "path", cfg.Storage.Badger.Path, "error", err)
			os.Exit(1)
		}
		log.Info("Schedule storage ready", "backend", "badger", "path", cfg.Storage.Badger.Path)
		return store
	case "memory":
		log.Info("Schedule storage ready", "backend", "memory")
	default:
		log.Warn("Unknown storage type, falling back to memory", "type", cfg.Storage.Type)
	}
	return memory.NewMemoryStorage()
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}
	if *formatFlag != "" {
		overrides["render.format"] = *formatFlag
	}
	if *restarts >= 0 {
		overrides["solver.restarts"] = *restarts
	}
	// Every seed value is meaningful, zero included, so presence on the
	// command line decides rather than a sentinel value.
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			overrides["solver.seed"] = *seed
		}
	})

	return overrides
}

func printVersion() {
	fmt.Printf("GanttForge - Resource-Constrained Project Scheduler\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("GanttForge - Resource-constrained project scheduling engine\n\n")
	fmt.Printf("Usage: ganttforge [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  ganttforge -plan chores.yaml                  # Solve a plan and print the schedule\n")
	fmt.Printf("  ganttforge -plan chores.yaml -format svg -out chores.svg\n")
	fmt.Printf("  ganttforge -plan chores.yaml -watch           # Re-solve on file changes\n")
	fmt.Printf("  ganttforge -serve -config config.yaml         # Run the HTTP API server\n")
	fmt.Printf("  ganttforge -plan chores.yaml -restarts 128 -seed 7\n")
	fmt.Printf("  ganttforge -version                           # Print version info\n")
}
