package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/coordinator"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/events"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/expand"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/importer"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/ops"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/queue"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/registry"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/results"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/storage"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to the YAML configuration file")
		once       = flag.Bool("once", false, "process at most one unit of work and exit")
		runImport  = flag.Bool("import", false, "import the sources file and exit")
		runResults = flag.String("results", "", "promote selected results for the given source ID (\"all\" for every source) and exit")
		serveOps   = flag.Bool("serve-ops", false, "serve the ops HTTP endpoints")
	)
	flag.Parse()

	cfg := loadConfiguration(*configFile)
	obs := newObservability(cfg)
	logger, metrics := obs.MustComponents("main")

	logger.Info("starting coordinator",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"worker_id", cfg.WorkerID,
		"store_backend", cfg.Store.Backend)
	metrics.IncrementCounter("application.starts", nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := buildApplication(ctx, cfg, obs)
	defer app.close()

	switch {
	case *runImport:
		runImportOnce(ctx, app, logger)
	case *runResults != "":
		runResultsOnce(ctx, app, logger, *runResults)
	default:
		if *serveOps && cfg.OpsAddr != "" {
			startOpsServer(ctx, app, logger)
		}
		runWorkLoop(ctx, app, logger, *once)
	}

	logger.Info("coordinator stopped")
}

// application holds the assembled component stack.
type application struct {
	cfg       *config.Config
	store     store.TableStore
	coord     *coordinator.Coordinator
	registry  *registry.Registry
	publisher events.Publisher
	opsServer *ops.Server
}

func (a *application) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		closer.Close()
	}
}

func loadConfiguration(configFile string) *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func newObservability(cfg *config.Config) *observability.Provider {
	return observability.NewProvider(&observability.Config{
		ServiceName:    cfg.ServiceName,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
		MetricsEnabled: cfg.MetricsEnabled,
	})
}

func buildApplication(ctx context.Context, cfg *config.Config, obs *observability.Provider) *application {
	logger, _ := obs.MustComponents("main")

	st, err := store.Open(ctx, cfg, obs)
	if err != nil {
		log.Fatalf("Failed to open table store: %v", err)
	}

	publisher, err := events.Open(ctx, cfg, obs)
	if err != nil {
		log.Fatalf("Failed to open event publisher: %v", err)
	}

	archive, err := storage.Open(ctx, cfg, obs)
	if err != nil {
		log.Fatalf("Failed to open archive storage: %v", err)
	}

	claimer := queue.NewClaimer(st, cfg, obs)
	policy := queue.NewPolicy(st, cfg, obs)
	reaper := queue.NewReaper(st, policy, cfg, obs)
	expander := expand.NewExpander(st, claimer, policy, expand.NewYTDLPResolver(), cfg, obs)
	reg := registry.NewRegistry(st, cfg, obs)

	var imp *importer.Importer
	if cfg.Sources.FilePath != "" {
		imp = importer.NewImporter(st, cfg, obs)
	}

	var res *results.Manager
	if cfg.Results.ResultsDir != "" && cfg.Results.SelectedDir != "" {
		res = results.NewManager(cfg, archive, obs)
	}

	app := &application{
		cfg:       cfg,
		store:     st,
		coord:     coordinator.New(cfg, claimer, policy, reaper, expander, imp, res, publisher, obs),
		registry:  reg,
		publisher: publisher,
	}
	if cfg.OpsAddr != "" {
		app.opsServer = ops.NewServer(st, reg, cfg, obs)
	}

	logger.Info("application assembled", "ops_addr", cfg.OpsAddr)
	return app
}

func startOpsServer(ctx context.Context, app *application, logger observability.Logger) {
	go func() {
		if err := app.opsServer.Start(); err != nil {
			logger.Error("ops server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.opsServer.Shutdown(shutdownCtx)
	}()
}

func runImportOnce(ctx context.Context, app *application, logger observability.Logger) {
	added, skipped, err := app.coord.ManageImport(ctx)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	logger.Info("import finished", "added", added, "skipped", skipped)
}

func runResultsOnce(ctx context.Context, app *application, logger observability.Logger, sourceID string) {
	if sourceID == "all" {
		sourceID = ""
	}
	moved, err := app.coord.ManageResults(ctx, sourceID)
	if err != nil {
		log.Fatalf("Results management failed: %v", err)
	}
	logger.Info("results promoted", "moved", len(moved))
}

// runWorkLoop polls for work until the context is canceled, heartbeating on
// the configured interval. The current unit of work always finishes before
// the loop observes cancellation.
func runWorkLoop(ctx context.Context, app *application, logger observability.Logger, once bool) {
	app.registry.Heartbeat(ctx, model.WorkerActive)

	heartbeat := time.NewTicker(app.cfg.HeartbeatInterval())
	defer heartbeat.Stop()

	download := downloadFunc(app.cfg)
	status := model.WorkerActive

	for {
		worked, err := app.coord.ProcessNextTask(ctx, download)
		if err != nil {
			logger.Error("failed to process next task", "error", err)
		}

		if once {
			return
		}

		if worked {
			status = model.WorkerActive
			// Go straight back for more while the queue has work.
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				app.registry.Heartbeat(ctx, status)
			default:
			}
			continue
		}

		status = model.WorkerIdle
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			app.registry.Heartbeat(ctx, status)
		case <-time.After(app.cfg.APIWait()):
		}
	}
}

// downloadFunc builds the yt-dlp download step for claimed video tasks.
// Audio lands under results_dir/<video id>; yt-dlp's stderr is folded into
// the error so fatal YouTube messages reach the retry policy.
func downloadFunc(cfg *config.Config) coordinator.ProcessingFunc {
	return func(ctx context.Context, url string) error {
		args := []string{
			"-f", "bestaudio/best",
			"--no-playlist",
			"--restrict-filenames",
		}
		if cfg.Results.ResultsDir != "" {
			args = append(args, "-P", cfg.Results.ResultsDir)
		}
		args = append(args, url)

		cmd := exec.CommandContext(ctx, "yt-dlp", args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.Stdout = os.Stdout

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("yt-dlp failed for %s: %w: %s", url, err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
}
