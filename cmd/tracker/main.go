// Command tracker captures the in-game minimap, follows the player marker
// and publishes its position on the selected map.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/tarkov-map/tracker/internal/api"
	"github.com/tarkov-map/tracker/internal/calibration"
	"github.com/tarkov-map/tracker/internal/capture"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/dispatcher"
	"github.com/tarkov-map/tracker/internal/hotkey"
	"github.com/tarkov-map/tracker/internal/influx"
	"github.com/tarkov-map/tracker/internal/logging"
	"github.com/tarkov-map/tracker/internal/maps"
	"github.com/tarkov-map/tracker/internal/monitor"
	intOtel "github.com/tarkov-map/tracker/internal/otel"
	"github.com/tarkov-map/tracker/internal/overlay"
	"github.com/tarkov-map/tracker/internal/pipeline"
	"github.com/tarkov-map/tracker/internal/recorder"
	"github.com/tarkov-map/tracker/internal/screenshot"
	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/internal/stream"
	"github.com/tarkov-map/tracker/internal/worker"
	"github.com/tarkov-map/tracker/pkg/core"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"

	AppName = "tracker"
)

func main() {
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		os.Exit(runCLI(os.Args[1], os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

// options are the command line flags of the tracker itself.
type options struct {
	configDir string
	mapID     string
	overlay   bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.StringVar(&o.configDir, "config", ".", "directory containing "+config.FileName)
	fs.StringVar(&o.mapID, "map", "", "map to select on start-up (overrides defaultMap)")
	fs.BoolVar(&o.overlay, "overlay", false, "open the debug overlay window")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// app holds the running services.
type app struct {
	start   time.Time
	logFile *os.File

	slogManager *logging.SlogManager
	logger      *slog.Logger
	zlog        zerolog.Logger
	otel        *intOtel.Provider

	catalog  *maps.Catalog
	mapsDir  string
	mapper   *calibration.Mapper
	pipeline *pipeline.Pipeline
	backend  storage.Backend
	recorder *recorder.Recorder
	influx   *influx.Manager
	monitor  *monitor.Service
	disp     *dispatcher.Dispatcher
	watcher  *screenshot.Watcher
	closers  []io.Closer
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		return 2
	}

	a := &app{start: time.Now()}
	if err := a.setupLogging(opts.configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.shutdownLogging()

	a.logger.Info("Starting tracker", "version", Version, "build", BuildDate)

	if err := a.build(); err != nil {
		a.logger.Error("Failed to start", "error", err)
		return 1
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapID := opts.mapID
	if mapID == "" {
		mapID = viper.GetString("defaultMap")
	}
	if mapID != "" {
		if _, err := a.disp.Dispatch(dispatcher.NewEvent(worker.CmdMapSelect, mapID).From(dispatcher.SourceCLI)); err != nil {
			a.logger.Warn("Failed to select start-up map", "map", mapID, "error", err)
		}
	}

	wg := a.startWorkers(ctx)

	if opts.overlay {
		// closing the window ends the run
		if err := a.runOverlay(); err != nil {
			a.logger.Error("Overlay failed", "error", err)
		} else {
			stop()
		}
	}
	<-ctx.Done()

	a.logger.Info("Shutting down")
	wg.Wait()
	return 0
}

// setupLogging loads the config and routes slog, zerolog and OTel logs to
// the session log file.
func (a *app) setupLogging(configDir string) error {
	a.slogManager = logging.NewSlogManager()
	a.slogManager.Setup(nil, "info", nil)
	a.logger = a.slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	logsDir := viper.GetString("logsDir")
	if removed, err := logging.PruneLogs(logsDir, AppName, viper.GetInt("logsKeep")); err != nil {
		a.logger.Warn("Failed to prune old logs", "error", err)
	} else if len(removed) > 0 {
		a.logger.Info("Pruned old logs", "count", len(removed))
	}
	f, logPath, err := logging.OpenLogFile(logsDir, AppName, a.start)
	if err != nil {
		return err
	}
	a.logFile = f

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			Writer:         f,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}
	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}

	level := viper.GetString("logLevel")
	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, err := logging.NewGraylogHandler(gl.Address, level)
		if err != nil {
			a.logger.Error("Failed to set up Graylog", "error", err)
		} else {
			extra = append(extra, h)
		}
	}

	a.slogManager.Setup(f, level, otelLogProvider, extra...)
	a.logger = slog.New(logging.NewContextHandler(a.slogManager.Logger().Handler(), a.logContext))
	slog.SetDefault(a.logger)
	a.zlog = logging.NewZerolog(f, level)
	a.logger.Info("Logging to file", "path", logPath)
	return nil
}

// logContext adds the active map and tracking state to every record.
func (a *app) logContext() []slog.Attr {
	if a.pipeline == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("map", a.mapper.Active().MapID),
		slog.String("state", a.pipeline.Tracker().State().String()),
	}
}

func (a *app) build() error {
	var err error

	mapsFile := viper.GetString("mapsFile")
	if a.catalog, err = maps.Load(mapsFile); err != nil {
		return err
	}
	a.mapsDir = filepath.Dir(mapsFile)
	a.logger.Info("Loaded maps", "file", mapsFile, "count", a.catalog.Len())
	a.mapper = calibration.NewMapper(a.catalog)

	captureCfg := config.GetCaptureConfig()
	capturer, err := capture.New(captureCfg)
	if err != nil {
		return fmt.Errorf("capture backend: %w", err)
	}
	if c, ok := capturer.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	storageCfg := config.GetStorageConfig()
	if storageCfg.Enabled {
		if a.backend, err = initStorage(storageCfg, a.logger, a.start); err != nil {
			return err
		}
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithNotifier(capture.NotifierFunc(a.notify)),
	}
	if sc := config.GetScreenshotConfig(); sc.Enabled {
		if a.watcher = a.openScreenshots(sc); a.watcher != nil {
			pipeOpts = append(pipeOpts, pipeline.WithScreenshotFixes(a.watcher.Fixes(), a.catalog))
		}
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Capture:    captureCfg,
		Detector:   config.GetDetectorConfig(),
		Tracker:    config.GetTrackerConfig(),
		StaleAfter: config.GetPublishConfig().StaleAfter,
		Region:     config.GetCaptureRegion(),
	}, capturer, a.mapper, pipeOpts...)
	if err != nil {
		return err
	}

	if a.backend != nil {
		a.recorder, err = recorder.New(recorder.Config{
			RateHz:  storageCfg.RecordRateHz,
			MinMove: storageCfg.MinMove,
		}, a.pipeline.Publisher(), a.backend, a.logger, nil)
		if err != nil {
			return err
		}
		if uc := config.GetUploadConfig(); uc.Enabled {
			client := api.New(uc.URL, uc.APIKey)
			if err := client.Healthcheck(); err != nil {
				a.logger.Warn("Session viewer is offline", "url", uc.URL, "error", err)
			} else {
				a.logger.Info("Session viewer is online", "url", uc.URL)
			}
			a.recorder.SetUploader(client)
		}
	}

	if ic := config.GetInfluxConfig(); ic.Enabled {
		a.influx = influx.NewManager(a.zlog, ic)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.influx.Connect(ctx)
		cancel()
		if err != nil {
			a.logger.Error("Failed to set up InfluxDB", "error", err)
			a.influx = nil
		}
	}

	mc := config.GetMonitorConfig()
	deps := monitor.Dependencies{
		Logger:     a.logger,
		Snapshot:   a.snapshot,
		Storage:    a.backend,
		StatusFile: mc.StatusFile,
		Interval:   mc.Interval,
	}
	if a.influx != nil {
		deps.Sink = a.influx
	}
	a.monitor = monitor.NewService(deps)

	if a.disp, err = dispatcher.New(logging.NewDispatcherLogger(a.zlog)); err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	wd := worker.Dependencies{
		Pipeline: a.pipeline,
		Catalog:  a.catalog,
		Status:   a.monitor.GetProgramStatus,
		LogLevel: a.slogManager.SetLevel,
		Logger:   a.logger,
	}
	if a.recorder != nil {
		wd.Sessions = a.recorder
	}
	worker.NewManager(wd).RegisterHandlers(a.disp)
	a.logger.Info("Command handlers registered", "commands", a.disp.Commands())
	return nil
}

func (a *app) openScreenshots(sc config.ScreenshotConfig) *screenshot.Watcher {
	dir := sc.Dir
	if dir == "" {
		var err error
		if dir, err = screenshot.DefaultDir(); err != nil {
			a.logger.Warn("Screenshot folder unknown, fixes disabled", "error", err)
			return nil
		}
	}
	w, err := screenshot.NewWatcher(dir, a.logger)
	if err != nil {
		a.logger.Warn("Screenshot fixes disabled", "error", err)
		return nil
	}
	return w
}

// notify surfaces persistent capture failures.
func (a *app) notify(title, message string) {
	a.logger.Warn(title, "message", message)
	if a.recorder != nil {
		a.recorder.Event(core.EventCaptureError, message, nil)
	}
}

func (a *app) snapshot() core.PipelineStatus {
	st := a.pipeline.Stats().Status(time.Now())
	if a.recorder != nil {
		st.Recorded = a.recorder.Recorded()
	}
	return st
}

func (a *app) startWorkers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Worker stopped", "worker", name, "error", err)
			}
		}()
	}

	goRun("pipeline", a.pipeline.Run)
	if a.recorder != nil {
		goRun("recorder", a.recorder.Run)
	}
	if a.watcher != nil {
		goRun("screenshots", a.watcher.Run)
	}
	if a.influx != nil {
		rate := config.GetInfluxConfig().RateHz
		goRun("influx", func(ctx context.Context) error {
			return a.influx.Poll(ctx, a.pipeline.Publisher(), rate)
		})
	}
	if sc := config.GetStreamConfig(); sc.Enabled {
		srv := stream.New(sc, a.pipeline.Publisher(), a.disp, func() string { return a.mapper.Active().MapID }, a.logger)
		goRun("stream", srv.ListenAndServe)
	}
	if hc := config.GetHotkeyConfig(); hc.Enabled && len(hc.Pause) > 0 {
		l, err := hotkey.New([]hotkey.Binding{{Keys: hc.Pause, Command: worker.CmdToggle}}, a.disp, a.logger)
		if err != nil {
			a.logger.Warn("Hotkeys disabled", "error", err)
		} else {
			goRun("hotkeys", func(ctx context.Context) error {
				err := l.Run(ctx)
				if errors.Is(err, hotkey.ErrUnsupported) {
					a.logger.Warn("Hotkeys disabled", "error", err)
					return nil
				}
				return err
			})
		}
	}
	if config.GetMonitorConfig().Enabled {
		if err := a.monitor.Start(); err != nil {
			a.logger.Warn("Status monitor not started", "error", err)
		}
	}
	return &wg
}

// runOverlay opens the debug window for the active map on the calling
// goroutine.
func (a *app) runOverlay() error {
	mapID := a.mapper.Active().MapID
	if mapID == "" {
		return errors.New("overlay needs a selected map")
	}
	m, err := a.catalog.Get(mapID)
	if err != nil {
		return err
	}
	oc := config.GetOverlayConfig()
	o, err := overlay.New(overlay.Config{
		Title:    "tracker: " + m.Name,
		Width:    oc.Width,
		Height:   oc.Height,
		MapImage: maps.ResolveImage(m, a.mapsDir),
	}, m, a.pipeline.Publisher())
	if err != nil {
		return err
	}
	return o.Run()
}

// close stops the services in reverse start order.
func (a *app) close() {
	if a.disp != nil {
		_ = a.disp.Close()
	}
	if a.monitor != nil && a.monitor.IsRunning() {
		a.monitor.Stop()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func (a *app) shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.slogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "log flush:", err)
	}
	if a.otel != nil {
		_ = a.otel.Shutdown(ctx)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
