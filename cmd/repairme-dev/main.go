// Command repairme-dev runs the extension against the simulated host. Lines
// read from stdin drive the simulation; see the help command.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/RepairMe/extension/internal/api"
	"github.com/RepairMe/extension/internal/channel"
	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/influx"
	"github.com/RepairMe/extension/internal/logging"
	intOtel "github.com/RepairMe/extension/internal/otel"
	"github.com/RepairMe/extension/internal/plugin"
	"github.com/RepairMe/extension/internal/storage"
	"github.com/RepairMe/extension/internal/worker"
	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host/sim"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const ExtensionName = "RepairMe"

var (
	// CurrentExtensionVersion is set at build time with -ldflags.
	CurrentExtensionVersion = "dev"

	SessionStartTime = time.Now()

	SlogManager *logging.SlogManager
	Logger      *slog.Logger

	OTelProvider *intOtel.Provider
	closers      []io.Closer

	// extension is set once the plugin is built; log records carry its state.
	extension atomic.Pointer[plugin.Plugin]
)

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	if err := run(dir, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dir string, in io.Reader, out io.Writer) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Context = logContext
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(dir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logFile, err := setupLogging()
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h := sim.New()
	services := h.Services()
	services.Config = config.NewFileStore(filepath.Join(dir, "settings.json"))

	backend, err := initStorage()
	if err != nil {
		return err
	}

	var influxManager *influx.Manager
	if cfg := config.GetInfluxConfig(); cfg.Enabled {
		influxManager = influx.NewManager(cfg, Logger)
		if err := influxManager.Connect(ctx); err != nil {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
			influxManager = nil
		}
	}

	var uploader worker.Uploader
	if apiCfg := config.GetAPIConfig(); apiCfg.Upload {
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := client.Healthcheck(); err != nil {
			Logger.Warn("History server not reachable, uploads may fail", "url", apiCfg.ServerURL, "error", err)
		}
		uploader = client
	}

	surface := newConsoleSurface(h, out)
	p, err := plugin.New(services, plugin.Dependencies{
		Surface:   surface,
		Backend:   backend,
		Influx:    influxManager,
		Uploader:  uploader,
		Timing:    config.GetTimingConfig(),
		StatusDir: viper.GetString("logsDir"),
		Logger:    Logger,
	})
	if err != nil {
		return fmt.Errorf("creating plugin: %w", err)
	}

	extension.Store(p)

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting plugin: %w", err)
	}
	Logger.Info("Started", "version", CurrentExtensionVersion, "storage", config.GetStorageConfig().Type)

	published := channel.NewLatest[*core.Snapshot]()
	p.Subscribe(published)

	d := newDriver(h, surface, out)
	d.watch(published.Receive())
	runErr := d.run(ctx, in)

	var errs []error
	errs = append(errs, runErr, p.Close())
	errs = append(errs, shutdown()...)
	return errors.Join(errs...)
}

func setupLogging() (*os.File, error) {
	logFile, path, err := logging.OpenLogFile(viper.GetString("logsDir"), ExtensionName, SessionStartTime)
	if err != nil {
		return nil, err
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentExtensionVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		handler, closer, err := logging.NewGELFHandler(gl.Address, viper.GetString("logLevel"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			SlogManager.AddHandler(handler)
			closers = append(closers, closer)
		}
	}

	SlogManager.Setup(logFile, viper.GetString("logLevel"), otelLogProvider())
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", path)
	return logFile, nil
}

func otelLogProvider() *sdklog.LoggerProvider {
	if OTelProvider == nil {
		return nil
	}
	return OTelProvider.LoggerProvider()
}

func initStorage() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, config.GetDBConfig(), Logger, CurrentExtensionVersion)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		return nil, err
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

// logContext adds the logged-in character to every record. It must not
// touch the scanner, which logs while holding its lock.
func logContext() []slog.Attr {
	p := extension.Load()
	if p == nil {
		return nil
	}
	s, ok := p.Sessions().Current()
	if !ok {
		return nil
	}
	return []slog.Attr{
		slog.String("character", s.Character.Name),
		slog.Uint64("sessionId", uint64(s.ID)),
	}
}

func shutdown() []error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := SlogManager.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if OTelProvider != nil {
		errs = append(errs, OTelProvider.Shutdown(ctx))
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errs
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}
