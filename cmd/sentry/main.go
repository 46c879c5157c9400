package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/sentry/internal/config"
	"github.com/banshee-data/sentry/internal/db"
	"github.com/banshee-data/sentry/internal/lidar/l1packets"
	"github.com/banshee-data/sentry/internal/lidar/monitor"
	"github.com/banshee-data/sentry/internal/lidar/pipeline"
	"github.com/banshee-data/sentry/internal/lidar/storage/sqlite"
	"github.com/banshee-data/sentry/internal/monitoring"
	"github.com/banshee-data/sentry/internal/serialmux"
	"github.com/banshee-data/sentry/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to a JSON config file (defaults apply when empty)")
	sensorPort   = flag.String("sensor-port", "", "Sensor serial port (overrides config)")
	actuatorPort = flag.String("actuator-port", "", "Actuator serial port (overrides config)")
	dbFile       = flag.String("db", "", "Path to the SQLite detection log (overrides config; empty disables)")
	listen       = flag.String("listen", "", "Debug HTTP listen address, e.g. localhost:8090 (empty disables)")
	debugMode    = flag.Bool("debug", false, "Log per-frame diagnostics")
	showVersion  = flag.Bool("version", false, "Print version and exit")
	replayFile   = flag.String("replay", "", "Read the sensor stream from a captured byte file instead of the sensor port")
	sinkFile     = flag.String("sink", "", "Write actuator commands to a file instead of the actuator port")
	dryRun       = flag.Bool("dry-run", false, "Run detection without an actuator; commands are discarded")
	listPorts    = flag.Bool("list-ports", false, "List the serial ports visible to the host and exit")
)

// portFactory opens serial devices and portLister enumerates them. Tests
// replace both.
var (
	portFactory serialmux.SerialPortFactory = serialmux.RealPortFactory{}
	portLister                              = serialmux.ListPorts
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("sentry", version.String())
		return
	}
	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	monitoring.SetDebug(*debugMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("sentry: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads -config (or starts from an empty config) and applies the
// command-line overrides.
func loadConfig() (*config.SentryConfig, error) {
	cfg := config.EmptySentryConfig()
	if *configFile != "" {
		loaded, err := config.LoadSentryConfig(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.SentryConfig) {
	override := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	override(&cfg.SensorPort, *sensorPort)
	override(&cfg.ActuatorPort, *actuatorPort)
	override(&cfg.DBPath, *dbFile)
}

// openSensor returns the sensor byte source: the replay file when set,
// otherwise the configured serial port with its read timeout.
func openSensor(cfg *config.SentryConfig) (serialmux.SerialPorter, error) {
	if *replayFile != "" {
		f, err := os.Open(*replayFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open replay file: %w", err)
		}
		log.Printf("replaying sensor stream from %s", *replayFile)
		return serialmux.ReaderPort{ReadCloser: f}, nil
	}
	return portFactory.Open(cfg.GetSensorPort(), serialmux.PortOptions{
		BaudRate:    cfg.GetSensorBaudRate(),
		ReadTimeout: cfg.GetReadTimeout(),
	})
}

// printPorts writes one serial port name per line.
func printPorts(w io.Writer) error {
	ports, err := portLister()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

// openActuator returns the command channel: discarded with -dry-run, the
// sink file when set, otherwise the configured serial port.
func openActuator(cfg *config.SentryConfig) (*serialmux.SerialMux[serialmux.SerialPorter], error) {
	switch {
	case *dryRun:
		log.Printf("dry run: actuator commands are discarded")
		return serialmux.NewSerialMux[serialmux.SerialPorter](serialmux.NopPort{}), nil
	case *sinkFile != "":
		f, err := os.Create(*sinkFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create sink file: %w", err)
		}
		log.Printf("writing actuator commands to %s", *sinkFile)
		return serialmux.NewSerialMux[serialmux.SerialPorter](serialmux.WriterPort{WriteCloser: f}), nil
	}
	return serialmux.OpenSerialMux(portFactory, cfg.GetActuatorPort(), serialmux.PortOptions{
		BaudRate: cfg.GetActuatorBaudRate(),
	})
}

// run wires ports, storage and the debug server around a pipeline runner and
// blocks until the stream ends or ctx is done.
func run(ctx context.Context, cfg *config.SentryConfig) error {
	pcfg, err := pipeline.ConfigFromSentry(cfg)
	if err != nil {
		return err
	}

	sensor, err := openSensor(cfg)
	if err != nil {
		return fmt.Errorf("failed to open sensor: %w", err)
	}
	defer sensor.Close()

	actuator, err := openActuator(cfg)
	if err != nil {
		return fmt.Errorf("failed to open actuator: %w", err)
	}
	actuator.SetWriteTimeout(cfg.GetWriteTimeout())
	defer actuator.Close()

	if cfg.GetHandshake() && *replayFile == "" {
		if err := l1packets.Handshake(ctx, sensor); err != nil {
			return err
		}
	}

	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		database, err = db.OpenDB(path)
		if err != nil {
			return fmt.Errorf("failed to open detection log: %w", err)
		}
		defer database.Close()

		store, err := sqlite.NewDetectionStore(database, time.Now(), version.Version, cfg.JSON())
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		log.Printf("recording session %s to %s", store.SessionID(), path)
		pcfg.Recorder = store
	}

	pcfg.Sink = actuator
	pcfg.Publisher = actuator
	runner, err := pipeline.NewRunner(pcfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if *listen != "" {
		mux := http.NewServeMux()
		actuator.AttachAdminRoutes(mux)
		monitor.AttachAdminRoutes(mux, runner)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, *listen, mux)
		}()
	}

	err = runner.Run(ctx, sensor)
	if errors.Is(err, l1packets.ErrStreamClosed) && *replayFile != "" {
		log.Printf("replay finished")
		err = nil
	}

	st := runner.Status()
	log.Printf("pipeline stopped: phase=%s frames=%d commands=%d fires=%d dropped=%d discarded=%d timeouts=%d",
		st.Phase, st.Frames, st.Commands, st.Fires, st.DroppedWrite, st.Sync.BytesDiscarded, st.Sync.Timeouts)

	cancel()
	wg.Wait()
	return err
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Printf("debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down debug server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("debug server force close error: %v", err)
		}
	}
}
