// floorheat core - floor heating controller.
//
// The binary serves the controller's attribute API through the async
// dispatch server, runs the control loop against the relay board and the
// 1-Wire probes, announces the device to Home Assistant over MQTT, keeps an
// audit trail of setter commands in SQLite and writes telemetry to
// InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nerrad567/floorheat-core/internal/api"
	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/audit"
	"github.com/nerrad567/floorheat-core/internal/control"
	"github.com/nerrad567/floorheat-core/internal/device"
	"github.com/nerrad567/floorheat-core/internal/hass"
	"github.com/nerrad567/floorheat-core/internal/httpserver"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/config"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/database"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/logging"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/floorheat-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the dispatch server drain on shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or a
// component fails.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting floorheat core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	status := device.NewStatus()
	checks := make(map[string]api.HealthChecker)

	// Audit trail
	var (
		db       *database.DB
		recorder *audit.Recorder
		repo     audit.Repository
	)
	if cfg.Audit.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		repo = audit.NewSQLiteRepository(db.DB)
		recorder = audit.NewRecorder(repo, audit.DefaultBuffer, log.With("component", "audit"))
		checks["database"] = db
	}

	// Hardware
	relay, err := control.OpenRelay(cfg.Control.Relay, cfg.Device.Zones+1)
	if err != nil {
		return fmt.Errorf("opening relay board: %w", err)
	}
	defer func() {
		if closeErr := relay.Close(); closeErr != nil {
			log.Error("error closing relay board", "error", closeErr)
		}
	}()

	loop, err := control.New(control.Deps{
		Status:   status,
		Relay:    relay,
		Sensors:  control.W1Sensors(cfg.Control.SensorPath, cfg.Control.Sensors),
		Interval: cfg.GetControlInterval(),
		Logger:   log.With("component", "control"),
	})
	if err != nil {
		return fmt.Errorf("creating control loop: %w", err)
	}

	// MQTT and Home Assistant discovery
	var (
		mqttClient *mqtt.Client
		discovery  *hass.Discovery
	)
	if cfg.MQTT.Enabled {
		node := nodeName(cfg)
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.Topics{}.Availability(node))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if cfg.Hass.Enabled {
			discovery, err = startDiscovery(cfg, node, mqttClient, status, log)
			if err != nil {
				return fmt.Errorf("starting Home Assistant discovery: %w", err)
			}
			defer func() {
				if closeErr := discovery.Close(); closeErr != nil {
					log.Warn("error announcing shutdown to Home Assistant", "error", closeErr)
				}
			}()
		}

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			if discovery != nil {
				go reannounce(discovery, log)
			}
		})
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Dispatch server
	dispatcher := attribute.NewDispatcher(attribute.Options{
		Logger:         log.With("component", "attribute"),
		MaxQueryLength: cfg.API.MaxQueryLength,
	})
	engine := httpserver.NewChiEngine(httpserver.EngineDeps{
		Config:    cfg.API,
		WebSocket: cfg.WebSocket,
		Logger:    log.With("component", "engine"),
	})
	srv := httpserver.New(engine, dispatchOptions(cfg.Dispatch, log))

	if recorder != nil {
		dispatcher.SetObserver(recorder.ObserveSet)
		if discovery != nil {
			discovery.SetObserver(recorder.ObserveCommand)
		}
	}

	// Per tick: Home Assistant state, then telemetry
	if discovery != nil {
		loop.OnTick(func(context.Context, device.Snapshot) {
			if err := discovery.PublishAll(); err != nil {
				log.Debug("publishing Home Assistant state failed", "error", err)
			}
		})
	}
	if influxClient != nil {
		telemetry := control.NewTelemetry(influxClient, cfg.Device.Name, cfg.Device.Zones)
		telemetry.AddStats("control", func() map[string]any { return loop.Stats().Fields() })
		telemetry.AddStats("dispatch", func() map[string]any { return dispatchFields(srv.Stats()) })
		loop.OnTick(telemetry.Observe)
	}

	routes, err := api.New(apiDeps(status, dispatcher, srv, loop, db, repo, recorder, mqttClient, checks, log))
	if err != nil {
		return fmt.Errorf("building routes: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}
	g.Go(func() error { return loop.Run(gctx) })

	if err := srv.Start(gctx, routes.Routes()); err != nil {
		// Let the loop switch the relays off before returning.
		g.Go(func() error { return err })
		return g.Wait()
	}
	log.Info("API listening", "host", cfg.API.Host, "port", cfg.API.Port)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping dispatch server")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(stopCtx)
	})

	log.Info("initialisation complete")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("floorheat core stopped")
	return nil
}

// getConfigPath returns FLOORHEAT_CONFIG when set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("FLOORHEAT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// nodeName is the MQTT node of the device: hass.node_id, or device.name
// when unset.
func nodeName(cfg *config.Config) string {
	if cfg.Hass.NodeID != "" {
		return cfg.Hass.NodeID
	}
	return cfg.Device.Name
}

func startDiscovery(cfg *config.Config, node string, pub hass.Publisher, status *device.Status, log *logging.Logger) (*hass.Discovery, error) {
	d, err := hass.New(pub, hass.Options{
		Prefix: cfg.Hass.DiscoveryPrefix,
		Device: hass.Device{
			Identifier:   node,
			Manufacturer: cfg.Device.Manufacturer,
			Model:        cfg.Device.Model,
			Name:         node,
			SWVersion:    version,
		},
		Origin: hass.Origin{SW: version},
		Logger: log.With("component", "hass"),
	})
	if err != nil {
		return nil, err
	}
	if err := hass.BindStatus(d, status, node, cfg.Device.Zones); err != nil {
		return nil, err
	}
	log.Info("Home Assistant discovery announced", "node", node, "endpoints", len(d.Endpoints()))
	return d, nil
}

// reannounce republishes every discovery config and state after a
// reconnect.
func reannounce(d *hass.Discovery, log *logging.Logger) {
	if err := d.Announce(); err != nil {
		log.Warn("re-announcing discovery failed", "error", err)
		return
	}
	if err := d.PublishAll(); err != nil {
		log.Warn("publishing state after reconnect failed", "error", err)
	}
}

func dispatchOptions(cfg config.DispatchConfig, log *logging.Logger) httpserver.Options {
	opts := httpserver.Options{
		QueueSize:   cfg.QueueSize,
		Workers:     cfg.Workers,
		WorkerWait:  time.Duration(cfg.WorkerWaitMS) * time.Millisecond,
		EnqueueWait: time.Duration(cfg.EnqueueWaitMS) * time.Millisecond,
		Logger:      log.With("component", "dispatch"),
	}
	if cfg.RateLimit > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, cfg.RateBurst))
	}
	return opts
}

func dispatchFields(st httpserver.Stats) map[string]any {
	return map[string]any{
		"queue_depth": st.QueueDepth,
		"accepted":    st.Accepted,
		"rejected":    st.Rejected,
		"completed":   st.Completed,
		"failed":      st.Failed,
		"panics":      st.Panics,
	}
}

// apiDeps assembles the route dependencies. Optional collaborators are
// only set when present so the interfaces stay nil otherwise.
func apiDeps(
	status *device.Status,
	dispatcher *attribute.Dispatcher,
	srv *httpserver.Server,
	loop *control.Loop,
	db *database.DB,
	repo audit.Repository,
	recorder *audit.Recorder,
	mqttClient *mqtt.Client,
	checks map[string]api.HealthChecker,
	log *logging.Logger,
) api.Deps {
	deps := api.Deps{
		Status:     status,
		Dispatcher: dispatcher,
		Server:     srv,
		Loop:       loop,
		Audit:      repo,
		Checks:     checks,
		Version:    version,
		Logger:     log.With("component", "api"),
	}
	if db != nil {
		deps.DB = db
	}
	if recorder != nil {
		deps.Recorder = recorder
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	return deps
}
