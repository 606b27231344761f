package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/netmuxd/internal/api"
	"github.com/nerrad567/netmuxd/internal/daemon"
	"github.com/nerrad567/netmuxd/internal/events"
	"github.com/nerrad567/netmuxd/internal/heartbeat"
	"github.com/nerrad567/netmuxd/internal/history"
	"github.com/nerrad567/netmuxd/internal/infrastructure/config"
	"github.com/nerrad567/netmuxd/internal/infrastructure/database"
	"github.com/nerrad567/netmuxd/internal/infrastructure/influxdb"
	"github.com/nerrad567/netmuxd/internal/infrastructure/logging"
	"github.com/nerrad567/netmuxd/internal/infrastructure/mqtt"
	"github.com/nerrad567/netmuxd/internal/muxer"
	"github.com/nerrad567/netmuxd/migrations"
)

// daemonShutdownTimeout bounds supervisor teardown on exit.
const daemonShutdownTimeout = 30 * time.Second

// run starts every component, blocks until ctx is cancelled and then shuts
// down in reverse start order: API, daemon, event sinks, MQTT, InfluxDB,
// database. The deferred closes below rely on that LIFO order.
func run(ctx context.Context, opts *rootOptions) error {
	log := logging.Default()

	cfg, configPath, err := opts.loadConfig()
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting netmuxd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
		"targets", len(cfg.Targets),
	)

	// Database and session history
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS, "."); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	sessions := history.NewSQLiteRepository(db.DB)
	dangling, err := sessions.CloseDangling(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("closing dangling sessions: %w", err)
	}
	if dangling > 0 {
		log.Warn("closed sessions left open by a previous run", "count", dangling)
	}
	log.Info("database ready", "path", db.Path())

	checks := map[string]api.HealthChecker{"database": db}

	// InfluxDB (optional)
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

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Event bus and sinks
	bus := events.NewBus()
	bus.SetLogger(log.With("component", "events"))
	defer func() {
		log.Info("draining event sinks")
		bus.Close()
	}()

	bus.Subscribe("history", events.NewHistoryRecorder(sessions, log.With("component", "history")), 0)
	if mqttClient != nil {
		bus.Subscribe("mqtt", events.NewMQTTPublisher(mqttClient, log.With("component", "mqtt-publisher")), 0)
	}
	if influxClient != nil {
		bus.Subscribe("influxdb", events.NewMetricsWriter(influxClient), 0)
	}

	// Multiplexer, transport and supervisors
	mux := muxer.New(bus)
	mux.SetLogger(log.With("component", "muxer"))

	transport := heartbeat.NewTCPTransport(transportConfig(cfg.Heartbeat))
	transport.SetLogger(log.With("component", "heartbeat"))

	d, err := daemon.New(daemon.ConfigFromApp(cfg), daemon.Deps{
		Mux:       mux,
		Transport: transport,
		Emitter:   bus,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), daemonShutdownTimeout)
		defer cancel()
		log.Info("stopping supervisors")
		if stopErr := d.Shutdown(shutdownCtx); stopErr != nil {
			log.Error("error stopping supervisors", "error", stopErr)
		}
	}()
	if startErr := d.Start(); startErr != nil {
		return fmt.Errorf("starting supervisors: %w", startErr)
	}

	if mqttClient != nil {
		var topics mqtt.Topics
		if subErr := mqttClient.Subscribe(topics.AllSupervisorWakes(), byte(cfg.MQTT.QoS), d.HandleWakeCommand); subErr != nil {
			log.Warn("wake commands over MQTT unavailable", "error", subErr)
		}
	}

	// Status API (optional)
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log,
			Devices:     mux,
			Supervisors: d,
			Sessions:    sessions,
			Bus:         bus,
			Checks:      checks,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		log.Warn("run context ended", "cause", cause)
	}
	return nil
}

// transportConfig maps the heartbeat section onto the TCP transport.
func transportConfig(hb config.HeartbeatConfig) heartbeat.Config {
	return heartbeat.Config{
		Port:           hb.Port,
		ConnectTimeout: hb.ConnectTimeout,
		WriteTimeout:   hb.WriteTimeout,
	}
}
