// DeviceHub Core - Local Device Gateway
//
// This is the main entry point for the DeviceHub manager process. It
// brokers requests between client applications and device plugins:
//   - Local OAuth token issuance and keyed-MAC origin validation
//   - Plugin discovery, supervision, and request fan-out over MQTT
//   - Event subscriptions delivered to clients over WebSocket
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/devicehub-core/migrations"

	"github.com/nerrad567/devicehub-core/internal/api"
	"github.com/nerrad567/devicehub-core/internal/auth"
	"github.com/nerrad567/devicehub-core/internal/broker"
	"github.com/nerrad567/devicehub-core/internal/event"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/config"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/database"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/logging"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicehub-core/internal/plugin"
	"github.com/nerrad567/devicehub-core/internal/request"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting DeviceHub Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Auth: persistent HMAC keys and the local OAuth authority
	macs, err := auth.NewHmacManager(ctx, auth.NewKeyRepository(db.DB), log)
	if err != nil {
		return fmt.Errorf("loading hmac keys: %w", err)
	}
	authority := auth.NewAuthority(
		auth.NewClientRepository(db.DB),
		auth.NewTokenRepository(db.DB),
		auth.AuthorityConfig{
			DefaultExpire:   time.Duration(cfg.Security.OAuth.DefaultExpireDays) * 24 * time.Hour,
			ProfileExpire:   cfg.Security.OAuth.ProfileExpireSeconds,
			ApprovalTimeout: cfg.GetApprovalTimeout(),
			AutoApprove:     cfg.Security.OAuth.AutoApprove,
		},
		log,
	)
	log.Info("token authority initialised", "auto_approve", cfg.Security.OAuth.AutoApprove)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Plugin registry: managed plugins are preregistered so requests can
	// distinguish "known but offline" from "unknown service"
	plugins := plugin.NewManager(cfg.Manager.Domain)
	plugins.SetLogger(log)
	for _, m := range cfg.Plugins.Managed {
		if regErr := plugins.Register(m.ID, m.Name, true); regErr != nil {
			return fmt.Errorf("registering plugin %q: %w", m.ID, regErr)
		}
	}

	// Supervisor launches managed plugin processes
	supervisor := plugin.NewSupervisor(cfg.Plugins.Managed)
	supervisor.SetLogger(log)
	supervisor.StartAll(ctx)
	defer func() {
		log.Info("stopping managed plugins")
		supervisor.StopAll()
	}()
	log.Info("plugin supervisor started", "managed", len(cfg.Plugins.Managed))

	// Transport carries requests, replies, events, and presence over MQTT
	transport := plugin.NewMQTTTransport(mqttClient, plugins, byte(cfg.MQTT.QoS))
	transport.SetLogger(log)
	transport.SetRestarter(supervisor)
	if influxClient != nil {
		transport.SetOnPresence(func(pluginID string, online bool) {
			state := "offline"
			if online {
				state = "online"
			}
			influxClient.WritePluginMetric(pluginID, state)
		})
	}

	// Correlator fans requests out to plugins and collects replies
	correlator := request.NewCorrelator(transport, log)

	// API server is built before the broker so its WebSocket hub can be
	// the broker's event sink
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Authority: authority,
		Plugins:   plugins,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Broker routes authenticated requests and event subscriptions
	var metrics broker.Metrics
	if influxClient != nil {
		metrics = influxClient
	}
	b := broker.New(broker.Config{
		Macs:           macs,
		Tokens:         authority,
		Events:         event.NewRegistry(),
		Engine:         correlator,
		Plugins:        plugins,
		Control:        transport,
		Sink:           server.Hub(),
		Metrics:        metrics,
		RequestTimeout: cfg.GetRequestTimeout(),
	})
	b.SetLogger(log)
	server.SetBroker(b)

	// Close the loop: plugin replies feed the correlator, plugin events
	// feed the broker, and closed WebSocket sessions drop subscriptions
	transport.SetReplySink(correlator)
	transport.SetEventSink(b)
	server.Hub().SetOnSessionClosed(b.HandleSessionClosed)

	if startErr := transport.Start(); startErr != nil {
		return fmt.Errorf("starting plugin transport: %w", startErr)
	}
	log.Info("plugin transport started", "domain", cfg.Manager.Domain)

	// Start the HTTP front end
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains WebSocket sessions)
	// 2. Managed plugins
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("DeviceHub Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DEVICEHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVICEHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
