// Hearth Core - Home Automation Hub
//
// This is the main entry point for the Hearth Core daemon. Hearth is a
// device discovery and registration hub designed for:
//   - Offline-first operation on a single small box
//   - Open transports (mDNS, MQTT, serial)
//   - An operator-driven inbox between "seen on the network" and
//     "registered as a thing"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/hearth-home/hearth-core/migrations"

	"github.com/hearth-home/hearth-core/internal/api"
	"github.com/hearth-home/hearth-core/internal/bindings/mdns"
	"github.com/hearth-home/hearth-core/internal/bindings/mqttbridge"
	"github.com/hearth-home/hearth-core/internal/bindings/serialport"
	"github.com/hearth-home/hearth-core/internal/discovery"
	"github.com/hearth-home/hearth-core/internal/inbox"
	"github.com/hearth-home/hearth-core/internal/infrastructure/config"
	"github.com/hearth-home/hearth-core/internal/infrastructure/database"
	"github.com/hearth-home/hearth-core/internal/infrastructure/influxdb"
	"github.com/hearth-home/hearth-core/internal/infrastructure/logging"
	"github.com/hearth-home/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearth-home/hearth-core/internal/rules"
	"github.com/hearth-home/hearth-core/internal/thing"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	log.Info("starting Hearth Core",
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

	// Initialise thing registry
	thingRepo := thing.NewSQLiteRepository(db.DB)
	things := thing.NewRegistry(thingRepo)
	things.SetLogger(log)
	if refreshErr := things.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading thing registry: %w", refreshErr)
	}
	log.Info("thing registry initialised", "things", things.Count())

	// Link storage shares the thing database
	links := thing.NewSQLiteLinkRepository(db.DB)

	// Initialise the inbox
	inboxRepo := inbox.NewSQLiteRepository(db.DB)
	ibx := inbox.NewInbox(inboxRepo, things, inbox.Config{
		AutoApprove:      cfg.Inbox.AutoApprove,
		AutoIgnore:       cfg.Inbox.AutoIgnore,
		TTLCheckInterval: time.Duration(cfg.Inbox.TTLCheckInterval) * time.Second,
	})
	ibx.SetLogger(log)
	if startErr := ibx.Start(ctx); startErr != nil {
		return fmt.Errorf("starting inbox: %w", startErr)
	}
	defer func() {
		log.Info("stopping inbox")
		ibx.Stop()
	}()
	log.Info("inbox initialised", "entries", ibx.Count())

	// The inbox evicts entries when a matching thing is registered and
	// drops bridged results when their bridge disappears.
	things.AddChangeListener(ibx.ThingListener())

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

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

	// Build discovery services from configuration
	disc, err := buildDiscovery(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("building discovery services: %w", err)
	}

	// Every discovery result flows into the inbox.
	disc.AddListener(ibx.DiscoveryListener())

	// Start rules engine (if enabled)
	var ruleRegistry *rules.Registry
	var ruleEngine *rules.Engine
	if cfg.Rules.Enabled {
		ruleRegistry, ruleEngine, err = startRules(ctx, cfg, db, ibx, log)
		if err != nil {
			return fmt.Errorf("starting rules engine: %w", err)
		}
		defer func() {
			log.Info("stopping rules engine")
			ruleEngine.Stop()
		}()
	} else {
		log.Info("rules engine disabled")
	}

	// The hub is created here rather than inside the API server because
	// the event bridge broadcasts on it too.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Fan inbox and thing mutations out to WebSocket clients, the rules
	// engine, MQTT and InfluxDB.
	bridge := &eventBridge{
		hub:    hub,
		engine: ruleEngine,
		influx: influxClient,
		mqtt:   mqttClient,
		qos:    byte(cfg.MQTT.QoS),
		log:    log,
	}
	ibx.AddListener(bridge)
	things.AddChangeListener(bridge)
	if influxClient != nil {
		disc.AddListener(&discoveryTelemetry{influx: influxClient})
	}

	// Start discovery services after listeners are wired so background
	// discoveries are not lost.
	if startErr := disc.Start(); startErr != nil {
		log.Warn("one or more discovery services failed to start", "error", startErr)
	}
	defer func() {
		log.Info("stopping discovery services")
		if stopErr := disc.Stop(); stopErr != nil {
			log.Error("error stopping discovery", "error", stopErr)
		}
	}()

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Inbox:       ibx,
		Discovery:   disc,
		Things:      things,
		Links:       links,
		Rules:       ruleRegistry,
		RulesEngine: ruleEngine,
		MQTT:        mqttClient,
		DB:          db,
		Influx:      influxClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

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
	// 1. API server
	// 2. Discovery services
	// 3. Rules engine (if enabled)
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Inbox janitor
	// 7. Database

	log.Info("Hearth Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HEARTH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// buildDiscovery creates the discovery registry and registers one service
// per enabled binding.
//
// Parameters:
//   - cfg: Application configuration
//   - mqttClient: MQTT client for the announce-topic binding (may be nil)
//   - log: Logger instance
//
// Returns:
//   - *discovery.Registry: Registry with all enabled services
//   - error: If a service cannot be created
func buildDiscovery(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (*discovery.Registry, error) {
	registry := discovery.NewRegistry()
	registry.SetLogger(log)

	if cfg.Discovery.MDNS.Enabled {
		scanner := mdns.NewScanner(mdns.Config{
			ServiceType: cfg.Discovery.MDNS.ServiceType,
		})
		svc, err := discovery.NewService(discovery.Config{
			ID:                  mdns.BindingID,
			ThingTypes:          []discovery.ThingTypeUID{mdns.ThingTypeService},
			ScanTimeoutSecs:     cfg.Discovery.MDNS.ScanTimeout,
			BackgroundDiscovery: cfg.Discovery.MDNS.Background,
		}, scanner)
		if err != nil {
			return nil, fmt.Errorf("creating mDNS service: %w", err)
		}
		svc.SetLogger(log)
		if err := registry.AddService(svc); err != nil {
			return nil, fmt.Errorf("registering mDNS service: %w", err)
		}
		log.Info("mDNS discovery enabled",
			"service_type", cfg.Discovery.MDNS.ServiceType,
			"background", cfg.Discovery.MDNS.Background,
		)
	}

	if cfg.Discovery.Serial.Enabled {
		scanner := serialport.NewScanner(serialport.Config{})
		svc, err := discovery.NewService(discovery.Config{
			ID:              serialport.BindingID,
			ThingTypes:      []discovery.ThingTypeUID{serialport.ThingTypeGateway},
			ScanTimeoutSecs: cfg.Discovery.Serial.ScanTimeout,
		}, scanner)
		if err != nil {
			return nil, fmt.Errorf("creating serial port service: %w", err)
		}
		svc.SetLogger(log)
		if err := registry.AddService(svc); err != nil {
			return nil, fmt.Errorf("registering serial port service: %w", err)
		}
		log.Info("serial port discovery enabled")
	}

	if cfg.Discovery.MQTT.Enabled && mqttClient == nil {
		log.Warn("MQTT announce discovery requires MQTT, skipping")
	}
	if cfg.Discovery.MQTT.Enabled && mqttClient != nil {
		scanner := mqttbridge.NewScanner(mqttClient, byte(cfg.MQTT.QoS))
		svc, err := discovery.NewService(discovery.Config{
			ID:                  mqttbridge.BindingID,
			ThingTypes:          []discovery.ThingTypeUID{mqttbridge.ThingTypeDevice},
			BackgroundDiscovery: cfg.Discovery.MQTT.Background,
		}, scanner)
		if err != nil {
			return nil, fmt.Errorf("creating MQTT discovery service: %w", err)
		}
		svc.SetLogger(log)
		if err := registry.AddService(svc); err != nil {
			return nil, fmt.Errorf("registering MQTT discovery service: %w", err)
		}
		log.Info("MQTT announce discovery enabled",
			"background", cfg.Discovery.MQTT.Background,
		)
	}

	return registry, nil
}

// startRules initialises the rule registry and engine and starts the VMs
// of all enabled rules.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - db: Database connection for rule storage
//   - ibx: Inbox the rule action functions act on
//   - log: Logger instance
//
// Returns:
//   - *rules.Registry: Rule registry with cache loaded
//   - *rules.Engine: Running engine
//   - error: If the registry or engine fails to start
func startRules(ctx context.Context, cfg *config.Config, db *database.DB, ibx *inbox.Inbox, log *logging.Logger) (*rules.Registry, *rules.Engine, error) {
	repo := rules.NewSQLiteRepository(db.DB)
	registry := rules.NewRegistry(repo)
	registry.SetLogger(log)
	if err := registry.RefreshCache(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading rule registry: %w", err)
	}

	engine := rules.NewEngine(registry, &inboxActions{inbox: ibx},
		time.Duration(cfg.Rules.ExecTimeout)*time.Second)
	engine.SetLogger(log)

	if err := engine.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting engine: %w", err)
	}
	log.Info("rules engine started", "rules", registry.Count())

	return registry, engine, nil
}

// inboxActions adapts the inbox to the rule engine's action surface.
// Scripts act through `hearth.approve` and `hearth.ignore`.
type inboxActions struct {
	inbox *inbox.Inbox
}

// ApproveInboxEntry implements rules.Actions.
func (a *inboxActions) ApproveInboxEntry(thingUID string) error {
	_, err := a.inbox.Approve(context.Background(), discovery.ThingUID(thingUID), "", "")
	return err
}

// IgnoreInboxEntry implements rules.Actions.
func (a *inboxActions) IgnoreInboxEntry(thingUID string) error {
	return a.inbox.SetFlag(context.Background(), discovery.ThingUID(thingUID), discovery.FlagIgnored)
}

// eventBridge fans inbox and thing events out to WebSocket clients, the
// rules engine, the event MQTT topics and InfluxDB.
//
// It implements inbox.Listener and thing.ChangeListener. The engine,
// influx and mqtt fields may be nil.
type eventBridge struct {
	hub    *api.Hub
	engine *rules.Engine
	influx *influxdb.Client
	mqtt   *mqtt.Client
	qos    byte
	log    *logging.Logger
}

// publish delivers one event to every sink.
func (b *eventBridge) publish(eventType string, data map[string]any) {
	if b.hub != nil {
		b.hub.Broadcast(eventType, data)
	}
	if b.engine != nil {
		b.engine.Dispatch(rules.Event{Type: eventType, Data: data})
	}
	if b.mqtt != nil {
		payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
		if err != nil {
			return
		}
		topic := mqtt.Topics{}.Event(eventType)
		if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
			b.log.Warn("publishing event", "topic", topic, "error", err)
		}
	}
}

// EntryAdded implements inbox.Listener.
func (b *eventBridge) EntryAdded(e *inbox.Entry) {
	if b.influx != nil {
		b.influx.WriteInboxEvent("added", string(e.Result.ThingUID), string(e.Result.Flag))
	}
	b.publish("inbox.added", map[string]any{
		"thing_uid": string(e.Result.ThingUID),
		"label":     e.Result.Label,
		"flag":      string(e.Result.Flag),
	})
}

// EntryUpdated implements inbox.Listener.
func (b *eventBridge) EntryUpdated(e *inbox.Entry) {
	if b.influx != nil {
		b.influx.WriteInboxEvent("updated", string(e.Result.ThingUID), string(e.Result.Flag))
	}
	b.publish("inbox.updated", map[string]any{
		"thing_uid": string(e.Result.ThingUID),
		"label":     e.Result.Label,
		"flag":      string(e.Result.Flag),
	})
}

// EntryRemoved implements inbox.Listener.
func (b *eventBridge) EntryRemoved(e *inbox.Entry) {
	if b.influx != nil {
		b.influx.WriteInboxEvent("removed", string(e.Result.ThingUID), string(e.Result.Flag))
	}
	b.publish("inbox.removed", map[string]any{
		"thing_uid": string(e.Result.ThingUID),
	})
}

// ThingAdded implements thing.ChangeListener.
func (b *eventBridge) ThingAdded(t *thing.Thing) {
	if b.influx != nil {
		b.influx.WriteThingEvent("added", string(t.UID))
	}
	b.publish("thing.added", map[string]any{
		"uid":   string(t.UID),
		"label": t.Label,
	})
}

// ThingUpdated implements thing.ChangeListener.
func (b *eventBridge) ThingUpdated(_, updated *thing.Thing) {
	if b.influx != nil {
		b.influx.WriteThingEvent("updated", string(updated.UID))
	}
	b.publish("thing.updated", map[string]any{
		"uid":   string(updated.UID),
		"label": updated.Label,
	})
}

// ThingRemoved implements thing.ChangeListener.
func (b *eventBridge) ThingRemoved(t *thing.Thing) {
	if b.influx != nil {
		b.influx.WriteThingEvent("removed", string(t.UID))
	}
	b.publish("thing.removed", map[string]any{
		"uid": string(t.UID),
	})
}

// discoveryTelemetry records discovery traffic in InfluxDB. The inbox is
// the primary discovery listener; this one only writes the time series, so
// repeated discoveries of known things still show up there.
//
// It is a separate type because thing.ChangeListener and discovery.Listener
// both declare ThingRemoved with different signatures.
type discoveryTelemetry struct {
	influx *influxdb.Client
}

// ThingDiscovered implements discovery.Listener.
func (d *discoveryTelemetry) ThingDiscovered(source *discovery.Service, result *discovery.Result) {
	if d.influx != nil {
		d.influx.WriteDiscoveryEvent(source.ID(), "discovered", string(result.ThingUID))
	}
}

// ThingRemoved implements discovery.Listener.
func (d *discoveryTelemetry) ThingRemoved(source *discovery.Service, thingUID discovery.ThingUID) {
	if d.influx != nil {
		d.influx.WriteDiscoveryEvent(source.ID(), "removed", string(thingUID))
	}
}

// RemoveOlderResults implements discovery.Listener. The telemetry sink
// holds no results, so there is nothing to evict.
func (d *discoveryTelemetry) RemoveOlderResults(*discovery.Service, time.Time, []discovery.ThingTypeUID, discovery.ThingUID) []discovery.ThingUID {
	return nil
}
