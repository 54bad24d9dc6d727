// FlowCatalyst Relay
//
// Standalone relay binary: buffers client read/write submissions behind
// a bounded in-memory pipeline, executes them against a backing run
// database, and coordinates master/standby role with its paired relay
// instance over NATS.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.flowcatalyst.tech/internal/cache"
	"go.flowcatalyst.tech/internal/codec"
	"go.flowcatalyst.tech/internal/config"
	"go.flowcatalyst.tech/internal/discovery"
	"go.flowcatalyst.tech/internal/gateway"
	"go.flowcatalyst.tech/internal/httpapi"
	"go.flowcatalyst.tech/internal/lifecycle"
	"go.flowcatalyst.tech/internal/relay"
	"go.flowcatalyst.tech/internal/role"
	"go.flowcatalyst.tech/internal/secrets"
	"go.flowcatalyst.tech/internal/telemetry"
	"go.flowcatalyst.tech/internal/transport"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if os.Getenv("FLOWCATALYST_DEV") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Str("component", "relay").
		Msg("starting FlowCatalyst Relay")

	cfg, err := config.Load(os.Getenv("RELAY_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secretsProvider := newSecretsProvider(ctx, cfg.Secrets)
	runDSN := resolveSecret(ctx, secretsProvider, cfg.RunDSN)
	monURI := resolveSecret(ctx, secretsProvider, cfg.MonURI)

	runDB, err := sql.Open("postgres", runDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open run database")
	}
	defer runDB.Close()
	if err := runDB.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping run database")
	}
	run := gateway.NewRunGateway(runDB, "relay-run")
	log.Info().Msg("connected to run database")

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(monURI))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to monitoring database")
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("error disconnecting from monitoring database")
		}
	}()
	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to ping monitoring database")
	}
	monitor := gateway.NewMonitorGateway(mongoClient.Database(cfg.MonDB), cfg.MonColl)
	log.Info().Str("database", cfg.MonDB).Msg("connected to monitoring database")

	store := newCacheStore(cfg)

	natsConn, err := nats.Connect(cfg.NATSURL, nats.Name("relay-"+cfg.RelayID))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer func() {
		if err := natsConn.Drain(); err != nil {
			log.Error().Err(err).Msg("error draining nats connection")
		}
	}()
	subjects := transport.NewSubjects(cfg.CltSubPort, cfg.LogSubPort, cfg.LogPubPort, cfg.MMSndPort)

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	stats := telemetry.NewStore(cfg.RelayID)
	warnings := telemetry.NewInMemoryWarningService()

	disco := discovery.New()

	// tp and pipeline reference each other (transport.Handlers forward
	// inbound frames into the pipeline; the pipeline publishes replies
	// and heartbeats back out through tp as a relay.Publisher). Both
	// closures below capture these variables by reference and are only
	// invoked after both are assigned.
	var tp *transport.Manager
	var pipeline *relay.Pipeline

	header := cfg.Header
	if header == "" {
		header, _ = os.Hostname()
	}

	roleCtl := role.NewController(role.Config{
		BroadcastPeriod:  cfg.BroadcastPeriod,
		PromoteTimeout:   cfg.PromoteTimeout,
		NegotiateTimeout: cfg.NegotiateTimeout,
		MMWarnTimeout:    cfg.MMWarnTimeout,
		DontPromote:      cfg.DontPromote,
		WarnNoStandby:    cfg.WarnNoStandby,
	}, cfg.RelayID, header, []byte(cfg.JWTSecret),
		func(ctx context.Context) (time.Time, error) {
			return run.LastUpdate(ctx, cfg.LastUpdateTable, cfg.LastUpdateColumn)
		},
		role.Callbacks{
			OnBecomeMaster: func() {
				if err := tp.Destroy(); err != nil {
					log.Error().Err(err).Msg("failed to tear down standby subscriptions")
				}
				if err := tp.ConstructMaster(); err != nil {
					log.Error().Err(err).Msg("failed to construct master subscriptions")
				}
			},
			OnBecomeStandby: func() {
				if err := tp.Destroy(); err != nil {
					log.Error().Err(err).Msg("failed to tear down master subscriptions")
				}
				if err := tp.ConstructStandby(); err != nil {
					log.Error().Err(err).Msg("failed to construct standby subscriptions")
				}
			},
			OnWarning: func(message string) {
				pipeline.RecordWarning(message)
			},
			PublishNegotiation: func(n codec.Negotiation) error {
				return pipeline.PublishNegotiation(n)
			},
		})

	tp = transport.NewManager(natsConn, subjects, transport.Handlers{
		OnWriteSubmission: func(subject, reply string, data []byte) { pipeline.EnqueueWrite(subject, reply, data) },
		OnReadSubmission:  func(subject, reply string, data []byte) { pipeline.EnqueueRead(subject, reply, data) },
		OnLogSubmission:   func(data []byte) { pipeline.EnqueueLog(data) },
		OnHeartbeat:       func(data []byte) { pipeline.HandleHeartbeat(data) },
		OnNegotiation:     func(data []byte) { pipeline.HandleNegotiation(ctx)(data) },
	})

	pipeline = relay.New(relay.Config{
		MaxSendAttempts:        cfg.MaxSendAttempts,
		WarnLimit:              cfg.WarnLimit,
		DropLimit:              cfg.DropLimit,
		CachePeriod:            cfg.CachePeriod,
		StatsPeriod:            cfg.StatsPeriod,
		HandleUnexpectedWrites: cfg.HandleUnexpectedWrites,
		LastUpdateTable:        cfg.LastUpdateTable,
		LastUpdateColumn:       cfg.LastUpdateColumn,
	}, store, run, monitor, tp, roleCtl, disco, metrics, stats, warnings)

	health := telemetry.NewHealthService(map[telemetry.Dependency]telemetry.ConnectivityChecker{
		telemetry.DependencyTransport: tp,
		telemetry.DependencyRunDB:     run,
		telemetry.DependencyMonitorDB: monitor,
	})

	// The controller starts in Standby without firing OnBecomeStandby
	// (that callback only fires on a transition), so the initial
	// subscription set is constructed explicitly here.
	if err := tp.ConstructStandby(); err != nil {
		log.Fatal().Err(err).Msg("failed to construct initial standby subscriptions")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Mount("/", httpapi.NewHandlers(pipeline, warnings, health).Routes())
	r.Mount("/discovery", discovery.NewHandler(disco).Routes())

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("admin http server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin http server failed")
		}
	}()

	pipelineDone := make(chan struct{})
	go runPipeline(ctx, pipeline, cfg, pipelineDone)

	lc := lifecycle.NewManager()
	lc.SetShutdownTimeout(30 * time.Second)
	lc.RegisterHTTPShutdown("admin-http", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	lc.RegisterPipelineShutdown("pipeline", func(ctx context.Context) error {
		cancel()
		select {
		case <-pipelineDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	lc.RegisterTransportShutdown("transport", func(ctx context.Context) error {
		return tp.Destroy()
	})
	lc.RegisterDatabaseShutdown("run-db", func(ctx context.Context) error {
		return runDB.Close()
	})

	lc.WaitForSignal()
	if err := lc.Execute(); err != nil {
		log.Error().Err(err).Msg("graceful shutdown reported errors")
	}
	log.Info().Msg("relay stopped")
}

// runPipeline drives Iterate on a fixed cadence until ctx is cancelled.
func runPipeline(ctx context.Context, p *relay.Pipeline, cfg config.Config, done chan<- struct{}) {
	defer close(done)
	period := cfg.InpollTimeout
	if cfg.OutpollTimeout < period {
		period = cfg.OutpollTimeout
	}
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Iterate(ctx)
		}
	}
}

func newSecretsProvider(ctx context.Context, cfg config.SecretsConfig) secrets.Provider {
	switch cfg.Backend {
	case "vault":
		token := os.Getenv("VAULT_TOKEN")
		p, err := secrets.NewVaultProvider(cfg.VaultAddr, token, cfg.VaultPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to construct vault secrets provider")
		}
		return p
	case "awssm":
		p, err := secrets.NewAWSSecretsManagerProvider(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to construct aws secrets manager provider")
		}
		return p
	default:
		return secrets.Static{}
	}
}

// resolveSecret treats value as a secret name when a backend is
// configured, otherwise as the literal DSN.
func resolveSecret(ctx context.Context, provider secrets.Provider, value string) string {
	if _, ok := provider.(secrets.Static); ok {
		return value
	}
	resolved, err := provider.Resolve(ctx, value)
	if err != nil {
		log.Fatal().Err(err).Str("name", value).Msg("failed to resolve secret")
	}
	return resolved
}

func newCacheStore(cfg config.Config) cache.Store {
	cacheCfg := cache.Config{Period: cfg.CachePeriod}
	if cfg.RedisURL == "" {
		log.Warn().Msg("redis_url not set, using in-memory response cache (single instance only)")
		return cache.NewMemoryStore(cacheCfg)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse redis url")
	}
	client := redis.NewClient(opts)
	return cache.NewRedisStore(client, cacheCfg, fmt.Sprintf("relay:%s:cache:", cfg.RelayID))
}
