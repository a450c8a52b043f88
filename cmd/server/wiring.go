package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantguard/internal/auditor"
	audithandler "tenantguard/internal/auditor/handler"
	auditormetrics "tenantguard/internal/auditor/metrics"
	"tenantguard/internal/auditor/review"
	"tenantguard/internal/auditor/worker"
	directoryhandler "tenantguard/internal/directory/handler"
	directorymetrics "tenantguard/internal/directory/metrics"
	"tenantguard/internal/directory/service"
	tenantstore "tenantguard/internal/directory/store/tenant"
	userstore "tenantguard/internal/directory/store/user"
	"tenantguard/internal/gateway"
	gatewayhandler "tenantguard/internal/gateway/handler"
	gatewaymetrics "tenantguard/internal/gateway/metrics"
	"tenantguard/internal/gateway/tracer"
	"tenantguard/internal/identity"
	identitymetrics "tenantguard/internal/identity/metrics"
	"tenantguard/internal/identity/revocation"
	"tenantguard/internal/identity/session"
	"tenantguard/internal/ownership"
	ownershipmetrics "tenantguard/internal/ownership/metrics"
	"tenantguard/internal/platform/config"
	"tenantguard/internal/platform/database"
	"tenantguard/internal/platform/health"
	"tenantguard/internal/platform/kafka/producer"
	redisclient "tenantguard/internal/platform/redis"
	"tenantguard/internal/schema"
	"tenantguard/internal/storage"
	"tenantguard/internal/storage/memory"
	pgengine "tenantguard/internal/storage/postgres"
	"tenantguard/pkg/platform/audit"
	"tenantguard/pkg/platform/audit/publisher"
	kafkasink "tenantguard/pkg/platform/audit/store/kafka"
	auditmemory "tenantguard/pkg/platform/audit/store/memory"
	auditpostgres "tenantguard/pkg/platform/audit/store/postgres"
	adminmw "tenantguard/pkg/platform/middleware/admin"
	authmw "tenantguard/pkg/platform/middleware/auth"
	"tenantguard/pkg/platform/middleware/request"
	txcontext "tenantguard/pkg/platform/tx"
	"tenantguard/pkg/platform/validation"
)

// infra holds the optional external connections. A nil field means the
// in-memory fallback is in use.
type infra struct {
	db    *database.Pool
	redis *redisclient.Client
	kafka *producer.Producer
}

type app struct {
	infra     infra
	registry  *schema.Registry
	publisher *publisher.Publisher
	mirror    *revocation.InMemory

	directory *service.Service
	gateway   *gateway.Gateway
	auditor   *auditor.Auditor
	review    review.Queue
	scheduler *worker.Scheduler
	health    *health.Handler
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{health: health.New(2 * time.Second)}
	if err := a.connect(cfg, log); err != nil {
		a.close()
		return nil, err
	}

	registry := schema.Default()
	if cfg.SchemaFile != "" {
		loaded, err := schema.Load(cfg.SchemaFile)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("load table registry: %w", err)
		}
		registry = loaded
	}
	a.registry = registry

	a.publisher = a.auditPublisher(cfg, log)

	engine := a.engine()
	validator := ownership.New(
		ownership.WithLogger(log),
		ownership.WithAuditEmitter(a.publisher),
		ownership.WithMetrics(ownershipmetrics.New()),
	)

	a.directory = a.directoryService(engine, log)
	idMetrics := identitymetrics.New()
	resolver := identity.NewResolver(
		session.NewJWTVerifier(cfg.SessionSigningKey),
		identity.WithLogger(log),
		identity.WithRevocation(a.revocationList(cfg.Redis, log, idMetrics)),
		identity.WithMetrics(idMetrics),
	)

	a.gateway = gateway.New(gateway.Config{ResolutionTimeout: cfg.ResolutionTimeout},
		resolver, a.directory, engine, registry,
		gateway.WithLogger(log),
		gateway.WithAuditEmitter(a.publisher),
		gateway.WithMetrics(gatewaymetrics.New()),
		gateway.WithTracer(tracer.NewOTel()),
		gateway.WithAuthorizer(validator),
	)

	a.review = review.NewInMemory()
	if a.infra.db != nil {
		a.review = review.NewPostgres(a.infra.db.DB())
	}
	a.auditor = auditor.New(engine, registry, validator, a.directory, a.review,
		auditor.WithLogger(log),
		auditor.WithAuditEmitter(a.publisher),
		auditor.WithMetrics(auditormetrics.New()),
	)

	sched, err := worker.New(a.auditor,
		worker.WithInterval(cfg.AuditScanInterval),
		worker.WithLogger(log),
		worker.WithAuditEmitter(a.publisher),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = sched
	return a, nil
}

func (a *app) connect(cfg config.Server, log *slog.Logger) error {
	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if db != nil {
		a.infra.db = db
		a.health.RegisterCheck("postgres", db.Health)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores")
	}

	rc, err := redisclient.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		a.infra.redis = rc
		a.health.RegisterCheck("redis", rc.Health)
		prometheus.MustRegister(redisclient.NewPoolCollector(rc))
	}

	if brokers := cfg.Kafka.KafkaBrokers(); len(brokers) > 0 {
		p, err := producer.New(producer.Config{Brokers: brokers, DeliveryTimeout: cfg.Kafka.DeliveryTimeout}, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		a.infra.kafka = p
		a.health.RegisterCheck("kafka", p.Healthy)
	}
	return nil
}

func (a *app) engine() storage.Engine {
	if a.infra.db != nil {
		return pgengine.New(a.infra.db.PGX())
	}
	return memory.New()
}

func (a *app) auditPublisher(cfg config.Server, log *slog.Logger) *publisher.Publisher {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if a.infra.db != nil {
		store = auditpostgres.New(a.infra.db.DB())
	}
	opts := []publisher.PublisherOption{
		publisher.WithAsyncBuffer(1024),
		publisher.WithPublisherLogger(log),
	}
	if a.infra.kafka != nil {
		opts = append(opts, publisher.WithSink(kafkasink.NewSink(a.infra.kafka, cfg.Kafka.AuditTopic)))
	}
	return publisher.NewPublisher(store, opts...)
}

func (a *app) directoryService(engine storage.Engine, log *slog.Logger) *service.Service {
	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditEmitter(a.publisher),
		service.WithMetrics(directorymetrics.New()),
		service.WithUsage(engine, a.registry),
	}
	if a.infra.db != nil {
		opts = append(opts, service.WithTx(txcontext.NewSQLRunner(a.infra.db.DB())))
		return service.New(tenantstore.NewPostgres(a.infra.db.DB()), userstore.NewPostgres(a.infra.db.DB()), opts...)
	}
	tenants := tenantstore.NewInMemory()
	return service.New(tenants, userstore.NewInMemory(tenants), opts...)
}

// revocationList mirrors every revocation in memory so lookups keep working
// while Redis is down.
func (a *app) revocationList(cfg config.RedisConfig, log *slog.Logger, m *identitymetrics.Metrics) revocation.List {
	a.mirror = revocation.NewInMemory()
	if a.infra.redis == nil {
		return a.mirror
	}
	return revocation.NewResilient(
		revocation.NewRedis(a.infra.redis.Client, cfg.KeyPrefix),
		a.mirror,
		revocation.WithLogger(log),
		revocation.WithMetrics(m),
	)
}

func (a *app) router(cfg config.Server, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.ClientIP)
	r.Use(request.ClientAgent)
	r.Use(request.Logger(log))
	r.Use(request.Recovery(log))
	r.Use(request.LatencyMiddleware(request.NewMetrics()))
	r.Use(request.BodyLimit(validation.MaxBodySize))

	a.health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.RequireBearer(log))
		gatewayhandler.New(a.gateway, log).Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(adminmw.RequireAdminToken(cfg.AdminToken, log))
		directoryhandler.New(a.directory, log).Register(r)
		audithandler.New(a.auditor, a.review, log).Register(r)
	})
	return r
}

func (a *app) runBackground(ctx context.Context) {
	go a.mirror.RunSweeper(ctx, time.Minute)
	_ = a.scheduler.Start(ctx)
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.infra.kafka != nil {
		_ = a.infra.kafka.Close()
	}
	if a.infra.redis != nil {
		_ = a.infra.redis.Close()
	}
	if a.infra.db != nil {
		_ = a.infra.db.Close()
	}
}
