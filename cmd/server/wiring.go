package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"credtrust/internal/contentstore"
	credhandler "credtrust/internal/credential/handler"
	credservice "credtrust/internal/credential/service"
	credstore "credtrust/internal/credential/store"
	"credtrust/internal/document"
	"credtrust/internal/events"
	"credtrust/internal/platform/config"
	"credtrust/internal/platform/database"
	"credtrust/internal/platform/health"
	"credtrust/internal/platform/kafka"
	"credtrust/internal/platform/kafka/producer"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/platform/redis"
	"credtrust/internal/platform/sqlite"
	"credtrust/internal/platform/tracer"
	"credtrust/internal/platform/upstream"
	presenthandler "credtrust/internal/presentation/handler"
	presentservice "credtrust/internal/presentation/service"
	"credtrust/internal/signer"
	"credtrust/internal/signer/local"
	httptransport "credtrust/internal/transport/http"
	tfhandler "credtrust/internal/twofactor/handler"
	tfservice "credtrust/internal/twofactor/service"
	tfstore "credtrust/internal/twofactor/store"
	"credtrust/internal/twofactor/totp"
	verifyhandler "credtrust/internal/verification/handler"
	verifyservice "credtrust/internal/verification/service"
	"credtrust/pkg/platform/circuit"
	"credtrust/pkg/secrets"
)

const (
	eventBuffer     = 256
	topicPartitions = 3
)

// documentSigner is implemented by both the remote signer client and the
// local HS256 signer.
type documentSigner interface {
	SignCredential(ctx context.Context, credential json.RawMessage) (json.RawMessage, error)
	SignPresentation(ctx context.Context, presentation json.RawMessage) (json.RawMessage, error)
	Verify(ctx context.Context, doc *document.Document) (*signer.VerifyResult, error)
	Health(ctx context.Context) error
}

type app struct {
	health  *health.Handler
	routes  []httptransport.Routes
	redis   *redis.Client
	closers []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse acquisition order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{health: health.New(cfg.Environment)}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	m := metrics.New(reg)
	tr := tracer.NewOTel()

	credentials, twoFactorSQL, err := buildStores(ctx, a, cfg, log)
	if err != nil {
		return nil, err
	}

	sealer, err := secrets.NewSealer(cfg.TwoFactor.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("build 2FA sealer: %w", err)
	}
	twoFactorStore := twoFactorSQL(tfstore.WithSealer(sealer))
	if cfg.TwoFactor.Backend == config.TwoFactorBackendRedis {
		client, err := redis.New(ctx, cfg.Redis, reg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		a.onClose(func() { _ = client.Close() })
		a.health.RegisterCheck("redis", client.Health)
		twoFactorStore = tfstore.NewRedis(goredis.UniversalClient(client.Client), tfstore.WithSealer(sealer))
	}

	publisher, err := buildPublisher(ctx, a, cfg, log)
	if err != nil {
		return nil, err
	}

	docSigner, err := buildSigner(cfg, log, m)
	if err != nil {
		return nil, err
	}
	if docSigner != nil {
		a.health.RegisterOptionalCheck("signer", docSigner.Health)
	} else {
		log.Warn("no signer configured; issuance and presentations will fail and signatures will not verify")
	}

	twoFactor := tfservice.NewService(twoFactorStore,
		totp.NewGenerator(cfg.TwoFactor.Issuer, cfg.TwoFactor.BackupCodeCount),
		cfg.IssuerID,
		tfservice.WithLogger(log),
		tfservice.WithMetrics(m),
		tfservice.WithPublisher(publisher),
		tfservice.WithUnprotectedRevocation(cfg.TwoFactor.AllowUnprotectedRevocation),
	)

	credentialService := credservice.NewService(credentials, twoFactor, cfg.IssuerID,
		credservice.WithLogger(log),
		credservice.WithMetrics(m),
		credservice.WithPublisher(publisher),
		credservice.WithSigner(docSigner),
	)

	verifyOpts := []verifyservice.Option{
		verifyservice.WithLogger(log),
		verifyservice.WithMetrics(m),
		verifyservice.WithTracer(tr),
	}
	if cfg.ContentStore.URL != "" {
		content := contentstore.New(contentstore.Config{
			BaseURL: cfg.ContentStore.URL,
			Timeout: cfg.ContentStore.Timeout,
			Caller:  newCaller("ipfs", log, m),
		})
		verifyOpts = append(verifyOpts, verifyservice.WithContentStore(content))
	}
	verification := verifyservice.NewService(docSigner, credentials, verifyOpts...)

	presentation := presentservice.NewService(credentialService, docSigner,
		presentservice.WithLogger(log),
		presentservice.WithMetrics(m),
		presentservice.WithPublisher(publisher),
		presentservice.WithTracer(tr),
	)

	a.routes = []httptransport.Routes{
		credhandler.New(credentialService, log),
		tfhandler.New(twoFactor, log),
		verifyhandler.New(verification, log),
		presenthandler.New(presentation, log),
	}
	return a, nil
}

// buildStores opens the configured backend and returns the credential store
// plus a constructor for the SQL-backed 2FA store on the same database.
func buildStores(ctx context.Context, a *app, cfg config.Server, log *slog.Logger) (credstore.Store, func(...tfstore.Option) tfstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.Storage.DatabaseURL
		pool, err := database.New(ctx, dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.onClose(func() { _ = pool.Close() })
		if err := pool.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		a.health.RegisterCheck("database", pool.Health)
		return credstore.NewPostgres(pool.DB(), credstore.WithLogger(log)),
			func(opts ...tfstore.Option) tfstore.Store { return tfstore.NewPostgres(pool.DB(), opts...) },
			nil

	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		a.health.RegisterCheck("database", db.Health)
		return credstore.NewSQLite(db, credstore.WithLogger(log)),
			func(opts ...tfstore.Option) tfstore.Store { return tfstore.NewSQLite(db, opts...) },
			nil

	default:
		log.Warn("using in-memory storage; credentials are lost on restart")
		return credstore.NewInMemoryStore(credstore.WithLogger(log)),
			func(...tfstore.Option) tfstore.Store { return tfstore.NewInMemoryStore() },
			nil
	}
}

// buildPublisher delivers lifecycle events to Kafka when brokers are
// configured and to the log otherwise.
func buildPublisher(ctx context.Context, a *app, cfg config.Server, log *slog.Logger) (*events.Publisher, error) {
	var sink events.Sink = events.NewLogSink(log)

	if cfg.Kafka.Brokers != "" {
		admin, err := kafka.NewAdmin(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		a.onClose(admin.Close)
		if err := admin.EnsureTopic(ctx, cfg.Kafka.Topic, topicPartitions); err != nil {
			log.Warn("could not provision lifecycle topic", "topic", cfg.Kafka.Topic, "error", err)
		}

		prod, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		a.onClose(func() { _ = prod.Close() })
		a.health.RegisterOptionalCheck("kafka", admin.Health)
		sink = events.NewKafkaSink(prod, cfg.Kafka.Topic)
	}

	publisher := events.NewPublisher(sink,
		events.WithAsyncBuffer(eventBuffer),
		events.WithPublisherLogger(log),
	)
	a.onClose(publisher.Close)
	return publisher, nil
}

// buildSigner prefers the remote signer, then the local dev key. It returns a
// nil interface when neither is configured.
func buildSigner(cfg config.Server, log *slog.Logger, m *metrics.Metrics) (documentSigner, error) {
	switch {
	case cfg.Signer.URL != "":
		return signer.NewClient(cfg.Signer.URL, cfg.Signer.Timeout, newCaller("signer", log, m)), nil
	case cfg.Signer.LocalKey != "":
		s, err := local.New(cfg.Signer.LocalKey, cfg.IssuerID)
		if err != nil {
			return nil, fmt.Errorf("build local signer: %w", err)
		}
		log.Warn("using local HS256 signer; not for production")
		return s, nil
	default:
		return nil, nil
	}
}

func newCaller(name string, log *slog.Logger, m *metrics.Metrics) *upstream.Caller {
	return upstream.New(name,
		upstream.WithBreaker(circuit.New(name)),
		upstream.WithMetrics(m),
		upstream.WithLogger(log),
	)
}
