package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/guillemso1er/orbitcheck-sub004/config"
	"github.com/guillemso1er/orbitcheck-sub004/internal/handlers"
	"github.com/guillemso1er/orbitcheck-sub004/internal/repositories/address"
	"github.com/guillemso1er/orbitcheck-sub004/internal/repositories/audit"
	"github.com/guillemso1er/orbitcheck-sub004/internal/repositories/customer"
	"github.com/guillemso1er/orbitcheck-sub004/internal/repositories/order"
	"github.com/guillemso1er/orbitcheck-sub004/internal/repositories/postal"
	"github.com/guillemso1er/orbitcheck-sub004/internal/repositories/rule"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/cache"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/database"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/dedupe"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/evaluation"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/events"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/health"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/httpclient"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/middleware"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/risk"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/rules"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/startup"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing/exporters"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

const shutdownTimeout = 30 * time.Second

// app owns the process dependencies. Each one is a startup dependency so
// they come up in order and are stopped in reverse.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Runner
	health  *health.Checker

	tracer   *tracing.Provider
	db       *database.Handle
	cache    *cache.Client
	kafka    *events.KafkaSink
	recorder *events.Recorder
	server   *http.Server
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewRunner(logger, cfg.StartupMaxAttempts),
		health:  health.NewChecker(cfg.Version),
	}

	a.startup.Add(&startup.Step{
		ID:      "tracing",
		OnStart: a.startTracing,
		OnStop: func(ctx context.Context) error {
			return a.tracer.Shutdown(ctx)
		},
	})
	a.startup.Add(&startup.Step{
		ID:      "postgres",
		OnStart: a.startDatabase,
		OnStop: func(context.Context) error {
			return a.db.Close()
		},
	})
	a.startup.Add(&startup.Step{
		ID:      "redis",
		OnStart: a.startCache,
		OnStop: func(context.Context) error {
			return a.cache.Close()
		},
	})
	a.startup.Add(&startup.Step{
		ID:      "kafka",
		OnStart: a.startKafka,
		OnStop: func(context.Context) error {
			if a.kafka == nil {
				return nil
			}
			return a.kafka.Close()
		},
	})
	a.startup.Add(&startup.Step{
		ID:        "http",
		DependsOn: []string{"tracing", "postgres", "redis", "kafka"},
		OnStart:   a.startHTTP,
		OnStop:    a.stopHTTP,
	})

	return a
}

func (a *app) start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.health.SetReady(true)
	a.logger.Infof("%s %s is ready on port %d", a.cfg.AppName, a.cfg.Version, a.cfg.Port)
	return nil
}

func (a *app) stop() error {
	a.health.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.startup.Stop(ctx)
}

func (a *app) startTracing(ctx context.Context) error {
	provider, err := tracing.NewProvider(ctx, tracing.ProviderConfig{
		ServiceName:    a.cfg.AppName,
		ServiceVersion: a.cfg.Version,
		Enabled:        a.cfg.TracingEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: a.cfg.OTLPEndpoint,
			Protocol: a.cfg.OTLPProtocol,
			Insecure: a.cfg.OTLPInsecure,
			Timeout:  a.cfg.OTLPExportLimit,
		},
	})
	if err != nil {
		return err
	}
	a.tracer = provider
	return nil
}

func (a *app) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseDSN(), database.PoolConfig{
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	migrator := database.NewMigrator(a.logger, database.MigrateOptions{
		Folder:     a.cfg.DatabaseMigrationFolderPath,
		Version:    uint(max(a.cfg.DatabaseMigrationVersion, 0)),
		Force:      a.cfg.DatabaseMigrationForce,
		ResetDirty: a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrator.Postgres(db.DB.DB, a.cfg.DatabaseName); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	a.db = db
	a.health.Add("postgres", db.PingContext)
	return nil
}

func (a *app) startCache(context.Context) error {
	client, err := cache.NewClient(cache.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
		Prefix:   "orbitcheck:",
	}, a.logger)
	if err != nil {
		return err
	}
	a.cache = client
	a.health.Add("redis", client.Ping)
	return nil
}

func (a *app) startKafka(context.Context) error {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("Kafka audit stream disabled")
		return nil
	}
	a.kafka = events.NewKafkaSink(events.KafkaConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaAuditTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	a.health.AddOptional("kafka", a.pingKafka)
	return nil
}

func (a *app) pingKafka(ctx context.Context) error {
	var d net.Dialer
	var lastErr error
	for _, broker := range a.cfg.KafkaBrokers {
		conn, err := d.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return lastErr
}

func (a *app) startHTTP(context.Context) error {
	a.recorder = a.newRecorder()
	e := a.newEcho()

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

// stopHTTP drains requests first and then the audit deliveries they started.
func (a *app) stopHTTP(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if waitErr := a.recorder.Wait(ctx); waitErr != nil {
		a.logger.WithError(waitErr).Warn("audit deliveries still pending at shutdown")
	}
	return err
}

func (a *app) newRecorder() *events.Recorder {
	sinks := []events.Sink{events.NewStoreSink(audit.NewRepository(a.db, a.logger))}
	if a.kafka != nil {
		sinks = append(sinks, a.kafka)
	}
	return events.NewRecorder(a.logger, events.DefaultSinkTimeout, sinks...)
}

func (a *app) newEcho() *echo.Echo {
	cfg := a.cfg
	logger := a.logger

	orders := order.NewRepository(a.db, logger)
	customers := customer.NewRepository(a.db, logger)
	addresses := address.NewRepository(a.db, logger)
	ruleStore := rule.NewRepository(a.db, logger)

	email := validators.NewEmailValidator(validators.EmailConfig{
		MXTimeout:         cfg.EmailMXTimeout,
		CacheTTL:          cfg.EmailCacheTTL,
		DisposableDomains: cfg.DisposableDomains,
	}, net.DefaultResolver, a.cache, logger)

	geocoder := validators.NewNominatimGeocoder(cfg.GeocoderURL, httpclient.NewClient(httpclient.Config{
		Timeout:   cfg.GeocoderTimeout,
		UserAgent: cfg.GeocoderUserAgent,
	}, logger), logger)
	addressValidator := validators.NewAddressValidator(validators.AddressConfig{CacheTTL: cfg.AddressCacheTTL},
		postal.NewRepository(a.db, logger), geocoder, a.cache, logger)

	otpSender := validators.NewWebhookOTPSender(cfg.OTPWebhookURL, httpclient.NewClient(httpclient.Config{}, logger), logger)
	phone := validators.NewPhoneValidator(validators.PhoneConfig{
		CacheTTL:  cfg.PhoneCacheTTL,
		OTPIssuer: cfg.OTPIssuer,
		OTPTTL:    cfg.OTPTTL,
	}, a.cache, a.cache, otpSender, logger)

	vies := validators.NewVIESClient(cfg.VIESURL, httpclient.NewClient(httpclient.Config{Timeout: cfg.VIESTimeout}, logger), logger)
	taxID := validators.NewTaxIDValidator(validators.TaxIDConfig{CacheTTL: cfg.TaxIDCacheTTL}, vies, a.cache, logger)

	matcher := dedupe.NewMatcher(customers, addresses, orders, dedupe.Config{
		NameFloor:    cfg.DedupeNameFloor,
		AddressFloor: cfg.DedupeAddressFloor,
		MaxResults:   cfg.DedupeMaxResults,
		Exhaustive:   cfg.DedupeExhaustive,
	}, logger)

	engine := rules.NewEngine(ruleStore, rules.Config{
		RuleTimeout:   cfg.RuleTimeout,
		EngineTimeout: cfg.RuleEngineTimeout,
	}, logger)

	service := evaluation.NewService(evaluation.Dependencies{
		DB:        a.db,
		Orders:    orders,
		Customers: customers,
		Addresses: addresses,
		Dedupe:    matcher,
		Email:     email,
		Phone:     phone,
		Address:   addressValidator,
		Rules:     engine,
		Audit:     a.recorder,
	}, evaluation.Config{
		Thresholds: risk.Thresholds{
			Block:                     cfg.RiskBlockThreshold,
			Hold:                      cfg.RiskHoldThreshold,
			HighValue:                 decimal.NewFromFloat(cfg.HighValueAmount),
			VeryHighValue:             decimal.NewFromFloat(cfg.VeryHighValueAmount),
			FirstOccurrenceCapTrigger: cfg.FirstOccurrenceCapTrigger,
			FirstOccurrenceCap:        cfg.FirstOccurrenceCap,
		},
		TestModeTimeout: cfg.TestModeTimeout,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderProjectID},
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1", middleware.RequireProject())
	handlers.NewOrderHandler(service).Register(api)
	handlers.NewValidationHandler(email, phone, addressValidator, taxID, a.recorder, logger).Register(api)
	handlers.NewDedupeHandler(matcher, a.recorder, logger).Register(api)
	handlers.NewRuleHandler(ruleStore, service, a.recorder, logger).Register(api)

	return e
}
