package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/config"
	"github.com/dentalcare/clinic/internal/domain/clinical"
	"github.com/dentalcare/clinic/internal/domain/identity"
	"github.com/dentalcare/clinic/internal/domain/scheduling"
	"github.com/dentalcare/clinic/internal/platform/auth"
	"github.com/dentalcare/clinic/internal/platform/clock"
	"github.com/dentalcare/clinic/internal/platform/db"
	"github.com/dentalcare/clinic/internal/platform/events"
	"github.com/dentalcare/clinic/internal/platform/firebase"
	"github.com/dentalcare/clinic/internal/platform/middleware"
	"github.com/dentalcare/clinic/internal/platform/telemetry"
)

const version = "0.1.0"

func runServer() error {
	// Config
	cfg, loc, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSamplingRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Firebase, when a project is configured
	fbApp, err := newFirebaseApp(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise firebase")
	}

	store, closeStore, err := buildAppointmentStore(ctx, cfg, pool, fbApp, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open appointment store")
	}
	defer closeStore()
	logger.Info().Str("store", cfg.AppointmentStore).Bool("strict_slots", cfg.BookingStrictSlots).Msg("appointment store ready")

	src := buildClock(cfg, loc, logger)

	publisher, closePublisher := buildPublisher(cfg, logger)
	defer closePublisher()

	// Domain services
	identitySvc := identity.NewService(identity.NewTutorRepo(pool), identity.NewChildRepo(pool), pool, loc, logger)
	schedulingSvc := scheduling.NewService(store, src, newDirectory(identitySvc), publisher, scheduling.Config{
		Location:     loc,
		OfferedTimes: cfg.OfferedTimes(),
		StrictSlots:  cfg.BookingStrictSlots,
		MaxDaysAhead: cfg.BookingMaxDaysAhead,
	}, logger)
	clinicalSvc := clinical.NewService(clinical.NewNoteRepo(pool), clinical.NewPrescriptionRepo(pool),
		schedulingSvc, identitySvc, publisher, loc, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.Middleware("clinic-server"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader, auth.DevRoleHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	// Auth middleware
	authMW, err := buildAuth(ctx, cfg, fbApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure auth")
	}
	apiV1.Use(authMW)
	apiV1.Use(identity.ProfileRoles(identitySvc))

	// Rate limiting runs after auth so signed-in users are keyed by id.
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		apiV1.Use(middleware.RedisRateLimit(middleware.NewRedisCounter(rdb), redisRateLimitConfig(cfg), logger))
		logger.Info().Msg("using redis rate limiter")
	} else {
		apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}))
	}

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)
	clinical.NewHandler(clinicalSvc, clinical.PDFOptions{
		ClinicName: cfg.ClinicName,
		Address:    cfg.ClinicAddress,
		Phone:      cfg.ClinicPhone,
	}).RegisterRoutes(apiV1)

	// Reminder worker
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	reminders := scheduling.NewReminderWorker(store, src, loc, publisher, cfg.ReminderInterval, logger)
	go reminders.Run(workerCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopWorker()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newFirebaseApp returns nil when no Firebase project is configured.
func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	if cfg.FirebaseProjectID == "" {
		return nil, nil
	}
	return firebase.NewApp(ctx, firebase.Config{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentials,
	})
}

// buildAppointmentStore opens the backend named by APPOINTMENT_STORE. The
// returned func releases it.
func buildAppointmentStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, fbApp *firebase.App, loc *time.Location) (scheduling.AppointmentStore, func(), error) {
	switch cfg.AppointmentStore {
	case "memory":
		return scheduling.NewMemoryStore(), func() {}, nil
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("postgres appointment store needs a database pool")
		}
		return scheduling.NewAppointmentRepoPG(pool), func() {}, nil
	case "firestore":
		if fbApp == nil {
			return nil, nil, fmt.Errorf("firestore appointment store needs FIREBASE_PROJECT_ID")
		}
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return scheduling.NewFirestoreStore(client, loc), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown appointment store %q", cfg.AppointmentStore)
}

// buildClock prefers the remote time service and falls back to the local
// clock in the clinic zone.
func buildClock(cfg *config.Config, loc *time.Location, logger zerolog.Logger) clock.Source {
	system := clock.System{Location: loc}
	if cfg.ClockAPIURL == "" {
		return system
	}
	remote := clock.NewWorldTimeAPI(cfg.ClockAPIURL, loc, cfg.ClockTimeout, cfg.ClockSyncTTL)
	return clock.NewFallback(remote, system, logger)
}

func buildPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func()) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		logger.Info().Msg("no KAFKA_BROKERS configured, events are dropped")
		return events.NopPublisher{}, func() {}
	}
	pub := events.NewKafkaPublisher(brokers, cfg.KafkaTopicPrefix)
	logger.Info().Strs("brokers", brokers).Str("topic_prefix", cfg.KafkaTopicPrefix).Msg("publishing events to kafka")
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("kafka writer close failed")
		}
	}
}

func buildAuth(ctx context.Context, cfg *config.Config, fbApp *firebase.App) (echo.MiddlewareFunc, error) {
	switch mode := cfg.ResolvedAuthMode(); mode {
	case "development":
		return auth.DevAuthMiddleware(), nil
	case "jwt":
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}), nil
	case "firebase":
		if fbApp == nil {
			return nil, fmt.Errorf("firebase auth needs FIREBASE_PROJECT_ID")
		}
		client, err := fbApp.Auth(ctx)
		if err != nil {
			return nil, err
		}
		return auth.FirebaseMiddleware(client), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

// redisRateLimitConfig turns the per-second settings into a one-minute window.
func redisRateLimitConfig(cfg *config.Config) middleware.RedisRateLimitConfig {
	return middleware.RedisRateLimitConfig{
		Limit:    int(cfg.RateLimitRPS * 60),
		Window:   time.Minute,
		Prefix:   "clinic:rl",
		FailOpen: true,
	}
}
