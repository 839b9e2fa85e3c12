package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/summithq/summithq-security/internal/attempt"
	"github.com/summithq/summithq-security/internal/audit"
	"github.com/summithq/summithq-security/internal/config"
	"github.com/summithq/summithq-security/internal/geoip"
	httptransport "github.com/summithq/summithq-security/internal/http"
	"github.com/summithq/summithq-security/internal/http/handler"
	httpmiddleware "github.com/summithq/summithq-security/internal/http/middleware"
	"github.com/summithq/summithq-security/internal/lockout"
	apimiddleware "github.com/summithq/summithq-security/internal/middleware"
	"github.com/summithq/summithq-security/internal/report"
	"github.com/summithq/summithq-security/internal/repository"
	"github.com/summithq/summithq-security/internal/server"
	"github.com/summithq/summithq-security/internal/session"
	"github.com/summithq/summithq-security/internal/suspicion"
	"github.com/summithq/summithq-security/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newSettingsRepository,
			newAttemptRepository,
			newEventRepository,
			newAuditRepository,
			newSessionRepository,
			newUserDirectory,
			newGeoIPClient,
			newAuditService,
			newLockoutEngine,
			newDetector,
			newRecorder,
			newSessionRegistry,
			newAggregator,
			newRateLimiter,
			newAuthMiddleware,
			handler.NewSecurityHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch {
	case cfg.LogFile != "":
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
		logger = zap.New(zapcore.NewCore(encoder, sink, zap.InfoLevel))
	case cfg.Environment == "development":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newSettingsRepository(pool *pgxpool.Pool) repository.SettingsRepository {
	return repository.NewPostgresSettingsRepo(pool)
}

func newAttemptRepository(pool *pgxpool.Pool) repository.AttemptRepository {
	return repository.NewPostgresAttemptRepo(pool)
}

func newEventRepository(pool *pgxpool.Pool) repository.EventRepository {
	return repository.NewPostgresEventRepo(pool)
}

func newAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return repository.NewPostgresAuditRepo(pool)
}

func newSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return repository.NewPostgresSessionRepo(pool)
}

func newUserDirectory(pool *pgxpool.Pool) repository.UserDirectory {
	return repository.NewPostgresUserDirectory(pool)
}

func newGeoIPClient(cfg config.Config, logger *zap.Logger) *geoip.Client {
	return geoip.NewClient(cfg.GeoIPEndpoint, cfg.GeoIPTimeout, logger)
}

func newAuditService(repo repository.AuditRepository, cfg config.Config, logger *zap.Logger) audit.Sink {
	resolver := audit.IPResolver(geoip.EchoResolver(cfg.IPEchoEndpoint, cfg.GeoIPTimeout))
	return audit.NewService(repo, resolver, logger)
}

func newLockoutEngine(settings repository.SettingsRepository, events repository.EventRepository, sink audit.Sink, cfg config.Config, logger *zap.Logger) *lockout.Engine {
	return lockout.NewEngine(settings, events, sink, cfg.LockoutThreshold, cfg.LockoutDuration, logger)
}

func newDetector(attempts repository.AttemptRepository, sessions repository.SessionRepository) *suspicion.Detector {
	return suspicion.NewDetector(attempts, sessions)
}

func newRecorder(attempts repository.AttemptRepository, users repository.UserDirectory, events repository.EventRepository, engine *lockout.Engine, detector *suspicion.Detector, logger *zap.Logger) *attempt.Recorder {
	return attempt.NewRecorder(attempts, users, events, engine, detector, logger)
}

func newSessionRegistry(sessions repository.SessionRepository, sink audit.Sink, geo *geoip.Client, cfg config.Config, logger *zap.Logger) *session.Registry {
	return session.NewRegistry(sessions, sink, geo, cfg.SessionTTL, cfg.SessionExpiringSoon, logger)
}

func newAggregator(attempts repository.AttemptRepository, events repository.EventRepository, auditLog repository.AuditRepository, settings repository.SettingsRepository, registry *session.Registry, sink audit.Sink) *report.Aggregator {
	return report.NewAggregator(attempts, events, auditLog, settings, registry, sink)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(cfg config.Config) *httpmiddleware.Auth {
	return httpmiddleware.NewAuth(cfg.AdminJWTSecret)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
