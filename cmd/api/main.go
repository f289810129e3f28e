package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-sla/sla-service/internal/api/http"
	"github.com/helpdesk-sla/sla-service/internal/api/http/handlers"
	"github.com/helpdesk-sla/sla-service/internal/auth"
	"github.com/helpdesk-sla/sla-service/internal/config"
	"github.com/helpdesk-sla/sla-service/internal/events"
	"github.com/helpdesk-sla/sla-service/internal/notify"
	"github.com/helpdesk-sla/sla-service/internal/observability"
	"github.com/helpdesk-sla/sla-service/internal/persistence"
	"github.com/helpdesk-sla/sla-service/internal/repository"
	"github.com/helpdesk-sla/sla-service/internal/repository/memory"
	"github.com/helpdesk-sla/sla-service/internal/service"
	"github.com/helpdesk-sla/sla-service/internal/sla"
	"github.com/helpdesk-sla/sla-service/internal/worker"
)

// stores is the storage backend picked at startup.
type stores struct {
	tickets     repository.TicketRepository
	departments repository.DepartmentRepository
	rules       repository.SLARuleRepository
	pauses      sla.PauseStore
	escalations repository.EscalationRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name, cfg.App.Version)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	calendars, err := config.LoadCalendars(cfg.SLA)
	if err != nil {
		logger.Fatal("failed to load business calendars", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var (
		st          stores
		pgReadiness handlers.Pinger
	)
	if pool := pg.PoolHandle(); pool != nil {
		st = stores{
			tickets:     repository.NewTicketRepository(pool),
			departments: repository.NewDepartmentRepository(pool),
			rules:       repository.NewSLARuleRepository(pool),
			pauses:      repository.NewPauseRepository(pool),
			escalations: repository.NewEscalationRepository(pool),
		}
		pgReadiness = pg
	} else {
		st = stores{
			tickets:     memory.NewTicketStore(),
			departments: memory.NewDepartmentStore(),
			rules:       memory.NewRuleStore(),
			pauses:      memory.NewPauseStore(),
			escalations: memory.NewEscalationStore(),
		}
	}

	var (
		locker         sla.Locker = sla.NewKeyedMutex()
		redisReadiness handlers.Pinger
	)
	redis := persistence.NewRedis(cfg.Redis)
	if err := redis.Ping(ctx); err == nil {
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		locker = persistence.NewRedisLocker(redis, cfg.SLA.LockTTL(), logger)
		redisReadiness = redis
		defer redis.Close()
	} else {
		logger.Warn("redis unavailable; ticket locks are process-local", zap.Error(err))
		redis.Close()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var chat service.EscalationNotifier
	if cfg.Slack.Enabled() {
		chat = notify.NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel)
	}
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification, chat)
	worker.StartNotificationWorker(notificationService)

	slaService := service.NewSLAService(service.SLADependencies{
		TicketRepo:       st.tickets,
		RuleRepo:         st.rules,
		EscalationRepo:   st.escalations,
		PauseStore:       st.pauses,
		Locker:           locker,
		Calendars:        calendars,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
		Concurrency:      cfg.SLA.SweepConcurrency,
		RetryMaxAttempts: cfg.SLA.RetryMaxAttempts,
	})
	ruleService := service.NewSLARuleService(service.RuleDependencies{
		RuleRepo:       st.rules,
		EscalationRepo: st.escalations,
		DepartmentRepo: st.departments,
		Calendars:      calendars,
		Logger:         logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pgReadiness, redisReadiness),
		SLA:            handlers.NewSLAHandler(slaService),
		Rules:          handlers.NewSLARulesHandler(ruleService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	escalations := worker.NewEscalationWorker(slaService, cfg.SLA.SweepInterval(), logger)
	go escalations.Run(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
