package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/modmail-bridge/internal/api/http"
	"github.com/spec-kit/modmail-bridge/internal/api/http/handlers"
	"github.com/spec-kit/modmail-bridge/internal/auth"
	"github.com/spec-kit/modmail-bridge/internal/config"
	"github.com/spec-kit/modmail-bridge/internal/engine"
	"github.com/spec-kit/modmail-bridge/internal/events"
	"github.com/spec-kit/modmail-bridge/internal/observability"
	"github.com/spec-kit/modmail-bridge/internal/persistence"
	"github.com/spec-kit/modmail-bridge/internal/repository"
	"github.com/spec-kit/modmail-bridge/internal/roles"
	"github.com/spec-kit/modmail-bridge/internal/selector"
	"github.com/spec-kit/modmail-bridge/internal/service"
	"github.com/spec-kit/modmail-bridge/internal/transport"
	"github.com/spec-kit/modmail-bridge/internal/transport/gateway"
	"github.com/spec-kit/modmail-bridge/internal/worker"
)

// handlerProxy breaks the construction cycle between the gateway client and
// the routing engine: the client is built first with this proxy, the engine
// is built with the client, and the proxy resolves the engine lazily.
type handlerProxy struct {
	engine func() *engine.Engine
}

func (p *handlerProxy) HandleDirectMessage(ctx context.Context, msg transport.InboundMessage) {
	if e := p.engine(); e != nil {
		e.HandleDirectMessage(ctx, msg)
	}
}

func (p *handlerProxy) HandleChannelMessage(ctx context.Context, msg transport.InboundMessage) {
	if e := p.engine(); e != nil {
		e.HandleChannelMessage(ctx, msg)
	}
}

func (p *handlerProxy) HandleSelection(ctx context.Context, sel transport.Selection) {
	if e := p.engine(); e != nil {
		e.HandleSelection(ctx, sel)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	settingRepo := repository.NewGuildSettingRepository(pool)
	blockedRepo := repository.NewBlockedUserRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	// The gateway client needs the engine as its event handler and the engine
	// needs the gateway as its messenger; the client is constructed first and
	// the handler attached through a late-bound indirection.
	var routing *engine.Engine
	handler := handlerProxy{engine: func() *engine.Engine { return routing }}
	messenger := gateway.New(cfg.Gateway, &handler, logger)

	destSelector := selector.New(messenger, settingRepo, ticketRepo,
		cfg.Bridge.SelectionWindow(), cfg.Bridge.SelectionMaxChoices, logger)

	routing = engine.New(engine.Dependencies{
		Tickets:   ticketRepo,
		Messages:  messageRepo,
		Blocked:   blockedRepo,
		Settings:  settingRepo,
		Messenger: messenger,
		Selector:  destSelector,
		Dispatch:  dispatcher,
		Metrics:   metrics,
		Logger:    logger,
		Bridge:    cfg.Bridge,
	})

	logMirror := worker.NewLogMirror(messenger, settingRepo, logger)
	logMirror.Register(dispatcher)

	resolver := roles.NewResolver(messenger, settingRepo, cfg.Bridge.DefaultStaffRoleID, logger)
	guard := handlers.NewAccessGuard(resolver, messenger)

	dashboard := service.NewDashboardService(service.Dependencies{
		Tickets:   ticketRepo,
		Messages:  messageRepo,
		Blocked:   blockedRepo,
		Settings:  settingRepo,
		Engine:    routing,
		Messenger: messenger,
		Cache:     redis.Client,
		Logger:    logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth)
	authMiddleware := auth.NewMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(func() error { return redis.Ping(ctx) }),
		Auth:           handlers.NewAuthHandler(cfg.Auth, tokens),
		Tickets:        handlers.NewTicketsHandler(dashboard, guard),
		Guilds:         handlers.NewGuildsHandler(dashboard, guard),
		Blocked:        handlers.NewBlockedHandler(dashboard, guard),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	go func() {
		if cfg.Gateway.URL == "" {
			logger.Warn("GATEWAY_URL not provided; running dashboard only")
			return
		}
		if err := messenger.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatal("gateway run", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
