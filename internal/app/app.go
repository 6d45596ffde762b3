package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/cache"
	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/config"
	"github.com/Freeeeeet/mentor_queue/internal/controller"
	"github.com/Freeeeeet/mentor_queue/internal/controller/handlers"
	"github.com/Freeeeeet/mentor_queue/internal/httpapi"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Run поднимает зависимости и блокируется до отмены ctx
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	clk, err := clock.NewCivil(cfg.Timezone)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Connected to database")

	migrator, err := NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		return err
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	var rdb *redis.Client
	var lease service.Lease
	if cfg.RedisAddr != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// без redis отключаются только лимиты и блокировка прогона
			logger.Warn("Redis unavailable, continuing without it", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			lease = cache.NewLease(rdb)
		}
	}

	var events service.EventPublisher = queue.Discard{}
	if cfg.RabbitMQURL != "" {
		publisher := queue.NewPublisher(cfg.RabbitMQURL, logger)
		defer publisher.Close()
		events = publisher
	}

	store := repository.NewPostgresStore(pool, logger)

	tickets := service.NewTicketService(store, clk, events, logger)
	tickets.SetConcurrency(cfg.BulkConcurrency)

	services := httpapi.Services{
		Slots:        service.NewSlotService(store, logger),
		Tickets:      tickets,
		Reservations: service.NewReservationService(store, clk, events, logger),
		Problems:     service.NewProblemService(store, clk, events, logger),
		Publish:      service.NewPublishService(store, clk, lease, events, logger),
		Users:        service.NewUserService(store, logger),
	}

	scheduler := NewScheduler(services.Publish, cfg.PublishSweepInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := httpapi.NewServer(services, cfg.JWTSecret, cfg.RateLimit, rdb, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.TelegramToken != "" {
		botController, err := newBot(ctx, cfg.TelegramToken, services, clk, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			botController.Start(gctx)
			return nil
		})
	} else {
		logger.Info("TELEGRAM_TOKEN is empty, bot disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func newBot(ctx context.Context, token string, services httpapi.Services, clk clock.Clock, logger *zap.Logger) (*controller.BotController, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	cmdHandlers := handlers.NewHandlers(
		services.Users,
		services.Reservations,
		services.Tickets,
		services.Slots,
		services.Publish,
		clk,
		logger,
	)

	botController := controller.NewBotController(b, cmdHandlers, logger)
	if err := botController.RegisterHandlers(ctx); err != nil {
		return nil, fmt.Errorf("register bot handlers: %w", err)
	}
	return botController, nil
}
