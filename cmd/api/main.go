package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	infrapdf "github.com/jhoicas/stock-ledger/internal/infrastructure/pdf"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/redislock"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// backend puertos de persistencia según STORE_DRIVER.
type backend struct {
	tx    inventory.TxRunner
	admin inventory.AdminTxRunner
	lots  repository.LotRepository
	movs  repository.MovementRepository
	close func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.App.StoreDriver).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar almacenamiento")
	}
	defer be.close()

	engineOpts := []inventory.EngineOption{}
	if cfg.Redis.Enabled() {
		client, err := redislock.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer client.Close()

		opts := redislock.DefaultOptions()
		opts.Expiry = cfg.Redis.LockExpiry()
		locker, err := redislock.New(client, opts, log)
		if err != nil {
			log.Fatal().Err(err).Msg("locker distribuido")
		}
		engineOpts = append(engineOpts, inventory.WithLocker(locker))
		log.Info().Str("redis", cfg.Redis.Addr).Msg("bloqueo distribuido por variación activo")
	}

	engine := inventory.NewAllocationEngine(be.tx, log, inventory.EngineConfig{
		MaxAttempts:    cfg.Engine.MaxAttempts,
		RetryBaseDelay: time.Duration(cfg.Engine.RetryBaseMS) * time.Millisecond,
		RetryMaxDelay:  time.Duration(cfg.Engine.RetryMaxMS) * time.Millisecond,
	}, engineOpts...)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Stock Ledger API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "store": cfg.App.StoreDriver})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:    engine,
		Balances:  inventory.NewBalanceQuery(be.lots, be.movs),
		Ledger:    inventory.NewLedgerQueryUseCase(be.movs, be.lots),
		LedgerAdm: inventory.NewLedgerAdminUseCase(be.admin, log),
		Trace:     inventory.NewTraceabilityUseCase(be.lots, be.movs, infrapdf.NewLotTracePDFGenerator()),
		JWTSecret: cfg.JWT.Secret,
		Log:       log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr()).Msg("servidor HTTP escuchando")
		return app.Listen(cfg.HTTP.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("servidor HTTP finalizado con error")
	}

	log.Info().Msg("aplicación detenida")
}

func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (*backend, error) {
	if cfg.App.StoreDriver == config.StoreDriverMemory {
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		store := memory.NewStore()
		return &backend{tx: store, admin: store, lots: store.Lots(), movs: store.Movements(), close: func() {}}, nil
	}

	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(cfg.DB.ConnectionString(), log); err != nil {
			return nil, err
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	runner := postgres.NewTxRunner(pool, cfg.DB.LockTimeout())
	return &backend{
		tx:    runner,
		admin: runner,
		lots:  postgres.NewLotRepository(pool),
		movs:  postgres.NewMovementRepository(pool),
		close: pool.Close,
	}, nil
}
