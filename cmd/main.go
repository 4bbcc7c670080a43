package main

import (
	"context"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dkoval/eventhub/internal/api"
	"github.com/dkoval/eventhub/internal/config"
	"github.com/dkoval/eventhub/internal/db"
	"github.com/dkoval/eventhub/internal/repository"
	"github.com/dkoval/eventhub/internal/service"
	"github.com/dkoval/eventhub/pkg/logger"
)

func main() {
	logger, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting application")

	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err = pool.Ping(context.Background()); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	logger.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	teamRepo := repository.NewPgxTeamRepository(pool)
	memberRepo := repository.NewPgxMemberRepository(pool)
	userRepo := repository.NewPgxUserRepository(pool)
	eventRepo := repository.NewPgxEventRepository(pool)

	team := service.NewTeamService(transactor).
		WithTeamRepo(teamRepo).
		WithMemberRepo(memberRepo).
		WithUserRepo(userRepo).
		WithEventRepo(eventRepo)
	registration := service.NewRegistrationService(transactor).
		WithTeamRepo(teamRepo).
		WithMemberRepo(memberRepo).
		WithUserRepo(userRepo).
		WithEventRepo(eventRepo)

	healthChecker := api.MustNewHealthChecker(health.Config{
		Name:    "postgres",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	e := echo.New()

	handler := api.NewHandler(logger).
		WithTeamService(team).
		WithRegistrationService(registration).
		WithHealthChecker(healthChecker)

	handler.RegisterRoutes(e)

	logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
	if err = e.Start(cfg.Server.Addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
