package main

import (
	"context"
	"log/slog"
	"os"

	"keygate/config"
	"keygate/internal/delivery"
	"keygate/internal/delivery/http"
	"keygate/internal/delivery/http/middleware"
	"keygate/internal/delivery/http/router/handler"
	"keygate/internal/infra/auth"
	logs "keygate/internal/infra/log"
	"keygate/internal/infra/notification"
	"keygate/internal/infra/persistence/postgres"
	"keygate/internal/infra/pubsub"
	"keygate/internal/infra/ratelimit"
	"keygate/internal/infra/tenant"
	"keygate/internal/usecase/impl"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		postgres.New,
		ratelimit.New,
	)
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			postgres.NewUserRepository,
			postgres.NewSessionRepository,
			postgres.NewRefreshTokenRepository,
			postgres.NewPasswordHistoryRepository,
			postgres.NewTransactionManager,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			auth.NewBcryptHasher,
			auth.NewJWTService,
			auth.NewTOTPService,
			notification.NewSMTPMailer,
			tenant.NewStaticResolver,
		),
		pubsub.Module,
	)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthService,
			impl.NewSessionService,
			impl.NewCleanupService,
		),
		// CleanupService only registers lifecycle hooks; invoking it forces
		// construction so the sweep loop actually starts.
		fx.Invoke(func(*impl.CleanupService) {}),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewAuthMiddleware,
			middleware.NewErrorMiddleware,
			middleware.NewLoggerMiddleware,
			middleware.NewRequestIDMiddleware,
			middleware.NewRateLimitMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
			handler.NewMfaHandler,
			handler.NewSessionHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
