package impl

import (
	"context"
	"log/slog"
	"time"

	"keygate/config"
	"keygate/internal/domain/repository"

	"go.uber.org/fx"
)

// CleanupService periodically sweeps expired sessions, refresh tokens
// past the retention window and expired reset/recovery challenges.
// Housekeeping only: correctness never depends on the sweep because
// expiry and revocation are checked on every use.
type CleanupService struct {
	userRepo         repository.UserRepository
	sessionRepo      repository.SessionRepository
	refreshTokenRepo repository.RefreshTokenRepository
	retention        time.Duration
	interval         time.Duration
	logger           *slog.Logger
	now              func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// CleanupServiceParams holds dependencies for CleanupService, injected by Fx.
type CleanupServiceParams struct {
	fx.In
	fx.Lifecycle

	UserRepo         repository.UserRepository
	SessionRepo      repository.SessionRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Config           *config.Config
	Logger           *slog.Logger
}

// NewCleanupService is the constructor for CleanupService. It registers
// lifecycle hooks that run the sweep loop for the life of the process.
func NewCleanupService(params CleanupServiceParams) *CleanupService {
	svc := &CleanupService{
		userRepo:         params.UserRepo,
		sessionRepo:      params.SessionRepo,
		refreshTokenRepo: params.RefreshTokenRepo,
		retention:        params.Config.Token.CleanupRetention,
		interval:         params.Config.Token.CleanupInterval,
		logger:           params.Logger,
		now:              time.Now,
		done:             make(chan struct{}),
	}

	params.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			loopCtx, cancel := context.WithCancel(context.Background())
			svc.cancel = cancel
			go svc.run(loopCtx)

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			svc.cancel()
			select {
			case <-svc.done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})

	return svc
}

func (svc *CleanupService) run(ctx context.Context) {
	defer close(svc.done)

	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Sweep(ctx)
		}
	}
}

// Sweep removes sessions and tokens that expired before the retention
// cutoff and clears expired reset/recovery challenges. Exported so a
// one-shot sweep can be triggered directly.
func (svc *CleanupService) Sweep(ctx context.Context) {
	cutoff := svc.now().Add(-svc.retention)

	tokens, err := svc.refreshTokenRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		svc.logger.Warn("Refresh token sweep failed", slog.Any("error", err))
	}

	sessions, err := svc.sessionRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		svc.logger.Warn("Session sweep failed", slog.Any("error", err))
	}

	// Challenges are useless the moment they expire; no retention window.
	challenges, err := svc.userRepo.ClearExpiredChallenges(ctx, svc.now())
	if err != nil {
		svc.logger.Warn("Challenge sweep failed", slog.Any("error", err))
	}

	if tokens > 0 || sessions > 0 || challenges > 0 {
		svc.logger.Info("Cleanup sweep completed",
			slog.Int64("tokensDeleted", tokens),
			slog.Int64("sessionsDeleted", sessions),
			slog.Int64("challengesCleared", challenges),
			slog.Time("cutoff", cutoff),
		)
	}
}
