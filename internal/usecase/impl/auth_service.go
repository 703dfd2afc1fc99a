// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"keygate/config"
	deliverycontext "keygate/internal/delivery/context"
	"keygate/internal/domain/entity"
	domainerrors "keygate/internal/domain/errors"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// dummyBcryptHash is compared against when an email does not resolve to an
// account, so the failure path costs one bcrypt comparison either way and
// account existence cannot be inferred from response timing.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// authService implements the AuthUsecase interface. It owns the token and
// session lifecycle: issuance, rotation, revocation and the account state
// machines around them.
type authService struct {
	txManager        repository.TransactionManager
	userRepo         repository.UserRepository
	sessionRepo      repository.SessionRepository
	refreshTokenRepo repository.RefreshTokenRepository
	hasher           service.PasswordHasher
	tokenService     service.TokenService
	mfaService       service.MfaService
	mailer           service.Mailer
	publisher        service.EventPublisher
	tenantResolver   service.TenantResolver

	lockout  config.LockoutConfig
	password config.PasswordConfig
	token    config.TokenConfig

	logger *slog.Logger

	// now is injectable so lifecycle tests can run against a simulated clock.
	now func() time.Time
}

// AuthServiceParams holds dependencies for authService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager        repository.TransactionManager
	UserRepo         repository.UserRepository
	SessionRepo      repository.SessionRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           service.PasswordHasher
	TokenService     service.TokenService
	MfaService       service.MfaService
	Mailer           service.Mailer
	Publisher        service.EventPublisher
	TenantResolver   service.TenantResolver
	Config           *config.Config
	Logger           *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return &authService{
		txManager:        params.TxManager,
		userRepo:         params.UserRepo,
		sessionRepo:      params.SessionRepo,
		refreshTokenRepo: params.RefreshTokenRepo,
		hasher:           params.Hasher,
		tokenService:     params.TokenService,
		mfaService:       params.MfaService,
		mailer:           params.Mailer,
		publisher:        params.Publisher,
		tenantResolver:   params.TenantResolver,
		lockout:          *params.Config.Lockout,
		password:         *params.Config.Password,
		token:            *params.Config.Token,
		logger:           params.Logger,
		now:              time.Now,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// publish emits one audit event. Best-effort: a failed publish is logged
// and never surfaces to the caller.
func (srv *authService) publish(ctx context.Context, event *service.SecurityEvent) {
	event.At = srv.now()
	event.RequestID = deliverycontext.GetRequestIDFromContext(ctx)

	if err := srv.publisher.PublishSecurityEvent(ctx, event); err != nil {
		srv.log(ctx).Warn("Failed to publish security event",
			slog.String("type", event.Type), slog.Any("error", err))
	}
}

// Register orchestrates the account registration process.
func (srv *authService) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	email := entity.NormalizeEmail(input.Email)
	srv.log(ctx).Info("Starting registration", slog.String("email", email))

	if err := srv.hasher.ValidatePolicy(input.Password); err != nil {
		srv.log(ctx).Warn("Password validation failed during registration", slog.String("email", email), slog.Any("error", err))

		return nil, err
	}

	passwordHash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password during registration")
	}

	verificationToken, err := randomToken()
	if err != nil {
		return nil, err
	}

	newUser := &entity.User{
		Email:             email,
		Name:              input.Name,
		PasswordHash:      passwordHash,
		Role:              "user",
		VerificationToken: srv.tokenService.HashToken(verificationToken),
		PasswordChangedAt: srv.now(),
	}

	var pair *usecase.TokenPair
	var sessionID uuid.UUID

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if err := repoFactory.UserRepo().Create(ctx, newUser); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				return domainerrors.ErrEmailTaken
			}

			return errors.Wrap(err, "failed to create user during registration")
		}

		entry := &entity.PasswordHistory{
			UserID:       newUser.ID,
			PasswordHash: passwordHash,
			CreatedAt:    srv.now(),
		}
		if err := repoFactory.PasswordHistoryRepo().Append(ctx, entry); err != nil {
			return errors.Wrap(err, "failed to seed password history")
		}

		// Registration counts as the first login: the new account gets a
		// session and token pair without a separate login round-trip.
		issuedPair, issuedSessionID, err := srv.issueSession(ctx, repoFactory, newUser, input.DeviceInfo, input.IPAddress, input.UserAgent)
		if err != nil {
			return err
		}
		pair, sessionID = issuedPair, issuedSessionID

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Registration failed", slog.String("email", email), slog.Any("error", err))

		return nil, err
	}

	srv.sendMail(ctx, email, "Verify your email",
		"Use this token to verify your email address: "+verificationToken)

	srv.log(ctx).Debug("Registration completed", slog.Any("userID", newUser.ID))

	return &usecase.RegisterOutput{User: newUser, Tokens: pair, SessionID: sessionID}, nil
}

// VerifyEmail consumes an email-verification challenge.
func (srv *authService) VerifyEmail(ctx context.Context, input *usecase.VerifyEmailInput) error {
	tokenHash := srv.tokenService.HashToken(input.Token)

	return srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByVerificationToken(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrTokenInvalid.WrapMessage("verification token not recognized")
			}

			return errors.Wrap(err, "failed to resolve verification token")
		}

		user.EmailVerified = true
		user.VerificationToken = ""

		return errors.Wrap(userRepo.Update(ctx, user), "failed to mark email verified")
	})
}

// ValidateAccess verifies an access token and returns its claims.
// Purely cryptographic; no store lookup on the hot path.
func (srv *authService) ValidateAccess(_ context.Context, accessToken string) (*service.AccessClaims, error) {
	return srv.tokenService.VerifyAccessToken(accessToken)
}

// issueSession creates a session plus its first refresh token and signs
// the access token. Called inside a transaction after authentication has
// fully succeeded.
func (srv *authService) issueSession(
	ctx context.Context,
	repoFactory repository.RepositoryFactory,
	user *entity.User,
	deviceInfo, ipAddress, userAgent string,
) (*usecase.TokenPair, uuid.UUID, error) {
	now := srv.now()

	session := &entity.Session{
		UserID:         user.ID,
		DeviceInfo:     deviceInfo,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		IsActive:       true,
		LastActivityAt: now,
		ExpiresAt:      now.Add(srv.tokenService.RefreshTokenTTL()),
	}
	if err := repoFactory.SessionRepo().Create(ctx, session); err != nil {
		return nil, uuid.Nil, errors.Wrap(err, "failed to create session")
	}

	// Tenant memberships are resolved at issuance and embedded in the
	// token; they are not re-read during access token validation.
	tenants, err := srv.tenantResolver.TenantsFor(ctx, user.ID)
	if err != nil {
		srv.log(ctx).Warn("Tenant resolution failed, issuing token without memberships",
			slog.Any("userID", user.ID), slog.Any("error", err))
	}
	user.TenantIDs = tenants

	// A fresh login starts a fresh rotation family.
	pair, err := srv.issueTokenPair(ctx, repoFactory, user, session.ID, uuid.New())
	if err != nil {
		return nil, uuid.Nil, err
	}

	return pair, session.ID, nil
}

// issueTokenPair signs both tokens and persists the refresh record under
// the given rotation family.
func (srv *authService) issueTokenPair(
	ctx context.Context,
	repoFactory repository.RepositoryFactory,
	user *entity.User,
	sessionID, family uuid.UUID,
) (*usecase.TokenPair, error) {
	accessToken, err := srv.tokenService.SignAccessToken(user, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign access token")
	}

	rawRefresh, jti, err := srv.tokenService.SignRefreshToken(user.ID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign refresh token")
	}

	record := &entity.RefreshToken{
		ID:        jti,
		TokenHash: srv.tokenService.HashToken(rawRefresh),
		UserID:    user.ID,
		SessionID: sessionID,
		Family:    family,
		ExpiresAt: srv.now().Add(srv.tokenService.RefreshTokenTTL()),
	}
	if err := repoFactory.RefreshTokenRepo().Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, "failed to store refresh token")
	}

	return &usecase.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int64(srv.tokenService.AccessTokenTTL().Seconds()),
	}, nil
}

// sendMail delivers a message best-effort; mail failures never fail the
// operation that triggered them.
func (srv *authService) sendMail(ctx context.Context, to, subject, body string) {
	if err := srv.mailer.Send(ctx, to, subject, body); err != nil {
		srv.log(ctx).Warn("Failed to send mail", slog.String("to", to), slog.Any("error", err))
	}
}

// randomToken generates an opaque challenge value for mail-delivered
// flows. 32 bytes of entropy, hex-encoded.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}

	return hex.EncodeToString(buf), nil
}
