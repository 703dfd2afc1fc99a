package impl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"keygate/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_RemovesOnlyRowsPastRetention(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()

	svc := &CleanupService{
		userRepo:         &fakeUserRepo{store: store},
		sessionRepo:      &fakeSessionRepo{store: store},
		refreshTokenRepo: &fakeRefreshTokenRepo{store: store},
		retention:        30 * 24 * time.Hour,
		interval:         time.Hour,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:              func() time.Time { return now },
	}

	userID := uuid.New()

	ancientSession := &entity.Session{UserID: userID, ExpiresAt: now.Add(-31 * 24 * time.Hour)}
	recentSession := &entity.Session{UserID: userID, IsActive: true, ExpiresAt: now.Add(24 * time.Hour)}
	require.NoError(t, (&fakeSessionRepo{store: store}).Create(context.Background(), ancientSession))
	require.NoError(t, (&fakeSessionRepo{store: store}).Create(context.Background(), recentSession))

	tokenRepo := &fakeRefreshTokenRepo{store: store}
	ancientToken := &entity.RefreshToken{UserID: userID, TokenHash: "a", ExpiresAt: now.Add(-31 * 24 * time.Hour)}
	liveToken := &entity.RefreshToken{UserID: userID, TokenHash: "b", ExpiresAt: now.Add(24 * time.Hour)}
	require.NoError(t, tokenRepo.Create(context.Background(), ancientToken))
	require.NoError(t, tokenRepo.Create(context.Background(), liveToken))

	// Revoked long ago but not yet expired: swept by retention on the
	// revocation timestamp.
	revokedToken := &entity.RefreshToken{UserID: userID, TokenHash: "c", ExpiresAt: now.Add(24 * time.Hour)}
	require.NoError(t, tokenRepo.Create(context.Background(), revokedToken))
	require.NoError(t, tokenRepo.Revoke(context.Background(), revokedToken.ID, userID, entity.RevocationReasonLogout, now.Add(-31*24*time.Hour)))

	svc.Sweep(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()

	assert.NotContains(t, store.sessions, ancientSession.ID)
	assert.Contains(t, store.sessions, recentSession.ID)

	assert.NotContains(t, store.tokens, ancientToken.ID)
	assert.NotContains(t, store.tokens, revokedToken.ID)
	assert.Contains(t, store.tokens, liveToken.ID)
}

func TestSweep_ClearsExpiredChallenges(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()

	svc := &CleanupService{
		userRepo:         &fakeUserRepo{store: store},
		sessionRepo:      &fakeSessionRepo{store: store},
		refreshTokenRepo: &fakeRefreshTokenRepo{store: store},
		retention:        30 * 24 * time.Hour,
		interval:         time.Hour,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:              func() time.Time { return now },
	}

	userRepo := &fakeUserRepo{store: store}
	pastExpiry := now.Add(-time.Hour)
	futureExpiry := now.Add(time.Hour)

	stale := &entity.User{
		Email:                  "stale@example.com",
		PasswordHash:           "x",
		ResetTokenHash:         "dead-reset-digest",
		ResetTokenExpiresAt:    &pastExpiry,
		RecoveryTokenHash:      "dead-recovery-digest",
		RecoveryTokenExpiresAt: &pastExpiry,
	}
	fresh := &entity.User{
		Email:               "fresh@example.com",
		PasswordHash:        "x",
		ResetTokenHash:      "live-reset-digest",
		ResetTokenExpiresAt: &futureExpiry,
	}
	require.NoError(t, userRepo.Create(context.Background(), stale))
	require.NoError(t, userRepo.Create(context.Background(), fresh))

	svc.Sweep(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()

	swept := store.users[stale.ID]
	assert.Empty(t, swept.ResetTokenHash)
	assert.Nil(t, swept.ResetTokenExpiresAt)
	assert.Empty(t, swept.RecoveryTokenHash)
	assert.Nil(t, swept.RecoveryTokenExpiresAt)

	kept := store.users[fresh.ID]
	assert.Equal(t, "live-reset-digest", kept.ResetTokenHash)
}

func TestSweep_EmptyStoreIsFine(t *testing.T) {
	store := newMemoryStore()

	svc := &CleanupService{
		userRepo:         &fakeUserRepo{store: store},
		sessionRepo:      &fakeSessionRepo{store: store},
		refreshTokenRepo: &fakeRefreshTokenRepo{store: store},
		retention:        time.Hour,
		interval:         time.Hour,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:              time.Now,
	}

	svc.Sweep(context.Background())
}
