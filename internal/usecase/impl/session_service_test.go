package impl

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "keygate/internal/domain/errors"
)

// sessionServiceFor builds a sessionService over the fixture's store, so
// sessions created through login are visible to it.
func sessionServiceFor(fixture *authFixture) *sessionService {
	return &sessionService{
		txManager:   &fakeTxManager{store: fixture.store},
		sessionRepo: &fakeSessionRepo{store: fixture.store},
		publisher:   fixture.publisher,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         fixture.clock.Now,
	}
}

func TestListSessions_MarksCurrent(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "alice@example.com", "Str0ngPassw0rd!")

	fixture.login(t, "alice@example.com", "Str0ngPassw0rd!")
	second := fixture.login(t, "alice@example.com", "Str0ngPassw0rd!")

	svc := sessionServiceFor(fixture)
	infos, err := svc.ListSessions(context.Background(), user.ID, second.SessionID)
	require.NoError(t, err)
	// Registration opened one session, the two logins two more.
	require.Len(t, infos, 3)

	var current int
	for _, info := range infos {
		if info.Current {
			current++
			assert.Equal(t, second.SessionID, info.Session.ID)
		}
	}
	assert.Equal(t, 1, current)
}

func TestListSessions_ExcludesRevoked(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "bob@example.com", "Str0ngPassw0rd!")

	login := fixture.login(t, "bob@example.com", "Str0ngPassw0rd!")
	fixture.login(t, "bob@example.com", "Str0ngPassw0rd!")

	svc := sessionServiceFor(fixture)
	require.NoError(t, svc.RevokeSession(context.Background(), user.ID, login.SessionID))

	infos, err := svc.ListSessions(context.Background(), user.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestRevokeSession_KillsItsTokens(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "carol@example.com", "Str0ngPassw0rd!")
	login := fixture.login(t, "carol@example.com", "Str0ngPassw0rd!")

	svc := sessionServiceFor(fixture)
	require.NoError(t, svc.RevokeSession(context.Background(), user.ID, login.SessionID))

	session := fixture.sessionByID(t, login.SessionID)
	assert.False(t, session.IsActive)

	_, err := fixture.service.Refresh(context.Background(), &usecase.RefreshInput{
		RefreshToken: login.Tokens.RefreshToken,
	})
	require.Error(t, err)
}

func TestRevokeSession_OwnershipEnforced(t *testing.T) {
	fixture := newAuthFixture(t)
	fixture.register(t, "dave@example.com", "Str0ngPassw0rd!")
	mallory := fixture.register(t, "mallory@example.com", "Str0ngPassw0rd!")
	login := fixture.login(t, "dave@example.com", "Str0ngPassw0rd!")

	svc := sessionServiceFor(fixture)
	err := svc.RevokeSession(context.Background(), mallory.ID, login.SessionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrForbidden))

	// Nothing was touched.
	session := fixture.sessionByID(t, login.SessionID)
	assert.True(t, session.IsActive)
}

func TestRevokeSession_UnknownSession(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "erin@example.com", "Str0ngPassw0rd!")

	svc := sessionServiceFor(fixture)
	err := svc.RevokeSession(context.Background(), user.ID, uuid.New())
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))
}

func TestRevokeAllSessions_SparesCaller(t *testing.T) {
	fixture := newAuthFixture(t)
	user := fixture.register(t, "frank@example.com", "Str0ngPassw0rd!")

	first := fixture.login(t, "frank@example.com", "Str0ngPassw0rd!")
	second := fixture.login(t, "frank@example.com", "Str0ngPassw0rd!")
	third := fixture.login(t, "frank@example.com", "Str0ngPassw0rd!")

	svc := sessionServiceFor(fixture)
	require.NoError(t, svc.RevokeAllSessions(context.Background(), user.ID, second.SessionID))

	assert.False(t, fixture.sessionByID(t, first.SessionID).IsActive)
	assert.True(t, fixture.sessionByID(t, second.SessionID).IsActive)
	assert.False(t, fixture.sessionByID(t, third.SessionID).IsActive)

	// Only the spared session can still rotate.
	_, err := fixture.service.Refresh(context.Background(), &usecase.RefreshInput{
		RefreshToken: second.Tokens.RefreshToken,
	})
	require.NoError(t, err)

	_, err = fixture.service.Refresh(context.Background(), &usecase.RefreshInput{
		RefreshToken: first.Tokens.RefreshToken,
	})
	require.Error(t, err)
}
