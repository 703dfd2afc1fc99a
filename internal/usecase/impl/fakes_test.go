package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"keygate/config"
	"keygate/internal/domain/entity"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"
	"keygate/internal/infra/auth"
	"keygate/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// The fakes below are stateful in-memory repositories sharing one store,
// so a service under test sees its own writes across transactions. They
// do not emulate row locking; serialization properties are asserted
// through the state machines, not through concurrent access.

type memoryStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*entity.User
	sessions map[uuid.UUID]*entity.Session
	tokens   map[uuid.UUID]*entity.RefreshToken
	history  []*entity.PasswordHistory
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    make(map[uuid.UUID]*entity.User),
		sessions: make(map[uuid.UUID]*entity.Session),
		tokens:   make(map[uuid.UUID]*entity.RefreshToken),
	}
}

func cloneUser(u *entity.User) *entity.User {
	copied := *u
	copied.RecoveryCodeHashes = append([]string(nil), u.RecoveryCodeHashes...)
	copied.TenantIDs = append([]string(nil), u.TenantIDs...)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		copied.LockedUntil = &t
	}
	if u.ResetTokenExpiresAt != nil {
		t := *u.ResetTokenExpiresAt
		copied.ResetTokenExpiresAt = &t
	}
	if u.RecoveryTokenExpiresAt != nil {
		t := *u.RecoveryTokenExpiresAt
		copied.RecoveryTokenExpiresAt = &t
	}

	return &copied
}

// --- user repository ---

type fakeUserRepo struct{ store *memoryStore }

func (r *fakeUserRepo) Create(_ context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.users {
		if existing.Email == entity.NormalizeEmail(user.Email) {
			return repository.ErrEmailTaken
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = entity.NormalizeEmail(user.Email)
	user.CreatedAt = time.Now()
	r.store.users[user.ID] = cloneUser(user)

	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return cloneUser(user), nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, user := range r.store.users {
		if user.Email == entity.NormalizeEmail(email) {
			return cloneUser(user), nil
		}
	}

	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) FindByEmailForUpdate(ctx context.Context, email string) (*entity.User, error) {
	return r.FindByEmail(ctx, email)
}

func (r *fakeUserRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeUserRepo) FindByResetTokenHashForUpdate(_ context.Context, tokenHash string) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, user := range r.store.users {
		if user.ResetTokenHash != "" && user.ResetTokenHash == tokenHash {
			return cloneUser(user), nil
		}
	}

	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) FindByRecoveryTokenHashForUpdate(_ context.Context, tokenHash string) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, user := range r.store.users {
		if user.RecoveryTokenHash != "" && user.RecoveryTokenHash == tokenHash {
			return cloneUser(user), nil
		}
	}

	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) FindByVerificationToken(_ context.Context, tokenHash string) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, user := range r.store.users {
		if user.VerificationToken != "" && user.VerificationToken == tokenHash {
			return cloneUser(user), nil
		}
	}

	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	r.store.users[user.ID] = cloneUser(user)

	return nil
}

func (r *fakeUserRepo) ClearExpiredChallenges(_ context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var cleared int64
	for _, user := range r.store.users {
		if user.ResetTokenHash != "" && (user.ResetTokenExpiresAt == nil || user.ResetTokenExpiresAt.Before(before)) {
			user.ClearResetToken()
			cleared++
		}
		if user.RecoveryTokenHash != "" && (user.RecoveryTokenExpiresAt == nil || user.RecoveryTokenExpiresAt.Before(before)) {
			user.ClearRecoveryToken()
			cleared++
		}
	}

	return cleared, nil
}

// --- session repository ---

type fakeSessionRepo struct{ store *memoryStore }

func (r *fakeSessionRepo) Create(_ context.Context, session *entity.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	copied := *session
	r.store.sessions[session.ID] = &copied

	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *session

	return &copied, nil
}

func (r *fakeSessionRepo) FindActiveByUserID(_ context.Context, userID uuid.UUID) ([]*entity.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var sessions []*entity.Session
	for _, session := range r.store.sessions {
		if session.UserID == userID && session.IsActive {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}

	return sessions, nil
}

func (r *fakeSessionRepo) Revoke(_ context.Context, sessionID uuid.UUID, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	session.IsActive = false
	session.RevokedReason = reason

	return nil
}

func (r *fakeSessionRepo) RevokeAllByUserID(_ context.Context, userID uuid.UUID, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, session := range r.store.sessions {
		if session.UserID == userID && session.IsActive {
			session.IsActive = false
			session.RevokedReason = reason
		}
	}

	return nil
}

func (r *fakeSessionRepo) UpdateLastActivity(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if session, ok := r.store.sessions[sessionID]; ok {
		session.LastActivityAt = at
	}

	return nil
}

func (r *fakeSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for id, session := range r.store.sessions {
		if session.ExpiresAt.Before(before) {
			delete(r.store.sessions, id)
			deleted++
		}
	}

	return deleted, nil
}

// --- refresh token repository ---

type fakeRefreshTokenRepo struct{ store *memoryStore }

func (r *fakeRefreshTokenRepo) Create(_ context.Context, token *entity.RefreshToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()
	copied := *token
	r.store.tokens[token.ID] = &copied

	return nil
}

func (r *fakeRefreshTokenRepo) FindByHash(_ context.Context, tokenHash string) (*entity.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, token := range r.store.tokens {
		if token.TokenHash == tokenHash {
			copied := *token

			return &copied, nil
		}
	}

	return nil, repository.ErrRefreshTokenNotFound
}

func (r *fakeRefreshTokenRepo) FindByHashForUpdate(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	return r.FindByHash(ctx, tokenHash)
}

func (r *fakeRefreshTokenRepo) Revoke(_ context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	token, ok := r.store.tokens[id]
	if !ok || token.IsRevoked {
		return repository.ErrRefreshTokenNotFound
	}
	revoke(token, revokedBy, reason, at)

	return nil
}

func (r *fakeRefreshTokenRepo) RevokeFamily(_ context.Context, family uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for _, token := range r.store.tokens {
		if token.Family == family && !token.IsRevoked {
			revoke(token, revokedBy, reason, at)
			count++
		}
	}

	return count, nil
}

func (r *fakeRefreshTokenRepo) RevokeBySessionID(_ context.Context, sessionID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for _, token := range r.store.tokens {
		if token.SessionID == sessionID && !token.IsRevoked {
			revoke(token, revokedBy, reason, at)
			count++
		}
	}

	return count, nil
}

func (r *fakeRefreshTokenRepo) RevokeAllByUserID(_ context.Context, userID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for _, token := range r.store.tokens {
		if token.UserID == userID && !token.IsRevoked {
			revoke(token, revokedBy, reason, at)
			count++
		}
	}

	return count, nil
}

func (r *fakeRefreshTokenRepo) FindByFamily(_ context.Context, family uuid.UUID) ([]*entity.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var tokens []*entity.RefreshToken
	for _, token := range r.store.tokens {
		if token.Family == family {
			copied := *token
			tokens = append(tokens, &copied)
		}
	}

	return tokens, nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for id, token := range r.store.tokens {
		expired := token.ExpiresAt.Before(before)
		revokedLongAgo := token.IsRevoked && token.RevokedAt != nil && token.RevokedAt.Before(before)
		if expired || revokedLongAgo {
			delete(r.store.tokens, id)
			deleted++
		}
	}

	return deleted, nil
}

func revoke(token *entity.RefreshToken, revokedBy uuid.UUID, reason string, at time.Time) {
	token.IsRevoked = true
	token.RevokedBy = revokedBy
	token.RevocationReason = reason
	revokedAt := at
	token.RevokedAt = &revokedAt
}

// --- password history repository ---

type fakePasswordHistoryRepo struct{ store *memoryStore }

func (r *fakePasswordHistoryRepo) Append(_ context.Context, entry *entity.PasswordHistory) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	copied := *entry
	r.store.history = append(r.store.history, &copied)

	return nil
}

func (r *fakePasswordHistoryRepo) FindRecent(_ context.Context, userID uuid.UUID, limit int) ([]*entity.PasswordHistory, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var entries []*entity.PasswordHistory
	for i := len(r.store.history) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.store.history[i].UserID == userID {
			copied := *r.store.history[i]
			entries = append(entries, &copied)
		}
	}

	return entries, nil
}

func (r *fakePasswordHistoryRepo) Prune(_ context.Context, userID uuid.UUID, keep int) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var kept int
	var pruned int64
	remaining := make([]*entity.PasswordHistory, 0, len(r.store.history))
	for i := len(r.store.history) - 1; i >= 0; i-- {
		entry := r.store.history[i]
		if entry.UserID == userID {
			if kept >= keep {
				pruned++

				continue
			}
			kept++
		}
		remaining = append([]*entity.PasswordHistory{entry}, remaining...)
	}
	r.store.history = remaining

	return pruned, nil
}

// --- transaction manager ---

type fakeTxManager struct{ store *memoryStore }

type fakeRepoFactory struct{ store *memoryStore }

func (f *fakeRepoFactory) UserRepo() repository.UserRepository {
	return &fakeUserRepo{store: f.store}
}

func (f *fakeRepoFactory) SessionRepo() repository.SessionRepository {
	return &fakeSessionRepo{store: f.store}
}

func (f *fakeRepoFactory) RefreshTokenRepo() repository.RefreshTokenRepository {
	return &fakeRefreshTokenRepo{store: f.store}
}

func (f *fakeRepoFactory) PasswordHistoryRepo() repository.PasswordHistoryRepository {
	return &fakePasswordHistoryRepo{store: f.store}
}

func (m *fakeTxManager) Execute(_ context.Context, fn func(repository.RepositoryFactory) error) error {
	return fn(&fakeRepoFactory{store: m.store})
}

// --- collaborators ---

type fakePublisher struct {
	mu     sync.Mutex
	events []*service.SecurityEvent
}

func (p *fakePublisher) PublishSecurityEvent(_ context.Context, event *service.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := *event
	p.events = append(p.events, &copied)

	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) eventsOfType(eventType string) []*service.SecurityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []*service.SecurityEvent
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})

	return nil
}

func (m *fakeMailer) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return sentMail{}, false
	}

	return m.sent[len(m.sent)-1], true
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sent)
}

type fakeTenantResolver struct {
	tenants map[uuid.UUID][]string
}

func (r *fakeTenantResolver) TenantsFor(_ context.Context, userID uuid.UUID) ([]string, error) {
	return r.tenants[userID], nil
}

// --- fixture ---

type authFixture struct {
	service   *authService
	store     *memoryStore
	publisher *fakePublisher
	mailer    *fakeMailer
	resolver  *fakeTenantResolver
	clock     *fakeClock
	cfg       *config.Config
}

type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
	set bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.set {
		return time.Now()
	}

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.set {
		c.t = time.Now()
		c.set = true
	}
	c.t = c.t.Add(d)
}

func testAuthConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SecretKey.Access = "test-access-secret"
	cfg.SecretKey.Refresh = "test-refresh-secret"
	cfg.Token = &config.TokenConfig{
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          7 * 24 * time.Hour,
		ResetTTL:            time.Hour,
		RecoveryTTL:         time.Hour,
		MfaChallengeTTL:     5 * time.Minute,
		RotationGraceWindow: 10 * time.Second,
		CleanupRetention:    30 * 24 * time.Hour,
		CleanupInterval:     time.Hour,
	}
	cfg.Lockout = &config.LockoutConfig{MaxAttempts: 3, Duration: 15 * time.Minute}
	cfg.Password = &config.PasswordConfig{
		MinLength:    8,
		MaxLength:    128,
		BcryptCost:   bcrypt.MinCost,
		HistoryDepth: 3,
	}
	cfg.MFA = &config.MFAConfig{Issuer: "keygate-test", RecoveryCodeCount: 4}

	return cfg
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := testAuthConfig()
	store := newMemoryStore()

	tokenService, err := auth.NewJWTService(cfg)
	require.NoError(t, err)

	clock := &fakeClock{}
	publisher := &fakePublisher{}
	mailer := &fakeMailer{}
	resolver := &fakeTenantResolver{tenants: make(map[uuid.UUID][]string)}

	svc := &authService{
		txManager:        &fakeTxManager{store: store},
		userRepo:         &fakeUserRepo{store: store},
		sessionRepo:      &fakeSessionRepo{store: store},
		refreshTokenRepo: &fakeRefreshTokenRepo{store: store},
		hasher:           auth.NewBcryptHasher(cfg),
		tokenService:     tokenService,
		mfaService:       auth.NewTOTPService(cfg),
		mailer:           mailer,
		publisher:        publisher,
		tenantResolver:   resolver,
		lockout:          *cfg.Lockout,
		password:         *cfg.Password,
		token:            *cfg.Token,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:              clock.Now,
	}

	return &authFixture{
		service:   svc,
		store:     store,
		publisher: publisher,
		mailer:    mailer,
		resolver:  resolver,
		clock:     clock,
		cfg:       cfg,
	}
}

func (f *authFixture) register(t *testing.T, email, password string) *entity.User {
	t.Helper()

	output, err := f.service.Register(context.Background(), &usecase.RegisterInput{
		Email:    email,
		Name:     "Test User",
		Password: password,
	})
	require.NoError(t, err)

	return output.User
}

func (f *authFixture) login(t *testing.T, email, password string) *usecase.LoginOutput {
	t.Helper()

	output, err := f.service.Login(context.Background(), &usecase.LoginInput{
		Email:      email,
		Password:   password,
		DeviceInfo: "test device",
		IPAddress:  "198.51.100.7",
		UserAgent:  "go-test",
	})
	require.NoError(t, err)

	return output
}

func (f *authFixture) userByID(t *testing.T, id uuid.UUID) *entity.User {
	t.Helper()

	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	user, ok := f.store.users[id]
	require.True(t, ok, "user %s not in store", id)

	return cloneUser(user)
}

// liveTokensInFamily counts unrevoked refresh tokens in a rotation family.
func (f *authFixture) liveTokensInFamily(family uuid.UUID) int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	count := 0
	for _, token := range f.store.tokens {
		if token.Family == family && !token.IsRevoked {
			count++
		}
	}

	return count
}
