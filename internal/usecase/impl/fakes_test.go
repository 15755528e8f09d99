package impl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"

	"github.com/google/uuid"
)

// In-memory fakes standing in for the persistence and infrastructure
// layers. They enforce the same state transitions as the real
// implementations (pending token finalization, conditional revokes,
// code supersession) so the flows under test exercise real sequencing.

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPolicy() *config.AuthPolicyConfig {
	return &config.AuthPolicyConfig{
		LockoutThreshold:  5,
		LockoutDuration:   30 * time.Minute,
		CodeTTL:           10 * time.Minute,
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		SessionInactivity: 30 * time.Minute,
		SweepInterval:     5 * time.Minute,
		SessionRetention:  90 * 24 * time.Hour,
	}
}

func newTestConfig(maxActiveSessions int) *config.Config {
	return &config.Config{
		Auth: &config.AuthConfig{
			BcryptCost:        4,
			MaxActiveSessions: maxActiveSessions,
		},
		AuthPolicy: newTestPolicy(),
	}
}

// --- account repository ---

type fakeAccountRepo struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]*entity.Account
	identities []*entity.ExternalIdentity
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]*entity.Account)}
}

func copyAccount(a *entity.Account) *entity.Account {
	c := *a
	if a.LockUntil != nil {
		t := *a.LockUntil
		c.LockUntil = &t
	}

	return &c
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}

	return copyAccount(a), nil
}

func (r *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the postgres lookup: only the argument is lowercased, so a
	// stored email matches solely when it is already in canonical form.
	for _, a := range r.accounts {
		if a.Email == strings.ToLower(email) {
			return copyAccount(a), nil
		}
	}

	return nil, repository.ErrAccountNotFound
}

func (r *fakeAccountRepo) Create(_ context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := strings.ToLower(account.Email)
	for _, a := range r.accounts {
		if a.Email == stored {
			return repository.ErrDuplicateEmail
		}
	}
	account.ID = uuid.New()
	account.Email = stored
	account.CreatedAt = time.Now()
	r.accounts[account.ID] = copyAccount(account)

	return nil
}

func (r *fakeAccountRepo) Update(_ context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; !ok {
		return repository.ErrAccountNotFound
	}
	r.accounts[account.ID] = copyAccount(account)

	return nil
}

func (r *fakeAccountRepo) RecordLoginFailure(_ context.Context, id uuid.UUID, threshold int, now, lockUntil time.Time) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	if a.LockUntil != nil && !a.LockUntil.After(now) {
		a.FailedLoginCount = 1
		a.LockUntil = nil

		return copyAccount(a), nil
	}
	a.FailedLoginCount++
	if a.FailedLoginCount >= threshold {
		t := lockUntil
		a.LockUntil = &t
	}

	return copyAccount(a), nil
}

func (r *fakeAccountRepo) ResetLoginFailures(_ context.Context, id uuid.UUID, loginAt time.Time, loginIP string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.FailedLoginCount = 0
	a.LockUntil = nil
	t := loginAt
	a.LastLoginAt = &t
	a.LastLoginIP = loginIP

	return nil
}

func (r *fakeAccountRepo) FindIdentity(_ context.Context, provider entity.IdentityProvider, subject string) (*entity.ExternalIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.identities {
		if id.Provider == provider && id.ProviderUserID == subject {
			c := *id

			return &c, nil
		}
	}

	return nil, repository.ErrIdentityNotFound
}

func (r *fakeAccountRepo) CreateIdentity(_ context.Context, identity *entity.ExternalIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity.ID = uuid.New()
	identity.CreatedAt = time.Now()
	c := *identity
	r.identities = append(r.identities, &c)

	return nil
}

func (r *fakeAccountRepo) DeleteIdentity(_ context.Context, accountID uuid.UUID, provider entity.IdentityProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.identities {
		if id.AccountID == accountID && id.Provider == provider {
			r.identities = append(r.identities[:i], r.identities[i+1:]...)

			return nil
		}
	}

	return repository.ErrIdentityNotFound
}

// --- code repository ---

type fakeCodeRepo struct {
	mu    sync.Mutex
	codes []*entity.OneTimeCode
}

func newFakeCodeRepo() *fakeCodeRepo { return &fakeCodeRepo{} }

func (r *fakeCodeRepo) Create(_ context.Context, code *entity.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(code.Email)
	for _, c := range r.codes {
		if c.Email == email && c.Purpose == code.Purpose && !c.Used {
			c.Used = true
		}
	}
	code.ID = uuid.New()
	code.Email = email
	code.CreatedAt = time.Now()
	c := *code
	r.codes = append(r.codes, &c)

	return nil
}

func (r *fakeCodeRepo) FindLatestValid(_ context.Context, email string, purpose entity.CodePurpose, now time.Time) (*entity.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *entity.OneTimeCode
	for _, c := range r.codes {
		if c.Email == strings.ToLower(email) && c.Purpose == purpose && c.Usable(now) {
			if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrCodeNotFound
	}
	c := *latest

	return &c, nil
}

func (r *fakeCodeRepo) MarkUsed(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id && !c.Used {
			c.Used = true

			return nil
		}
	}

	return repository.ErrCodeNotFound
}

func (r *fakeCodeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	var removed int64
	for _, c := range r.codes {
		if c.Expired(now) {
			removed++

			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept

	return removed, nil
}

// --- refresh token repository ---

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*entity.RefreshToken
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{tokens: make(map[uuid.UUID]*entity.RefreshToken)}
}

func (r *fakeRefreshTokenRepo) Create(_ context.Context, token *entity.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.ID = uuid.New()
	token.Status = entity.TokenStatusPending
	token.CreatedAt = time.Now()
	c := *token
	r.tokens[token.ID] = &c

	return nil
}

func (r *fakeRefreshTokenRepo) Finalize(_ context.Context, id uuid.UUID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.Status != entity.TokenStatusPending {
		return repository.ErrRefreshTokenNotFound
	}
	t.TokenHash = tokenHash
	t.Status = entity.TokenStatusActive

	return nil
}

func (r *fakeRefreshTokenRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}
	c := *t

	return &c, nil
}

func (r *fakeRefreshTokenRepo) FindByHash(_ context.Context, tokenHash string) (*entity.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash != "" && t.TokenHash == tokenHash {
			c := *t

			return &c, nil
		}
	}

	return nil, repository.ErrRefreshTokenNotFound
}

func (r *fakeRefreshTokenRepo) FindActiveByAccount(_ context.Context, accountID uuid.UUID) ([]*entity.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.RefreshToken
	for _, t := range r.tokens {
		if t.AccountID == accountID && t.Status == entity.TokenStatusActive {
			c := *t
			out = append(out, &c)
		}
	}

	return out, nil
}

func (r *fakeRefreshTokenRepo) RevokeActive(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return repository.ErrRefreshTokenNotFound
	}
	if t.Status != entity.TokenStatusActive {
		return repository.ErrRefreshTokenNotActive
	}
	t.Status = entity.TokenStatusRevoked

	return nil
}

func (r *fakeRefreshTokenRepo) RevokeAllByAccount(_ context.Context, accountID uuid.UUID, _ time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.AccountID == accountID && t.Status != entity.TokenStatusRevoked {
			t.Status = entity.TokenStatusRevoked
			n++
		}
	}

	return n, nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(r.tokens, id)
			n++
		}
	}

	return n, nil
}

func (r *fakeRefreshTokenRepo) CountActiveByAccount(_ context.Context, accountID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.AccountID == accountID && t.Status == entity.TokenStatusActive {
			n++
		}
	}

	return n, nil
}

// --- session repository ---

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*entity.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	c := *session
	r.sessions[session.ID] = &c

	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	c := *s

	return &c, nil
}

func (r *fakeSessionRepo) FindActiveByAccount(_ context.Context, accountID uuid.UUID) ([]*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Session
	for _, s := range r.sessions {
		if s.AccountID == accountID && s.IsActive {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})

	return out, nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.IsActive {
		return repository.ErrSessionNotFound
	}
	window := s.ExpiresAt.Sub(s.LastActivityAt)
	s.LastActivityAt = at
	s.ExpiresAt = at.Add(window)

	return nil
}

func (r *fakeSessionRepo) Repoint(_ context.Context, id uuid.UUID, refreshTokenID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.IsActive {
		return repository.ErrSessionNotFound
	}
	window := s.ExpiresAt.Sub(s.LastActivityAt)
	s.RefreshTokenID = refreshTokenID
	s.LastActivityAt = at
	s.ExpiresAt = at.Add(window)

	return nil
}

func (r *fakeSessionRepo) End(_ context.Context, id uuid.UUID, reason entity.LogoutReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if s.IsActive {
		s.IsActive = false
		t := at
		s.LogoutAt = &t
		s.LogoutReason = reason
	}

	return nil
}

func (r *fakeSessionRepo) EndAll(_ context.Context, accountID uuid.UUID, reason entity.LogoutReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.AccountID == accountID && s.IsActive {
			s.IsActive = false
			t := at
			s.LogoutAt = &t
			s.LogoutReason = reason
			n++
		}
	}

	return n, nil
}

func (r *fakeSessionRepo) EndOthers(_ context.Context, accountID uuid.UUID, keepID uuid.UUID, reason entity.LogoutReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.AccountID == accountID && s.ID != keepID && s.IsActive {
			s.IsActive = false
			t := at
			s.LogoutAt = &t
			s.LogoutReason = reason
			n++
		}
	}

	return n, nil
}

func (r *fakeSessionRepo) ExpireInactive(_ context.Context, cutoff time.Time, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.IsActive && s.LastActivityAt.Before(cutoff) {
			s.IsActive = false
			t := at
			s.LogoutAt = &t
			s.LogoutReason = entity.LogoutReasonInactivity
			n++
		}
	}

	return n, nil
}

func (r *fakeSessionRepo) PurgeTerminatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !s.IsActive && s.LogoutAt != nil && s.LogoutAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}

	return n, nil
}

// --- transaction manager ---

type fakeTxManager struct {
	factory repository.RepositoryFactory
}

func (m *fakeTxManager) Execute(_ context.Context, fn func(repository.RepositoryFactory) error) error {
	return fn(m.factory)
}

type fakeFactory struct {
	accountRepo      *fakeAccountRepo
	codeRepo         *fakeCodeRepo
	refreshTokenRepo *fakeRefreshTokenRepo
	sessionRepo      *fakeSessionRepo
}

func (f *fakeFactory) NewAccountRepository() repository.AccountRepository { return f.accountRepo }
func (f *fakeFactory) NewCodeRepository() repository.CodeRepository      { return f.codeRepo }
func (f *fakeFactory) NewRefreshTokenRepository() repository.RefreshTokenRepository {
	return f.refreshTokenRepo
}
func (f *fakeFactory) NewSessionRepository() repository.SessionRepository { return f.sessionRepo }

// --- domain services ---

// fakeHasher avoids bcrypt cost in tests while preserving semantics.
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (fakeHasher) Check(password, hash string) bool     { return hash == "hashed:"+password }
func (fakeHasher) ValidateStrength(password string) error {
	if len(password) < 8 {
		return domainerrors.ErrPasswordStrength.WithDetails("password is too short")
	}

	return nil
}

// fakeTokenService issues deterministic tokens and remembers their claims.
type fakeTokenService struct {
	mu     sync.Mutex
	seq    int
	claims map[string]*service.Claims
}

func newFakeTokenService() *fakeTokenService {
	return &fakeTokenService{claims: make(map[string]*service.Claims)}
}

func (s *fakeTokenService) GenerateTokens(accountID, sessionID uuid.UUID, email, role string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	refresh := fmt.Sprintf("refresh-%d", s.seq)
	s.claims[access] = &service.Claims{AccountID: accountID, SessionID: sessionID, Email: email, Role: role, Family: service.TokenFamilyAccess}
	s.claims[refresh] = &service.Claims{AccountID: accountID, SessionID: sessionID, Email: email, Role: role, Family: service.TokenFamilyRefresh}

	return access, refresh, nil
}

func (s *fakeTokenService) ValidateToken(tokenString, family string) (*service.Claims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, ok := s.claims[tokenString]
	if !ok || claims.Family != family {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

func (s *fakeTokenService) HashToken(token string) string          { return "#" + token }
func (s *fakeTokenService) GetAccessTokenDuration() time.Duration  { return 15 * time.Minute }
func (s *fakeTokenService) GetRefreshTokenDuration() time.Duration { return 7 * 24 * time.Hour }

// fakeMailer records outbound messages.
type fakeMailer struct {
	mu   sync.Mutex
	sent []service.CodeMailParams
}

func (m *fakeMailer) SendOneTimeCode(_ context.Context, params service.CodeMailParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, params)

	return nil
}

func (m *fakeMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}

	return m.sent[len(m.sent)-1].Code
}

// fakePublisher records security events.
type fakePublisher struct {
	mu     sync.Mutex
	events []*service.SecurityEvent
}

func (p *fakePublisher) PublishSecurityEvent(_ context.Context, event *service.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)

	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}

	return out
}

// fakeTOTP accepts a single well-known code per secret.
type fakeTOTP struct{}

func (fakeTOTP) GenerateSecret() (string, error) { return "JBSWY3DPEHPK3PXP", nil }
func (fakeTOTP) ProvisioningURI(secret, accountLabel string) string {
	return "otpauth://totp/Test:" + accountLabel + "?secret=" + secret
}
func (fakeTOTP) Verify(secret, code string, _ time.Time) bool {
	return secret != "" && code == "000111"
}

// fakeGoogleAuth returns a canned verification result.
type fakeGoogleAuth struct {
	user *service.OAuthUser
	err  error
}

func (g *fakeGoogleAuth) VerifyIDToken(_ context.Context, _ string) (*service.OAuthUser, error) {
	if g.err != nil {
		return nil, g.err
	}

	return g.user, nil
}

func (g *fakeGoogleAuth) GetProvider() entity.IdentityProvider { return entity.ProviderGoogle }

// fakeQRCode returns a minimal PNG header.
type fakeQRCode struct{}

func (fakeQRCode) GenerateEnrollmentQR(_ string) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

// --- fixtures ---

// authServiceFixtures holds the service under test plus every fake it is
// wired to, so tests can inspect and seed state directly.
type authServiceFixtures struct {
	service          *authService
	accountRepo      *fakeAccountRepo
	codeRepo         *fakeCodeRepo
	refreshTokenRepo *fakeRefreshTokenRepo
	sessionRepo      *fakeSessionRepo
	tokenService     *fakeTokenService
	mailer           *fakeMailer
	publisher        *fakePublisher
	googleAuth       *fakeGoogleAuth
}

func createTestAuthService(maxActiveSessions int) authServiceFixtures {
	accountRepo := newFakeAccountRepo()
	codeRepo := newFakeCodeRepo()
	refreshTokenRepo := newFakeRefreshTokenRepo()
	sessionRepo := newFakeSessionRepo()
	factory := &fakeFactory{
		accountRepo:      accountRepo,
		codeRepo:         codeRepo,
		refreshTokenRepo: refreshTokenRepo,
		sessionRepo:      sessionRepo,
	}
	tokenService := newFakeTokenService()
	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	googleAuth := &fakeGoogleAuth{}

	svc := &authService{
		txManager:         &fakeTxManager{factory: factory},
		accountRepo:       accountRepo,
		codeRepo:          codeRepo,
		refreshTokenRepo:  refreshTokenRepo,
		sessionRepo:       sessionRepo,
		hasher:            fakeHasher{},
		tokenService:      tokenService,
		totpService:       fakeTOTP{},
		mailer:            mailer,
		googleAuthService: googleAuth,
		eventPublisher:    publisher,
		qrcodeService:     fakeQRCode{},
		policy:            newTestPolicy(),
		maxActiveSessions: maxActiveSessions,
		logger:            newDiscardLogger(),
	}

	return authServiceFixtures{
		service:          svc,
		accountRepo:      accountRepo,
		codeRepo:         codeRepo,
		refreshTokenRepo: refreshTokenRepo,
		sessionRepo:      sessionRepo,
		tokenService:     tokenService,
		mailer:           mailer,
		publisher:        publisher,
		googleAuth:       googleAuth,
	}
}
