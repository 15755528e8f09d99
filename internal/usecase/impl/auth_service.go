// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// authService implements the AuthUsecase interface.
type authService struct {
	txManager         repository.TransactionManager
	accountRepo       repository.AccountRepository
	codeRepo          repository.CodeRepository
	refreshTokenRepo  repository.RefreshTokenRepository
	sessionRepo       repository.SessionRepository
	hasher            service.PasswordHasher
	tokenService      service.TokenService
	totpService       service.TOTPService
	mailer            service.Mailer
	googleAuthService service.OAuthAuthService
	eventPublisher    service.EventPublisher
	qrcodeService     service.QRCodeService
	policy            *config.AuthPolicyConfig
	maxActiveSessions int
	logger            *slog.Logger
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager         repository.TransactionManager
	AccountRepo       repository.AccountRepository
	CodeRepo          repository.CodeRepository
	RefreshTokenRepo  repository.RefreshTokenRepository
	SessionRepo       repository.SessionRepository
	Hasher            service.PasswordHasher
	TokenService      service.TokenService
	TOTPService       service.TOTPService
	Mailer            service.Mailer
	GoogleAuthService service.OAuthAuthService
	EventPublisher    service.EventPublisher
	QRCodeService     service.QRCodeService
	Config            *config.Config
	Logger            *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	maxActiveSessions := 0
	if params.Config != nil && params.Config.Auth != nil {
		maxActiveSessions = params.Config.Auth.MaxActiveSessions
	}
	policy := &config.AuthPolicyConfig{}
	if params.Config != nil && params.Config.AuthPolicy != nil {
		policy = params.Config.AuthPolicy
	}

	return &authService{
		txManager:         params.TxManager,
		accountRepo:       params.AccountRepo,
		codeRepo:          params.CodeRepo,
		refreshTokenRepo:  params.RefreshTokenRepo,
		sessionRepo:       params.SessionRepo,
		hasher:            params.Hasher,
		tokenService:      params.TokenService,
		totpService:       params.TOTPService,
		mailer:            params.Mailer,
		googleAuthService: params.GoogleAuthService,
		eventPublisher:    params.EventPublisher,
		qrcodeService:     params.QRCodeService,
		policy:            policy,
		maxActiveSessions: maxActiveSessions,
		logger:            params.Logger,
	}
}

// log returns the request-scoped logger when one is present on the context.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Signup registers a new account and dispatches an email verification code.
func (srv *authService) Signup(ctx context.Context, input usecase.SignupInput) (*usecase.SignupOutput, error) {
	if !input.Role.IsValid() || input.Role == entity.RoleAdmin {
		return nil, domainerrors.ErrValidationFailed.WithDetails("role must be student or teacher")
	}
	if err := srv.hasher.ValidateStrength(input.Password); err != nil {
		return nil, err
	}

	hash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	account := &entity.Account{
		Email:           input.Email,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		PasswordHash:    hash,
		Role:            input.Role,
		Status:          entity.AccountStatusPending,
		TwoFactorMethod: entity.TwoFactorEmail,
		KYCStatus:       entity.KYCStatusNotSubmitted,
	}

	if err := srv.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, domainerrors.ErrEmailTaken
		}

		return nil, errors.Wrap(err, "failed to create account")
	}

	// Code delivery is best effort: the account exists either way and the
	// client can request a resend.
	if err := srv.issueCode(ctx, account, entity.PurposeEmailVerification); err != nil {
		srv.log(ctx).Warn("failed to dispatch verification code",
			slog.String("email", account.Email),
			slog.Any("error", err))
	}

	srv.log(ctx).Info("account registered",
		slog.String("account_id", account.ID.String()),
		slog.String("role", account.Role.String()))

	return &usecase.SignupOutput{Account: account}, nil
}

// VerifyEmail consumes an email verification code and marks the account verified.
func (srv *authService) VerifyEmail(ctx context.Context, input usecase.VerifyEmailInput) error {
	account, err := srv.accountRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return domainerrors.ErrCodeInvalid
		}

		return errors.Wrap(err, "failed to load account")
	}

	if err := srv.consumeCode(ctx, account.Email, entity.PurposeEmailVerification, input.Code); err != nil {
		return err
	}

	if account.IsEmailVerified {
		return nil
	}
	account.IsEmailVerified = true
	if err := srv.accountRepo.Update(ctx, account); err != nil {
		return errors.Wrap(err, "failed to mark email verified")
	}

	srv.log(ctx).Info("email verified", slog.String("account_id", account.ID.String()))

	return nil
}

// PrimaryAuthenticate checks the password credential. When the account has
// two-factor enabled it dispatches the step-up challenge instead of issuing
// tokens.
func (srv *authService) PrimaryAuthenticate(ctx context.Context, input usecase.AuthenticateInput) (*usecase.AuthenticateOutput, error) {
	account, err := srv.accountRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// Same error as a wrong password so responses don't reveal
			// which addresses are registered.
			return nil, domainerrors.ErrInvalidCredentials
		}

		return nil, errors.Wrap(err, "failed to load account")
	}

	now := time.Now()
	if account.Locked(now) {
		return nil, srv.lockedError(account, now)
	}

	if account.PasswordHash == "" || !srv.hasher.Check(input.Password, account.PasswordHash) {
		if err := srv.recordFailure(ctx, account, input.IPAddress); err != nil {
			srv.log(ctx).Error("failed to record login failure", slog.Any("error", err))
		}

		return nil, domainerrors.ErrInvalidCredentials
	}

	if !account.IsEmailVerified {
		return nil, domainerrors.ErrEmailNotVerified
	}
	if account.Status == entity.AccountStatusSuspended || account.Status == entity.AccountStatusInactive {
		return nil, domainerrors.ErrForbidden
	}

	if account.TwoFactorEnabled {
		return srv.beginStepUp(ctx, account)
	}

	login, err := srv.completeLogin(ctx, account, input.DeviceInfo, input.IPAddress)
	if err != nil {
		return nil, err
	}

	return &usecase.AuthenticateOutput{Login: login}, nil
}

// CompleteStepUp verifies the second factor and finishes the login that the
// primary check left pending.
func (srv *authService) CompleteStepUp(ctx context.Context, input usecase.StepUpInput) (*usecase.LoginOutput, error) {
	account, err := srv.accountRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, domainerrors.ErrCodeInvalid
		}

		return nil, errors.Wrap(err, "failed to load account")
	}

	now := time.Now()
	if account.Locked(now) {
		return nil, srv.lockedError(account, now)
	}
	if !account.TwoFactorEnabled {
		return nil, domainerrors.ErrCodeInvalid
	}

	var verifyErr error
	switch account.TwoFactorMethod {
	case entity.TwoFactorTOTP:
		if !srv.totpService.Verify(account.TOTPSecret, input.Code, now) {
			verifyErr = domainerrors.ErrCodeInvalid
		}
	default:
		verifyErr = srv.consumeCode(ctx, account.Email, entity.PurposeTwoFactor, input.Code)
	}
	if verifyErr != nil {
		// A wrong second factor feeds the same lockout ladder as a wrong
		// password.
		if err := srv.recordFailure(ctx, account, input.IPAddress); err != nil {
			srv.log(ctx).Error("failed to record step-up failure", slog.Any("error", err))
		}

		return nil, verifyErr
	}

	return srv.completeLogin(ctx, account, input.DeviceInfo, input.IPAddress)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued against the same session. A token that was already rotated
// is treated as stolen and every session for the account is ended.
func (srv *authService) Refresh(ctx context.Context, input usecase.RefreshInput) (*usecase.RefreshOutput, error) {
	claims, err := srv.tokenService.ValidateToken(input.RefreshToken, service.TokenFamilyRefresh)
	if err != nil {
		return nil, domainerrors.ErrRefreshTokenInvalid
	}

	now := time.Now()
	tokenHash := srv.tokenService.HashToken(input.RefreshToken)

	var (
		output *usecase.RefreshOutput
		breach bool
	)
	txErr := srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		refreshTokenRepo := txRepoFactory.NewRefreshTokenRepository()
		sessionRepo := txRepoFactory.NewSessionRepository()

		stored, err := refreshTokenRepo.FindByHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, repository.ErrRefreshTokenNotFound) {
				return domainerrors.ErrRefreshTokenInvalid
			}

			return errors.Wrap(err, "failed to load refresh token")
		}
		if stored.AccountID != claims.AccountID {
			return domainerrors.ErrRefreshTokenInvalid
		}

		if stored.Status == entity.TokenStatusRevoked {
			breach = true

			return srv.respondToBreach(ctx, refreshTokenRepo, sessionRepo, claims.AccountID, now)
		}
		if !stored.Valid(now) {
			return domainerrors.ErrRefreshTokenInvalid
		}

		// Conditional revoke: losing the race means another request
		// already rotated this token, which is the same replay signal.
		if err := refreshTokenRepo.RevokeActive(ctx, stored.ID, now); err != nil {
			if errors.Is(err, repository.ErrRefreshTokenNotActive) {
				breach = true

				return srv.respondToBreach(ctx, refreshTokenRepo, sessionRepo, claims.AccountID, now)
			}

			return errors.Wrap(err, "failed to revoke refresh token")
		}

		session, err := sessionRepo.FindByID(ctx, claims.SessionID)
		if err != nil {
			return domainerrors.ErrRefreshTokenInvalid
		}
		if !session.IsActive || session.IdleExpired(now) {
			return domainerrors.ErrRefreshTokenInvalid
		}

		tokenRow, err := srv.createPendingToken(ctx, refreshTokenRepo, claims.AccountID, now)
		if err != nil {
			return err
		}
		accessToken, refreshToken, err := srv.finalizeMint(ctx, refreshTokenRepo, tokenRow, claims.AccountID, session.ID, claims.Email, claims.Role)
		if err != nil {
			return err
		}
		if err := sessionRepo.Repoint(ctx, session.ID, tokenRow.ID, now); err != nil {
			return errors.Wrap(err, "failed to repoint session")
		}

		output = &usecase.RefreshOutput{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			SessionID:    session.ID,
		}

		return nil
	})
	if breach {
		srv.publishEvent(ctx, &service.SecurityEvent{
			EventType:  service.EventTokenReuse,
			AccountID:  claims.AccountID.String(),
			SessionID:  claims.SessionID.String(),
			OccurredAt: now,
			Detail:     "revoked refresh token presented again",
		})
		srv.log(ctx).Warn("refresh token reuse detected",
			slog.String("account_id", claims.AccountID.String()),
			slog.String("session_id", claims.SessionID.String()))

		return nil, domainerrors.ErrRefreshTokenInvalid
	}
	if txErr != nil {
		return nil, txErr
	}

	return output, nil
}

// respondToBreach revokes every credential the account holds. Called inside
// the rotation transaction when a revoked token resurfaces.
func (srv *authService) respondToBreach(ctx context.Context, refreshTokenRepo repository.RefreshTokenRepository, sessionRepo repository.SessionRepository, accountID uuid.UUID, now time.Time) error {
	if _, err := refreshTokenRepo.RevokeAllByAccount(ctx, accountID, now); err != nil {
		return errors.Wrap(err, "failed to revoke account tokens")
	}
	if _, err := sessionRepo.EndAll(ctx, accountID, entity.LogoutReasonSecurity, now); err != nil {
		return errors.Wrap(err, "failed to end account sessions")
	}

	return nil
}

// Logout ends one session. The presented refresh token must be the one
// currently backing the session.
func (srv *authService) Logout(ctx context.Context, input usecase.LogoutInput) error {
	tokenHash := srv.tokenService.HashToken(input.RefreshToken)
	now := time.Now()

	return srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		refreshTokenRepo := txRepoFactory.NewRefreshTokenRepository()
		sessionRepo := txRepoFactory.NewSessionRepository()

		session, err := sessionRepo.FindByID(ctx, input.SessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return domainerrors.ErrSessionNotFound
			}

			return errors.Wrap(err, "failed to load session")
		}

		stored, err := refreshTokenRepo.FindByID(ctx, session.RefreshTokenID)
		if err != nil {
			return errors.Wrap(err, "failed to load session token")
		}
		if subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(tokenHash)) != 1 {
			return domainerrors.ErrRefreshTokenInvalid
		}

		if err := refreshTokenRepo.RevokeActive(ctx, stored.ID, now); err != nil &&
			!errors.Is(err, repository.ErrRefreshTokenNotActive) {
			return errors.Wrap(err, "failed to revoke refresh token")
		}
		if err := sessionRepo.End(ctx, session.ID, entity.LogoutReasonUser, now); err != nil {
			return errors.Wrap(err, "failed to end session")
		}

		srv.log(ctx).Info("session logged out",
			slog.String("account_id", session.AccountID.String()),
			slog.String("session_id", session.ID.String()))

		return nil
	})
}

// LogoutAllDevices ends every session and revokes every token the account holds.
func (srv *authService) LogoutAllDevices(ctx context.Context, accountID uuid.UUID) error {
	now := time.Now()

	var ended int64
	err := srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		if _, err := txRepoFactory.NewRefreshTokenRepository().RevokeAllByAccount(ctx, accountID, now); err != nil {
			return errors.Wrap(err, "failed to revoke account tokens")
		}

		n, err := txRepoFactory.NewSessionRepository().EndAll(ctx, accountID, entity.LogoutReasonForced, now)
		if err != nil {
			return errors.Wrap(err, "failed to end account sessions")
		}
		ended = n

		return nil
	})
	if err != nil {
		return err
	}

	srv.publishEvent(ctx, &service.SecurityEvent{
		EventType:  service.EventForcedLogout,
		AccountID:  accountID.String(),
		OccurredAt: now,
		Detail:     fmt.Sprintf("%d sessions ended", ended),
	})
	srv.log(ctx).Info("all devices logged out",
		slog.String("account_id", accountID.String()),
		slog.Int64("sessions_ended", ended))

	return nil
}

// ChangePassword replaces the password credential and invalidates every
// existing session so stolen tokens die with the old password.
func (srv *authService) ChangePassword(ctx context.Context, input usecase.ChangePasswordInput) error {
	account, err := srv.accountRepo.FindByID(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return domainerrors.ErrAccountNotFound
		}

		return errors.Wrap(err, "failed to load account")
	}

	if account.PasswordHash == "" || !srv.hasher.Check(input.OldPassword, account.PasswordHash) {
		return domainerrors.ErrInvalidCredentials
	}
	if err := srv.hasher.ValidateStrength(input.NewPassword); err != nil {
		return err
	}

	hash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	now := time.Now()
	err = srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		account.PasswordHash = hash
		if err := txRepoFactory.NewAccountRepository().Update(ctx, account); err != nil {
			return errors.Wrap(err, "failed to update password")
		}
		if _, err := txRepoFactory.NewRefreshTokenRepository().RevokeAllByAccount(ctx, account.ID, now); err != nil {
			return errors.Wrap(err, "failed to revoke account tokens")
		}
		if _, err := txRepoFactory.NewSessionRepository().EndAll(ctx, account.ID, entity.LogoutReasonPasswordChanged, now); err != nil {
			return errors.Wrap(err, "failed to end account sessions")
		}

		return nil
	})
	if err != nil {
		return err
	}

	srv.publishEvent(ctx, &service.SecurityEvent{
		EventType:  service.EventPasswordChanged,
		AccountID:  account.ID.String(),
		Email:      account.Email,
		OccurredAt: now,
	})
	srv.log(ctx).Info("password changed", slog.String("account_id", account.ID.String()))

	return nil
}

// RequestPasswordReset issues a reset code for a known email. The call
// reports success either way so it carries no account enumeration signal.
func (srv *authService) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := srv.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			srv.log(ctx).Info("password reset requested for unknown email")

			return nil
		}

		return errors.Wrap(err, "failed to load account")
	}

	if err := srv.issueCode(ctx, account, entity.PurposePasswordReset); err != nil {
		// Same availability choice as signup: the request is accepted even
		// when delivery fails.
		srv.log(ctx).Warn("failed to send password reset code",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err))
	}

	return nil
}

// ResetPassword consumes a reset code and installs the new password. Every
// session and refresh token dies with the old credential.
func (srv *authService) ResetPassword(ctx context.Context, input usecase.ResetPasswordInput) error {
	account, err := srv.accountRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return domainerrors.ErrCodeInvalid
		}

		return errors.Wrap(err, "failed to load account")
	}

	if err := srv.consumeCode(ctx, account.Email, entity.PurposePasswordReset, input.Code); err != nil {
		return err
	}
	if err := srv.hasher.ValidateStrength(input.NewPassword); err != nil {
		return err
	}

	hash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	now := time.Now()
	err = srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		account.PasswordHash = hash
		if err := txRepoFactory.NewAccountRepository().Update(ctx, account); err != nil {
			return errors.Wrap(err, "failed to update password")
		}
		if _, err := txRepoFactory.NewRefreshTokenRepository().RevokeAllByAccount(ctx, account.ID, now); err != nil {
			return errors.Wrap(err, "failed to revoke account tokens")
		}
		if _, err := txRepoFactory.NewSessionRepository().EndAll(ctx, account.ID, entity.LogoutReasonPasswordChanged, now); err != nil {
			return errors.Wrap(err, "failed to end account sessions")
		}

		return nil
	})
	if err != nil {
		return err
	}

	srv.publishEvent(ctx, &service.SecurityEvent{
		EventType:  service.EventPasswordChanged,
		AccountID:  account.ID.String(),
		Email:      account.Email,
		OccurredAt: now,
		Detail:     "password reset with emailed code",
	})
	srv.log(ctx).Info("password reset", slog.String("account_id", account.ID.String()))

	return nil
}

// GoogleSignIn verifies a Google ID token and signs the holder in, creating
// the account on first contact. Two-factor settings apply the same as for
// password logins.
func (srv *authService) GoogleSignIn(ctx context.Context, input usecase.GoogleSignInInput) (*usecase.AuthenticateOutput, error) {
	oauthUser, err := srv.googleAuthService.VerifyIDToken(ctx, input.IDToken)
	if err != nil {
		srv.log(ctx).Warn("google id token rejected", slog.Any("error", err))

		return nil, domainerrors.ErrInvalidCredentials
	}

	account, err := srv.findOrCreateGoogleAccount(ctx, oauthUser)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if account.Locked(now) {
		return nil, srv.lockedError(account, now)
	}
	if account.Status == entity.AccountStatusSuspended || account.Status == entity.AccountStatusInactive {
		return nil, domainerrors.ErrForbidden
	}

	if account.TwoFactorEnabled {
		return srv.beginStepUp(ctx, account)
	}

	login, err := srv.completeLogin(ctx, account, input.DeviceInfo, input.IPAddress)
	if err != nil {
		return nil, err
	}

	return &usecase.AuthenticateOutput{Login: login}, nil
}

// findOrCreateGoogleAccount resolves a verified Google identity to a local
// account, linking or creating as needed.
func (srv *authService) findOrCreateGoogleAccount(ctx context.Context, oauthUser *service.OAuthUser) (*entity.Account, error) {
	identity, err := srv.accountRepo.FindIdentity(ctx, oauthUser.Provider, oauthUser.ID)
	if err == nil {
		account, err := srv.accountRepo.FindByID(ctx, identity.AccountID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load linked account")
		}

		return account, nil
	}
	if !errors.Is(err, repository.ErrIdentityNotFound) {
		return nil, errors.Wrap(err, "failed to look up identity")
	}

	var account *entity.Account
	txErr := srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		accountRepo := txRepoFactory.NewAccountRepository()

		existing, err := accountRepo.FindByEmail(ctx, oauthUser.Email)
		switch {
		case err == nil:
			// Same address, new provider link.
			account = existing
		case errors.Is(err, repository.ErrAccountNotFound):
			firstName, lastName := splitDisplayName(oauthUser.Name)
			account = &entity.Account{
				Email:           oauthUser.Email,
				FirstName:       firstName,
				LastName:        lastName,
				Role:            entity.RoleStudent,
				Status:          entity.AccountStatusPending,
				IsEmailVerified: oauthUser.EmailVerified,
				TwoFactorMethod: entity.TwoFactorEmail,
				KYCStatus:       entity.KYCStatusNotSubmitted,
			}
			if err := accountRepo.Create(ctx, account); err != nil {
				return errors.Wrap(err, "failed to create account")
			}
		default:
			return errors.Wrap(err, "failed to look up account by email")
		}

		return accountRepo.CreateIdentity(ctx, &entity.ExternalIdentity{
			AccountID:      account.ID,
			Provider:       oauthUser.Provider,
			ProviderUserID: oauthUser.ID,
		})
	})
	if txErr != nil {
		return nil, txErr
	}

	srv.log(ctx).Info("google identity linked",
		slog.String("account_id", account.ID.String()))

	return account, nil
}

// EnrollTOTP generates a fresh authenticator secret and the QR code that
// provisions it. The secret only takes effect once ConfirmTOTP succeeds.
func (srv *authService) EnrollTOTP(ctx context.Context, accountID uuid.UUID) (*usecase.EnrollTOTPOutput, error) {
	account, err := srv.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, domainerrors.ErrAccountNotFound
		}

		return nil, errors.Wrap(err, "failed to load account")
	}

	secret, err := srv.totpService.GenerateSecret()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate totp secret")
	}

	account.TOTPSecret = secret
	if err := srv.accountRepo.Update(ctx, account); err != nil {
		return nil, errors.Wrap(err, "failed to store totp secret")
	}

	uri := srv.totpService.ProvisioningURI(secret, account.Email)
	png, err := srv.qrcodeService.GenerateEnrollmentQR(uri)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render enrollment qr")
	}

	return &usecase.EnrollTOTPOutput{
		Secret:     secret,
		OtpauthURI: uri,
		QRCodePNG:  png,
	}, nil
}

// ConfirmTOTP proves the authenticator was enrolled correctly and switches
// the account's second factor to it.
func (srv *authService) ConfirmTOTP(ctx context.Context, accountID uuid.UUID, code string) error {
	account, err := srv.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return domainerrors.ErrAccountNotFound
		}

		return errors.Wrap(err, "failed to load account")
	}
	if account.TOTPSecret == "" {
		return domainerrors.ErrCodeInvalid.WithDetails("no pending authenticator enrollment")
	}

	if !srv.totpService.Verify(account.TOTPSecret, code, time.Now()) {
		return domainerrors.ErrCodeInvalid
	}

	account.TwoFactorEnabled = true
	account.TwoFactorMethod = entity.TwoFactorTOTP
	if err := srv.accountRepo.Update(ctx, account); err != nil {
		return errors.Wrap(err, "failed to enable totp")
	}

	srv.log(ctx).Info("totp enabled", slog.String("account_id", account.ID.String()))

	return nil
}

// CheckStatus returns the client destination for the account's current state.
func (srv *authService) CheckStatus(ctx context.Context, accountID uuid.UUID) (*usecase.StatusOutput, error) {
	account, err := srv.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, domainerrors.ErrAccountNotFound
		}

		return nil, errors.Wrap(err, "failed to load account")
	}

	return routeFor(account), nil
}

// --- internal helpers ---

// beginStepUp dispatches the second-factor challenge. Email codes are sent
// out of band; TOTP holders already have their generator.
func (srv *authService) beginStepUp(ctx context.Context, account *entity.Account) (*usecase.AuthenticateOutput, error) {
	if account.TwoFactorMethod == entity.TwoFactorEmail {
		if err := srv.issueCode(ctx, account, entity.PurposeTwoFactor); err != nil {
			return nil, errors.Wrap(err, "failed to dispatch step-up code")
		}
	}

	return &usecase.AuthenticateOutput{
		Requires2FA:     true,
		TwoFactorMethod: account.TwoFactorMethod,
	}, nil
}

// completeLogin resets the lockout ladder and issues the session plus token
// pair. The refresh token row is created pending first because its id and
// the session id reference each other across the mint.
func (srv *authService) completeLogin(ctx context.Context, account *entity.Account, deviceInfo, ipAddress string) (*usecase.LoginOutput, error) {
	now := time.Now()
	if err := srv.accountRepo.ResetLoginFailures(ctx, account.ID, now, ipAddress); err != nil {
		return nil, errors.Wrap(err, "failed to reset login failures")
	}

	var login *usecase.LoginOutput
	txErr := srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		refreshTokenRepo := txRepoFactory.NewRefreshTokenRepository()
		sessionRepo := txRepoFactory.NewSessionRepository()

		if err := srv.enforceSessionLimit(ctx, refreshTokenRepo, sessionRepo, account.ID, now); err != nil {
			return err
		}

		session := &entity.Session{
			AccountID:      account.ID,
			DeviceInfo:     deviceInfo,
			IPAddress:      ipAddress,
			IsActive:       true,
			LastActivityAt: now,
			ExpiresAt:      now.Add(srv.policy.SessionInactivity),
			LoginAt:        now,
		}

		tokenRow, err := srv.createPendingToken(ctx, refreshTokenRepo, account.ID, now)
		if err != nil {
			return err
		}

		// The session id must be inside the tokens, so the session is
		// created before the pair is minted against it.
		session.RefreshTokenID = tokenRow.ID
		if err := sessionRepo.Create(ctx, session); err != nil {
			return errors.Wrap(err, "failed to create session")
		}

		accessToken, refreshToken, err := srv.finalizeMint(ctx, refreshTokenRepo, tokenRow, account.ID, session.ID, account.Email, account.Role.String())
		if err != nil {
			return err
		}

		login = &usecase.LoginOutput{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			SessionID:    session.ID,
			Account:      account,
			Redirect:     redirectFor(account),
		}

		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	srv.log(ctx).Info("login completed",
		slog.String("account_id", account.ID.String()),
		slog.String("session_id", login.SessionID.String()))

	return login, nil
}

// enforceSessionLimit ends the oldest session when the account is at its
// device cap, so the new login always succeeds.
func (srv *authService) enforceSessionLimit(ctx context.Context, refreshTokenRepo repository.RefreshTokenRepository, sessionRepo repository.SessionRepository, accountID uuid.UUID, now time.Time) error {
	if srv.maxActiveSessions <= 0 {
		return nil
	}

	sessions, err := sessionRepo.FindActiveByAccount(ctx, accountID)
	if err != nil {
		return errors.Wrap(err, "failed to list active sessions")
	}
	if len(sessions) < srv.maxActiveSessions {
		return nil
	}

	// FindActiveByAccount orders newest activity first.
	for _, stale := range sessions[srv.maxActiveSessions-1:] {
		if err := refreshTokenRepo.RevokeActive(ctx, stale.RefreshTokenID, now); err != nil &&
			!errors.Is(err, repository.ErrRefreshTokenNotActive) {
			return errors.Wrap(err, "failed to revoke displaced token")
		}
		if err := sessionRepo.End(ctx, stale.ID, entity.LogoutReasonForced, now); err != nil {
			return errors.Wrap(err, "failed to end displaced session")
		}
	}

	return nil
}

// createPendingToken inserts the refresh token row in the pending state.
// The row holds no hash yet; a crash before finalize leaves nothing usable.
func (srv *authService) createPendingToken(ctx context.Context, refreshTokenRepo repository.RefreshTokenRepository, accountID uuid.UUID, now time.Time) (*entity.RefreshToken, error) {
	tokenRow := &entity.RefreshToken{
		AccountID: accountID,
		Status:    entity.TokenStatusPending,
		ExpiresAt: now.Add(srv.tokenService.GetRefreshTokenDuration()),
	}
	if err := refreshTokenRepo.Create(ctx, tokenRow); err != nil {
		return nil, errors.Wrap(err, "failed to create refresh token record")
	}

	return tokenRow, nil
}

// finalizeMint mints the pair against an existing session and activates the
// pending token row with the minted hash.
func (srv *authService) finalizeMint(ctx context.Context, refreshTokenRepo repository.RefreshTokenRepository, tokenRow *entity.RefreshToken, accountID, sessionID uuid.UUID, email, role string) (string, string, error) {
	accessToken, refreshToken, err := srv.tokenService.GenerateTokens(accountID, sessionID, email, role)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to generate tokens")
	}
	if err := refreshTokenRepo.Finalize(ctx, tokenRow.ID, srv.tokenService.HashToken(refreshToken)); err != nil {
		return "", "", errors.Wrap(err, "failed to finalize refresh token")
	}

	return accessToken, refreshToken, nil
}

// recordFailure advances the lockout ladder and publishes the lock event
// when this failure is the one that tripped it.
func (srv *authService) recordFailure(ctx context.Context, account *entity.Account, ipAddress string) error {
	threshold := srv.policy.LockoutThreshold
	now := time.Now()
	lockUntil := now.Add(srv.policy.LockoutDuration)

	updated, err := srv.accountRepo.RecordLoginFailure(ctx, account.ID, threshold, now, lockUntil)
	if err != nil {
		return errors.Wrap(err, "failed to record login failure")
	}

	if updated.Locked(time.Now()) && updated.FailedLoginCount == threshold {
		srv.publishEvent(ctx, &service.SecurityEvent{
			EventType:  service.EventAccountLocked,
			AccountID:  account.ID.String(),
			Email:      account.Email,
			IPAddress:  ipAddress,
			OccurredAt: time.Now(),
			Detail:     fmt.Sprintf("locked after %d consecutive failures", updated.FailedLoginCount),
		})
		srv.log(ctx).Warn("account locked",
			slog.String("account_id", account.ID.String()),
			slog.Int("failed_count", updated.FailedLoginCount))
	}

	return nil
}

// lockedError returns the lockout rejection with the remaining time.
func (srv *authService) lockedError(account *entity.Account, now time.Time) error {
	minutes := int(account.LockRemaining(now).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	return domainerrors.ErrAccountLocked.WithDetails(
		fmt.Sprintf("try again in %d minutes", minutes))
}

// issueCode generates, stores and mails a one-time code. Storing the code
// invalidates any earlier unused code for the same purpose.
func (srv *authService) issueCode(ctx context.Context, account *entity.Account, purpose entity.CodePurpose) error {
	code, err := generateNumericCode()
	if err != nil {
		return errors.Wrap(err, "failed to generate code")
	}

	record := &entity.OneTimeCode{
		Email:     account.Email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(srv.policy.CodeTTL),
	}
	if err := srv.codeRepo.Create(ctx, record); err != nil {
		return errors.Wrap(err, "failed to store code")
	}

	subject := "Your verification code"
	switch purpose {
	case entity.PurposeTwoFactor:
		subject = "Your sign-in code"
	case entity.PurposePasswordReset:
		subject = "Your password reset code"
	}

	return srv.mailer.SendOneTimeCode(ctx, service.CodeMailParams{
		SendTo:    account.Email,
		Subject:   subject,
		Code:      code,
		FirstName: account.FirstName,
		ExpiresIn: srv.policy.CodeTTL.String(),
	})
}

// consumeCode validates a presented code against the newest usable one and
// burns it. A used or superseded code never validates.
func (srv *authService) consumeCode(ctx context.Context, email string, purpose entity.CodePurpose, presented string) error {
	now := time.Now()

	stored, err := srv.codeRepo.FindLatestValid(ctx, email, purpose, now)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return domainerrors.ErrCodeInvalid
		}

		return errors.Wrap(err, "failed to load code")
	}

	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(presented)) != 1 {
		return domainerrors.ErrCodeInvalid
	}
	if err := srv.codeRepo.MarkUsed(ctx, stored.ID, now); err != nil {
		return errors.Wrap(err, "failed to consume code")
	}

	return nil
}

// publishEvent hands a security event to the publisher. Delivery is best
// effort; the triggering operation does not depend on it.
func (srv *authService) publishEvent(ctx context.Context, event *service.SecurityEvent) {
	event.RequestID = deliverycontext.GetRequestIDFromContext(ctx)
	if err := srv.eventPublisher.PublishSecurityEvent(ctx, event); err != nil {
		srv.log(ctx).Error("failed to publish security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}
}

// generateNumericCode returns a 6-digit code from a CSPRNG.
func generateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}

// splitDisplayName splits a provider display name into first and last parts.
func splitDisplayName(name string) (string, string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == ' ' {
			return name[:i], name[i+1:]
		}
	}

	return name, ""
}
