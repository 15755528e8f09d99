package impl

import (
	"context"
	"testing"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Password123!"

// seedAccount inserts a fully onboarded account ready to log in.
func seedAccount(t *testing.T, fx authServiceFixtures, mutate func(*entity.Account)) *entity.Account {
	t.Helper()

	account := &entity.Account{
		Email:             "user@example.com",
		FirstName:         "Alex",
		LastName:          "Chen",
		PasswordHash:      "hashed:" + testPassword,
		Role:              entity.RoleStudent,
		Status:            entity.AccountStatusActive,
		IsEmailVerified:   true,
		IsProfileComplete: true,
		TwoFactorMethod:   entity.TwoFactorEmail,
		KYCStatus:         entity.KYCStatusNotSubmitted,
	}
	if mutate != nil {
		mutate(account)
	}
	require.NoError(t, fx.accountRepo.Create(context.Background(), account))

	return account
}

func login(t *testing.T, fx authServiceFixtures, email string) *usecase.LoginOutput {
	t.Helper()

	out, err := fx.service.PrimaryAuthenticate(context.Background(), usecase.AuthenticateInput{
		Email:      email,
		Password:   testPassword,
		DeviceInfo: "test-device",
		IPAddress:  "198.51.100.7",
	})
	require.NoError(t, err)
	require.False(t, out.Requires2FA)
	require.NotNil(t, out.Login)

	return out.Login
}

func TestAuthService_Signup_Success(t *testing.T) {
	fx := createTestAuthService(0)
	ctx := context.Background()

	out, err := fx.service.Signup(ctx, usecase.SignupInput{
		Email:     "New.Student@Example.com",
		Password:  testPassword,
		FirstName: "New",
		LastName:  "Student",
		Role:      entity.RoleStudent,
	})

	require.NoError(t, err)
	assert.Equal(t, "new.student@example.com", out.Account.Email)
	assert.Equal(t, entity.AccountStatusPending, out.Account.Status)
	assert.False(t, out.Account.IsEmailVerified)

	// A verification code went out to the new address.
	require.Len(t, fx.mailer.sent, 1)
	assert.Equal(t, "new.student@example.com", fx.mailer.sent[0].SendTo)
	assert.Len(t, fx.mailer.sent[0].Code, 6)
}

func TestAuthService_Signup_DuplicateEmail(t *testing.T) {
	fx := createTestAuthService(0)
	seedAccount(t, fx, nil)

	out, err := fx.service.Signup(context.Background(), usecase.SignupInput{
		Email:    "USER@example.com",
		Password: testPassword,
		Role:     entity.RoleStudent,
	})

	assert.Nil(t, out)
	assert.ErrorIs(t, err, domainerrors.ErrEmailTaken)
}

func TestAuthService_Signup_MixedCaseEmailRoundTrip(t *testing.T) {
	fx := createTestAuthService(0)
	ctx := context.Background()

	out, err := fx.service.Signup(ctx, usecase.SignupInput{
		Email:     "Admin@School.EDU",
		Password:  testPassword,
		FirstName: "Sam",
		Role:      entity.RoleStudent,
	})
	require.NoError(t, err)
	// The stored form is canonical; the lower() lookups depend on it.
	assert.Equal(t, "admin@school.edu", out.Account.Email)

	require.NoError(t, fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{
		Email: "Admin@School.EDU",
		Code:  fx.mailer.lastCode(),
	}))

	// Logging in with the casing used at signup must find the account.
	login, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    "Admin@School.EDU",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, login.Login)

	// A lowercase variant of the same address is still a duplicate.
	_, err = fx.service.Signup(ctx, usecase.SignupInput{
		Email:    "admin@school.edu",
		Password: testPassword,
		Role:     entity.RoleStudent,
	})
	assert.ErrorIs(t, err, domainerrors.ErrEmailTaken)
}

func TestAuthService_Signup_RejectsAdminRole(t *testing.T) {
	fx := createTestAuthService(0)

	_, err := fx.service.Signup(context.Background(), usecase.SignupInput{
		Email:    "root@example.com",
		Password: testPassword,
		Role:     entity.RoleAdmin,
	})

	require.Error(t, err)
	var appErr domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.ErrValidationFailed.ErrorCode(), appErr.ErrorCode())
}

func TestAuthService_VerifyEmail(t *testing.T) {
	fx := createTestAuthService(0)
	ctx := context.Background()

	_, err := fx.service.Signup(ctx, usecase.SignupInput{
		Email:    "pending@example.com",
		Password: testPassword,
		Role:     entity.RoleStudent,
	})
	require.NoError(t, err)
	code := fx.mailer.lastCode()

	// Wrong code first.
	err = fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{Email: "pending@example.com", Code: "999999"})
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)

	require.NoError(t, fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{
		Email: "pending@example.com",
		Code:  code,
	}))

	account, err := fx.accountRepo.FindByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	assert.True(t, account.IsEmailVerified)

	// A consumed code never validates again.
	err = fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{Email: "pending@example.com", Code: code})
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)
}

func TestAuthService_VerifyEmail_NewerCodeSupersedes(t *testing.T) {
	fx := createTestAuthService(0)
	ctx := context.Background()

	account := seedAccount(t, fx, func(a *entity.Account) { a.IsEmailVerified = false })

	require.NoError(t, fx.service.issueCode(ctx, account, entity.PurposeEmailVerification))
	first := fx.mailer.lastCode()
	require.NoError(t, fx.service.issueCode(ctx, account, entity.PurposeEmailVerification))
	second := fx.mailer.lastCode()

	err := fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{Email: account.Email, Code: first})
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)

	require.NoError(t, fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{Email: account.Email, Code: second}))
}

func TestAuthService_PrimaryAuthenticate_UniformCredentialError(t *testing.T) {
	fx := createTestAuthService(0)
	seedAccount(t, fx, nil)
	ctx := context.Background()

	_, unknownErr := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    "nobody@example.com",
		Password: testPassword,
	})
	_, wrongErr := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    "user@example.com",
		Password: "not-the-password",
	})

	// Unknown address and wrong password are indistinguishable.
	assert.ErrorIs(t, unknownErr, domainerrors.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, domainerrors.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestAuthService_PrimaryAuthenticate_UnverifiedEmail(t *testing.T) {
	fx := createTestAuthService(0)
	seedAccount(t, fx, func(a *entity.Account) { a.IsEmailVerified = false })

	_, err := fx.service.PrimaryAuthenticate(context.Background(), usecase.AuthenticateInput{
		Email:    "user@example.com",
		Password: testPassword,
	})

	assert.ErrorIs(t, err, domainerrors.ErrEmailNotVerified)
}

func TestAuthService_PrimaryAuthenticate_SuspendedAccount(t *testing.T) {
	fx := createTestAuthService(0)
	seedAccount(t, fx, func(a *entity.Account) { a.Status = entity.AccountStatusSuspended })

	_, err := fx.service.PrimaryAuthenticate(context.Background(), usecase.AuthenticateInput{
		Email:    "user@example.com",
		Password: testPassword,
	})

	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestAuthService_Lockout_AfterThresholdFailures(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
			Email:    account.Email,
			Password: "wrong-password",
		})
		assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
	}

	// The correct password no longer helps while the lock holds.
	_, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: testPassword,
	})
	assert.ErrorIs(t, err, domainerrors.ErrAccountLocked)

	assert.Equal(t, []string{service.EventAccountLocked}, fx.publisher.eventTypes())
}

func TestAuthService_Lockout_CounterResetsOnSuccess(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
			Email:    account.Email,
			Password: "wrong-password",
		})
		assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
	}

	login(t, fx, account.Email)

	stored, err := fx.accountRepo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginCount)

	// One more failure starts a fresh ladder, no lock.
	_, err = fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	stored, err = fx.accountRepo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginCount)
	assert.Nil(t, stored.LockUntil)
}

func TestAuthService_Lockout_ExpiredLockStartsFreshLadder(t *testing.T) {
	fx := createTestAuthService(0)
	expired := time.Now().Add(-time.Minute)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.FailedLoginCount = 5
		a.LockUntil = &expired
	})
	ctx := context.Background()

	// The first miss after the window lapses must not re-lock; the stale
	// counter is discarded along with the expired deadline.
	_, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	stored, err := fx.accountRepo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginCount)
	assert.Nil(t, stored.LockUntil)
	assert.Empty(t, fx.publisher.eventTypes())
}

func TestAuthService_Login_IssuesSessionAndTokens(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	out := login(t, fx, account.Email)

	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.Equal(t, RedirectDashboard, out.Redirect)

	session, err := fx.sessionRepo.FindByID(ctx, out.SessionID)
	require.NoError(t, err)
	assert.True(t, session.IsActive)
	assert.Equal(t, "test-device", session.DeviceInfo)

	// The session points at the finalized token backing this login.
	token, err := fx.refreshTokenRepo.FindByID(ctx, session.RefreshTokenID)
	require.NoError(t, err)
	assert.Equal(t, entity.TokenStatusActive, token.Status)
	assert.Equal(t, fx.tokenService.HashToken(out.RefreshToken), token.TokenHash)
}

func TestAuthService_Login_EmailStepUp(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.TwoFactorEnabled = true
		a.TwoFactorMethod = entity.TwoFactorEmail
	})
	ctx := context.Background()

	out, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.True(t, out.Requires2FA)
	assert.Equal(t, entity.TwoFactorEmail, out.TwoFactorMethod)
	assert.Nil(t, out.Login)
	require.Len(t, fx.mailer.sent, 1)

	loginOut, err := fx.service.CompleteStepUp(ctx, usecase.StepUpInput{
		Email:      account.Email,
		Code:       fx.mailer.lastCode(),
		DeviceInfo: "phone",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, loginOut.AccessToken)
}

func TestAuthService_StepUp_WrongCodeFeedsLockout(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.TwoFactorEnabled = true
	})
	ctx := context.Background()

	_, err := fx.service.CompleteStepUp(ctx, usecase.StepUpInput{
		Email: account.Email,
		Code:  "999999",
	})
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)

	stored, err := fx.accountRepo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginCount)
}

func TestAuthService_Login_TOTPStepUp(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.TwoFactorEnabled = true
		a.TwoFactorMethod = entity.TwoFactorTOTP
		a.TOTPSecret = "JBSWY3DPEHPK3PXP"
	})
	ctx := context.Background()

	out, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.True(t, out.Requires2FA)
	assert.Equal(t, entity.TwoFactorTOTP, out.TwoFactorMethod)
	// No code goes out for authenticator holders.
	assert.Empty(t, fx.mailer.sent)

	loginOut, err := fx.service.CompleteStepUp(ctx, usecase.StepUpInput{
		Email: account.Email,
		Code:  "000111",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, loginOut.RefreshToken)
}

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	first := login(t, fx, account.Email)

	out, err := fx.service.Refresh(ctx, usecase.RefreshInput{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, out.SessionID)
	assert.NotEqual(t, first.RefreshToken, out.RefreshToken)

	// The session now points at the replacement token.
	session, err := fx.sessionRepo.FindByID(ctx, first.SessionID)
	require.NoError(t, err)
	token, err := fx.refreshTokenRepo.FindByID(ctx, session.RefreshTokenID)
	require.NoError(t, err)
	assert.Equal(t, fx.tokenService.HashToken(out.RefreshToken), token.TokenHash)
}

func TestAuthService_Refresh_ReuseTriggersBreachResponse(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	first := login(t, fx, account.Email)
	second := login(t, fx, account.Email)

	rotated, err := fx.service.Refresh(ctx, usecase.RefreshInput{RefreshToken: first.RefreshToken})
	require.NoError(t, err)

	// Presenting the pre-rotation token again is treated as theft.
	_, err = fx.service.Refresh(ctx, usecase.RefreshInput{RefreshToken: first.RefreshToken})
	assert.ErrorIs(t, err, domainerrors.ErrRefreshTokenInvalid)
	assert.Contains(t, fx.publisher.eventTypes(), service.EventTokenReuse)

	// Every session on the account is dead, not just the replayed one.
	for _, id := range []uuid.UUID{first.SessionID, second.SessionID} {
		session, err := fx.sessionRepo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, session.IsActive)
		assert.Equal(t, entity.LogoutReasonSecurity, session.LogoutReason)
	}

	// The freshly rotated token died with them.
	_, err = fx.service.Refresh(ctx, usecase.RefreshInput{RefreshToken: rotated.RefreshToken})
	assert.ErrorIs(t, err, domainerrors.ErrRefreshTokenInvalid)
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	fx := createTestAuthService(0)

	_, err := fx.service.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: "not-a-token"})

	assert.ErrorIs(t, err, domainerrors.ErrRefreshTokenInvalid)
}

func TestAuthService_Logout_EndsSession(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	out := login(t, fx, account.Email)

	require.NoError(t, fx.service.Logout(ctx, usecase.LogoutInput{
		RefreshToken: out.RefreshToken,
		SessionID:    out.SessionID,
	}))

	session, err := fx.sessionRepo.FindByID(ctx, out.SessionID)
	require.NoError(t, err)
	assert.False(t, session.IsActive)
	assert.Equal(t, entity.LogoutReasonUser, session.LogoutReason)

	_, err = fx.service.Refresh(ctx, usecase.RefreshInput{RefreshToken: out.RefreshToken})
	assert.Error(t, err)
}

func TestAuthService_Logout_WrongTokenForSession(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	first := login(t, fx, account.Email)
	second := login(t, fx, account.Email)

	// Presenting one device's token for another device's session fails.
	err := fx.service.Logout(ctx, usecase.LogoutInput{
		RefreshToken: second.RefreshToken,
		SessionID:    first.SessionID,
	})
	assert.ErrorIs(t, err, domainerrors.ErrRefreshTokenInvalid)

	session, findErr := fx.sessionRepo.FindByID(ctx, first.SessionID)
	require.NoError(t, findErr)
	assert.True(t, session.IsActive)
}

func TestAuthService_LogoutAllDevices(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	first := login(t, fx, account.Email)
	second := login(t, fx, account.Email)

	require.NoError(t, fx.service.LogoutAllDevices(ctx, account.ID))

	for _, id := range []uuid.UUID{first.SessionID, second.SessionID} {
		session, err := fx.sessionRepo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, session.IsActive)
		assert.Equal(t, entity.LogoutReasonForced, session.LogoutReason)
	}
	assert.Contains(t, fx.publisher.eventTypes(), service.EventForcedLogout)
}

func TestAuthService_ChangePassword(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	out := login(t, fx, account.Email)

	err := fx.service.ChangePassword(ctx, usecase.ChangePasswordInput{
		AccountID:   account.ID,
		OldPassword: "wrong-old",
		NewPassword: "NewPassword456!",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	require.NoError(t, fx.service.ChangePassword(ctx, usecase.ChangePasswordInput{
		AccountID:   account.ID,
		OldPassword: testPassword,
		NewPassword: "NewPassword456!",
	}))

	// Existing credentials died with the old password.
	session, err := fx.sessionRepo.FindByID(ctx, out.SessionID)
	require.NoError(t, err)
	assert.False(t, session.IsActive)
	assert.Equal(t, entity.LogoutReasonPasswordChanged, session.LogoutReason)
	assert.Contains(t, fx.publisher.eventTypes(), service.EventPasswordChanged)

	_, err = fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: testPassword,
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: "NewPassword456!",
	})
	require.NoError(t, err)
}

func TestAuthService_PasswordReset(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	out := login(t, fx, account.Email)

	require.NoError(t, fx.service.RequestPasswordReset(ctx, account.Email))
	code := fx.mailer.lastCode()
	require.Len(t, code, 6)

	// Wrong code never resets anything.
	err := fx.service.ResetPassword(ctx, usecase.ResetPasswordInput{
		Email:       account.Email,
		Code:        "999999",
		NewPassword: "NewPassword456!",
	})
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)

	require.NoError(t, fx.service.ResetPassword(ctx, usecase.ResetPasswordInput{
		Email:       account.Email,
		Code:        code,
		NewPassword: "NewPassword456!",
	}))

	// Existing credentials died with the old password.
	session, err := fx.sessionRepo.FindByID(ctx, out.SessionID)
	require.NoError(t, err)
	assert.False(t, session.IsActive)
	assert.Equal(t, entity.LogoutReasonPasswordChanged, session.LogoutReason)
	assert.Contains(t, fx.publisher.eventTypes(), service.EventPasswordChanged)

	// The code is single use.
	err = fx.service.ResetPassword(ctx, usecase.ResetPasswordInput{
		Email:       account.Email,
		Code:        code,
		NewPassword: "AnotherPassword789!",
	})
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)

	_, err = fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    account.Email,
		Password: "NewPassword456!",
	})
	require.NoError(t, err)
}

func TestAuthService_PasswordReset_UnknownEmailGivesNoSignal(t *testing.T) {
	fx := createTestAuthService(0)
	ctx := context.Background()

	require.NoError(t, fx.service.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Empty(t, fx.mailer.sent)
}

func TestAuthService_SessionLimit_DisplacesOldest(t *testing.T) {
	fx := createTestAuthService(2)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	first := login(t, fx, account.Email)
	time.Sleep(2 * time.Millisecond)
	second := login(t, fx, account.Email)
	time.Sleep(2 * time.Millisecond)
	third := login(t, fx, account.Email)

	oldest, err := fx.sessionRepo.FindByID(ctx, first.SessionID)
	require.NoError(t, err)
	assert.False(t, oldest.IsActive)

	for _, id := range []uuid.UUID{second.SessionID, third.SessionID} {
		session, err := fx.sessionRepo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, session.IsActive)
	}
}

func TestAuthService_GoogleSignIn_CreatesAccountOnFirstContact(t *testing.T) {
	fx := createTestAuthService(0)
	fx.googleAuth.user = &service.OAuthUser{
		ID:            "google-sub-1",
		Email:         "new.google@example.com",
		Name:          "Dana Lee",
		Provider:      entity.ProviderGoogle,
		EmailVerified: true,
	}
	ctx := context.Background()

	out, err := fx.service.GoogleSignIn(ctx, usecase.GoogleSignInInput{IDToken: "token"})
	require.NoError(t, err)
	require.NotNil(t, out.Login)

	account, err := fx.accountRepo.FindByEmail(ctx, "new.google@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Dana", account.FirstName)
	assert.Equal(t, "Lee", account.LastName)
	assert.True(t, account.IsEmailVerified)
	assert.Empty(t, account.PasswordHash)

	identity, err := fx.accountRepo.FindIdentity(ctx, entity.ProviderGoogle, "google-sub-1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, identity.AccountID)

	// Second sign-in reuses the linked account.
	again, err := fx.service.GoogleSignIn(ctx, usecase.GoogleSignInInput{IDToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.Login.Account.ID)
}

func TestAuthService_GoogleSignIn_LinksExistingEmail(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	fx.googleAuth.user = &service.OAuthUser{
		ID:            "google-sub-2",
		Email:         account.Email,
		Provider:      entity.ProviderGoogle,
		EmailVerified: true,
	}
	ctx := context.Background()

	out, err := fx.service.GoogleSignIn(ctx, usecase.GoogleSignInInput{IDToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, account.ID, out.Login.Account.ID)

	identity, err := fx.accountRepo.FindIdentity(ctx, entity.ProviderGoogle, "google-sub-2")
	require.NoError(t, err)
	assert.Equal(t, account.ID, identity.AccountID)
}

func TestAuthService_GoogleSignIn_RespectsStepUp(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.TwoFactorEnabled = true
	})
	fx.googleAuth.user = &service.OAuthUser{
		ID:            "google-sub-3",
		Email:         account.Email,
		Provider:      entity.ProviderGoogle,
		EmailVerified: true,
	}

	out, err := fx.service.GoogleSignIn(context.Background(), usecase.GoogleSignInInput{IDToken: "token"})
	require.NoError(t, err)
	assert.True(t, out.Requires2FA)
	assert.Nil(t, out.Login)
}

func TestAuthService_GoogleSignIn_RejectedToken(t *testing.T) {
	fx := createTestAuthService(0)
	fx.googleAuth.err = assert.AnError

	_, err := fx.service.GoogleSignIn(context.Background(), usecase.GoogleSignInInput{IDToken: "bad"})

	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
}

func TestAuthService_TOTPEnrollment(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, nil)
	ctx := context.Background()

	out, err := fx.service.EnrollTOTP(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Secret)
	assert.Contains(t, out.OtpauthURI, "otpauth://totp/")
	assert.NotEmpty(t, out.QRCodePNG)

	// Enrollment alone does not switch the second factor on.
	stored, err := fx.accountRepo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorEnabled)

	err = fx.service.ConfirmTOTP(ctx, account.ID, "999999")
	assert.ErrorIs(t, err, domainerrors.ErrCodeInvalid)

	require.NoError(t, fx.service.ConfirmTOTP(ctx, account.ID, "000111"))

	stored, err = fx.accountRepo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.TwoFactorEnabled)
	assert.Equal(t, entity.TwoFactorTOTP, stored.TwoFactorMethod)
}

func TestAuthService_CheckStatus(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.IsEmailVerified = false
	})
	ctx := context.Background()

	out, err := fx.service.CheckStatus(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, RedirectVerifyEmail, out.Redirect)
	assert.Empty(t, out.KYCRejectionReason)

	_, err = fx.service.CheckStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrAccountNotFound)
}

func TestAuthService_CheckStatus_RejectedKYCCarriesReason(t *testing.T) {
	fx := createTestAuthService(0)
	account := seedAccount(t, fx, func(a *entity.Account) {
		a.Role = entity.RoleTeacher
		a.KYCStatus = entity.KYCStatusRejected
		a.KYCRejectionReason = "document expired"
	})
	ctx := context.Background()

	out, err := fx.service.CheckStatus(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, RedirectKYCRejected, out.Redirect)
	assert.Equal(t, "document expired", out.KYCRejectionReason)
}

func TestAuthService_FullSignupToLoginScenario(t *testing.T) {
	fx := createTestAuthService(0)
	ctx := context.Background()

	_, err := fx.service.Signup(ctx, usecase.SignupInput{
		Email:     "journey@example.com",
		Password:  testPassword,
		FirstName: "Jo",
		Role:      entity.RoleStudent,
	})
	require.NoError(t, err)

	// Login before verification is refused.
	_, err = fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    "journey@example.com",
		Password: testPassword,
	})
	assert.ErrorIs(t, err, domainerrors.ErrEmailNotVerified)

	require.NoError(t, fx.service.VerifyEmail(ctx, usecase.VerifyEmailInput{
		Email: "journey@example.com",
		Code:  fx.mailer.lastCode(),
	}))

	out, err := fx.service.PrimaryAuthenticate(ctx, usecase.AuthenticateInput{
		Email:    "journey@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Login)
	// Still mid-onboarding: the profile step comes next.
	assert.Equal(t, RedirectCompleteProfile, out.Login.Redirect)
}
