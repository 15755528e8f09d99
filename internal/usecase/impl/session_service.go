package impl

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	txManager        repository.TransactionManager
	sessionRepo      repository.SessionRepository
	refreshTokenRepo repository.RefreshTokenRepository
	codeRepo         repository.CodeRepository
	policy           *config.AuthPolicyConfig
	logger           *slog.Logger
}

// SessionServiceParams holds dependencies for SessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	TxManager        repository.TransactionManager
	SessionRepo      repository.SessionRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	CodeRepo         repository.CodeRepository
	Config           *config.Config
	Logger           *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	policy := &config.AuthPolicyConfig{}
	if params.Config != nil && params.Config.AuthPolicy != nil {
		policy = params.Config.AuthPolicy
	}

	return &sessionService{
		txManager:        params.TxManager,
		sessionRepo:      params.SessionRepo,
		refreshTokenRepo: params.RefreshTokenRepo,
		codeRepo:         params.CodeRepo,
		policy:           policy,
		logger:           params.Logger,
	}
}

func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// GetActiveSessions lists the account's active sessions, newest activity
// first, marking the caller's own session.
func (srv *sessionService) GetActiveSessions(ctx context.Context, accountID, currentSessionID uuid.UUID) ([]*usecase.SessionInfo, error) {
	sessions, err := srv.sessionRepo.FindActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	infos := make([]*usecase.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, &usecase.SessionInfo{
			ID:             s.ID,
			DeviceInfo:     s.DeviceInfo,
			IPAddress:      s.IPAddress,
			LoginAt:        s.LoginAt,
			LastActivityAt: s.LastActivityAt,
			Current:        s.ID == currentSessionID,
		})
	}

	return infos, nil
}

// RevokeSession ends one of the account's other sessions and revokes the
// token backing it.
func (srv *sessionService) RevokeSession(ctx context.Context, accountID, currentSessionID, sessionID uuid.UUID) error {
	if sessionID == currentSessionID {
		return domainerrors.ErrValidationFailed.WithDetails("cannot revoke the current session; use logout")
	}

	now := time.Now()

	return srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		sessionRepo := txRepoFactory.NewSessionRepository()

		session, err := sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return domainerrors.ErrSessionNotFound
			}

			return errors.Wrap(err, "failed to load session")
		}
		if session.AccountID != accountID {
			// Not leaking that the session exists at all.
			return domainerrors.ErrSessionNotFound
		}

		if err := txRepoFactory.NewRefreshTokenRepository().RevokeActive(ctx, session.RefreshTokenID, now); err != nil &&
			!errors.Is(err, repository.ErrRefreshTokenNotActive) {
			return errors.Wrap(err, "failed to revoke session token")
		}
		if err := sessionRepo.End(ctx, session.ID, entity.LogoutReasonForced, now); err != nil {
			return errors.Wrap(err, "failed to end session")
		}

		srv.log(ctx).Info("session revoked",
			slog.String("account_id", accountID.String()),
			slog.String("session_id", sessionID.String()))

		return nil
	})
}

// RevokeAllOtherSessions ends every active session except the caller's and
// revokes their tokens.
func (srv *sessionService) RevokeAllOtherSessions(ctx context.Context, accountID, currentSessionID uuid.UUID) error {
	now := time.Now()

	return srv.txManager.Execute(ctx, func(txRepoFactory repository.RepositoryFactory) error {
		sessionRepo := txRepoFactory.NewSessionRepository()
		refreshTokenRepo := txRepoFactory.NewRefreshTokenRepository()

		sessions, err := sessionRepo.FindActiveByAccount(ctx, accountID)
		if err != nil {
			return errors.Wrap(err, "failed to list sessions")
		}
		for _, s := range sessions {
			if s.ID == currentSessionID {
				continue
			}
			if err := refreshTokenRepo.RevokeActive(ctx, s.RefreshTokenID, now); err != nil &&
				!errors.Is(err, repository.ErrRefreshTokenNotActive) {
				return errors.Wrap(err, "failed to revoke session token")
			}
		}

		ended, err := sessionRepo.EndOthers(ctx, accountID, currentSessionID, entity.LogoutReasonForced, now)
		if err != nil {
			return errors.Wrap(err, "failed to end sessions")
		}

		srv.log(ctx).Info("other sessions revoked",
			slog.String("account_id", accountID.String()),
			slog.Int64("sessions_ended", ended))

		return nil
	})
}

// TouchSession slides the session's idle deadline forward.
func (srv *sessionService) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := srv.sessionRepo.Touch(ctx, sessionID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return domainerrors.ErrSessionNotFound
		}

		return errors.Wrap(err, "failed to touch session")
	}

	return nil
}

// CleanupExpired runs one sweep pass and returns the number of sessions it
// expired.
func (srv *sessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := time.Now()

	expired, err := srv.sessionRepo.ExpireInactive(ctx, now.Add(-srv.policy.SessionInactivity), now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire idle sessions")
	}

	if _, err := srv.refreshTokenRepo.DeleteExpired(ctx, now); err != nil {
		return expired, errors.Wrap(err, "failed to delete expired tokens")
	}
	if _, err := srv.codeRepo.DeleteExpired(ctx, now); err != nil {
		return expired, errors.Wrap(err, "failed to delete expired codes")
	}

	if srv.policy.SessionRetention > 0 {
		cutoff := now.Add(-srv.policy.SessionRetention)
		if _, err := srv.sessionRepo.PurgeTerminatedBefore(ctx, cutoff); err != nil {
			return expired, errors.Wrap(err, "failed to purge old sessions")
		}
	}

	return expired, nil
}

// RegisterSessionSweeper starts the periodic cleanup loop tied to the fx
// application lifecycle.
func RegisterSessionSweeper(lc fx.Lifecycle, sessions usecase.SessionUsecase, cfg *config.Config, logger *slog.Logger) {
	interval := 5 * time.Minute
	if cfg != nil && cfg.AuthPolicy != nil && cfg.AuthPolicy.SweepInterval > 0 {
		interval = cfg.AuthPolicy.SweepInterval
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-sweepCtx.Done():
						return
					case <-ticker.C:
						expired, err := sessions.CleanupExpired(sweepCtx)
						if err != nil {
							logger.Error("session sweep failed", slog.Any("error", err))

							continue
						}
						if expired > 0 {
							logger.Info("session sweep completed", slog.Int64("sessions_expired", expired))
						}
					}
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}

			return nil
		},
	})
}
