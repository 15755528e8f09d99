package postgres

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// sessionRepository implements the domain.SessionRepository interface using GORM.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository is the constructor for sessionRepository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create persists a new session record.
func (repo *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	sessionM := fromSessionDomain(session)

	if err := repo.db.WithContext(ctx).Create(sessionM).Error; err != nil {
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.ErrSessionNotFound.WrapMessage("invalid account or token reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create session")
	}

	session.ID = sessionM.ID
	session.CreatedAt = sessionM.CreatedAt

	return nil
}

// FindByID retrieves a session by its unique ID.
func (repo *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var sessionM model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sessionM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.Wrap(err, "failed to find session by id")
	}

	return toSessionDomain(&sessionM), nil
}

// FindActiveByAccount retrieves all active sessions for an account, newest
// activity first.
func (repo *sessionRepository) FindActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.Session, error) {
	var sessionMs []model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("account_id = ? AND is_active = true", accountID).
		Order("last_activity_at DESC").
		Find(&sessionMs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active sessions")
	}

	sessions := make([]*entity.Session, 0, len(sessionMs))
	for i := range sessionMs {
		sessions = append(sessions, toSessionDomain(&sessionMs[i]))
	}

	return sessions, nil
}

// Touch updates the session's last-activity timestamp and slides the idle
// deadline forward.
func (repo *sessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("id = ? AND is_active = true", id).
		Updates(map[string]any{
			"last_activity_at": at,
			"expires_at":       gorm.Expr("? + (expires_at - last_activity_at)", at),
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to touch session")
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// Repoint moves the session onto a new backing refresh token after rotation.
func (repo *sessionRepository) Repoint(ctx context.Context, id uuid.UUID, refreshTokenID uuid.UUID, at time.Time) error {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("id = ? AND is_active = true", id).
		Updates(map[string]any{
			"refresh_token_id": refreshTokenID,
			"last_activity_at": at,
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to repoint session")
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// End terminates a single session with the given reason. Ending is
// monotonic: an already-ended session is left untouched.
func (repo *sessionRepository) End(ctx context.Context, id uuid.UUID, reason entity.LogoutReason, at time.Time) error {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("id = ? AND is_active = true", id).
		Updates(map[string]any{
			"is_active":     false,
			"logout_at":     at,
			"logout_reason": string(reason),
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to end session")
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// EndAll terminates every active session for an account.
func (repo *sessionRepository) EndAll(ctx context.Context, accountID uuid.UUID, reason entity.LogoutReason, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("account_id = ? AND is_active = true", accountID).
		Updates(map[string]any{
			"is_active":     false,
			"logout_at":     at,
			"logout_reason": string(reason),
		})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to end account sessions")
	}

	return result.RowsAffected, nil
}

// EndOthers terminates every active session for an account except keepID.
func (repo *sessionRepository) EndOthers(ctx context.Context, accountID uuid.UUID, keepID uuid.UUID, reason entity.LogoutReason, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("account_id = ? AND id <> ? AND is_active = true", accountID, keepID).
		Updates(map[string]any{
			"is_active":     false,
			"logout_at":     at,
			"logout_reason": string(reason),
		})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to end other sessions")
	}

	return result.RowsAffected, nil
}

// ExpireInactive terminates sessions whose last activity predates the cutoff.
func (repo *sessionRepository) ExpireInactive(ctx context.Context, cutoff time.Time, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("is_active = true AND last_activity_at < ?", cutoff).
		Updates(map[string]any{
			"is_active":     false,
			"logout_at":     at,
			"logout_reason": string(entity.LogoutReasonInactivity),
		})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to expire inactive sessions")
	}

	return result.RowsAffected, nil
}

// PurgeTerminatedBefore deletes ended sessions older than the cutoff.
func (repo *sessionRepository) PurgeTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("is_active = false AND logout_at < ?", cutoff).
		Delete(&model.SessionModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to purge terminated sessions")
	}

	return result.RowsAffected, nil
}

func toSessionDomain(m *model.SessionModel) *entity.Session {
	return &entity.Session{
		ID:             m.ID,
		AccountID:      m.AccountID,
		RefreshTokenID: m.RefreshTokenID,
		DeviceInfo:     m.DeviceInfo,
		IPAddress:      m.IPAddress,
		IsActive:       m.IsActive,
		LastActivityAt: m.LastActivityAt,
		ExpiresAt:      m.ExpiresAt,
		LoginAt:        m.LoginAt,
		LogoutAt:       m.LogoutAt,
		LogoutReason:   entity.LogoutReason(m.LogoutReason),
		CreatedAt:      m.CreatedAt,
	}
}

func fromSessionDomain(s *entity.Session) *model.SessionModel {
	return &model.SessionModel{
		ID:             s.ID,
		AccountID:      s.AccountID,
		RefreshTokenID: s.RefreshTokenID,
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		IsActive:       s.IsActive,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		LoginAt:        s.LoginAt,
		LogoutAt:       s.LogoutAt,
		LogoutReason:   string(s.LogoutReason),
		CreatedAt:      s.CreatedAt,
	}
}
