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

// refreshTokenRepository implements the domain.RefreshTokenRepository interface.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create persists a new refresh token record in the pending state.
func (repo *refreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	tokenM := fromRefreshTokenDomain(token)
	tokenM.Status = string(entity.TokenStatusPending)

	if err := repo.db.WithContext(ctx).Create(tokenM).Error; err != nil {
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.ErrRefreshTokenInvalid.WrapMessage("invalid account reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create refresh token")
	}

	token.ID = tokenM.ID
	token.Status = entity.TokenStatusPending
	token.CreatedAt = tokenM.CreatedAt

	return nil
}

// Finalize stores the minted token's hash and transitions the pending row
// to active.
func (repo *refreshTokenRepository) Finalize(ctx context.Context, id uuid.UUID, tokenHash string) error {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("id = ? AND status = ?", id, string(entity.TokenStatusPending)).
		Updates(map[string]any{
			"token_hash": tokenHash,
			"status":     string(entity.TokenStatusActive),
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to finalize refresh token")
	}
	if result.RowsAffected == 0 {
		return repository.ErrRefreshTokenNotFound
	}

	return nil
}

// FindByID retrieves a refresh token record by its unique ID.
func (repo *refreshTokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel
	err := repo.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tokenM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, errors.Wrap(err, "failed to find refresh token by id")
	}

	return toRefreshTokenDomain(&tokenM), nil
}

// FindByHash retrieves a refresh token record by its stored hash.
func (repo *refreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel
	err := repo.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&tokenM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, errors.Wrap(err, "failed to find refresh token by hash")
	}

	return toRefreshTokenDomain(&tokenM), nil
}

// FindActiveByAccount retrieves all active tokens for an account.
func (repo *refreshTokenRepository) FindActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.RefreshToken, error) {
	var tokenMs []model.RefreshTokenModel
	err := repo.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND expires_at > ?",
			accountID, string(entity.TokenStatusActive), time.Now()).
		Order("created_at DESC").
		Find(&tokenMs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active refresh tokens")
	}

	tokens := make([]*entity.RefreshToken, 0, len(tokenMs))
	for i := range tokenMs {
		tokens = append(tokens, toRefreshTokenDomain(&tokenMs[i]))
	}

	return tokens, nil
}

// RevokeActive conditionally revokes a token only if it is currently active.
// The rows-affected guard is what turns a replayed rotation into a detectable
// event instead of a silent double spend.
func (repo *refreshTokenRepository) RevokeActive(ctx context.Context, id uuid.UUID, _ time.Time) error {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("id = ? AND status = ?", id, string(entity.TokenStatusActive)).
		Update("status", string(entity.TokenStatusRevoked))
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke refresh token")
	}
	if result.RowsAffected == 0 {
		return repository.ErrRefreshTokenNotActive
	}

	return nil
}

// RevokeAllByAccount revokes every active token for an account.
func (repo *refreshTokenRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, _ time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("account_id = ? AND status IN ?", accountID,
			[]string{string(entity.TokenStatusPending), string(entity.TokenStatusActive)}).
		Update("status", string(entity.TokenStatusRevoked))
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to revoke account tokens")
	}

	return result.RowsAffected, nil
}

// DeleteExpired removes tokens whose expiry has passed.
func (repo *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.RefreshTokenModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete expired tokens")
	}

	return result.RowsAffected, nil
}

// CountActiveByAccount returns the number of active tokens for an account.
func (repo *refreshTokenRepository) CountActiveByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int64
	err := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("account_id = ? AND status = ? AND expires_at > ?",
			accountID, string(entity.TokenStatusActive), time.Now()).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count active tokens")
	}

	return int(count), nil
}

func toRefreshTokenDomain(m *model.RefreshTokenModel) *entity.RefreshToken {
	return &entity.RefreshToken{
		ID:        m.ID,
		AccountID: m.AccountID,
		TokenHash: m.TokenHash,
		Status:    entity.TokenStatus(m.Status),
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

func fromRefreshTokenDomain(t *entity.RefreshToken) *model.RefreshTokenModel {
	return &model.RefreshTokenModel{
		ID:        t.ID,
		AccountID: t.AccountID,
		TokenHash: t.TokenHash,
		Status:    string(t.Status),
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
}
