package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

type SourceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sources []*types.Source) ([]*types.Source, error)
	GetByID(ctx context.Context, tx *gorm.DB, ownerID, sourceID uuid.UUID) (*types.Source, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.Source, error)
	Rename(ctx context.Context, tx *gorm.DB, ownerID, sourceID uuid.UUID, name string) error
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, sourceIDs []uuid.UUID) error
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{db: db, log: baseLog.With("repo", "SourceRepo")}
}

func (r *sourceRepo) Create(ctx context.Context, tx *gorm.DB, sources []*types.Source) ([]*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sources) == 0 {
		return []*types.Source{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *sourceRepo) GetByID(ctx context.Context, tx *gorm.DB, ownerID, sourceID uuid.UUID) (*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Source
	err := transaction.WithContext(ctx).
		Where("id = ? AND owner_id = ?", sourceID, ownerID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("source")
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sourceRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Source
	if err := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sourceRepo) Rename(ctx context.Context, tx *gorm.DB, ownerID, sourceID uuid.UUID, name string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Source{}).
		Where("id = ? AND owner_id = ?", sourceID, ownerID).
		Updates(map[string]any{"display_name": name, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("source")
	}
	return nil
}

func (r *sourceRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, sourceIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, sourceIDs).
		Delete(&types.Source{}).Error
}
