package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

// DataAssetRepo stores DescribableUnits. Units are never updated in place.
type DataAssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, units []*types.DescribableUnit) ([]*types.DescribableUnit, error)
	GetBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) ([]*types.DescribableUnit, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.DescribableUnit, error)
	FullDeleteBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) error
}

type dataAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataAssetRepo(db *gorm.DB, baseLog *logger.Logger) DataAssetRepo {
	return &dataAssetRepo{db: db, log: baseLog.With("repo", "DataAssetRepo")}
}

func (r *dataAssetRepo) Create(ctx context.Context, tx *gorm.DB, units []*types.DescribableUnit) ([]*types.DescribableUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(units) == 0 {
		return []*types.DescribableUnit{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *dataAssetRepo) GetBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) ([]*types.DescribableUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DescribableUnit
	if len(sourceIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_id IN ?", sourceIDs).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *dataAssetRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.DescribableUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DescribableUnit
	if err := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *dataAssetRepo) FullDeleteBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("source_id IN ?", sourceIDs).
		Delete(&types.DescribableUnit{}).Error
}
