package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

type PinnedViewRepo interface {
	Create(ctx context.Context, tx *gorm.DB, view *types.PinnedView) (*types.PinnedView, error)
	GetByID(ctx context.Context, tx *gorm.DB, userID, viewID uuid.UUID) (*types.PinnedView, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.PinnedView, error)
	UpdateCachedResult(ctx context.Context, tx *gorm.DB, viewID uuid.UUID, result datatypes.JSON, at time.Time) error
	FullDeleteByID(ctx context.Context, tx *gorm.DB, userID, viewID uuid.UUID) error
}

type pinnedViewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPinnedViewRepo(db *gorm.DB, baseLog *logger.Logger) PinnedViewRepo {
	return &pinnedViewRepo{db: db, log: baseLog.With("repo", "PinnedViewRepo")}
}

func (r *pinnedViewRepo) Create(ctx context.Context, tx *gorm.DB, view *types.PinnedView) (*types.PinnedView, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(view).Error; err != nil {
		return nil, err
	}
	return view, nil
}

func (r *pinnedViewRepo) GetByID(ctx context.Context, tx *gorm.DB, userID, viewID uuid.UUID) (*types.PinnedView, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.PinnedView
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", viewID, userID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("pinned view")
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByUser returns views newest first.
func (r *pinnedViewRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.PinnedView, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PinnedView
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *pinnedViewRepo) UpdateCachedResult(ctx context.Context, tx *gorm.DB, viewID uuid.UUID, result datatypes.JSON, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.PinnedView{}).
		Where("id = ?", viewID).
		Updates(map[string]any{"cached_result": result, "refreshed_at": at}).Error
}

func (r *pinnedViewRepo) FullDeleteByID(ctx context.Context, tx *gorm.DB, userID, viewID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", viewID, userID).
		Delete(&types.PinnedView{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("pinned view")
	}
	return nil
}
