package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

// ConversationTurnRepo is append-only: there is no update or delete.
type ConversationTurnRepo interface {
	Append(ctx context.Context, tx *gorm.DB, turns ...*types.ConversationTurn) error
	ListRecent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.ConversationTurn, error)
}

type conversationTurnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationTurnRepo(db *gorm.DB, baseLog *logger.Logger) ConversationTurnRepo {
	return &conversationTurnRepo{db: db, log: baseLog.With("repo", "ConversationTurnRepo")}
}

func (r *conversationTurnRepo) Append(ctx context.Context, tx *gorm.DB, turns ...*types.ConversationTurn) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(turns) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&turns).Error
}

// ListRecent returns the newest limit turns, oldest first.
func (r *conversationTurnRepo) ListRecent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.ConversationTurn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var results []*types.ConversationTurn
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}
