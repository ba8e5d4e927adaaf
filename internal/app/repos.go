package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/repos"
)

type Repos struct {
	User         repos.UserRepo
	Source       repos.SourceRepo
	DataAsset    repos.DataAssetRepo
	PinnedView   repos.PinnedViewRepo
	Conversation repos.ConversationTurnRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:         repos.NewUserRepo(db, log),
		Source:       repos.NewSourceRepo(db, log),
		DataAsset:    repos.NewDataAssetRepo(db, log),
		PinnedView:   repos.NewPinnedViewRepo(db, log),
		Conversation: repos.NewConversationTurnRepo(db, log),
	}
}
