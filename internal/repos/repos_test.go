package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/yungbote/fluent-backend/internal/db"
	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: ":memory:"}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(gdb, logger.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestSourceRepoOwnerScoping(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewSourceRepo(gdb, logger.Nop())

	alice, bob := uuid.New(), uuid.New()
	created, err := repo.Create(ctx, nil, []*types.Source{
		{OwnerID: alice, DisplayName: "ventas", Kind: types.SourceKindUploadedTable},
		{OwnerID: bob, DisplayName: "costos", Kind: types.SourceKindUploadedTable},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created[0].ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}

	list, err := repo.ListByOwner(ctx, nil, alice)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 1 || list[0].DisplayName != "ventas" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := repo.GetByID(ctx, nil, alice, created[1].ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found for foreign source, got %v", err)
	}
	if err := repo.Rename(ctx, nil, alice, created[1].ID, "x"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found on foreign rename, got %v", err)
	}
	if err := repo.Rename(ctx, nil, alice, created[0].ID, "ventas 2024"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, alice, created[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DisplayName != "ventas 2024" {
		t.Fatalf("rename not applied: %q", got.DisplayName)
	}

	// Deleting with the wrong owner is a no-op.
	if err := repo.FullDeleteByIDs(ctx, nil, alice, []uuid.UUID{created[1].ID}); err != nil {
		t.Fatalf("FullDeleteByIDs: %v", err)
	}
	if _, err := repo.GetByID(ctx, nil, bob, created[1].ID); err != nil {
		t.Fatalf("bob's source should survive: %v", err)
	}
}

func TestDataAssetRepoDeleteBySource(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewDataAssetRepo(gdb, logger.Nop())

	owner := uuid.New()
	s1, s2 := uuid.New(), uuid.New()
	if _, err := repo.Create(ctx, nil, []*types.DescribableUnit{
		{SourceID: s1, OwnerID: owner, DisplayName: "a", Description: "table a"},
		{SourceID: s1, OwnerID: owner, DisplayName: "b", Description: "table b"},
		{SourceID: s2, OwnerID: owner, DisplayName: "c", Description: "doc c", Indexed: true},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	units, err := repo.GetBySourceIDs(ctx, nil, []uuid.UUID{s1})
	if err != nil {
		t.Fatalf("GetBySourceIDs: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}

	if err := repo.FullDeleteBySourceIDs(ctx, nil, []uuid.UUID{s1}); err != nil {
		t.Fatalf("FullDeleteBySourceIDs: %v", err)
	}
	all, err := repo.ListByOwner(ctx, nil, owner)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(all) != 1 || all[0].DisplayName != "c" || !all[0].Indexed {
		t.Fatalf("unexpected remaining units: %+v", all)
	}
}

func TestConversationTurnRepoListRecentOrder(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewConversationTurnRepo(gdb, logger.Nop())

	user := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, content := range []string{"one", "two", "three"} {
		if err := repo.Append(ctx, nil, &types.ConversationTurn{
			UserID:    user,
			Role:      types.TurnRoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := repo.Append(ctx, nil, &types.ConversationTurn{UserID: uuid.New(), Role: types.TurnRoleUser, Content: "other"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, err := repo.ListRecent(ctx, nil, user, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "two" || turns[1].Content != "three" {
		t.Fatalf("expected oldest-first window, got %q %q", turns[0].Content, turns[1].Content)
	}
}

func TestPinnedViewRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewPinnedViewRepo(gdb, logger.Nop())

	user := uuid.New()
	first, err := repo.Create(ctx, nil, &types.PinnedView{
		UserID: user, Title: "old", ChartKind: "bar", QueryText: "SELECT 1",
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := repo.Create(ctx, nil, &types.PinnedView{
		UserID: user, Title: "new", ChartKind: "pie", QueryText: "SELECT 2",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := repo.ListByUser(ctx, nil, user)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	now := time.Now().UTC()
	if err := repo.UpdateCachedResult(ctx, nil, first.ID, datatypes.JSON(`{"rows":[]}`), now); err != nil {
		t.Fatalf("UpdateCachedResult: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, user, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RefreshedAt == nil || string(got.CachedResult) != `{"rows":[]}` {
		t.Fatalf("cached result not stored: %+v", got)
	}

	if err := repo.FullDeleteByID(ctx, nil, uuid.New(), first.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	if err := repo.FullDeleteByID(ctx, nil, user, first.ID); err != nil {
		t.Fatalf("FullDeleteByID: %v", err)
	}
}

func TestUserRepoLookup(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	repo := NewUserRepo(gdb, logger.Nop())

	u, err := repo.Create(ctx, nil, &types.User{Email: "ana@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByEmail(ctx, nil, "ana@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}
	if _, err := repo.GetByEmail(ctx, nil, "nobody@example.com"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.GetByID(ctx, nil, u.ID); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
}
