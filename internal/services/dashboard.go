package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/fluent-backend/internal/modules/query"
	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/realtime"
	"github.com/yungbote/fluent-backend/internal/repos"
	"github.com/yungbote/fluent-backend/internal/types"
)

// StatementRunner re-executes a stored statement against a source.
type StatementRunner interface {
	RunStatement(ctx context.Context, owner uuid.UUID, sourceID string, statement string) (*sqlengine.Result, error)
}

type PinRequest struct {
	Title     string          `json:"title"`
	ChartKind string          `json:"chart_type"`
	Query     string          `json:"sql"`
	SourceID  string          `json:"source_id"`
	Data      json.RawMessage `json:"data"`
}

type DashboardService interface {
	Pin(ctx context.Context, req PinRequest) (*types.PinnedView, error)
	List(ctx context.Context) ([]*types.PinnedView, error)
	Delete(ctx context.Context, viewID uuid.UUID) error
	Refresh(ctx context.Context, viewID uuid.UUID) (*types.PinnedView, error)
}

type dashboardService struct {
	log     *logger.Logger
	views   repos.PinnedViewRepo
	sources repos.SourceRepo
	runner  StatementRunner
	bus     realtime.Bus
}

func NewDashboardService(
	baseLog *logger.Logger,
	viewRepo repos.PinnedViewRepo,
	sourceRepo repos.SourceRepo,
	runner StatementRunner,
	bus realtime.Bus,
) DashboardService {
	if bus == nil {
		bus = realtime.NewLocalBus()
	}
	return &dashboardService{
		log:     baseLog.With("service", "DashboardService"),
		views:   viewRepo,
		sources: sourceRepo,
		runner:  runner,
		bus:     bus,
	}
}

func (s *dashboardService) Pin(ctx context.Context, req PinRequest) (*types.PinnedView, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	stmt := strings.TrimSpace(req.Query)
	if title == "" {
		return nil, apierr.Invalid("title is required")
	}
	if stmt == "" {
		return nil, apierr.Invalid("sql is required")
	}

	var sourceID *uuid.UUID
	if raw := strings.TrimSpace(req.SourceID); raw != "" && raw != query.LocalCandidateID {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apierr.Invalid("invalid source_id")
		}
		if _, err := s.sources.GetByID(ctx, nil, owner, id); err != nil {
			return nil, err
		}
		sourceID = &id
	}

	cached := datatypes.JSON("[]")
	if len(req.Data) > 0 && json.Valid(req.Data) {
		cached = datatypes.JSON(req.Data)
	}
	view, err := s.views.Create(ctx, nil, &types.PinnedView{
		ID:           uuid.New(),
		UserID:       owner,
		SourceID:     sourceID,
		Title:        title,
		ChartKind:    string(query.ParseChartKind(req.ChartKind)),
		QueryText:    stmt,
		CachedResult: cached,
	})
	if err != nil {
		return nil, fmt.Errorf("pin view: %w", err)
	}
	s.publish(ctx, realtime.EventViewPinned, owner, view.ID)
	return view, nil
}

func (s *dashboardService) List(ctx context.Context) ([]*types.PinnedView, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.views.ListByUser(ctx, nil, owner)
}

func (s *dashboardService) Delete(ctx context.Context, viewID uuid.UUID) error {
	owner, err := requireUser(ctx)
	if err != nil {
		return err
	}
	if err := s.views.FullDeleteByID(ctx, nil, owner, viewID); err != nil {
		return err
	}
	s.publish(ctx, realtime.EventViewDeleted, owner, viewID)
	return nil
}

// Refresh re-runs the view's statement and overwrites its cached result.
func (s *dashboardService) Refresh(ctx context.Context, viewID uuid.UUID) (*types.PinnedView, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.views.GetByID(ctx, nil, owner, viewID)
	if err != nil {
		return nil, err
	}
	sourceID := ""
	if view.SourceID != nil {
		sourceID = view.SourceID.String()
	}
	res, err := s.runner.RunStatement(ctx, owner, sourceID, view.QueryText)
	if err != nil {
		s.log.WithContext(ctx).Warn("view refresh failed", "view_id", view.ID, "error", err)
		if errors.Is(err, query.ErrNoSource) {
			return nil, apierr.NotFound("source")
		}
		return nil, apierr.New(http.StatusUnprocessableEntity, "refresh_failed", err)
	}
	rows := res.Rows
	if rows == nil {
		rows = []sqlengine.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	now := time.Now().UTC()
	if err := s.views.UpdateCachedResult(ctx, nil, view.ID, datatypes.JSON(data), now); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	view.CachedResult = datatypes.JSON(data)
	view.RefreshedAt = &now
	s.publish(ctx, realtime.EventViewRefreshed, owner, view.ID)
	return view, nil
}

func (s *dashboardService) publish(ctx context.Context, typ realtime.EventType, owner, id uuid.UUID) {
	if err := s.bus.Publish(ctx, realtime.Event{Type: typ, UserID: owner, ID: id}); err != nil {
		s.log.WithContext(ctx).Warn("publish event failed", "type", string(typ), "error", err)
	}
}
