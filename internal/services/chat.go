package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/modules/query"
	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/repos"
	"github.com/yungbote/fluent-backend/internal/types"
)

// Replies used when the pipeline cannot produce an answer.
const (
	ReplyInternalError = "internal error"
	ReplyNoSource      = "There are no data sources to query yet. Upload a file or connect a database first."
	ReplySynthesize    = "I could not turn that question into a query."
	ReplyExecute       = "The query could not be run against the selected source."
	ReplyNoData        = "There is no data to chart for that question."
)

const toolError = "ERROR"

// Answerer runs one question through the query pipeline.
type Answerer interface {
	Answer(ctx context.Context, owner uuid.UUID, question string) (*query.Answer, error)
}

type ChatReply struct {
	Response string `json:"response"`
	ToolUsed string `json:"tool_used"`
	Data     any    `json:"data,omitempty"`
}

type ChatService interface {
	// Send always returns a reply once the caller is authenticated and the
	// message is non-empty; pipeline failures become user-facing text.
	Send(ctx context.Context, message string) (*ChatReply, error)
	History(ctx context.Context, limit int) ([]*types.ConversationTurn, error)
}

type chatService struct {
	log      *logger.Logger
	turns    repos.ConversationTurnRepo
	pipeline Answerer
}

func NewChatService(baseLog *logger.Logger, turnRepo repos.ConversationTurnRepo, pipeline Answerer) ChatService {
	return &chatService{
		log:      baseLog.With("service", "ChatService"),
		turns:    turnRepo,
		pipeline: pipeline,
	}
}

func (s *chatService) Send(ctx context.Context, message string) (*ChatReply, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apierr.Invalid("message is required")
	}
	log := s.log.WithContext(ctx)

	s.appendTurn(ctx, &types.ConversationTurn{UserID: owner, Role: types.TurnRoleUser, Content: message})

	reply := s.answer(ctx, owner, message)

	s.appendTurn(ctx, &types.ConversationTurn{
		UserID:   owner,
		Role:     types.TurnRoleAssistant,
		Content:  reply.Response,
		ToolUsed: reply.ToolUsed,
	})
	log.Info("chat answered", "owner_id", owner, "tool", reply.ToolUsed)
	return reply, nil
}

func (s *chatService) answer(ctx context.Context, owner uuid.UUID, message string) (reply *ChatReply) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithContext(ctx).Error("chat pipeline panicked", "panic", fmt.Sprint(r))
			reply = &ChatReply{Response: ReplyInternalError, ToolUsed: toolError}
		}
	}()

	ans, err := s.pipeline.Answer(ctx, owner, message)
	if err != nil {
		tool := toolError
		if ans != nil && ans.Intent != "" {
			tool = string(ans.Intent)
		}
		stage, _ := query.FailedStage(err)
		s.log.WithContext(ctx).Warn("chat pipeline failed", "owner_id", owner, "stage", string(stage), "error", err)
		return &ChatReply{Response: failureReply(err), ToolUsed: tool}
	}
	if ans == nil {
		return &ChatReply{Response: ReplyInternalError, ToolUsed: toolError}
	}
	return &ChatReply{Response: ans.Text, ToolUsed: string(ans.Intent), Data: replyData(ans)}
}

func failureReply(err error) string {
	switch {
	case errors.Is(err, query.ErrNoData):
		return ReplyNoData
	case errors.Is(err, query.ErrNoSource):
		return ReplyNoSource
	}
	if stage, ok := query.FailedStage(err); ok {
		switch stage {
		case query.StageSynthesize:
			return ReplySynthesize
		case query.StageExecute:
			return ReplyExecute
		}
	}
	return ReplyInternalError
}

func replyData(ans *query.Answer) any {
	switch ans.Intent {
	case query.IntentSQL, query.IntentChart:
		if ans.Result == nil {
			return nil
		}
		data := map[string]any{
			"result":    ans.Result.Rows,
			"columns":   ans.Result.Columns,
			"sql":       ans.Statement,
			"truncated": ans.Result.Truncated,
		}
		if ans.Source != nil {
			data["source_id"] = ans.Source.ID
			data["source_name"] = ans.Source.Name
		}
		if ans.Chart != nil {
			data["chart"] = ans.Chart
			data["chart_type"] = ans.Chart.Type
			data["suggested_title"] = ans.Chart.Title
		}
		return data
	case query.IntentRAG:
		if len(ans.Passages) == 0 {
			return nil
		}
		refs := make([]map[string]any, 0, len(ans.Passages))
		for _, p := range ans.Passages {
			refs = append(refs, map[string]any{"asset_id": p.UnitID, "title": p.Title, "score": p.Score})
		}
		return map[string]any{"passages": refs}
	default:
		return nil
	}
}

func (s *chatService) appendTurn(ctx context.Context, turn *types.ConversationTurn) {
	if err := s.turns.Append(ctx, nil, turn); err != nil {
		s.log.WithContext(ctx).Error("append conversation turn failed", "role", string(turn.Role), "error", err)
	}
}

func (s *chatService) History(ctx context.Context, limit int) ([]*types.ConversationTurn, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	turns, err := s.turns.ListRecent(ctx, nil, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return turns, nil
}
