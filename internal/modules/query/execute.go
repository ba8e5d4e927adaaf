package query

import (
	"context"
	"errors"

	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
)

// Execute runs statement on session and tags any failure as an execute
// StageError. The session's connection is released on every path.
func Execute(ctx context.Context, session *sqlengine.Session, statement string) (*sqlengine.Result, error) {
	if session == nil {
		return nil, stageErr(StageExecute, errors.New("no session"))
	}
	res, err := session.Execute(ctx, statement)
	if err != nil {
		return nil, stageErr(StageExecute, err)
	}
	return res, nil
}
