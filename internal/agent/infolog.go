package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/feed"
)

// InfoLog delivers by writing a structured line to the local log. It always
// succeeds, which makes it the reference agent for tests and a cheap way to
// watch a subscription without a push endpoint.
type InfoLog struct{}

// NewInfoLog returns the infolog agent.
func NewInfoLog() *InfoLog { return &InfoLog{} }

func (*InfoLog) Name() string { return "infolog" }

func (*InfoLog) Emit(_ context.Context, env *Env, uid, targetID int64, item *feed.PVPItem) error {
	env.Logger.Info("rotation item",
		zap.Int64("uid", uid),
		zap.Int64("target_id", targetID),
		zap.String("mode", item.Mode.String()),
		zap.String("rule", item.Rule.String()),
		zap.Ints("stages", item.Stages),
		zap.Time("start_time", item.StartTime),
		zap.Time("end_time", item.EndTime),
	)
	return nil
}

func (*InfoLog) Test(_ context.Context, env *Env, uid, targetID int64) error {
	env.Logger.Info("test delivery",
		zap.Int64("uid", uid),
		zap.Int64("target_id", targetID),
	)
	return nil
}
