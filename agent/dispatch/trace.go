package dispatch

import (
	"context"

	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
)

// 发往宿主渠道的 trace 活动名称，仅用于诊断.
const (
	TraceHandoffStart   = "skill.handoff_start"
	TraceSlotMatched    = "skill.slot_matched"
	TraceSkillCompleted = "skill.completed"
	TraceHandBack       = "skill.hand_back"
)

func (d *SkillDialog) trace(ctx context.Context, turn *Turn, name, label string, value any) {
	if turn.Surface == nil {
		return
	}
	tr := types.NewTrace(turn.Activity, name, label, value)
	if err := turn.Surface.SendActivities(ctx, tr); err != nil {
		d.logger.Debug("send trace failed", zap.String("trace", name), zap.Error(err))
	}
}
