package api

import (
	"time"

	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/types"
)

// =============================================================================
// 活动（轮次）类型
// =============================================================================

// ActivityRequest 是渠道提交给宿主的一次用户轮次。
// @Description 轮次请求：skill_id 为空时继续当前活动的技能
type ActivityRequest struct {
	Activity *types.Activity `json:"activity"`
	SkillID  string          `json:"skill_id,omitempty"`
	ActionID string          `json:"action_id,omitempty"`
}

// ActivityResponse 汇总轮次结果以及本轮发往用户的全部活动。
// @Description 轮次结果
type ActivityResponse struct {
	Status       dispatch.Status         `json:"status"`
	SkillID      string                  `json:"skill_id,omitempty"`
	InvocationID string                  `json:"invocation_id,omitempty"`
	Entities     map[string]types.Entity `json:"entities,omitempty"`
	Handoff      *types.Activity         `json:"handoff,omitempty"`
	Activities   []*types.Activity       `json:"activities"`
}

// StatusError 是轮次失败时 ActivityResponse.Status 的取值。
const StatusError dispatch.Status = "error"

// =============================================================================
// 会话状态类型
// =============================================================================

// SkillContextRequest 合并写入会话的 SkillContext。
// @Description SkillContext 更新请求
type SkillContextRequest struct {
	Values map[string]any `json:"values"`
}

// SkillContextResponse 返回会话当前的 SkillContext。
// @Description SkillContext
type SkillContextResponse struct {
	ConversationID string              `json:"conversation_id"`
	Values         skills.SkillContext `json:"values"`
}

// InvocationResponse 描述会话中活动的技能调用。
// @Description 活动调用
type InvocationResponse struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SkillID        string         `json:"skill_id"`
	ActionID       string         `json:"action_id,omitempty"`
	Phase          dispatch.Phase `json:"phase"`
	PendingCount   int            `json:"pending_count"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewInvocationResponse 从调用构造响应。
func NewInvocationResponse(inv *dispatch.Invocation) InvocationResponse {
	return InvocationResponse{
		ID:             inv.ID,
		ConversationID: inv.ConversationID,
		SkillID:        inv.SkillID,
		ActionID:       inv.ActionID,
		Phase:          inv.Phase,
		PendingCount:   len(inv.Pending),
		StartedAt:      inv.StartedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}
