package dispatch

import "github.com/BaSui01/skillbridge/types"

// Phase 技能调用的显式阶段.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseActive           Phase = "active"
	PhaseAwaitingToken    Phase = "awaiting_token"
	PhaseAwaitingFallback Phase = "awaiting_fallback"
	PhaseConfirmingSwitch Phase = "confirming_switch"
	PhaseTerminated       Phase = "terminated"
)

// Status 一次对话步骤的结果.
type Status string

const (
	// StatusWaiting 会话停留在该调用上，等待下一轮
	StatusWaiting Status = "waiting"
	// StatusComplete 技能已交还控制权
	StatusComplete Status = "complete"
	// StatusCancelled 调用未经移交即结束
	StatusCancelled Status = "cancelled"
	// StatusRestart 请求宿主用保存的输入重新派发到 TargetSkillID
	StatusRestart Status = "restart"
	// StatusRedispatch 请求宿主在未询问用户的情况下把输入派发到 TargetSkillID
	StatusRedispatch Status = "redispatch"
	// StatusIdle 本轮未涉及任何技能
	StatusIdle Status = "idle"
)

// EndReason 调用结束的原因.
type EndReason string

const (
	ReasonCompleted EndReason = "completed"
	ReasonCancelled EndReason = "cancelled"
	ReasonError     EndReason = "error"
	ReasonSwitched  EndReason = "switched"
)

// Result 每个 SkillDialog 步骤的返回值.
type Result struct {
	Status       Status
	SkillID      string
	InvocationID string

	// StatusComplete 时设置 Handoff 与 Entities
	Handoff  *types.Activity
	Entities map[string]types.Entity

	// StatusRestart 与 StatusRedispatch 时设置 TargetSkillID 与 Input
	TargetSkillID string
	Input         *types.Activity
}
