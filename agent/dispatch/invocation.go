package dispatch

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/types"
)

// SkillSwitchConfirmOption 传入技能切换确认子流程.
type SkillSwitchConfirmOption struct {
	TargetSkillID string          `json:"targetSkillId"`
	FallbackEvent *types.Activity `json:"fallbackEvent,omitempty"`
	UserInput     *types.Activity `json:"userInput,omitempty"`
}

// PromptState 当前子提示的持久化状态.
type PromptState struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Text     string `json:"text,omitempty"`
}

// Invocation 是一个活动的工作单元：某个会话上正在进行的一次技能调用.
type Invocation struct {
	ID             string                      `json:"id"`
	ConversationID string                      `json:"conversationId"`
	SkillID        string                      `json:"skillId"`
	ActionID       string                      `json:"actionId,omitempty"`
	Phase          Phase                       `json:"phase"`
	Pending        []transport.CallbackRequest `json:"pending,omitempty"`
	SwitchOption   *SkillSwitchConfirmOption   `json:"switchOption,omitempty"`
	Prompt         *PromptState                `json:"prompt,omitempty"`
	Slots          map[string]any              `json:"slots,omitempty"`
	StartedAt      time.Time                   `json:"startedAt"`
	UpdatedAt      time.Time                   `json:"updatedAt"`
}

// Clone 返回深拷贝.
func (inv *Invocation) Clone() *Invocation {
	if inv == nil {
		return nil
	}
	data, err := json.Marshal(inv)
	if err != nil {
		// 除任意槽位值外，所有字段都可安全进行 JSON 编码
		out := *inv
		return &out
	}
	var out Invocation
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *inv
		return &cp
	}
	return &out
}

// popPending 移除并返回最近入队的回调.
func (inv *Invocation) popPending() (transport.CallbackRequest, bool) {
	n := len(inv.Pending)
	if n == 0 {
		return transport.CallbackRequest{}, false
	}
	cb := inv.Pending[n-1]
	inv.Pending = inv.Pending[:n-1]
	return cb, true
}
