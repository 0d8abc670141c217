package dispatch

import (
	"context"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/types"
)

// Turn 是一次入站活动及其回复去向.
type Turn struct {
	Activity *types.Activity
	Surface  Surface
}

// Surface 把活动投递到面向用户的渠道.
type Surface interface {
	SendActivities(ctx context.Context, activities ...*types.Activity) error
}

// SurfaceFunc 把函数适配为 Surface.
type SurfaceFunc func(ctx context.Context, activities ...*types.Activity) error

// SendActivities 实现 Surface.
func (f SurfaceFunc) SendActivities(ctx context.Context, activities ...*types.Activity) error {
	return f(ctx, activities...)
}

// Recognizer 选出应处理回退请求的技能，返回 "" 表示没有.
type Recognizer interface {
	Recognize(ctx context.Context, turn *Turn, fallback *types.Activity) (string, error)
}

// PromptStatus 子提示执行一步后的状态.
type PromptStatus string

const (
	PromptWaiting   PromptStatus = "waiting"
	PromptComplete  PromptStatus = "complete"
	PromptCancelled PromptStatus = "cancelled"
)

// PromptResult 子提示的返回值.
// Token 由登录提示设置，Confirmed 由确认提示设置。
type PromptResult struct {
	Status    PromptStatus
	Token     string
	Confirmed bool
}

// AuthPrompt 为技能的令牌请求执行交互式登录流程.
type AuthPrompt interface {
	Begin(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error)
	Continue(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error)
}

// ConfirmPrompt 向用户提出是/否问题，问题文本在 state.Text 中.
type ConfirmPrompt interface {
	Begin(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error)
	Continue(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error)
}

// Store 按会话持久化调用与 SkillContext.
// 会话没有调用时 LoadInvocation 返回 nil, nil。
type Store interface {
	LoadInvocation(ctx context.Context, conversationID string) (*Invocation, error)
	SaveInvocation(ctx context.Context, inv *Invocation) error
	DeleteInvocation(ctx context.Context, conversationID string) error
	LoadSkillContext(ctx context.Context, conversationID string) (skills.SkillContext, error)
	SaveSkillContext(ctx context.Context, conversationID string, sc skills.SkillContext) error
}

// SkillClient 是对话所需的传输接口，*transport.Client 满足该接口.
type SkillClient interface {
	Forward(ctx context.Context, activity *types.Activity, h transport.Handlers) (*types.Activity, error)
	CancelRemoteDialogs(ctx context.Context, ref *types.Activity)
	Disconnect()
}

// ClientSource 为会话分配访问某个技能的客户端.
type ClientSource interface {
	Client(conversationID string, manifest *skills.Manifest) SkillClient
	Release(conversationID, skillID string)
}

// FromPool 把传输连接池适配为 ClientSource.
func FromPool(p *transport.Pool) ClientSource { return poolSource{pool: p} }

type poolSource struct{ pool *transport.Pool }

func (s poolSource) Client(conversationID string, m *skills.Manifest) SkillClient {
	return s.pool.Get(conversationID, m)
}

func (s poolSource) Release(conversationID, skillID string) {
	s.pool.Release(conversationID, skillID)
}

// Recorder 接收调度指标，*metrics.Collector 满足该接口.
type Recorder interface {
	RecordTransition(skill, from, to string)
	RecordTurnError(skill, code string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string, string) {}
func (nopRecorder) RecordTurnError(string, string)          {}
