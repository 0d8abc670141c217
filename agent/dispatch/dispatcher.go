package dispatch

import (
	"context"
	"fmt"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
)

// Options 配置 Dispatcher.
type Options struct {
	Dialog DialogOptions
	// GenericErrorText 轮次失败时用户看到的唯一内容
	GenericErrorText string
}

// TurnRequest 宿主收到的一条入站活动.
// SkillID 与 ActionID 指定要移交的技能，均为空时继续当前活动的技能。
type TurnRequest struct {
	Activity *types.Activity
	SkillID  string
	ActionID string
	Surface  Surface
}

// TurnResponse 汇总一次轮次的结果.
type TurnResponse struct {
	Status       Status                  `json:"status"`
	SkillID      string                  `json:"skillId,omitempty"`
	InvocationID string                  `json:"invocationId,omitempty"`
	Entities     map[string]types.Entity `json:"entities,omitempty"`
	Handoff      *types.Activity         `json:"handoff,omitempty"`
}

// Dispatcher 是宿主侧入口：把每个轮次路由到会话当前的技能调用，
// 启动新调用，并把失败转换为通用回复。同一会话的轮次逐个处理。
type Dispatcher struct {
	registry *skills.Registry
	clients  ClientSource
	deps     Collaborators
	opts     Options
	locks    *keyedMutex
	logger   *zap.Logger
}

// NewDispatcher 组装调度器，deps.Store 必需.
func NewDispatcher(registry *skills.Registry, clients ClientSource, deps Collaborators, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Registry == nil {
		deps.Registry = registry
	}
	if opts.GenericErrorText == "" {
		opts.GenericErrorText = "Sorry, something went wrong. Please try again."
	}
	return &Dispatcher{
		registry: registry,
		clients:  clients,
		deps:     deps,
		opts:     opts,
		locks:    newKeyedMutex(),
		logger:   logger.With(zap.String("component", "dispatcher")),
	}
}

// HandleTurn 处理一个轮次.
// 失败时 Surface 只收到通用错误文本，带类型的错误返回给调用方。
func (d *Dispatcher) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.Activity == nil || req.Activity.Conversation.ID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "activity with a conversation id is required")
	}
	convID := req.Activity.Conversation.ID
	unlock := d.locks.Lock(convID)
	defer unlock()

	ctx = types.WithConversationID(ctx, convID)
	turn := &Turn{Activity: req.Activity, Surface: req.Surface}
	logger := d.logger.With(zap.String("conversation_id", convID))

	inv, err := d.deps.Store.LoadInvocation(ctx, convID)
	if err != nil {
		return nil, d.turnError(ctx, turn, req.SkillID, fmt.Errorf("load invocation: %w", err))
	}
	sc, err := d.deps.Store.LoadSkillContext(ctx, convID)
	if err != nil {
		return nil, d.turnError(ctx, turn, req.SkillID, fmt.Errorf("load skill context: %w", err))
	}

	res, err := d.route(ctx, turn, inv, req, sc)
	if err == nil && res != nil && (res.Status == StatusRestart || res.Status == StatusRedispatch) {
		logger.Info("redispatching turn",
			zap.String("from_skill_id", res.SkillID),
			zap.String("skill_id", res.TargetSkillID),
			zap.String("status", string(res.Status)),
		)
		next := &Turn{Activity: res.Input, Surface: req.Surface}
		if next.Activity == nil {
			next.Activity = req.Activity
		}
		res, err = d.begin(ctx, next, res.TargetSkillID, "", sc)
	}
	if err != nil {
		skillID := req.SkillID
		if inv != nil && skillID == "" {
			skillID = inv.SkillID
		}
		return nil, d.turnError(ctx, turn, skillID, err)
	}

	logger.Debug("turn handled",
		zap.String("skill_id", res.SkillID),
		zap.String("status", string(res.Status)),
	)
	return &TurnResponse{
		Status:       res.Status,
		SkillID:      res.SkillID,
		InvocationID: res.InvocationID,
		Entities:     res.Entities,
		Handoff:      res.Handoff,
	}, nil
}

func (d *Dispatcher) route(ctx context.Context, turn *Turn, inv *Invocation, req TurnRequest, sc skills.SkillContext) (*Result, error) {
	if inv == nil {
		if req.SkillID == "" {
			return &Result{Status: StatusIdle}, nil
		}
		return d.begin(ctx, turn, req.SkillID, req.ActionID, sc)
	}

	dialog, err := d.dialog(inv.ConversationID, inv.SkillID)
	if err != nil {
		// 技能已从注册表移除，无法继续
		_ = d.deps.Store.DeleteInvocation(ctx, inv.ConversationID)
		return nil, err
	}

	// 用户结束会话即取消当前技能
	if turn.Activity.Type == types.ActivityEndOfConversation {
		res, err := dialog.cancel(ctx, turn, inv)
		d.clients.Release(inv.ConversationID, inv.SkillID)
		return res, err
	}

	if req.SkillID == "" || req.SkillID == inv.SkillID {
		res, err := dialog.Continue(ctx, turn, inv)
		d.releaseIfDone(inv, res, err)
		return res, err
	}

	d.logger.Info("switching skill",
		zap.String("conversation_id", inv.ConversationID),
		zap.String("from_skill_id", inv.SkillID),
		zap.String("skill_id", req.SkillID),
	)
	dialog.End(ctx, turn, inv, ReasonSwitched)
	d.clients.Release(inv.ConversationID, inv.SkillID)
	return d.begin(ctx, turn, req.SkillID, req.ActionID, sc)
}

func (d *Dispatcher) begin(ctx context.Context, turn *Turn, skillID, actionID string, sc skills.SkillContext) (*Result, error) {
	convID := turn.Activity.Conversation.ID
	dialog, err := d.dialog(convID, skillID)
	if err != nil {
		return nil, err
	}
	res, err := dialog.Begin(ctx, turn, actionID, sc)
	d.releaseIfDone(&Invocation{ConversationID: convID, SkillID: skillID}, res, err)
	return res, err
}

func (d *Dispatcher) dialog(conversationID, skillID string) (*SkillDialog, error) {
	m, ok := d.registry.Get(skillID)
	if !ok {
		return nil, types.NewError(types.ErrSkillNotFound, fmt.Sprintf("skill %q is not registered", skillID)).
			WithSkill(skillID)
	}
	client := d.clients.Client(conversationID, m)
	return NewSkillDialog(m, client, d.deps, d.opts.Dialog, d.logger), nil
}

// releaseIfDone 调用结束后释放会话的客户端.
func (d *Dispatcher) releaseIfDone(inv *Invocation, res *Result, err error) {
	if err == nil && res != nil && res.Status == StatusWaiting {
		return
	}
	d.clients.Release(inv.ConversationID, inv.SkillID)
}

// turnError 是报告轮次失败的唯一入口.
// 保证不留下调用，告知用户出错，并返回带类型的错误。
func (d *Dispatcher) turnError(ctx context.Context, turn *Turn, skillID string, err error) error {
	te, ok := types.AsError(err)
	if !ok {
		te = types.NewError(types.ErrInternalError, "turn failed").WithCause(err).WithSkill(skillID)
		err = te
	}
	convID := turn.Activity.Conversation.ID
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	d.logger.Error("turn failed",
		zap.String("conversation_id", convID),
		zap.String("skill_id", skillID),
		zap.String("code", string(te.Code)),
		zap.Error(err),
	)
	d.deps.Recorder.RecordTurnError(skillID, string(te.Code))

	if inv, loadErr := d.deps.Store.LoadInvocation(ctx, convID); loadErr == nil && inv != nil {
		if dialog, dErr := d.dialog(convID, inv.SkillID); dErr == nil {
			dialog.End(ctx, turn, inv, ReasonError)
		} else {
			_ = d.deps.Store.DeleteInvocation(ctx, convID)
		}
		d.clients.Release(convID, inv.SkillID)
	}

	if turn.Surface != nil {
		msg := types.NewMessage(turn.Activity, d.opts.GenericErrorText)
		if sendErr := turn.Surface.SendActivities(ctx, msg); sendErr != nil {
			d.logger.Warn("send error message failed", zap.Error(sendErr))
		}
	}
	return err
}

// UpdateSkillContext 把宿主侧的值合并到会话的 SkillContext，
// 在下一次 Begin 时投影到语义动作。
func (d *Dispatcher) UpdateSkillContext(ctx context.Context, conversationID string, values map[string]any) (skills.SkillContext, error) {
	if conversationID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "conversation id is required")
	}
	unlock := d.locks.Lock(conversationID)
	defer unlock()

	sc, err := d.deps.Store.LoadSkillContext(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load skill context: %w", err)
	}
	if sc == nil {
		sc = skills.NewSkillContext()
	}
	sc.Merge(values)
	if err := d.deps.Store.SaveSkillContext(ctx, conversationID, sc); err != nil {
		return nil, fmt.Errorf("save skill context: %w", err)
	}
	return sc.Clone(), nil
}

// SkillContext 返回会话 SkillContext 的副本.
func (d *Dispatcher) SkillContext(ctx context.Context, conversationID string) (skills.SkillContext, error) {
	return d.deps.Store.LoadSkillContext(ctx, conversationID)
}

// ActiveInvocation 返回会话当前的调用，没有时返回 nil.
func (d *Dispatcher) ActiveInvocation(ctx context.Context, conversationID string) (*Invocation, error) {
	return d.deps.Store.LoadInvocation(ctx, conversationID)
}
