package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	promptAuth    = "auth"
	promptConfirm = "confirm_switch"

	cleanupTimeout = 10 * time.Second
)

// DialogOptions 调整 SkillDialog 行为，零值使用默认值.
type DialogOptions struct {
	SkillSwitchConfirmation bool
	MaxCallbackHops         int
	// SwitchPromptTemplate 以目标技能的显示名称填充
	SwitchPromptTemplate string
}

func (o DialogOptions) withDefaults() DialogOptions {
	if o.MaxCallbackHops <= 0 {
		o.MaxCallbackHops = 32
	}
	if o.SwitchPromptTemplate == "" {
		o.SwitchPromptTemplate = "Would you like to switch to %s?"
	}
	return o
}

// Collaborators 是 SkillDialog 驱动的具名子流程与服务.
// Store 与 Surface 必需，其余可选。
type Collaborators struct {
	Store      Store
	Auth       AuthPrompt
	Confirm    ConfirmPrompt
	Recognizer Recognizer
	Recorder   Recorder
	// Registry 用于解析切换提示中的显示名称
	Registry *skills.Registry
}

// SkillDialog 驱动一次技能调用经过各个阶段.
// 自身不保存会话状态，全部状态都在 Invocation 中。
type SkillDialog struct {
	manifest *skills.Manifest
	client   SkillClient
	deps     Collaborators
	opts     DialogOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewSkillDialog 把对话绑定到一个技能及访问它的客户端.
func NewSkillDialog(manifest *skills.Manifest, client SkillClient, deps Collaborators, opts DialogOptions, logger *zap.Logger) *SkillDialog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &SkillDialog{
		manifest: manifest,
		client:   client,
		deps:     deps,
		opts:     opts.withDefaults(),
		logger:   logger.With(zap.String("component", "skill_dialog"), zap.String("skill_id", manifest.ID)),
		now:      time.Now,
	}
}

// Begin 为 actionID 启动新的技能调用，把 sc 中匹配的槽位投影到语义动作.
// 动作不存在时在发送任何内容之前以 ACTION_NOT_FOUND 失败。
func (d *SkillDialog) Begin(ctx context.Context, turn *Turn, actionID string, sc skills.SkillContext) (*Result, error) {
	slots, ok := d.manifest.SlotsFor(actionID)
	if !ok {
		return nil, types.NewError(types.ErrActionNotFound,
			fmt.Sprintf("action %q is not declared by skill %q", actionID, d.manifest.ID)).
			WithSkill(d.manifest.ID)
	}

	now := d.now().UTC()
	inv := &Invocation{
		ID:             uuid.NewString(),
		ConversationID: turn.Activity.Conversation.ID,
		SkillID:        d.manifest.ID,
		ActionID:       actionID,
		Phase:          PhaseIdle,
		Slots:          skills.MatchSlots(slots, sc),
		StartedAt:      now,
		UpdatedAt:      now,
	}
	ctx = types.WithInvocationID(ctx, inv.ID)

	for _, name := range sortedKeys(inv.Slots) {
		d.trace(ctx, turn, TraceSlotMatched, name, map[string]any{"name": name, "value": inv.Slots[name]})
	}

	activity := turn.Activity.Clone()
	activity.SemanticAction = &types.SemanticAction{
		ID:       actionID,
		Entities: slotEntities(inv.Slots),
		State:    types.SemanticActionStart,
	}
	d.trace(ctx, turn, TraceHandoffStart, d.manifest.DisplayName(), activity.SemanticAction)

	d.logger.Info("skill invocation started",
		zap.String("invocation_id", inv.ID),
		zap.String("action_id", actionID),
		zap.Int("slots", len(inv.Slots)),
	)
	d.transition(inv, PhaseActive)
	return d.forwardToSkill(ctx, turn, inv, activity)
}

// Continue 用下一条入站轮次推进已有调用.
func (d *SkillDialog) Continue(ctx context.Context, turn *Turn, inv *Invocation) (*Result, error) {
	ctx = types.WithInvocationID(ctx, inv.ID)

	switch inv.Phase {
	case PhaseAwaitingToken:
		if d.deps.Auth == nil {
			return d.cancel(ctx, turn, inv)
		}
		if inv.Prompt == nil {
			inv.Prompt = &PromptState{Name: promptAuth}
		}
		pr, err := d.deps.Auth.Continue(ctx, turn, inv.Prompt)
		if err != nil {
			return nil, d.fail(ctx, turn, inv, err)
		}
		next, res, err := d.afterAuth(ctx, turn, inv, pr)
		if next == nil {
			return res, err
		}
		return d.forwardToSkill(ctx, turn, inv, next)

	case PhaseConfirmingSwitch:
		if inv.SwitchOption == nil || d.deps.Confirm == nil || inv.Prompt == nil {
			return d.finishSkillSwitch(ctx, turn, inv, false)
		}
		pr, err := d.deps.Confirm.Continue(ctx, turn, inv.Prompt)
		if err != nil {
			return nil, d.fail(ctx, turn, inv, err)
		}
		switch pr.Status {
		case PromptWaiting:
			return d.park(ctx, inv)
		case PromptComplete:
			return d.finishSkillSwitch(ctx, turn, inv, pr.Confirmed)
		default:
			return d.finishSkillSwitch(ctx, turn, inv, false)
		}

	default:
		d.transition(inv, PhaseActive)
		return d.forwardToSkill(ctx, turn, inv, turn.Activity)
	}
}

// End 拆除调用.
// 除正常完成外的所有原因都会先请技能取消自身对话，该调用失败不影响 End。
func (d *SkillDialog) End(ctx context.Context, turn *Turn, inv *Invocation, reason EndReason) {
	if reason != ReasonCompleted {
		d.client.CancelRemoteDialogs(ctx, turn.Activity)
	}
	d.teardown(ctx, inv, reason)
}

// forwardToSkill 发送活动并按后进先出处理技能发起的回调，
// 直到技能移交、等待用户或请求宿主重新路由。
func (d *SkillDialog) forwardToSkill(ctx context.Context, turn *Turn, inv *Invocation, activity *types.Activity) (*Result, error) {
	handlers := transport.Handlers{
		OnCallback: func(cb transport.CallbackRequest) {
			inv.Pending = append(inv.Pending, cb)
		},
		OnActivity: func(ctx context.Context, a *types.Activity) error {
			if turn.Surface == nil {
				return nil
			}
			return turn.Surface.SendActivities(ctx, a)
		},
	}

	next := activity
	for hops := 0; ; hops++ {
		if hops >= d.opts.MaxCallbackHops {
			err := types.NewError(types.ErrTransportSendFailure,
				fmt.Sprintf("skill raised callbacks for %d consecutive sends", hops)).
				WithSkill(d.manifest.ID)
			return nil, d.fail(ctx, turn, inv, err)
		}

		handoff, err := d.client.Forward(ctx, next, handlers)
		if err != nil {
			return nil, d.fail(ctx, turn, inv, d.sendFailure(err))
		}
		if handoff != nil {
			return d.complete(ctx, turn, inv, handoff)
		}

		cb, ok := inv.popPending()
		if !ok {
			d.transition(inv, PhaseActive)
			return d.park(ctx, inv)
		}

		switch cb.Kind {
		case transport.CallbackHandoff:
			return d.complete(ctx, turn, inv, cb.Activity)

		case transport.CallbackTokenRequest:
			var res *Result
			next, res, err = d.beginAuth(ctx, turn, inv)
			if next == nil {
				return res, err
			}

		case transport.CallbackFallbackRequest:
			var res *Result
			next, res, err = d.handleFallback(ctx, turn, inv, cb.Activity)
			if next == nil {
				return res, err
			}

		default:
			d.logger.Warn("dropping unknown callback", zap.String("kind", string(cb.Kind)))
			d.transition(inv, PhaseActive)
			return d.park(ctx, inv)
		}
	}
}

// beginAuth 为令牌请求启动登录提示.
// 提示立即完成时返回要发送的令牌响应事件，否则返回要交还的结果。
func (d *SkillDialog) beginAuth(ctx context.Context, turn *Turn, inv *Invocation) (*types.Activity, *Result, error) {
	d.transition(inv, PhaseAwaitingToken)
	if d.deps.Auth == nil {
		d.logger.Warn("skill requested a token but no auth prompt is configured")
		res, err := d.cancel(ctx, turn, inv)
		return nil, res, err
	}
	inv.Prompt = &PromptState{Name: promptAuth}
	pr, err := d.deps.Auth.Begin(ctx, turn, inv.Prompt)
	if err != nil {
		return nil, nil, d.fail(ctx, turn, inv, err)
	}
	return d.afterAuth(ctx, turn, inv, pr)
}

// afterAuth 处理登录提示的结果.
// 登录失败或取消时不向技能发送令牌响应，直接以 cancelled 结束调用；
// 结束时仍会发送尽力而为的"取消全部技能对话"事件，与其他非完成结束一致。
func (d *SkillDialog) afterAuth(ctx context.Context, turn *Turn, inv *Invocation, pr PromptResult) (*types.Activity, *Result, error) {
	switch pr.Status {
	case PromptWaiting:
		res, err := d.park(ctx, inv)
		return nil, res, err
	case PromptComplete:
		inv.Prompt = nil
		d.transition(inv, PhaseActive)
		ev, err := tokenResponse(turn.Activity, pr.Token)
		if err != nil {
			return nil, nil, d.fail(ctx, turn, inv, err)
		}
		return ev, nil, nil
	default:
		res, err := d.cancel(ctx, turn, inv)
		return nil, res, err
	}
}

// handleFallback 决定由谁处理技能放弃的轮次.
func (d *SkillDialog) handleFallback(ctx context.Context, turn *Turn, inv *Invocation, fallback *types.Activity) (*types.Activity, *Result, error) {
	d.transition(inv, PhaseAwaitingFallback)
	handled := fallbackHandled(turn.Activity, fallback)

	var target string
	if d.deps.Recognizer != nil {
		var err error
		target, err = d.deps.Recognizer.Recognize(ctx, turn, fallback)
		if err != nil {
			return nil, nil, d.fail(ctx, turn, inv, fmt.Errorf("recognize fallback: %w", err))
		}
	}

	if target == "" || target == inv.SkillID {
		d.transition(inv, PhaseActive)
		return handled, nil, nil
	}

	d.logger.Info("fallback recognized for another skill",
		zap.String("invocation_id", inv.ID),
		zap.String("target_skill_id", target),
		zap.Bool("confirm", d.opts.SkillSwitchConfirmation),
	)
	if d.opts.SkillSwitchConfirmation {
		res, err := d.confirmSkillSwitch(ctx, turn, inv, &SkillSwitchConfirmOption{
			TargetSkillID: target,
			FallbackEvent: handled,
			UserInput:     turn.Activity.Clone(),
		})
		return nil, res, err
	}

	d.End(ctx, turn, inv, ReasonSwitched)
	return nil, &Result{
		Status:        StatusRedispatch,
		SkillID:       inv.SkillID,
		InvocationID:  inv.ID,
		TargetSkillID: target,
		Input:         turn.Activity,
	}, nil
}

func (d *SkillDialog) complete(ctx context.Context, turn *Turn, inv *Invocation, handoff *types.Activity) (*Result, error) {
	var entities map[string]types.Entity
	if handoff != nil && handoff.SemanticAction != nil && len(handoff.SemanticAction.Entities) > 0 {
		entities = make(map[string]types.Entity, len(handoff.SemanticAction.Entities))
		for k, v := range handoff.SemanticAction.Entities {
			entities[k] = v
		}
	}

	d.trace(ctx, turn, TraceSkillCompleted, d.manifest.DisplayName(), map[string]any{"entities": entities})
	d.trace(ctx, turn, TraceHandBack, d.manifest.DisplayName(), nil)
	d.teardown(ctx, inv, ReasonCompleted)

	return &Result{
		Status:       StatusComplete,
		SkillID:      inv.SkillID,
		InvocationID: inv.ID,
		Handoff:      handoff,
		Entities:     entities,
	}, nil
}

// cancel 未经移交结束调用.
func (d *SkillDialog) cancel(ctx context.Context, turn *Turn, inv *Invocation) (*Result, error) {
	d.End(ctx, turn, inv, ReasonCancelled)
	return &Result{Status: StatusCancelled, SkillID: inv.SkillID, InvocationID: inv.ID}, nil
}

// park 持久化调用直到下一轮.
func (d *SkillDialog) park(ctx context.Context, inv *Invocation) (*Result, error) {
	inv.UpdatedAt = d.now().UTC()
	if err := d.deps.Store.SaveInvocation(ctx, inv); err != nil {
		d.client.Disconnect()
		return nil, fmt.Errorf("save invocation: %w", err)
	}
	return &Result{Status: StatusWaiting, SkillID: inv.SkillID, InvocationID: inv.ID}, nil
}

// fail 结束调用并原样返回 err，ctx 已结束时也会执行清理.
func (d *SkillDialog) fail(ctx context.Context, turn *Turn, inv *Invocation, err error) error {
	d.logger.Debug("skill invocation failed",
		zap.String("invocation_id", inv.ID),
		zap.String("code", string(types.GetErrorCode(err))),
		zap.Error(err),
	)
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	d.End(cleanupCtx, turn, inv, ReasonError)
	return err
}

func (d *SkillDialog) teardown(ctx context.Context, inv *Invocation, reason EndReason) {
	d.transition(inv, PhaseTerminated)
	inv.Pending = nil
	inv.Prompt = nil
	inv.SwitchOption = nil
	if err := d.deps.Store.DeleteInvocation(ctx, inv.ConversationID); err != nil {
		d.logger.Warn("delete invocation failed", zap.String("invocation_id", inv.ID), zap.Error(err))
	}
	d.client.Disconnect()
	d.logger.Info("skill invocation ended",
		zap.String("invocation_id", inv.ID),
		zap.String("reason", string(reason)),
		zap.Duration("duration", d.now().Sub(inv.StartedAt)),
	)
}

func (d *SkillDialog) transition(inv *Invocation, to Phase) {
	from := inv.Phase
	if from == to {
		return
	}
	inv.Phase = to
	inv.UpdatedAt = d.now().UTC()
	d.deps.Recorder.RecordTransition(inv.SkillID, string(from), string(to))
	d.logger.Debug("phase transition",
		zap.String("invocation_id", inv.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (d *SkillDialog) sendFailure(err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewError(types.ErrTransportSendFailure, "forward activity to skill").
		WithCause(err).WithSkill(d.manifest.ID)
}

// slotEntities 把匹配的槽位渲染为语义动作实体.
// map 值成为实体属性，其余值放在 "value" 下。
func slotEntities(slots map[string]any) map[string]types.Entity {
	entities := make(map[string]types.Entity, len(slots))
	for name, v := range slots {
		props, ok := v.(map[string]any)
		if !ok {
			props = map[string]any{"value": v}
		}
		entities[name] = types.Entity{Type: name, Properties: props}
	}
	return entities
}

func tokenResponse(ref *types.Activity, token string) (*types.Activity, error) {
	ev := types.NewEvent(ref, types.EventTokenResponse)
	if err := ev.SetValue(map[string]string{"token": token}); err != nil {
		return nil, fmt.Errorf("encode token response: %w", err)
	}
	return ev, nil
}

func fallbackHandled(ref, fallback *types.Activity) *types.Activity {
	ev := types.NewEvent(ref, types.EventFallbackHandled)
	if fallback != nil && len(fallback.Value) > 0 {
		ev.Value = append(ev.Value[:0:0], fallback.Value...)
	}
	return ev
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
