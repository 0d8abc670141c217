package dispatch

import (
	"context"
	"fmt"

	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
)

// confirmSkillSwitch 询问用户是否离开当前技能.
// 等待回答期间不联系任何技能。
func (d *SkillDialog) confirmSkillSwitch(ctx context.Context, turn *Turn, inv *Invocation, opt *SkillSwitchConfirmOption) (*Result, error) {
	inv.SwitchOption = opt
	d.transition(inv, PhaseConfirmingSwitch)
	if opt == nil || d.deps.Confirm == nil {
		return d.finishSkillSwitch(ctx, turn, inv, false)
	}

	inv.Prompt = &PromptState{
		Name: promptConfirm,
		Text: fmt.Sprintf(d.opts.SwitchPromptTemplate, d.displayName(opt.TargetSkillID)),
	}
	pr, err := d.deps.Confirm.Begin(ctx, turn, inv.Prompt)
	if err != nil {
		return nil, d.fail(ctx, turn, inv, err)
	}
	if pr.Status == PromptComplete {
		return d.finishSkillSwitch(ctx, turn, inv, pr.Confirmed)
	}
	return d.park(ctx, inv)
}

// finishSkillSwitch 应用用户的回答.
// 回答是：取消当前技能，并把原始输入重新派发给目标技能；
// 其他回答：把原始输入重新发给当前技能。
func (d *SkillDialog) finishSkillSwitch(ctx context.Context, turn *Turn, inv *Invocation, confirmed bool) (*Result, error) {
	opt := inv.SwitchOption
	inv.SwitchOption = nil
	inv.Prompt = nil

	if confirmed && opt != nil {
		d.logger.Info("skill switch confirmed",
			zap.String("invocation_id", inv.ID),
			zap.String("target_skill_id", opt.TargetSkillID),
		)
		d.client.CancelRemoteDialogs(ctx, turn.Activity)
		restoreUserInput(turn.Activity, opt.UserInput)
		d.teardown(ctx, inv, ReasonSwitched)
		return &Result{
			Status:        StatusRestart,
			SkillID:       inv.SkillID,
			InvocationID:  inv.ID,
			TargetSkillID: opt.TargetSkillID,
			Input:         turn.Activity,
		}, nil
	}

	input := turn.Activity
	if opt != nil && opt.UserInput != nil {
		input = opt.UserInput
	}
	d.transition(inv, PhaseActive)
	return d.forwardToSkill(ctx, turn, inv, input.Clone())
}

// restoreUserInput 把用户最初的输入放回当前轮次的活动.
func restoreUserInput(a, original *types.Activity) {
	if a == nil || original == nil {
		return
	}
	a.Type = original.Type
	a.Name = original.Name
	a.Text = original.Text
	a.Speak = original.Speak
	a.Value = original.Value
	a.SemanticAction = nil
}

func (d *SkillDialog) displayName(skillID string) string {
	if d.deps.Registry != nil {
		if m, ok := d.deps.Registry.Get(skillID); ok {
			return m.DisplayName()
		}
	}
	return skillID
}
