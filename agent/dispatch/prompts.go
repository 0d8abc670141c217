package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/skillbridge/types"
)

var (
	yesWords = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true, "confirm": true}
	noWords  = map[string]bool{"no": true, "n": true, "nope": true, "nah": true, "cancel": true, "stop": true}
)

// YesNoPrompt 英文是/否确认提示.
// 无法识别的回答最多重问 MaxRetries 次，之后按否处理。
type YesNoPrompt struct {
	MaxRetries  int
	RetryPrefix string
}

// NewYesNoPrompt 返回最多重问 maxRetries 次的提示.
func NewYesNoPrompt(maxRetries int) *YesNoPrompt {
	return &YesNoPrompt{MaxRetries: maxRetries, RetryPrefix: "Please answer yes or no."}
}

// Begin 提出 state.Text 中的问题.
func (p *YesNoPrompt) Begin(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error) {
	state.Attempts = 0
	if err := say(ctx, turn, state.Text); err != nil {
		return PromptResult{}, err
	}
	return PromptResult{Status: PromptWaiting}, nil
}

// Continue 从轮次中读取回答.
func (p *YesNoPrompt) Continue(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error) {
	if answer, ok := parseYesNo(turn.Activity); ok {
		return PromptResult{Status: PromptComplete, Confirmed: answer}, nil
	}
	state.Attempts++
	if state.Attempts > p.MaxRetries {
		return PromptResult{Status: PromptComplete, Confirmed: false}, nil
	}
	text := strings.TrimSpace(p.RetryPrefix + " " + state.Text)
	if err := say(ctx, turn, text); err != nil {
		return PromptResult{}, err
	}
	return PromptResult{Status: PromptWaiting}, nil
}

func parseYesNo(a *types.Activity) (bool, bool) {
	if a == nil || a.Type != types.ActivityMessage {
		return false, false
	}
	word := strings.ToLower(strings.Trim(strings.TrimSpace(a.Text), ".!?"))
	switch {
	case yesWords[word]:
		return true, true
	case noWords[word]:
		return false, true
	default:
		return false, false
	}
}

// SurfaceAuthPrompt 向宿主渠道索取用户令牌.
// Begin 向渠道转发 tokens/request 事件；渠道以 tokens/response 事件应答，
// 其 value 携带 {"token": "..."}。用户回复 "cancel" 中止登录。
type SurfaceAuthPrompt struct {
	// Prompt 随请求一起发送的消息，为空则不发送
	Prompt string
}

// Begin 实现 AuthPrompt.
func (p *SurfaceAuthPrompt) Begin(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error) {
	state.Attempts = 0
	if turn.Surface == nil {
		return PromptResult{Status: PromptCancelled}, nil
	}
	out := []*types.Activity{types.NewEvent(turn.Activity, types.EventTokenRequest)}
	out[0].From, out[0].Recipient = turn.Activity.Recipient, turn.Activity.From
	if p.Prompt != "" {
		out = append(out, types.NewMessage(turn.Activity, p.Prompt))
	}
	if err := turn.Surface.SendActivities(ctx, out...); err != nil {
		return PromptResult{}, err
	}
	return PromptResult{Status: PromptWaiting}, nil
}

// Continue 实现 AuthPrompt.
func (p *SurfaceAuthPrompt) Continue(ctx context.Context, turn *Turn, state *PromptState) (PromptResult, error) {
	a := turn.Activity
	if a.IsEvent(types.EventTokenResponse) {
		var v struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(a.Value, &v); err == nil && v.Token != "" {
			return PromptResult{Status: PromptComplete, Token: v.Token}, nil
		}
	}
	if answer, ok := parseYesNo(a); ok && !answer {
		return PromptResult{Status: PromptCancelled}, nil
	}
	state.Attempts++
	return PromptResult{Status: PromptWaiting}, nil
}

func say(ctx context.Context, turn *Turn, text string) error {
	if turn.Surface == nil || text == "" {
		return nil
	}
	return turn.Surface.SendActivities(ctx, types.NewMessage(turn.Activity, text))
}
