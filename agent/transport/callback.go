package transport

import (
	"context"

	"github.com/BaSui01/skillbridge/types"
)

// CallbackKind tags the out-of-band requests a skill can raise during an exchange.
type CallbackKind string

const (
	CallbackTokenRequest    CallbackKind = "token_request"
	CallbackFallbackRequest CallbackKind = "fallback_request"
	CallbackHandoff         CallbackKind = "handoff"
)

// CallbackRequest is handed by value from the transport to the dispatcher and
// consumed exactly once.
type CallbackRequest struct {
	Kind     CallbackKind    `json:"kind"`
	Activity *types.Activity `json:"activity,omitempty"`
}

// Classify maps an inbound skill activity onto a callback kind. The second
// result is false for ordinary replies that should be relayed to the user.
func Classify(a *types.Activity) (CallbackKind, bool) {
	switch {
	case a == nil:
		return "", false
	case a.Type == types.ActivityEndOfConversation:
		return CallbackHandoff, true
	case a.IsEvent(types.EventTokenRequest):
		return CallbackTokenRequest, true
	case a.IsEvent(types.EventFallbackRequest):
		return CallbackFallbackRequest, true
	default:
		return "", false
	}
}

// Handlers receive what a skill sends while a Forward is in flight. Both run on
// the forwarding goroutine.
type Handlers struct {
	// OnCallback receives token and fallback requests.
	OnCallback func(CallbackRequest)
	// OnActivity receives ordinary replies (messages, traces, ...).
	OnActivity func(ctx context.Context, a *types.Activity) error
}
