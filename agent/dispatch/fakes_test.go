package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/types"
)

// step scripts the skill's answer to one forwarded activity.
type step func(h transport.Handlers) (*types.Activity, error)

func waiting() step {
	return func(transport.Handlers) (*types.Activity, error) { return nil, nil }
}

func handoff(entities map[string]types.Entity) step {
	return func(transport.Handlers) (*types.Activity, error) {
		a := &types.Activity{Type: types.ActivityEndOfConversation}
		if entities != nil {
			a.SemanticAction = &types.SemanticAction{Entities: entities}
		}
		return a, nil
	}
}

func raise(kinds ...transport.CallbackKind) step {
	return func(h transport.Handlers) (*types.Activity, error) {
		for _, k := range kinds {
			name := types.EventTokenRequest
			if k == transport.CallbackFallbackRequest {
				name = types.EventFallbackRequest
			}
			ev := &types.Activity{Type: types.ActivityEvent, Name: name, Value: []byte(`{"reason":"unknown"}`)}
			h.OnCallback(transport.CallbackRequest{Kind: k, Activity: ev})
		}
		return nil, nil
	}
}

func reply(text string, then step) step {
	return func(h transport.Handlers) (*types.Activity, error) {
		if err := h.OnActivity(context.Background(), &types.Activity{Type: types.ActivityMessage, Text: text}); err != nil {
			return nil, err
		}
		return then(h)
	}
}

func failWith(err error) step {
	return func(transport.Handlers) (*types.Activity, error) { return nil, err }
}

// fakeClient is a scripted SkillClient. Once the script runs out every
// forward waits.
type fakeClient struct {
	mu          sync.Mutex
	steps       []step
	sent        []*types.Activity
	cancels     int
	disconnects int
	repeat      step
}

func newFakeClient(steps ...step) *fakeClient {
	return &fakeClient{steps: steps}
}

func (c *fakeClient) Forward(_ context.Context, a *types.Activity, h transport.Handlers) (*types.Activity, error) {
	c.mu.Lock()
	c.sent = append(c.sent, a.Clone())
	var s step
	switch {
	case len(c.steps) > 0:
		s = c.steps[0]
		c.steps = c.steps[1:]
	case c.repeat != nil:
		s = c.repeat
	default:
		s = waiting()
	}
	c.mu.Unlock()
	return s(h)
}

func (c *fakeClient) CancelRemoteDialogs(context.Context, *types.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Sent() []*types.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Activity(nil), c.sent...)
}

func (c *fakeClient) Cancels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

// fakeClients hands out one fakeClient per skill.
type fakeClients struct {
	mu       sync.Mutex
	clients  map[string]*fakeClient
	released []string
}

func newFakeClients(clients map[string]*fakeClient) *fakeClients {
	return &fakeClients{clients: clients}
}

func (s *fakeClients) Client(_ string, m *skills.Manifest) SkillClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[m.ID]
	if !ok {
		c = newFakeClient()
		s.clients[m.ID] = c
	}
	return c
}

func (s *fakeClients) Release(_, skillID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, skillID)
}

// scriptedPrompt answers Begin and Continue from fixed queues.
type scriptedPrompt struct {
	begins    []PromptResult
	continues []PromptResult
	calls     []string
}

func (p *scriptedPrompt) Begin(_ context.Context, _ *Turn, _ *PromptState) (PromptResult, error) {
	p.calls = append(p.calls, "begin")
	return pop(&p.begins), nil
}

func (p *scriptedPrompt) Continue(_ context.Context, _ *Turn, _ *PromptState) (PromptResult, error) {
	p.calls = append(p.calls, "continue")
	return pop(&p.continues), nil
}

func pop(q *[]PromptResult) PromptResult {
	if len(*q) == 0 {
		return PromptResult{Status: PromptWaiting}
	}
	r := (*q)[0]
	*q = (*q)[1:]
	return r
}

type fixedRecognizer string

func (r fixedRecognizer) Recognize(context.Context, *Turn, *types.Activity) (string, error) {
	return string(r), nil
}

// failingStore fails every save.
type failingStore struct{ *MemoryStore }

func (failingStore) SaveInvocation(context.Context, *Invocation) error {
	return errors.New("store unavailable")
}

func userMessage(text string) *types.Activity {
	return &types.Activity{
		Type:         types.ActivityMessage,
		ID:           "act-1",
		Text:         text,
		Speak:        text,
		From:         types.ChannelAccount{ID: "user-1"},
		Recipient:    types.ChannelAccount{ID: "host-bot"},
		Conversation: types.ConversationAccount{ID: "conv-1"},
	}
}
