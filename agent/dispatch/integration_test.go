package dispatch_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/BaSui01/skillbridge/agent/credentials"
	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/testutil"
	"github.com/BaSui01/skillbridge/testutil/mocks"
	"github.com/BaSui01/skillbridge/testutil/skillserver"
	"github.com/BaSui01/skillbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newDispatcher(t *testing.T, srv *skillserver.Server) (*dispatch.Dispatcher, *transport.Pool) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := skills.NewRegistry(logger)
	require.NoError(t, reg.Register(srv.Manifest("calendar", skills.Action{
		ID:         "createEvent",
		Definition: skills.ActionDefinition{Slots: []skills.Slot{{Name: "date"}}},
	})))
	pool := transport.NewPool(credentials.StaticProvider("tok"), transport.Options{}, 0, 0, logger)
	t.Cleanup(func() { _ = pool.Close() })

	d := dispatch.NewDispatcher(reg, dispatch.FromPool(pool),
		dispatch.Collaborators{Store: dispatch.NewMemoryStore()},
		dispatch.Options{GenericErrorText: "Something went wrong."}, logger)
	return d, pool
}

func message(text string) *types.Activity {
	return &types.Activity{
		Type:         types.ActivityMessage,
		ID:           "m-1",
		Text:         text,
		From:         types.ChannelAccount{ID: "user-1"},
		Recipient:    types.ChannelAccount{ID: "assistant"},
		Conversation: types.ConversationAccount{ID: "conv-42"},
	}
}

func TestDispatcher_RoundTripOverWebsocket(t *testing.T) {
	srv := skillserver.New(t, func(ctx context.Context, turn *skillserver.Turn) int {
		if turn.Activity.SemanticAction != nil && turn.Activity.SemanticAction.State == types.SemanticActionStart {
			if err := turn.Reply(ctx, "Which time?"); err != nil {
				return http.StatusInternalServerError
			}
			return http.StatusOK
		}
		if err := turn.EndOfConversation(ctx, map[string]types.Entity{
			"event": {Type: "event", Properties: map[string]any{"time": turn.Activity.Text}},
		}); err != nil {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})
	d, pool := newDispatcher(t, srv)
	out := &mocks.Surface{}
	ctx := testutil.TestContext(t)

	_, err := d.UpdateSkillContext(ctx, "conv-42", map[string]any{"date": "tomorrow", "mood": "busy"})
	require.NoError(t, err)

	resp, err := d.HandleTurn(ctx, dispatch.TurnRequest{Activity: message("book a meeting"), SkillID: "calendar", ActionID: "createEvent", Surface: out})
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusWaiting, resp.Status)
	assert.Equal(t, []string{"Which time?"}, out.Messages())
	assert.Equal(t, 1, pool.Len())

	resp, err = d.HandleTurn(ctx, dispatch.TurnRequest{Activity: message("noon"), Surface: out})
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusComplete, resp.Status)
	assert.Equal(t, "noon", resp.Entities["event"].Properties["time"])
	assert.Zero(t, pool.Len())

	received := srv.Received()
	require.Len(t, received, 2)
	start := received[0].SemanticAction
	require.NotNil(t, start)
	assert.Equal(t, "createEvent", start.ID)
	assert.Len(t, start.Entities, 1)
	assert.Equal(t, "tomorrow", start.Entities["date"].Properties["value"])
	assert.Equal(t, "skill-app", received[0].Recipient.ID)
}

func TestDispatcher_DroppedStreamCancelsRemoteDialogs(t *testing.T) {
	srv := skillserver.New(t, func(_ context.Context, turn *skillserver.Turn) int {
		if turn.Activity.IsEvent(types.EventCancelAllSkillDialogs) {
			return http.StatusOK
		}
		turn.Drop()
		return 0
	})
	d, _ := newDispatcher(t, srv)
	out := &mocks.Surface{}
	ctx := testutil.TestContext(t)

	_, err := d.HandleTurn(ctx, dispatch.TurnRequest{Activity: message("book"), SkillID: "calendar", Surface: out})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrHandoffMissing))
	assert.Equal(t, []string{"Something went wrong."}, out.Messages())

	inv, err := d.ActiveInvocation(ctx, "conv-42")
	require.NoError(t, err)
	assert.Nil(t, inv)

	require.Eventually(t, func() bool {
		return testutil.HasEvent(srv.Received(), types.EventCancelAllSkillDialogs)
	}, 5*time.Second, 20*time.Millisecond)
}
