package transport_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/skillbridge/agent/credentials"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/testutil"
	"github.com/BaSui01/skillbridge/testutil/skillserver"
	"github.com/BaSui01/skillbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	callbacks []string
}

func (o *recordingObserver) ObserveForward(_, _, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) RecordCallback(_, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = append(o.callbacks, kind)
}

func userMessage(text string) *types.Activity {
	return &types.Activity{
		Type:         types.ActivityMessage,
		ID:           "act-1",
		Text:         text,
		From:         types.ChannelAccount{ID: "user-1"},
		Recipient:    types.ChannelAccount{ID: "host-bot"},
		Conversation: types.ConversationAccount{ID: "conv-1"},
	}
}

func newClient(t *testing.T, srv *skillserver.Server, obs transport.Observer) *transport.Client {
	t.Helper()
	c := transport.NewClient(srv.Manifest("calendar"), credentials.StaticProvider("tok"),
		transport.Options{Observer: obs}, zaptest.NewLogger(t))
	t.Cleanup(c.Disconnect)
	return c
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	srv := skillserver.New(t, nil)
	c := newClient(t, srv, nil)
	ctx := testutil.TestContext(t)

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.Connected())
	assert.Equal(t, 1, srv.Connections())
	assert.Equal(t, "ws", c.Endpoint()[:2])
}

func TestClient_ForwardWaitingWithoutHandoff(t *testing.T) {
	srv := skillserver.New(t, skillserver.Script(func(ctx context.Context, turn *skillserver.Turn) error {
		return turn.Reply(ctx, "which day?")
	}))
	obs := &recordingObserver{}
	c := newClient(t, srv, obs)

	var relayed []*types.Activity
	handoff, err := c.Forward(testutil.TestContext(t), userMessage("book a meeting"), transport.Handlers{
		OnActivity: func(_ context.Context, a *types.Activity) error {
			relayed = append(relayed, a)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, handoff)
	require.Len(t, relayed, 1)
	assert.Equal(t, "which day?", relayed[0].Text)
	assert.Equal(t, []string{transport.OutcomeWaiting}, obs.outcomes)
}

func TestClient_ForwardSubstitutesRecipientOnWireOnly(t *testing.T) {
	srv := skillserver.New(t, nil, skillserver.WithAppID("calendar-app"))
	c := newClient(t, srv, nil)

	in := userMessage("hi")
	_, err := c.Forward(testutil.TestContext(t), in, transport.Handlers{})
	require.NoError(t, err)

	received := srv.Received()
	require.Len(t, received, 1)
	assert.Equal(t, "calendar-app", received[0].Recipient.ID)
	assert.Equal(t, "host-bot", in.Recipient.ID, "caller's activity must be untouched")

	headers := srv.Headers()[0]
	assert.Equal(t, "Bearer tok", headers["Authorization"])
	assert.Equal(t, "conv-1", headers["Conversation-Id"])
}

func TestClient_ForwardReturnsHandoff(t *testing.T) {
	srv := skillserver.New(t, skillserver.Script(
		func(ctx context.Context, turn *skillserver.Turn) error { return turn.Reply(ctx, "done") },
		func(ctx context.Context, turn *skillserver.Turn) error {
			return turn.EndOfConversation(ctx, map[string]types.Entity{
				"meeting": {Type: "meeting", Properties: map[string]any{"id": "m-1"}},
			})
		},
	))
	obs := &recordingObserver{}
	c := newClient(t, srv, obs)

	handoff, err := c.Forward(testutil.TestContext(t), userMessage("book it"), transport.Handlers{})
	require.NoError(t, err)
	require.NotNil(t, handoff)
	assert.Equal(t, types.ActivityEndOfConversation, handoff.Type)
	require.NotNil(t, handoff.SemanticAction)
	assert.Equal(t, "m-1", handoff.SemanticAction.Entities["meeting"].Properties["id"])
	assert.Equal(t, []string{transport.OutcomeHandoff}, obs.outcomes)
	assert.Equal(t, []string{string(transport.CallbackHandoff)}, obs.callbacks)
}

func TestClient_ForwardDeliversCallbacksInOrder(t *testing.T) {
	srv := skillserver.New(t, skillserver.Script(
		func(ctx context.Context, turn *skillserver.Turn) error { return turn.RequestFallback(ctx) },
		func(ctx context.Context, turn *skillserver.Turn) error { return turn.RequestToken(ctx) },
	))
	c := newClient(t, srv, nil)

	var got []transport.CallbackKind
	_, err := c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{
		OnCallback: func(cb transport.CallbackRequest) { got = append(got, cb.Kind) },
	})
	require.NoError(t, err)
	assert.Equal(t, []transport.CallbackKind{transport.CallbackFallbackRequest, transport.CallbackTokenRequest}, got)
}

func TestClient_StreamClosedWithoutHandoff(t *testing.T) {
	srv := skillserver.New(t, func(ctx context.Context, turn *skillserver.Turn) int {
		turn.Drop()
		return 0
	})
	obs := &recordingObserver{}
	c := newClient(t, srv, obs)

	_, err := c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrHandoffMissing))
	assert.Equal(t, []string{transport.OutcomeError}, obs.outcomes)
}

func TestClient_StreamClosedAfterHandoff(t *testing.T) {
	srv := skillserver.New(t, func(ctx context.Context, turn *skillserver.Turn) int {
		_ = turn.EndOfConversation(ctx, nil)
		turn.Drop()
		return 0
	})
	c := newClient(t, srv, nil)

	handoff, err := c.Forward(testutil.TestContext(t), userMessage("bye"), transport.Handlers{})
	require.NoError(t, err)
	require.NotNil(t, handoff)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := skillserver.New(t, func(context.Context, *skillserver.Turn) int {
		return http.StatusInternalServerError
	})
	c := newClient(t, srv, nil)

	_, err := c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTransportSendFailure))
	assert.True(t, types.IsRetryable(err))
}

func TestClient_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := skillserver.New(t, func(ctx context.Context, turn *skillserver.Turn) int {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return http.StatusOK
	})
	t.Cleanup(func() { close(release) })
	c := newClient(t, srv, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Forward(ctx, userMessage("hi"), transport.Handlers{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_RetriesHandshakeOnceAfter401(t *testing.T) {
	srv := skillserver.New(t, nil, skillserver.WithRejectedHandshakes(1))
	p, err := credentials.NewJWTProvider(credentials.Config{AppID: "host", Secret: "s"}, nil)
	require.NoError(t, err)

	c := transport.NewClient(srv.Manifest("calendar"), p, transport.Options{}, zaptest.NewLogger(t))
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(testutil.TestContext(t)))
	assert.Equal(t, 1, srv.Connections())
}

func TestClient_GivesUpAfterSecond401(t *testing.T) {
	srv := skillserver.New(t, nil, skillserver.WithRejectedHandshakes(2))
	c := newClient(t, srv, nil)

	err := c.Connect(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTransportSendFailure))
	assert.Equal(t, 0, srv.Connections())
}

func TestClient_VerifiedJWT(t *testing.T) {
	v, err := credentials.NewVerifier("host", "skill-app", "s3cret", "")
	require.NoError(t, err)
	srv := skillserver.New(t, nil, skillserver.WithVerifier(v))
	p, err := credentials.NewJWTProvider(credentials.Config{AppID: "host", Secret: "s3cret"}, nil)
	require.NoError(t, err)

	c := transport.NewClient(srv.Manifest("calendar"), p, transport.Options{}, nil)
	t.Cleanup(c.Disconnect)

	_, err = c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{})
	require.NoError(t, err)
}

func TestClient_CancelRemoteDialogsNeverFails(t *testing.T) {
	srv := skillserver.New(t, func(context.Context, *skillserver.Turn) int {
		return http.StatusBadGateway
	})
	c := newClient(t, srv, nil)

	assert.NotPanics(t, func() {
		c.CancelRemoteDialogs(testutil.TestContext(t), userMessage("cancel"))
	})
	received := srv.Received()
	require.Len(t, received, 1)
	assert.True(t, received[0].IsEvent(types.EventCancelAllSkillDialogs))
	assert.Empty(t, received[0].Value)
}

func TestClient_CancelRemoteDialogsUnreachable(t *testing.T) {
	srv := skillserver.New(t, nil)
	m := srv.Manifest("calendar")
	m.Endpoint = "http://127.0.0.1:1/api/messages"
	c := transport.NewClient(m, credentials.StaticProvider("tok"), transport.Options{DialTimeout: 200 * time.Millisecond}, nil)

	c.CancelRemoteDialogs(testutil.TestContext(t), userMessage("cancel"))
}

func TestClient_DisconnectWithoutConnection(t *testing.T) {
	srv := skillserver.New(t, nil)
	c := newClient(t, srv, nil)

	assert.NotPanics(t, c.Disconnect)
	assert.NotPanics(t, c.Disconnect)
	assert.False(t, c.Connected())
}

func TestClient_ReconnectsAfterDisconnect(t *testing.T) {
	srv := skillserver.New(t, nil)
	c := newClient(t, srv, nil)
	ctx := testutil.TestContext(t)

	_, err := c.Forward(ctx, userMessage("one"), transport.Handlers{})
	require.NoError(t, err)
	c.Disconnect()
	_, err = c.Forward(ctx, userMessage("two"), transport.Handlers{})
	require.NoError(t, err)

	assert.Equal(t, 2, srv.Connections())
	assert.Len(t, srv.Received(), 2)
}

func TestClient_ForwardSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	srv := skillserver.New(t, nil)
	c := newClient(t, srv, nil)

	_, err := c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	span := spans[len(spans)-1]
	assert.Equal(t, "skill.forward", span.Name())

	attrs := map[string]bool{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = true
	}
	assert.True(t, attrs["skill.id"])
	assert.True(t, attrs["skill.endpoint"])
	assert.True(t, attrs["skill.latency_ms"])
}

// remindAfterTurn answers each host activity at once and later pushes an
// unsolicited "reminder" message once push is closed.
func remindAfterTurn(push <-chan struct{}, acks chan<- int) skillserver.Handler {
	return func(_ context.Context, turn *skillserver.Turn) int {
		go func() {
			<-push
			status, err := turn.Send(context.Background(), types.NewMessage(turn.Activity, "reminder"))
			if err == nil {
				acks <- status
			}
		}()
		return http.StatusOK
	}
}

func TestClient_UnsolicitedActivityIsAcknowledged(t *testing.T) {
	push := make(chan struct{})
	acks := make(chan int, 1)
	srv := skillserver.New(t, remindAfterTurn(push, acks))

	got := make(chan *types.Activity, 1)
	c := transport.NewClient(srv.Manifest("calendar"), credentials.StaticProvider("tok"), transport.Options{
		OnUnsolicited: func(_ context.Context, a *types.Activity) error {
			got <- a
			return nil
		},
	}, zaptest.NewLogger(t))
	t.Cleanup(c.Disconnect)

	_, err := c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{})
	require.NoError(t, err)
	close(push)

	a, ok := testutil.WaitForChannel[*types.Activity](got, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "reminder", a.Text)
	status, ok := testutil.WaitForChannel[int](acks, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
}

func TestClient_DisconnectWhileUnsolicitedHandlerRuns(t *testing.T) {
	push := make(chan struct{})
	srv := skillserver.New(t, remindAfterTurn(push, make(chan int, 1)))

	entered := make(chan *types.Activity, 1)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c := transport.NewClient(srv.Manifest("calendar"), credentials.StaticProvider("tok"), transport.Options{
		OnUnsolicited: func(_ context.Context, a *types.Activity) error {
			entered <- a
			<-release
			return nil
		},
	}, nil)

	_, err := c.Forward(testutil.TestContext(t), userMessage("hi"), transport.Handlers{})
	require.NoError(t, err)
	close(push)
	_, ok := testutil.WaitForChannel[*types.Activity](entered, 2*time.Second)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Disconnect()
	}()
	_, ok = testutil.WaitForChannel[struct{}](done, time.Second)
	assert.True(t, ok, "Disconnect blocked on the unsolicited handler")
	assert.False(t, c.Connected())
}
