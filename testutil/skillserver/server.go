// Package skillserver runs a scripted websocket skill for tests.
package skillserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/skillbridge/agent/credentials"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Handler scripts the skill's answer to one host activity. It returns the
// status of the response frame; 0 sends no response.
type Handler func(ctx context.Context, turn *Turn) int

// Server is an httptest server speaking the skill side of the frame protocol.
type Server struct {
	*httptest.Server

	handler  Handler
	verifier *credentials.Verifier
	appID    string

	rejectHandshakes atomic.Int32
	connections      atomic.Int32

	mu       sync.Mutex
	received []*types.Activity
	headers  []map[string]string
}

// Option configures a Server.
type Option func(*Server)

// WithVerifier rejects handshakes whose bearer token fails verification.
func WithVerifier(v *credentials.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithRejectedHandshakes answers the first n handshakes with 401.
func WithRejectedHandshakes(n int) Option {
	return func(s *Server) { s.rejectHandshakes.Store(int32(n)) }
}

// WithAppID sets the app id used in Manifest.
func WithAppID(appID string) Option {
	return func(s *Server) { s.appID = appID }
}

// New starts a skill server closed at test cleanup.
func New(t testing.TB, handler Handler, opts ...Option) *Server {
	t.Helper()
	s := &Server{handler: handler, appID: "skill-app"}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(s.Close)
	return s
}

// Manifest describes this server as a skill with the given id and actions.
func (s *Server) Manifest(id string, actions ...skills.Action) *skills.Manifest {
	return &skills.Manifest{
		ID:       id,
		Name:     id,
		Endpoint: s.URL + transport.PathMessages,
		MSAAppID: s.appID,
		Actions:  actions,
	}
}

// Received returns every activity the host forwarded, in order.
func (s *Server) Received() []*types.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Activity, len(s.received))
	copy(out, s.received)
	return out
}

// Headers returns the frame headers of every forwarded activity.
func (s *Server) Headers() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, len(s.headers))
	copy(out, s.headers)
	return out
}

// Connections returns the number of accepted websocket connections.
func (s *Server) Connections() int { return int(s.connections.Load()) }

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.rejectHandshakes.Add(-1) >= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.verifier != nil {
		if _, err := s.verifier.VerifyHeader(r.Header.Get("Authorization")); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{transport.Subprotocol},
	})
	if err != nil {
		return
	}
	s.connections.Add(1)

	sess := &session{
		server:  s,
		ws:      ws,
		pending: make(map[string]chan *transport.Frame),
		work:    make(chan *transport.Frame, 16),
	}
	sess.run(r.Context())
}

type session struct {
	server *Server
	ws     *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[string]chan *transport.Frame
	work    chan *transport.Frame
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.ws.CloseNow()

	go s.worker(ctx)

	for {
		_, data, err := s.ws.Read(ctx)
		if err != nil {
			return
		}
		var f transport.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return
		}
		if f.Kind == transport.FrameResponse {
			s.mu.Lock()
			ch := s.pending[f.ID]
			delete(s.pending, f.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- &f
			}
			continue
		}
		select {
		case s.work <- &f:
		case <-ctx.Done():
			return
		}
	}
}

// worker handles host requests one at a time so a handler may call Turn.Send
// while the read loop keeps delivering acknowledgements.
func (s *session) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.work:
			a, err := f.Activity()
			if err != nil {
				_ = s.respond(ctx, f, http.StatusBadRequest)
				continue
			}
			s.server.mu.Lock()
			s.server.received = append(s.server.received, a)
			s.server.headers = append(s.server.headers, f.Headers)
			s.server.mu.Unlock()

			turn := &Turn{Activity: a, Headers: f.Headers, sess: s}
			status := http.StatusOK
			if s.server.handler != nil {
				status = s.server.handler(ctx, turn)
			}
			if status != 0 && !turn.closed {
				_ = s.respond(ctx, f, status)
			}
		}
	}
}

func (s *session) respond(ctx context.Context, req *transport.Frame, status int) error {
	resp, err := transport.NewResponse(req, status, nil)
	if err != nil {
		return err
	}
	return s.write(ctx, resp)
}

func (s *session) write(ctx context.Context, f *transport.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.Write(ctx, websocket.MessageText, data)
}

// Turn is one host activity being handled by the skill.
type Turn struct {
	Activity *types.Activity
	Headers  map[string]string

	sess   *session
	closed bool
}

// Send posts a to the host and waits for the acknowledgement status.
func (t *Turn) Send(ctx context.Context, a *types.Activity) (int, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Conversation.ID == "" {
		a.Conversation = t.Activity.Conversation
	}
	req, err := transport.NewRequest(http.MethodPost, transport.ActivityPath(a.Conversation.ID, a.ID), a)
	if err != nil {
		return 0, err
	}

	ch := make(chan *transport.Frame, 1)
	t.sess.mu.Lock()
	t.sess.pending[req.ID] = ch
	t.sess.mu.Unlock()

	if err := t.sess.write(ctx, req); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	select {
	case resp := <-ch:
		return resp.Status, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("waiting for host ack: %w", ctx.Err())
	}
}

// Reply sends a text message back to the user.
func (t *Turn) Reply(ctx context.Context, text string) error {
	_, err := t.Send(ctx, types.NewMessage(t.Activity, text))
	return err
}

// RequestToken raises a tokens/request event.
func (t *Turn) RequestToken(ctx context.Context) error {
	_, err := t.Send(ctx, t.event(types.EventTokenRequest))
	return err
}

// RequestFallback raises a fallback/request event.
func (t *Turn) RequestFallback(ctx context.Context) error {
	_, err := t.Send(ctx, t.event(types.EventFallbackRequest))
	return err
}

// EndOfConversation hands control back to the host, optionally with entities.
func (t *Turn) EndOfConversation(ctx context.Context, entities map[string]types.Entity) error {
	eoc := types.NewMessage(t.Activity, "")
	eoc.Type = types.ActivityEndOfConversation
	eoc.Speak = ""
	if entities != nil {
		eoc.SemanticAction = &types.SemanticAction{Entities: entities}
	}
	_, err := t.Send(ctx, eoc)
	return err
}

// Drop closes the connection without answering the request.
func (t *Turn) Drop() {
	t.closed = true
	_ = t.sess.ws.CloseNow()
}

func (t *Turn) event(name string) *types.Activity {
	ev := types.NewEvent(t.Activity, name)
	ev.From, ev.Recipient = t.Activity.Recipient, t.Activity.From
	return ev
}

// Script answers every activity with the same sequence of steps.
func Script(steps ...func(ctx context.Context, turn *Turn) error) Handler {
	return func(ctx context.Context, turn *Turn) int {
		for _, step := range steps {
			if err := step(ctx, turn); err != nil {
				return http.StatusInternalServerError
			}
		}
		return http.StatusOK
	}
}
