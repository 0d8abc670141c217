package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/skillbridge/agent/credentials"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/internal/telemetry"
	"github.com/BaSui01/skillbridge/types"
	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/BaSui01/skillbridge/agent/transport"

// Forward outcomes reported to the Observer.
const (
	OutcomeHandoff   = "handoff"
	OutcomeWaiting   = "waiting"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Observer records forward latency and callback counts. *metrics.Collector
// satisfies it.
type Observer interface {
	ObserveForward(skill, endpoint, outcome string, d time.Duration)
	RecordCallback(skill, kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveForward(string, string, string, time.Duration) {}
func (nopObserver) RecordCallback(string, string)                         {}

// Options tune a Client. Zero values select defaults.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	// Limiter throttles forwards to one skill; nil means unlimited.
	Limiter *rate.Limiter
	// HTTPClient is used for the websocket handshake.
	HTTPClient *http.Client
	Observer   Observer
	// OnUnsolicited receives activities a skill posts while no forward is
	// in flight, e.g. proactive messages.
	OnUnsolicited func(ctx context.Context, a *types.Activity) error
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// exchange is the state of one in-flight Forward.
type exchange struct {
	requests chan *Frame
	done     chan struct{}
}

// Client owns one streaming connection to one skill.
type Client struct {
	manifest *skills.Manifest
	endpoint string
	creds    credentials.Provider
	opts     Options
	tracer   trace.Tracer
	logger   *zap.Logger

	connectMu sync.Mutex

	mu       sync.Mutex
	conn     *conn
	exchange *exchange
}

// NewClient creates a client for manifest. No connection is opened until
// Connect or Forward is called.
func NewClient(manifest *skills.Manifest, creds credentials.Provider, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := NormalizeEndpoint(manifest.Endpoint)
	return &Client{
		manifest: manifest,
		endpoint: endpoint,
		creds:    creds,
		opts:     opts.withDefaults(),
		tracer:   otel.Tracer(tracerName),
		logger: logger.With(
			zap.String("component", "skill_transport"),
			zap.String("skill_id", manifest.ID),
			zap.String("endpoint", endpoint),
		),
	}
}

// Manifest returns the skill this client talks to.
func (c *Client) Manifest() *skills.Manifest { return c.manifest }

// Endpoint returns the normalized websocket endpoint.
func (c *Client) Endpoint() string { return c.endpoint }

// Connected reports whether an open connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.isClosed()
}

// Connect opens the connection if it is not already open. A 401 handshake
// invalidates the cached credential and is retried once.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.Connected() {
		return nil
	}

	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}

	cn := newConn(ws, c.opts.WriteTimeout, c.routeRequest, c.logger)
	c.mu.Lock()
	old := c.conn
	c.conn = cn
	c.mu.Unlock()
	if old != nil {
		_ = old.close("replaced")
	}

	c.logger.Info("skill connected")
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	audience := c.manifest.MSAAppID
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.creds.Token(ctx, audience)
		if err != nil {
			return nil, types.NewError(types.ErrTransportSendFailure, "acquire skill token").
				WithCause(err).WithSkill(c.manifest.ID)
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		ws, resp, err := websocket.Dial(dialCtx, c.endpoint, &websocket.DialOptions{
			HTTPClient:   c.opts.HTTPClient,
			HTTPHeader:   header,
			Subprotocols: []string{Subprotocol},
		})
		cancel()
		if err == nil {
			ws.SetReadLimit(c.opts.ReadLimit)
			return ws, nil
		}

		if resp != nil && resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("skill rejected credentials, refreshing token")
			c.creds.Invalidate(audience)
			continue
		}
		return nil, types.NewError(types.ErrTransportSendFailure, "connect to skill").
			WithCause(err).WithSkill(c.manifest.ID).WithRetryable(true)
	}
	return nil, types.NewError(types.ErrTransportSendFailure, "skill rejected refreshed credentials").
		WithSkill(c.manifest.ID)
}

// Forward sends activity to the skill and waits for the skill to answer.
// While waiting, token and fallback requests go to h.OnCallback and other
// activities to h.OnActivity. It returns the handoff activity if the skill
// signalled one, or nil if the skill expects another turn. If the stream
// closes before the skill answers and no handoff was seen, the error is
// HANDOFF_MISSING.
func (c *Client) Forward(ctx context.Context, activity *types.Activity, h Handlers) (*types.Activity, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "skill.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("skill.id", c.manifest.ID),
			attribute.String("skill.endpoint", c.endpoint),
		),
	)
	defer span.End()

	handoff, err := c.forward(ctx, activity, h)

	elapsed := time.Since(start)
	outcome := OutcomeWaiting
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = OutcomeCancelled
	case err != nil:
		outcome = OutcomeError
	case handoff != nil:
		outcome = OutcomeHandoff
	}

	span.SetAttributes(
		attribute.Int64("skill.latency_ms", elapsed.Milliseconds()),
		attribute.String("skill.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.opts.Observer.ObserveForward(c.manifest.ID, c.endpoint, outcome, elapsed)
	c.logger.Debug("activity forwarded",
		zap.String("skill_name", c.manifest.DisplayName()),
		zap.String("activity_type", string(activity.Type)),
		zap.String("outcome", outcome),
		zap.Duration("latency", elapsed),
	)
	return handoff, err
}

func (c *Client) forward(ctx context.Context, activity *types.Activity, h Handlers) (*types.Activity, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return nil, c.sendError("wait for forward slot", err)
		}
	}

	token, err := c.creds.Token(ctx, c.manifest.MSAAppID)
	if err != nil {
		return nil, c.sendError("acquire skill token", err)
	}

	// The skill identity goes on the wire copy only.
	outbound := activity.Clone()
	if c.manifest.MSAAppID != "" {
		outbound.Recipient.ID = c.manifest.MSAAppID
	}
	req, err := NewRequest(http.MethodPost, PathMessages, outbound)
	if err != nil {
		return nil, c.sendError("encode activity", err)
	}
	req.Headers["Authorization"] = "Bearer " + token
	req.Headers["Conversation-Id"] = activity.Conversation.ID
	telemetry.InjectHeaders(ctx, req.Headers)

	c.mu.Lock()
	cn := c.conn
	ex := &exchange{requests: make(chan *Frame, 16), done: make(chan struct{})}
	c.exchange = ex
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.exchange == ex {
			c.exchange = nil
		}
		c.mu.Unlock()
		close(ex.done)
	}()

	respCh := cn.expect(req.ID)
	defer cn.forget(req.ID)

	if err := cn.write(ctx, req); err != nil {
		return nil, c.sendError("send activity", err)
	}

	var handoff *types.Activity
	handle := func(f *Frame) {
		if a := c.handleRequest(ctx, cn, f, h); a != nil {
			handoff = a
		}
	}
	drain := func() {
		for {
			select {
			case f := <-ex.requests:
				handle(f)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case f := <-ex.requests:
			handle(f)

		case resp := <-respCh:
			// Requests the skill sent before answering are already queued.
			drain()
			if resp.Status == http.StatusUnauthorized {
				c.creds.Invalidate(c.manifest.MSAAppID)
			}
			if resp.Status >= http.StatusBadRequest {
				return nil, types.NewError(types.ErrTransportSendFailure,
					fmt.Sprintf("skill answered with status %d", resp.Status)).
					WithSkill(c.manifest.ID).
					WithRetryable(resp.Status >= http.StatusInternalServerError)
			}
			return handoff, nil

		case <-cn.Done():
			drain()
			if handoff != nil {
				return handoff, nil
			}
			return nil, types.NewError(types.ErrHandoffMissing,
				"skill stream closed before answering").
				WithSkill(c.manifest.ID).WithCause(cn.err)
		}
	}
}

// handleRequest processes one skill→host request on the forwarding goroutine
// and acknowledges it. It returns the activity when it is a handoff.
func (c *Client) handleRequest(ctx context.Context, cn *conn, f *Frame, h Handlers) *types.Activity {
	status := http.StatusOK
	var body any

	a, err := f.Activity()
	if err != nil {
		c.logger.Warn("skill sent undecodable activity", zap.Error(err))
		c.respond(ctx, cn, f, http.StatusBadRequest, nil)
		return nil
	}
	body = ResourceResponse{ID: a.ID}

	var handoff *types.Activity
	if kind, ok := Classify(a); ok {
		c.opts.Observer.RecordCallback(c.manifest.ID, string(kind))
		c.logger.Debug("skill callback", zap.String("kind", string(kind)))
		if kind == CallbackHandoff {
			handoff = a
		} else if h.OnCallback != nil {
			h.OnCallback(CallbackRequest{Kind: kind, Activity: a})
		}
	} else if h.OnActivity != nil {
		if err := h.OnActivity(ctx, a); err != nil {
			c.logger.Warn("relaying skill activity failed", zap.Error(err))
			status = http.StatusInternalServerError
			body = nil
		}
	}

	c.respond(ctx, cn, f, status, body)
	return handoff
}

func (c *Client) respond(ctx context.Context, cn *conn, req *Frame, status int, body any) {
	resp, err := NewResponse(req, status, body)
	if err != nil {
		c.logger.Warn("encode response frame", zap.Error(err))
		return
	}
	if err := cn.write(ctx, resp); err != nil {
		c.logger.Debug("acknowledge skill request", zap.Error(err))
	}
}

// routeRequest runs on the read loop. Requests belong to the in-flight
// exchange when there is one; anything else is answered on its own
// goroutine so the read loop stays free to see the close handshake.
func (c *Client) routeRequest(f *Frame) {
	c.mu.Lock()
	ex := c.exchange
	cn := c.conn
	c.mu.Unlock()

	if ex != nil {
		select {
		case ex.requests <- f:
			return
		case <-ex.done:
		}
	}
	go c.answerUnsolicited(cn, f)
}

func (c *Client) answerUnsolicited(cn *conn, f *Frame) {
	ctx := context.Background()
	status := http.StatusAccepted
	a, err := f.Activity()
	switch {
	case err != nil:
		status = http.StatusBadRequest
	case c.opts.OnUnsolicited != nil:
		if err := c.opts.OnUnsolicited(ctx, a); err != nil {
			c.logger.Warn("unsolicited activity handler failed", zap.Error(err))
			status = http.StatusInternalServerError
		} else {
			status = http.StatusOK
		}
	default:
		c.logger.Warn("dropping unsolicited skill activity", zap.String("activity_type", string(a.Type)))
	}
	if cn != nil {
		c.respond(ctx, cn, f, status, nil)
	}
}

// CancelRemoteDialogs asks the skill to cancel all of its dialogs. Failures
// are logged and never returned.
func (c *Client) CancelRemoteDialogs(ctx context.Context, ref *types.Activity) {
	ev := types.NewEvent(ref, types.EventCancelAllSkillDialogs)
	if _, err := c.Forward(ctx, ev, Handlers{}); err != nil {
		c.logger.Warn("cancel remote dialogs failed", zap.Error(err))
	}
}

// Disconnect closes the connection. Safe to call when none is open.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if cn == nil {
		return
	}
	if err := cn.close("disconnect"); err != nil {
		c.logger.Debug("close skill connection", zap.Error(err))
	}
	c.logger.Info("skill disconnected")
}

func (c *Client) sendError(msg string, err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	return types.NewError(types.ErrTransportSendFailure, msg).
		WithCause(err).WithSkill(c.manifest.ID)
}
