package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var errConnClosed = errors.New("skill connection closed")

// conn adapts a websocket connection to the frame protocol. Writes are
// mutex-serialized because websocket does not allow concurrent writers;
// a single read loop routes responses to waiters and requests to onRequest.
type conn struct {
	ws           *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration
	onRequest    func(*Frame)

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Frame
	closed  bool
	err     error

	cancel context.CancelFunc
	done   chan struct{}
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, onRequest func(*Frame), logger *zap.Logger) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:           ws,
		logger:       logger,
		writeTimeout: writeTimeout,
		onRequest:    onRequest,
		pending:      make(map[string]chan *Frame),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c
}

// write sends one frame.
func (c *conn) write(ctx context.Context, f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	if c.isClosed() {
		return errConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return errConnClosed
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// expect registers interest in the response to request id. The returned
// channel is buffered so the read loop never blocks on a gone waiter.
func (c *conn) expect(id string) <-chan *Frame {
	ch := make(chan *Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *conn) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			c.shutdown(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch f.Kind {
		case FrameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("response for unknown request", zap.String("frame_id", f.ID))
				continue
			}
			ch <- &f
		case FrameRequest:
			c.onRequest(&f)
		default:
			c.logger.Warn("dropping frame of unknown kind", zap.String("kind", string(f.Kind)))
		}
	}
}

func (c *conn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	c.closed = true
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the read loop exits.
func (c *conn) Done() <-chan struct{} { return c.done }

// close shuts the connection down and waits for the read loop.
func (c *conn) close(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.cancel()
		<-c.done
		_ = c.ws.CloseNow()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Close waits for the peer's close frame, which only the read loop can
	// consume, so writeMu must not be held here.
	err := c.ws.Close(websocket.StatusNormalClosure, reason)
	c.cancel()
	<-c.done

	var ce websocket.CloseError
	if err != nil && !errors.As(err, &ce) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
