package transport

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/skillbridge/agent/credentials"
	"github.com/BaSui01/skillbridge/agent/skills"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type poolKey struct {
	conversationID string
	skillID        string
}

type pooledClient struct {
	client   *Client
	lastUsed time.Time
}

// Pool hands out one Client per (conversation, skill). Conversations never
// share a connection; forwards to one skill share a rate limiter. Clients
// not handed out for longer than the idle limit are disconnected by
// RunEviction, so a conversation the user abandons does not hold a
// connection until shutdown.
type Pool struct {
	creds  credentials.Provider
	opts   Options
	rps    rate.Limit
	burst  int
	logger *zap.Logger

	mu       sync.Mutex
	clients  map[poolKey]*pooledClient
	limiters map[string]*rate.Limiter
}

// NewPool creates a pool. forwardRPS <= 0 disables rate limiting.
func NewPool(creds credentials.Provider, opts Options, forwardRPS float64, forwardBurst int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	rps := rate.Inf
	if forwardRPS > 0 {
		rps = rate.Limit(forwardRPS)
	}
	if forwardBurst <= 0 {
		forwardBurst = 1
	}
	return &Pool{
		creds:    creds,
		opts:     opts,
		rps:      rps,
		burst:    forwardBurst,
		logger:   logger,
		clients:  make(map[poolKey]*pooledClient),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get returns the conversation's client for manifest, creating it on first use.
func (p *Pool) Get(conversationID string, manifest *skills.Manifest) *Client {
	key := poolKey{conversationID: conversationID, skillID: manifest.ID}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pc, ok := p.clients[key]; ok {
		pc.lastUsed = time.Now()
		return pc.client
	}

	lim, ok := p.limiters[manifest.ID]
	if !ok {
		lim = rate.NewLimiter(p.rps, p.burst)
		p.limiters[manifest.ID] = lim
	}

	opts := p.opts
	opts.Limiter = lim
	c := NewClient(manifest, p.creds, opts, p.logger.With(zap.String("conversation_id", conversationID)))
	p.clients[key] = &pooledClient{client: c, lastUsed: time.Now()}
	return c
}

// Release disconnects and forgets the conversation's client for skillID.
func (p *Pool) Release(conversationID, skillID string) {
	key := poolKey{conversationID: conversationID, skillID: skillID}

	p.mu.Lock()
	pc, ok := p.clients[key]
	delete(p.clients, key)
	p.mu.Unlock()

	if ok {
		pc.client.Disconnect()
	}
}

// Len returns the number of live clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// EvictIdle disconnects and forgets every client not handed out within
// maxIdle. It returns how many were evicted.
func (p *Pool) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	p.mu.Lock()
	var idle []*Client
	for key, pc := range p.clients {
		if pc.lastUsed.Before(cutoff) {
			idle = append(idle, pc.client)
			delete(p.clients, key)
		}
	}
	p.mu.Unlock()

	for _, c := range idle {
		c.Disconnect()
	}
	if len(idle) > 0 {
		p.logger.Info("evicted idle skill clients",
			zap.Int("evicted", len(idle)),
			zap.Duration("max_idle", maxIdle),
		)
	}
	return len(idle)
}

// RunEviction calls EvictIdle every interval until ctx is done.
// maxIdle <= 0 disables eviction.
func (p *Pool) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	if interval <= 0 || interval > maxIdle {
		interval = maxIdle
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.EvictIdle(maxIdle)
		}
	}
}

// Close disconnects every client.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[poolKey]*pooledClient)
	p.mu.Unlock()

	for _, pc := range clients {
		pc.client.Disconnect()
	}
	p.logger.Info("skill transport pool closed", zap.Int("clients", len(clients)))
	return nil
}
