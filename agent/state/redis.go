package state

import (
	"context"
	"time"

	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/internal/cache"
	"go.uber.org/zap"
)

const storeRedis = "redis"

// RedisStore keeps conversation state as JSON values under
// <prefix>invocation:<conversation> and <prefix>context:<conversation>.
type RedisStore struct {
	cache  *cache.Manager
	prefix string
	ttl    time.Duration
	obs    Observer
	logger *zap.Logger
}

// NewRedisStore wraps m. A ttl of 0 falls back to the manager's default.
func NewRedisStore(m *cache.Manager, prefix string, ttl time.Duration, obs Observer, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &RedisStore{
		cache:  m,
		prefix: prefix,
		ttl:    ttl,
		obs:    obs,
		logger: logger.With(zap.String("component", "redis_state")),
	}
}

func (s *RedisStore) invocationKey(conversationID string) string {
	return s.prefix + "invocation:" + conversationID
}

func (s *RedisStore) contextKey(conversationID string) string {
	return s.prefix + "context:" + conversationID
}

// LoadInvocation implements dispatch.Store.
func (s *RedisStore) LoadInvocation(ctx context.Context, conversationID string) (*dispatch.Invocation, error) {
	defer s.observe("load_invocation", time.Now())
	var inv dispatch.Invocation
	if err := s.cache.GetJSON(ctx, s.invocationKey(conversationID), &inv); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

// SaveInvocation implements dispatch.Store.
func (s *RedisStore) SaveInvocation(ctx context.Context, inv *dispatch.Invocation) error {
	defer s.observe("save_invocation", time.Now())
	return s.cache.SetJSON(ctx, s.invocationKey(inv.ConversationID), inv, s.ttl)
}

// DeleteInvocation implements dispatch.Store.
func (s *RedisStore) DeleteInvocation(ctx context.Context, conversationID string) error {
	defer s.observe("delete_invocation", time.Now())
	return s.cache.Delete(ctx, s.invocationKey(conversationID))
}

// LoadSkillContext implements dispatch.Store.
func (s *RedisStore) LoadSkillContext(ctx context.Context, conversationID string) (skills.SkillContext, error) {
	defer s.observe("load_context", time.Now())
	sc := skills.NewSkillContext()
	if err := s.cache.GetJSON(ctx, s.contextKey(conversationID), &sc); err != nil {
		if cache.IsCacheMiss(err) {
			return skills.NewSkillContext(), nil
		}
		return nil, err
	}
	return sc, nil
}

// SaveSkillContext implements dispatch.Store.
func (s *RedisStore) SaveSkillContext(ctx context.Context, conversationID string, sc skills.SkillContext) error {
	defer s.observe("save_context", time.Now())
	return s.cache.SetJSON(ctx, s.contextKey(conversationID), sc, s.ttl)
}

func (s *RedisStore) observe(op string, start time.Time) {
	s.obs.RecordStoreOp(storeRedis, op, time.Since(start))
}
