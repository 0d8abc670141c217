package dispatch

import (
	"context"
	"sync"

	"github.com/BaSui01/skillbridge/agent/skills"
)

// MemoryStore 在进程内存中保存调用与 SkillContext.
type MemoryStore struct {
	mu          sync.RWMutex
	invocations map[string]*Invocation
	contexts    map[string]skills.SkillContext
}

// NewMemoryStore 返回空存储.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invocations: make(map[string]*Invocation),
		contexts:    make(map[string]skills.SkillContext),
	}
}

// LoadInvocation 实现 Store.
func (s *MemoryStore) LoadInvocation(_ context.Context, conversationID string) (*Invocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invocations[conversationID].Clone(), nil
}

// SaveInvocation 实现 Store.
func (s *MemoryStore) SaveInvocation(_ context.Context, inv *Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations[inv.ConversationID] = inv.Clone()
	return nil
}

// DeleteInvocation 实现 Store.
func (s *MemoryStore) DeleteInvocation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invocations, conversationID)
	return nil
}

// LoadSkillContext 实现 Store，会话没有时返回空上下文.
func (s *MemoryStore) LoadSkillContext(_ context.Context, conversationID string) (skills.SkillContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.contexts[conversationID]
	if !ok {
		return skills.NewSkillContext(), nil
	}
	return sc.Clone(), nil
}

// SaveSkillContext 实现 Store.
func (s *MemoryStore) SaveSkillContext(_ context.Context, conversationID string, sc skills.SkillContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[conversationID] = sc.Clone()
	return nil
}
