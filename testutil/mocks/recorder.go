package mocks

import "sync"

// Recorder 记录状态迁移与失败轮次，实现 dispatch.Recorder
type Recorder struct {
	mu          sync.Mutex
	transitions []string
	errors      []string
}

// RecordTransition 记录为 "from>to"
func (r *Recorder) RecordTransition(_, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+">"+to)
}

// RecordTurnError 记录为 "skill:code"
func (r *Recorder) RecordTurnError(skill, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, skill+":"+code)
}

// Transitions 返回已记录的迁移
func (r *Recorder) Transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...)
}

// Errors 返回已记录的失败
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}
