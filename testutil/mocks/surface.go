// Package mocks 提供调度相关接口的测试替身。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/skillbridge/types"
)

// Surface 记录发送给用户的全部活动。Err 非空时每次发送都返回该错误，
// 但活动仍会被记录。
type Surface struct {
	mu  sync.Mutex
	out []*types.Activity

	Err error
}

// SendActivities 实现 dispatch.Surface
func (s *Surface) SendActivities(_ context.Context, activities ...*types.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, activities...)
	return s.Err
}

// Activities 返回已发送活动的副本
func (s *Surface) Activities() []*types.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Activity(nil), s.out...)
}

// Messages 返回消息活动的文本
func (s *Surface) Messages() []string {
	var out []string
	for _, a := range s.Activities() {
		if a.Type == types.ActivityMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

// Traces 返回指定名称的 trace 活动
func (s *Surface) Traces(name string) []*types.Activity {
	var out []*types.Activity
	for _, a := range s.Activities() {
		if a.Type == types.ActivityTrace && a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// Reset 清空已记录的活动
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = nil
}
