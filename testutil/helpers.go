// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试上下文、活动断言与等待工具
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertTexts(t, []string{"Which time?"}, surface.Activities())
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/skillbridge/types"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 10*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 活动断言
// =============================================================================

// Texts 返回消息活动的文本，按发送顺序
func Texts(activities []*types.Activity) []string {
	var out []string
	for _, a := range activities {
		if a != nil && a.Type == types.ActivityMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

// AssertTexts 断言消息活动的文本序列
func AssertTexts(t *testing.T, expected []string, activities []*types.Activity) bool {
	t.Helper()
	return assert.Equal(t, expected, Texts(activities))
}

// HasEvent 报告活动序列中是否存在指定名称的事件
func HasEvent(activities []*types.Activity, name string) bool {
	for _, a := range activities {
		if a != nil && a.IsEvent(name) {
			return true
		}
	}
	return false
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON，失败时 panic
func MustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
