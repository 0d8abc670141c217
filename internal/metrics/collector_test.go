package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.skillForwardsTotal)
	assert.NotNil(t, collector.skillForwardDuration)
	assert.NotNil(t, collector.skillCallbacksTotal)
	assert.NotNil(t, collector.invocationTransitions)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/test", 200, 50*time.Millisecond, 512, 1024)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
}

func TestCollector_ObserveForward(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveForward("calendar", "wss://calendar.example/api/messages", "handoff", 120*time.Millisecond)
	collector.ObserveForward("calendar", "wss://calendar.example/api/messages", "waiting", 80*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.skillForwardsTotal.WithLabelValues("calendar", "handoff")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.skillForwardsTotal.WithLabelValues("calendar", "waiting")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.skillForwardDuration))
}

func TestCollector_RecordCallback(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCallback("calendar", "token_request")
	collector.RecordCallback("calendar", "token_request")
	collector.RecordCallback("calendar", "fallback_request")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.skillCallbacksTotal.WithLabelValues("calendar", "token_request")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.skillCallbacksTotal.WithLabelValues("calendar", "fallback_request")))
}

func TestCollector_RecordTransition(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTransition("calendar", "idle", "active")
	// 相同阶段不计数
	collector.RecordTransition("calendar", "active", "active")

	assert.Equal(t, 1, testutil.CollectAndCount(collector.invocationTransitions))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.invocationTransitions.WithLabelValues("calendar", "idle", "active")))
}

func TestCollector_RecordTurnErrorAndStoreOp(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTurnError("calendar", "TRANSPORT_SEND_FAILURE")
	collector.RecordStoreOp("redis", "load", 2*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.turnErrorsTotal.WithLabelValues("calendar", "TRANSPORT_SEND_FAILURE")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.storeOpDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.ObserveForward("weather", "ws://weather", "waiting", 10*time.Millisecond)
			collector.RecordCallback("weather", "handoff")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.skillCallbacksTotal.WithLabelValues("weather", "handoff")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.skillForwardsTotal.WithLabelValues("weather", "waiting")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// 同一指标可以再注册到自定义 registry
	registry.MustRegister(collector.skillForwardsTotal)

	collector.ObserveForward("calendar", "ws://calendar", "handoff", time.Millisecond)
	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(401))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(100))
}
