package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/skillbridge/agent/skills"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 存活与就绪
// =============================================================================

// readyTimeout 单次就绪检查的总超时
const readyTimeout = 3 * time.Second

// ComponentCheck 就绪检查中的一个组件，detail 会原样出现在响应中
type ComponentCheck interface {
	Name() string
	Check(ctx context.Context) (detail map[string]any, err error)
}

// Liveness /health 响应
type Liveness struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
	Uptime    string    `json:"uptime"`
}

// Readiness /ready 响应，任一组件未就绪时 Status 为 "not_ready"
type Readiness struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components"`
}

// ComponentStatus 单个组件的就绪结果
type ComponentStatus struct {
	Ready     bool           `json:"ready"`
	Detail    map[string]any `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
	LatencyMS float64        `json:"latencyMs"`
}

// HealthHandler 提供存活、就绪与版本端点
type HealthHandler struct {
	logger    *zap.Logger
	startedAt time.Time

	mu     sync.RWMutex
	checks []ComponentCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:    logger.With(zap.String("component", "health")),
		startedAt: time.Now(),
	}
}

// Register 追加就绪检查组件
func (h *HealthHandler) Register(checks ...ComponentCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, checks...)
}

// HandleLive 处理 /health 与 /healthz，进程在运行即返回 200
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, Liveness{
		Status:    "alive",
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// HandleReady 处理 /ready 与 /readyz。各组件并发检查，
// 任一失败返回 503，响应中包含全部组件结果。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]ComponentCheck{}, h.checks...)
	h.mu.RUnlock()

	results := make([]ComponentStatus, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			start := time.Now()
			detail, err := c.Check(ctx)
			results[i] = ComponentStatus{
				Ready:     err == nil,
				Detail:    detail,
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := Readiness{
		Status:     "ready",
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentStatus, len(checks)),
	}
	for i, c := range checks {
		resp.Components[c.Name()] = results[i]
		if !results[i].Ready {
			resp.Status = "not_ready"
			h.logger.Warn("component not ready",
				zap.String("check", c.Name()),
				zap.String("error", results[i].Error),
			)
		}
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 组件检查
// =============================================================================

// SkillsCheck 报告已加载的技能清单，一个都没有时未就绪
type SkillsCheck struct {
	list func() []*skills.Manifest
}

// NewSkillsCheck list 通常为 Registry.List
func NewSkillsCheck(list func() []*skills.Manifest) *SkillsCheck {
	return &SkillsCheck{list: list}
}

func (c *SkillsCheck) Name() string { return "skills" }

func (c *SkillsCheck) Check(context.Context) (map[string]any, error) {
	manifests := c.list()
	ids := make([]string, 0, len(manifests))
	for _, m := range manifests {
		ids = append(ids, m.ID)
	}
	detail := map[string]any{"count": len(ids), "ids": ids}
	if len(ids) == 0 {
		return detail, errors.New("no skill manifests loaded")
	}
	return detail, nil
}

// TransportCheck 报告当前存活的技能连接数，仅用于观察，不影响就绪
type TransportCheck struct {
	live func() int
}

// NewTransportCheck live 通常为 transport.Pool.Len
func NewTransportCheck(live func() int) *TransportCheck {
	return &TransportCheck{live: live}
}

func (c *TransportCheck) Name() string { return "transport" }

func (c *TransportCheck) Check(context.Context) (map[string]any, error) {
	return map[string]any{"liveClients": c.live()}, nil
}

// StateCheck 探测会话状态后端。ping 为 nil 表示进程内存储，总是就绪。
type StateCheck struct {
	backend string
	ping    func(ctx context.Context) error
}

// NewStateCheck 创建状态后端检查
func NewStateCheck(backend string, ping func(ctx context.Context) error) *StateCheck {
	return &StateCheck{backend: backend, ping: ping}
}

func (c *StateCheck) Name() string { return "state" }

func (c *StateCheck) Check(ctx context.Context) (map[string]any, error) {
	detail := map[string]any{"backend": c.backend}
	if c.ping == nil {
		return detail, nil
	}
	if err := c.ping(ctx); err != nil {
		return detail, err
	}
	return detail, nil
}
