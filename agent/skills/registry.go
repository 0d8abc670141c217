package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry 保存宿主已知的技能清单，以技能 ID 为键.
type Registry struct {
	manifests map[string]*Manifest
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewRegistry 创建空注册表.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		manifests: make(map[string]*Manifest),
		logger:    logger.With(zap.String("component", "skill_registry")),
	}
}

// Register 校验并添加清单，ID 必须唯一.
func (r *Registry) Register(m *Manifest) error {
	if m == nil {
		return types.NewError(types.ErrInvalidConfiguration, "nil skill manifest")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.manifests[m.ID]; exists {
		return types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("skill %q is registered twice", m.ID)).WithSkill(m.ID)
	}
	r.manifests[m.ID] = m

	r.logger.Info("skill registered",
		zap.String("id", m.ID),
		zap.String("name", m.DisplayName()),
		zap.String("endpoint", m.Endpoint),
		zap.Int("actions", len(m.Actions)),
	)
	return nil
}

// Upsert 校验并注册 m，替换同 ID 的已有清单.
// 返回值表示是否替换了已有清单。
func (r *Registry) Upsert(m *Manifest) (bool, error) {
	if m == nil {
		return false, types.NewError(types.ErrInvalidConfiguration, "nil skill manifest")
	}
	if err := m.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.manifests[m.ID]
	r.manifests[m.ID] = m

	r.logger.Info("skill manifest updated",
		zap.String("id", m.ID),
		zap.String("endpoint", m.Endpoint),
		zap.Bool("replaced", replaced),
	)
	return replaced, nil
}

// Remove 注销 skillID.
// 仍绑定该技能的会话在下一轮以 SKILL_NOT_FOUND 失败。
func (r *Registry) Remove(skillID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.manifests[skillID]; !ok {
		return false
	}
	delete(r.manifests, skillID)
	r.logger.Info("skill unregistered", zap.String("id", skillID))
	return true
}

// Get 返回 skillID 对应的清单.
func (r *Registry) Get(skillID string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[skillID]
	return m, ok
}

// List 按 ID 顺序返回全部清单.
func (r *Registry) List() []*Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len 返回已注册技能数量.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}

// LoadFile 读取一个清单文件（.yaml、.yml 或 .json）并注册.
func (r *Registry) LoadFile(path string) (*Manifest, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	if err := r.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadDir 注册 dir 目录下（不递归）的全部清单文件.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, types.NewError(types.ErrInvalidConfiguration, "failed to read skill manifest directory").WithCause(err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !isManifestFile(e.Name()) {
			continue
		}
		if _, err := r.LoadFile(filepath.Join(dir, e.Name())); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// ReadManifest 解析清单文件但不注册.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("failed to read skill manifest %s", path)).WithCause(err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("failed to parse skill manifest %s", path)).WithCause(err)
	}
	return &m, nil
}

// UnmarshalJSON 同时接受 `"types": [...]` 与简写 `"type": "x"`.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string   `json:"name"`
		Type  string   `json:"type"`
		Types []string `json:"types"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Types = raw.Types
	if raw.Type != "" && len(s.Types) == 0 {
		s.Types = []string{raw.Type}
	}
	return nil
}

func isManifestFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
