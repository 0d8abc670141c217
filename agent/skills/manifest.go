package skills

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/skillbridge/types"
	"gopkg.in/yaml.v3"
)

// Slot 是动作期望从宿主上下文获得的具名、带类型的值.
type Slot struct {
	Name  string   `json:"name" yaml:"name"`
	Types []string `json:"types,omitempty" yaml:"types,omitempty"`
}

// UnmarshalYAML 同时接受 `types: [...]` 与简写 `type: x`.
func (s *Slot) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name  string   `yaml:"name"`
		Type  string   `yaml:"type"`
		Types []string `yaml:"types"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Types = raw.Types
	if raw.Type != "" && len(s.Types) == 0 {
		s.Types = []string{raw.Type}
	}
	return nil
}

// ActionDefinition 描述动作声明的槽位.
type ActionDefinition struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Slots       []Slot `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// Action 是技能对外暴露的具名能力.
type Action struct {
	ID         string           `json:"id" yaml:"id"`
	Definition ActionDefinition `json:"definition" yaml:"definition"`
}

// Manifest 是远程技能的不可变描述.
type Manifest struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoint    string   `json:"endpoint" yaml:"endpoint"`
	MSAAppID    string   `json:"msaAppId" yaml:"msaAppId"`
	Actions     []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// DisplayName 返回 Name，为空时回退到 ID.
func (m *Manifest) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Action 按 ID 查找动作.
func (m *Manifest) Action(id string) (*Action, bool) {
	for i := range m.Actions {
		if m.Actions[i].ID == id {
			return &m.Actions[i], true
		}
	}
	return nil, false
}

// AllSlots 返回所有动作槽位的并集，按名称去重并保持声明顺序.
func (m *Manifest) AllSlots() []Slot {
	seen := make(map[string]struct{})
	var out []Slot
	for _, a := range m.Actions {
		for _, s := range a.Definition.Slots {
			if _, dup := seen[s.Name]; dup {
				continue
			}
			seen[s.Name] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Validate 校验调度器依赖的字段.
func (m *Manifest) Validate() error {
	invalid := func(format string, args ...any) error {
		return types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf(format, args...)).WithSkill(m.ID)
	}

	if strings.TrimSpace(m.ID) == "" {
		return invalid("skill manifest id is required")
	}
	if strings.TrimSpace(m.Endpoint) == "" {
		return invalid("skill %q has no endpoint", m.ID)
	}
	u, err := url.Parse(m.Endpoint)
	if err != nil || u.Host == "" {
		return invalid("skill %q endpoint %q is not an absolute url", m.ID, m.Endpoint)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return invalid("skill %q endpoint scheme %q is not supported", m.ID, u.Scheme)
	}

	actions := make(map[string]struct{}, len(m.Actions))
	for _, a := range m.Actions {
		if a.ID == "" {
			return invalid("skill %q declares an action without id", m.ID)
		}
		if _, dup := actions[a.ID]; dup {
			return invalid("skill %q declares action %q twice", m.ID, a.ID)
		}
		actions[a.ID] = struct{}{}

		slots := make(map[string]struct{}, len(a.Definition.Slots))
		for _, s := range a.Definition.Slots {
			if _, dup := slots[s.Name]; dup {
				return invalid("action %q of skill %q declares slot %q twice", a.ID, m.ID, s.Name)
			}
			slots[s.Name] = struct{}{}
		}
	}
	return nil
}
