package skills

// SkillContext 是会话级的槽位存储，在调用技能时投影为语义动作实体.
// 只归属于一个会话。
type SkillContext map[string]any

// NewSkillContext 返回空存储.
func NewSkillContext() SkillContext {
	return make(SkillContext)
}

// Clone 返回浅拷贝.
func (c SkillContext) Clone() SkillContext {
	out := make(SkillContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge 把 values 的全部条目写入 c，已有键被覆盖.
func (c SkillContext) Merge(values map[string]any) {
	for k, v := range values {
		c[k] = v
	}
}

// MatchSlots 返回 ctx 中键名与声明槽位名完全相同的条目.
// 只做精确匹配：不做前缀、大小写折叠或模糊比较。
func MatchSlots(slots []Slot, ctx SkillContext) map[string]any {
	matched := make(map[string]any)
	for _, s := range slots {
		if v, ok := ctx[s.Name]; ok {
			matched[s.Name] = v
		}
	}
	return matched
}

// SlotsFor 返回 actionID 需要匹配的槽位.
// actionID 为空表示调用方不知道动作，此时使用所有动作槽位的并集。
func (m *Manifest) SlotsFor(actionID string) ([]Slot, bool) {
	if actionID == "" {
		return m.AllSlots(), true
	}
	a, ok := m.Action(actionID)
	if !ok {
		return nil, false
	}
	return a.Definition.Slots, true
}
