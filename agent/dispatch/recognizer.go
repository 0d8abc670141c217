package dispatch

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/skillbridge/types"
)

// KeywordRecognizer 把用户文本中的关键词映射到技能 ID.
// 按技能 ID 顺序检查，多个匹配时结果确定。
type KeywordRecognizer struct {
	skills   []string
	keywords map[string][]string
}

// NewKeywordRecognizer builds a recognizer from skill id → keywords.
func NewKeywordRecognizer(keywords map[string][]string) *KeywordRecognizer {
	r := &KeywordRecognizer{keywords: make(map[string][]string, len(keywords))}
	for id, words := range keywords {
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				lowered = append(lowered, w)
			}
		}
		r.keywords[id] = lowered
		r.skills = append(r.skills, id)
	}
	sort.Strings(r.skills)
	return r
}

// Recognize 实现 Recognizer，没有匹配时返回 "".
func (r *KeywordRecognizer) Recognize(_ context.Context, turn *Turn, _ *types.Activity) (string, error) {
	if turn == nil || turn.Activity == nil {
		return "", nil
	}
	words := strings.FieldsFunc(strings.ToLower(turn.Activity.Text), func(c rune) bool {
		return !(c == '-' || c == '_' || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') || c > 127)
	})
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	for _, id := range r.skills {
		for _, kw := range r.keywords[id] {
			if seen[kw] {
				return id, nil
			}
		}
	}
	return "", nil
}
