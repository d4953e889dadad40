package agent

import "strings"

// Classification 是对用户最新消息的判定。
type Classification int

const (
	Neither Classification = iota
	Affirm
	Deny
)

func (c Classification) String() string {
	switch c {
	case Affirm:
		return "affirm"
	case Deny:
		return "deny"
	default:
		return "neither"
	}
}

var (
	affirmWords = map[string]struct{}{"yes": {}, "y": {}, "confirm": {}, "proceed": {}, "ok": {}, "okay": {}}
	denyWords   = map[string]struct{}{"no": {}, "n": {}, "cancel": {}, "stop": {}}
)

// Classify 只做去空白、转小写后的精确匹配。
func Classify(content string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if _, ok := affirmWords[normalized]; ok {
		return Affirm
	}
	if _, ok := denyWords[normalized]; ok {
		return Deny
	}
	return Neither
}
