package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

// ActionSpec 描述一个向模型公开的动作。
type ActionSpec struct {
	Name     string
	Required []string
}

// SendSOL 是唯一公开的动作。
var SendSOL = ActionSpec{
	Name:     "send_sol",
	Required: []string{"senderEmail", "password", "toAddress", "amount"},
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

type candidate struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
}

// Parse 按以下顺序解析模型输出：整段 JSON、围栏代码块、纯文本。
func Parse(raw string, specs ...ActionSpec) conversation.Outcome {
	outcome, _ := parse(raw, specs)
	return outcome
}

// parse 与 Parse 相同，另外在围栏代码块不是合法 JSON 时返回 PARSE_FAILURE。
// 此时回复仍是原文，错误只用于记录。
func parse(raw string, specs []ActionSpec) (conversation.Outcome, error) {
	if len(specs) == 0 {
		specs = []ActionSpec{SendSOL}
	}
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		if c, err := decodeCandidate(text); err == nil {
			if spec, ok := matchSpec(c, specs); ok {
				return gate(c, spec), nil
			}
		}
	}

	if match := fencedBlock.FindStringSubmatch(text); match != nil {
		c, err := decodeCandidate(match[1])
		if err != nil {
			// 代码块不是合法 JSON 时原样返回，不再继续解析。
			return conversation.ReplyOutcome(text),
				xerrors.Wrap(conversation.CodeParseFailure, err, "代码块不是合法 JSON")
		}
		if spec, ok := matchSpec(c, specs); ok {
			return gate(c, spec), nil
		}
	}

	return conversation.ReplyOutcome(text), nil
}

func decodeCandidate(text string) (candidate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return candidate{}, err
	}
	var c candidate
	if fn, ok := raw["function"]; ok {
		if err := json.Unmarshal(fn, &c.Function); err != nil {
			return candidate{}, err
		}
	}
	if args, ok := raw["arguments"]; ok {
		// arguments 必须是对象；数组、字符串或 null 视为形状不符。
		if err := json.Unmarshal(args, &c.Arguments); err != nil {
			c.Arguments = nil
		}
	}
	return c, nil
}

func matchSpec(c candidate, specs []ActionSpec) (ActionSpec, bool) {
	if c.Arguments == nil {
		return ActionSpec{}, false
	}
	for _, spec := range specs {
		if c.Function == spec.Name {
			return spec, true
		}
	}
	return ActionSpec{}, false
}

func gate(c candidate, spec ActionSpec) conversation.Outcome {
	if missing := MissingArguments(c.Arguments, spec.Required); len(missing) > 0 {
		return conversation.ReplyOutcome(missingReply(spec.Name, missing))
	}
	return conversation.ProposalOutcome(conversation.ActionProposal{
		Name:      c.Function,
		Arguments: c.Arguments,
	})
}

// MissingArguments 返回缺失的必填参数，null 与空字符串都视为缺失。
func MissingArguments(args map[string]any, required []string) []string {
	var missing []string
	for _, key := range required {
		v, ok := args[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func missingReply(action string, missing []string) string {
	return fmt.Sprintf("I can prepare %s, but I still need the following information: %s. Please provide it to proceed.",
		action, strings.Join(missing, ", "))
}
