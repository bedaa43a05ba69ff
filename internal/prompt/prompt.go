package prompt

import (
	"fmt"
	"strings"
)

// Template names accepted by Render.
const (
	Classify = "classify"
	Solve    = "solve"
	Plan     = "plan"
)

// Render returns the system and user prompt for a template with every
// {{KEY}} placeholder replaced. Placeholders without a value become "unknown".
func Render(name string, vars map[string]string) (system, user string, err error) {
	switch name {
	case Classify:
		system, user = SystemClassify, PromptClassify
	case Solve:
		system, user = SystemSolve, PromptSolve
	case Plan:
		system, user = SystemPlan, PromptPlan
	default:
		return "", "", fmt.Errorf("invalid prompt template: %s", name)
	}

	for k, v := range vars {
		if v == "" {
			v = "unknown"
		}
		user = strings.ReplaceAll(user, "{{"+k+"}}", v)
	}
	user = fillMissing(user)

	return system, strings.TrimSpace(user), nil
}

func fillMissing(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + "unknown" + s[start+end+2:]
	}
}
