package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dexterhq/dexter/internal/skills"
)

// SkillTool loads a skill's instructions on demand. Duplicate invocations
// within one query are suppressed upstream by the scratchpad.
type SkillTool struct {
	registry *skills.Registry
}

func NewSkillTool(registry *skills.Registry) *SkillTool {
	return &SkillTool{registry: registry}
}

func (t *SkillTool) Name() string { return "skill" }
func (t *SkillTool) Description() string {
	return "Execute a skill to get specialized instructions for complex tasks"
}
func (t *SkillTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"skill": map[string]interface{}{
				"type":        "string",
				"description": "Name of the skill to invoke",
			},
			"args": map[string]interface{}{
				"type":        "string",
				"description": "Optional arguments for the skill",
			},
		},
		"required": []string{"skill"},
	}
}

func (t *SkillTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	name, _ := args["skill"].(string)
	if name == "" {
		return ErrorResult("skill is required")
	}

	skill, err := t.registry.Get(name)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to load skill %q: %v", name, err)).WithError(err)
	}
	if skill == nil {
		var names []string
		for _, m := range t.registry.Discover() {
			names = append(names, m.Name)
		}
		available := strings.Join(names, ", ")
		if available == "" {
			available = "none"
		}
		return ErrorResult(fmt.Sprintf("Error: Skill %q not found. Available skills: %s", name, available))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Skill: %s\n\n", skill.Name)
	if skillArgs, _ := args["args"].(string); skillArgs != "" {
		fmt.Fprintf(&b, "**Arguments provided:** %s\n\n", skillArgs)
	}
	b.WriteString(skill.Instructions)
	return NewResult(b.String())
}
