package tools

import (
	"fmt"
	"sort"
)

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry creates a registry holding every meal and memory tool, all backed by d.
func NewRegistry(d Diary) (*Registry, error) {
	if d == nil {
		return nil, fmt.Errorf("diary is required")
	}

	all := []Tool{
		NewMealLog(d),
		NewMealEdit(d),
		NewMealTotal(),
		NewDaySummary(d),
		NewDensityList(d),
		NewDensityUpsert(d),
		NewDensityRemove(d),
		NewPhraseList(d),
		NewPhraseUpsert(d),
		NewPhraseRemove(d),
	}

	registry := make(Registry, len(all))
	for _, t := range all {
		registry[t.Name()] = t
	}
	return &registry, nil
}

// GetTools returns all tools in the registry as a slice, sorted by name
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// GetTool retrieves a tool by name from the registry
func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("tool %q not found in registry", name)
	}
	return tool, nil
}
