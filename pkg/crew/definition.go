// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/riskcrew/pkg/errors"
)

//go:embed crew.yaml
var defaultDefinition []byte

// Definition declares the agents of a crew and the tasks they run.
type Definition struct {
	Agents []AgentSpec `yaml:"agents" json:"agents"`
	Tasks  []TaskSpec  `yaml:"tasks" json:"tasks"`
}

// AgentSpec configures one agent.
type AgentSpec struct {
	ID        string   `yaml:"id" json:"id"`
	Role      string   `yaml:"role" json:"role"`
	Goal      string   `yaml:"goal" json:"goal"`
	Backstory string   `yaml:"backstory" json:"backstory"`
	Tools     []string `yaml:"tools" json:"tools"`
	Model     string   `yaml:"model,omitempty" json:"model,omitempty"`
}

// TaskSpec is a unit of work assigned to an agent. Description is a
// text/template rendered with TaskData.
type TaskSpec struct {
	ID             string   `yaml:"id" json:"id"`
	Agent          string   `yaml:"agent" json:"agent"`
	Description    string   `yaml:"description" json:"description"`
	ExpectedOutput string   `yaml:"expected_output" json:"expected_output"`
	DependsOn      []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// TaskData is the template input of a task description.
type TaskData struct {
	Query   string
	Project string
	Context string
}

// DefaultDefinition returns the built-in five agent crew.
func DefaultDefinition() *Definition {
	def, err := ParseYAML(defaultDefinition)
	if err != nil {
		panic(fmt.Sprintf("crew: invalid embedded definition: %v", err))
	}
	return def
}

// ParseYAML loads a definition from YAML and validates it.
func ParseYAML(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.InvalidInput("empty crew definition")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "parse crew definition", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinition reads a definition file. An empty path yields the default.
func LoadDefinition(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDefinition(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crew definition: %w", err)
	}
	return ParseYAML(data)
}

// Agent returns the agent spec with the given id.
func (d *Definition) Agent(id string) (AgentSpec, bool) {
	for _, a := range d.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentSpec{}, false
}

// Validate checks ids are unique, every task references a known agent and
// known tasks, and the dependencies form no cycle.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.InvalidInput("crew definition is nil")
	}
	if len(d.Agents) == 0 {
		return errors.InvalidInput("crew has no agents")
	}
	if len(d.Tasks) == 0 {
		return errors.InvalidInput("crew has no tasks")
	}
	agents := make(map[string]bool, len(d.Agents))
	for _, a := range d.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return errors.InvalidInput("agent id is required")
		}
		if agents[a.ID] {
			return errors.InvalidInput("duplicate agent id %q", a.ID)
		}
		agents[a.ID] = true
	}
	tasks := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return errors.InvalidInput("task id is required")
		}
		if tasks[t.ID] {
			return errors.InvalidInput("duplicate task id %q", t.ID)
		}
		tasks[t.ID] = true
		if !agents[t.Agent] {
			return errors.InvalidInput("task %q references unknown agent %q", t.ID, t.Agent)
		}
		if _, err := t.Render(TaskData{}); err != nil {
			return err
		}
	}
	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			if !tasks[dep] {
				return errors.InvalidInput("task %q depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return errors.InvalidInput("task %q depends on itself", t.ID)
			}
		}
	}
	_, err := d.Order()
	return err
}

// Order returns the tasks in dependency order. Ties keep definition order.
func (d *Definition) Order() ([]TaskSpec, error) {
	indegree := make(map[string]int, len(d.Tasks))
	dependents := make(map[string][]string, len(d.Tasks))
	byID := make(map[string]TaskSpec, len(d.Tasks))
	for _, t := range d.Tasks {
		byID[t.ID] = t
		for _, dep := range t.DependsOn {
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	out := make([]TaskSpec, 0, len(d.Tasks))
	done := make(map[string]bool, len(d.Tasks))
	for len(out) < len(d.Tasks) {
		progressed := false
		for _, t := range d.Tasks {
			if done[t.ID] || indegree[t.ID] > 0 {
				continue
			}
			done[t.ID] = true
			out = append(out, byID[t.ID])
			for _, next := range dependents[t.ID] {
				indegree[next]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, t := range d.Tasks {
				if !done[t.ID] {
					stuck = append(stuck, t.ID)
				}
			}
			return nil, errors.InvalidInput("task dependencies form a cycle: %s", strings.Join(stuck, ", "))
		}
	}
	return out, nil
}

// Render executes a task description template.
func (t TaskSpec) Render(data TaskData) (string, error) {
	tmpl, err := template.New(t.ID).Option("missingkey=error").Parse(t.Description)
	if err != nil {
		return "", errors.New(errors.CodeInvalidInput, "parse task template", err).WithContext("task", t.ID)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", errors.New(errors.CodeInvalidInput, "render task template", err).WithContext("task", t.ID)
	}
	return strings.TrimSpace(b.String()), nil
}
