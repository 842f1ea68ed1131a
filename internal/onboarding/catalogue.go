package onboarding

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed steps.yaml
var defaultStepsYAML []byte

type catalogueFile struct {
	Steps []Step `yaml:"steps"`
}

// ParseCatalogue reads an ordered step list from YAML
func ParseCatalogue(data []byte) ([]Step, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}

	if len(f.Steps) == 0 {
		return nil, errors.New("no onboarding steps defined")
	}

	seen := make(map[string]struct{}, len(f.Steps))
	for i := range f.Steps {
		s := &f.Steps[i]
		if s.ID == "" {
			return nil, fmt.Errorf("step %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		s.Status = StepPending
	}

	return f.Steps, nil
}

// DefaultCatalogue returns the built-in step list
func DefaultCatalogue() []Step {
	steps, err := ParseCatalogue(defaultStepsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded onboarding steps: %v", err))
	}
	return steps
}
