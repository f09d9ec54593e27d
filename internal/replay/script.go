// Package replay runs scripted sessions against a cache Store and prints one
// JSON line per step. Scripts make cache behavior reproducible without an
// upstream server.
package replay

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Script is a replay file.
type Script struct {
	Name string `yaml:"name"`

	// Keys has the same shape as the keys section of graphcache.yaml.
	Keys map[string][]string `yaml:"keys,omitempty"`

	// Optimistic has the same shape as the optimistic section of graphcache.yaml.
	Optimistic map[string]any `yaml:"optimistic,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one cache operation.
type Step struct {
	// Op is one of write, query, optimistic, commit, revert, write_fragment
	// and read_fragment.
	Op string `yaml:"op"`

	Query         string         `yaml:"query,omitempty"`
	OperationName string         `yaml:"operation_name,omitempty"`
	Variables     map[string]any `yaml:"variables,omitempty"`
	Data          map[string]any `yaml:"data,omitempty"`

	// Layer names an optimistic layer.
	Layer string `yaml:"layer,omitempty"`

	// Entity is the entity key read by read_fragment.
	Entity string `yaml:"entity,omitempty"`

	// BaseOnly makes a query ignore optimistic layers.
	BaseOnly bool `yaml:"base_only,omitempty"`
}

var validOps = map[string]bool{
	"write": true, "query": true, "optimistic": true, "commit": true,
	"revert": true, "write_fragment": true, "read_fragment": true,
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading script %s", path)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, errors.Wrapf(err, "script %s", path)
	}
	return s, nil
}

// ParseScript decodes and validates script YAML.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}
	for i, step := range s.Steps {
		if !validOps[step.Op] {
			return nil, errors.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		switch step.Op {
		case "optimistic", "commit", "revert":
			if step.Layer == "" {
				return nil, errors.Errorf("step %d: %s requires a layer", i+1, step.Op)
			}
		}
		if step.Op != "commit" && step.Op != "revert" && strings.TrimSpace(step.Query) == "" {
			return nil, errors.Errorf("step %d: %s requires a query", i+1, step.Op)
		}
		if step.Op == "read_fragment" && step.Entity == "" {
			return nil, errors.Errorf("step %d: read_fragment requires an entity", i+1)
		}
	}
	return &s, nil
}
