package generate

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed capabilities.yaml
var capabilityTable []byte

// capability describes one operation the template generator can compile.
type capability struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Arity    int      `yaml:"arity"`
	Numeric  bool     `yaml:"numeric"`
}

type capabilityFile struct {
	Version      int          `yaml:"version"`
	Capabilities []capability `yaml:"capabilities"`
}

// loadCapabilities parses and validates the embedded table. Validation
// happens once at construction; a malformed table is a build defect, not a
// runtime condition.
func loadCapabilities() ([]capability, error) {
	var f capabilityFile
	if err := yaml.Unmarshal(capabilityTable, &f); err != nil {
		return nil, fmt.Errorf("parsing capability table: %w", err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported capability table version %d", f.Version)
	}
	seen := make(map[string]struct{}, len(f.Capabilities))
	for _, c := range f.Capabilities {
		if c.Name == "" || len(c.Keywords) == 0 {
			return nil, fmt.Errorf("capability %q: name and keywords are required", c.Name)
		}
		if c.Arity < 0 || c.Arity > 2 {
			return nil, fmt.Errorf("capability %q: arity %d out of range", c.Name, c.Arity)
		}
		if _, ok := fragmentTemplates[c.Name]; !ok {
			return nil, fmt.Errorf("capability %q has no fragment template", c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate capability %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return f.Capabilities, nil
}
