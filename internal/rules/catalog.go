// Package rules provides the organized-play rule surface behind the match
// validator: a YAML scenario catalog and an optional sandboxed Lua script
// for block/eligibility decisions. It has no dependency on the matcher;
// the validator interface is satisfied structurally.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one catalog entry.
type Scenario struct {
	// Code is the scenario identifier players queue against, e.g. "PFS-10-01".
	Code string `yaml:"code"`
	// Name is the display title.
	Name string `yaml:"name"`
	// MinLevel and MaxLevel bound the character level band.
	MinLevel int `yaml:"min_level"`
	MaxLevel int `yaml:"max_level"`
	// Season groups scenarios for seasonal legality rules.
	Season int `yaml:"season"`
}

// Catalog is an immutable, code-indexed scenario set. Safe for concurrent
// reads after construction.
type Catalog struct {
	byCode map[string]Scenario
}

type catalogFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadCatalog reads and validates a YAML catalog file.
//
// Postcondition: Returns a Catalog with unique, non-empty scenario codes,
// or a non-nil error naming the first violation.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	byCode := make(map[string]Scenario, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		if sc.Code == "" {
			return nil, fmt.Errorf("catalog %s: scenario %d has no code", path, i)
		}
		if _, dup := byCode[sc.Code]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate scenario code %q", path, sc.Code)
		}
		if sc.MinLevel > sc.MaxLevel {
			return nil, fmt.Errorf("catalog %s: scenario %q: min_level %d exceeds max_level %d",
				path, sc.Code, sc.MinLevel, sc.MaxLevel)
		}
		byCode[sc.Code] = sc
	}

	return &Catalog{byCode: byCode}, nil
}

// NewCatalog builds a Catalog from in-memory scenarios. Used by tests and
// callers that source scenarios elsewhere.
func NewCatalog(scenarios []Scenario) *Catalog {
	byCode := make(map[string]Scenario, len(scenarios))
	for _, sc := range scenarios {
		byCode[sc.Code] = sc
	}
	return &Catalog{byCode: byCode}
}

// Lookup returns the scenario for code.
func (c *Catalog) Lookup(code string) (Scenario, bool) {
	sc, ok := c.byCode[code]
	return sc, ok
}

// Len returns the number of scenarios in the catalog.
func (c *Catalog) Len() int {
	return len(c.byCode)
}
