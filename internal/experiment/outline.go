package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sbenjam1n/gridrun/internal/configtree"
	"github.com/sbenjam1n/gridrun/internal/report"
	"gopkg.in/yaml.v3"
)

// LoadOutline reads an outline document (JSON or YAML).
func LoadOutline(path string) (*Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	var o Outline
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse outline %s: %w", path, err)
	}
	return &o, nil
}

// Validate reports every structural problem in the outline at once.
// Unknown report types are not an error here; expansion drops them.
func (o *Outline) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(o.BaselineConfig) == "" {
		result = multierror.Append(result, fmt.Errorf("baselineConfig is required"))
	}

	tags := map[string]bool{}
	for i, tc := range o.Tests {
		if tc.Tag == "" {
			result = multierror.Append(result, fmt.Errorf("tests[%d]: tag is required", i))
		} else if tags[tc.Tag] {
			result = multierror.Append(result, fmt.Errorf("tests[%d]: duplicate tag %q", i, tc.Tag))
		}
		tags[tc.Tag] = true
		if tc.DatasetPath == "" {
			result = multierror.Append(result, fmt.Errorf("tests[%d]: datasetPath is required", i))
		}
		if tc.Classify < 0 {
			result = multierror.Append(result, fmt.Errorf("tests[%d]: classify must not be negative", i))
		}
	}

	for i, v := range o.Variables {
		if strings.TrimSpace(v.FieldPath) == "" {
			result = multierror.Append(result, fmt.Errorf("variables[%d]: fieldPath is required", i))
			continue
		}
		for _, sub := range strings.Split(v.FieldPath, ",") {
			if _, err := configtree.ParsePath(sub); err != nil {
				result = multierror.Append(result, fmt.Errorf("variables[%d]: %w", i, err))
			}
		}
		if v.IsList() && len(v.List()) == 0 {
			result = multierror.Append(result, fmt.Errorf("variables[%d] %s: values list is empty", i, v.FieldPath))
		}
		if v.Values == nil {
			result = multierror.Append(result, fmt.Errorf("variables[%d] %s: values are required", i, v.FieldPath))
		}
	}

	for i, r := range o.Reports {
		switch r.Type {
		case report.TypePlotROC, report.TypeAll:
			if r.TestTag == "" {
				result = multierror.Append(result, fmt.Errorf("reports[%d] %s: testTag is required", i, r.Type))
			} else if !tags[r.TestTag] {
				result = multierror.Append(result, fmt.Errorf("reports[%d] %s: unknown testTag %q", i, r.Type, r.TestTag))
			}
		case report.TypeSummary:
			if r.OutputName == "" {
				result = multierror.Append(result, fmt.Errorf("reports[%d] summary: outputName is required", i))
			}
		}
	}

	return result.ErrorOrNil()
}

// LoadConfig reads a generated experiment config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse experiment config %s: %w", path, err)
	}
	return &c, nil
}

// WriteConfig writes the experiment config as indented JSON.
func WriteConfig(path string, c *Config) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("encode experiment config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create experiment dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write experiment config: %w", err)
	}
	return nil
}
