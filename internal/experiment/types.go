package experiment

import (
	"encoding/json"

	"github.com/sbenjam1n/gridrun/internal/configtree"
	"github.com/sbenjam1n/gridrun/internal/expand"
	"github.com/sbenjam1n/gridrun/internal/report"
	"gopkg.in/yaml.v3"
)

// FormatVersion is stamped on every generated experiment config.
const FormatVersion = "0.2.0"

// TestSpec is a dataset every generated model is evaluated against. Keys
// other than tag, datasetPath and classify are kept in Extra.
type TestSpec struct {
	Tag         string          `yaml:"tag" json:"tag"`
	DatasetPath string          `yaml:"datasetPath" json:"datasetPath"`
	Classify    int             `yaml:"classify" json:"classify"`
	Extra       *configtree.Map `yaml:"-" json:"-"`
}

func (t *TestSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain TestSpec
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	extra, err := configtree.ExtraFields(n, "tag", "datasetPath", "classify")
	if err != nil {
		return err
	}
	*t = TestSpec(p)
	t.Extra = extra
	return nil
}

func (t TestSpec) MarshalJSON() ([]byte, error) {
	type plain TestSpec
	data, err := json.Marshal(plain(t))
	if err != nil {
		return nil, err
	}
	return configtree.AppendJSONFields(data, t.Extra)
}

// Outline is the declarative source of an experiment.
type Outline struct {
	Description    string            `yaml:"description,omitempty" json:"description,omitempty"`
	BaselineConfig string            `yaml:"baselineConfig" json:"baselineConfig"`
	Tests          []TestSpec        `yaml:"tests" json:"tests"`
	Reports        []report.Template `yaml:"reports" json:"reports"`
	Variables      []expand.Variable `yaml:"variables" json:"variables"`
}

// ModelDescriptor names one generated model and the tests run against it.
type ModelDescriptor struct {
	Name  string     `yaml:"name" json:"name"`
	Tests []TestSpec `yaml:"tests" json:"tests"`
}

// Config is the generated experiment document the orchestrator executes.
type Config struct {
	Description   string            `yaml:"description" json:"description"`
	Models        []ModelDescriptor `yaml:"models" json:"models"`
	Reports       []report.Job      `yaml:"reports" json:"reports"`
	FormatVersion string            `yaml:"formatVersion" json:"formatVersion"`
	Timestamp     string            `yaml:"timestamp" json:"timestamp"`
}

// TestPairs counts (model, test) prediction steps.
func (c *Config) TestPairs() int {
	n := 0
	for _, m := range c.Models {
		n += len(m.Tests)
	}
	return n
}
