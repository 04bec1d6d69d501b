// Package report expands report templates from an experiment outline into
// the concrete report jobs the orchestrator runs.
package report

import (
	"context"
	"encoding/json"

	"github.com/sbenjam1n/gridrun/internal/configtree"
	"github.com/sbenjam1n/gridrun/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Report types.
const (
	TypePlotROC = "plotROC"
	TypeSummary = "summary"
	TypeAll     = "all"
)

// DefaultClasses is used for ROC plots whose template names no classes.
const DefaultClasses = "0"

// Template is a report entry as written in an outline. Templates are source
// data and are never modified by expansion. Keys gridrun does not interpret
// are kept in Extra and carried into every job built from the template.
type Template struct {
	Type        string          `yaml:"type" json:"type"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	TestTag     string          `yaml:"testTag,omitempty" json:"testTag,omitempty"`
	Classes     string          `yaml:"classes,omitempty" json:"classes,omitempty"`
	OutputName  string          `yaml:"outputName,omitempty" json:"outputName,omitempty"`
	CSV         string          `yaml:"csv,omitempty" json:"csv,omitempty"`
	Extra       *configtree.Map `yaml:"-" json:"-"`
}

var templateKeys = []string{"type", "description", "testTag", "classes", "outputName", "csv"}

func (t *Template) UnmarshalYAML(n *yaml.Node) error {
	type plain Template
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	extra, err := configtree.ExtraFields(n, templateKeys...)
	if err != nil {
		return err
	}
	*t = Template(p)
	t.Extra = extra
	return nil
}

// TestRef points a report at the predictions of one test.
type TestRef struct {
	Tag string `yaml:"tag" json:"tag"`
}

// Job is a runnable report. Extra holds the template keys gridrun passes
// through to the report tools untouched.
type Job struct {
	Type        string          `yaml:"type" json:"type"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	TestTag     string          `yaml:"testTag,omitempty" json:"testTag,omitempty"`
	OutputName  string          `yaml:"outputName,omitempty" json:"outputName,omitempty"`
	PlotTitle   string          `yaml:"plotTitle,omitempty" json:"plotTitle,omitempty"`
	Classes     string          `yaml:"classes,omitempty" json:"classes,omitempty"`
	CSV         string          `yaml:"csv,omitempty" json:"csv,omitempty"`
	Tests       []TestRef       `yaml:"tests,omitempty" json:"tests,omitempty"`
	Extra       *configtree.Map `yaml:"-" json:"-"`
}

var jobKeys = []string{"type", "description", "testTag", "outputName", "plotTitle", "classes", "csv", "tests"}

func (j *Job) UnmarshalYAML(n *yaml.Node) error {
	type plain Job
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	extra, err := configtree.ExtraFields(n, jobKeys...)
	if err != nil {
		return err
	}
	*j = Job(p)
	j.Extra = extra
	return nil
}

// MarshalJSON writes the known fields followed by Extra.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	data, err := json.Marshal(plain(j))
	if err != nil {
		return nil, err
	}
	return configtree.AppendJSONFields(data, j.Extra)
}

// Expand turns templates into jobs in template order. plotROC yields one job
// per model, all yields a single combined ROC job, summary passes through.
// Templates of any other type are logged and dropped. The result is never nil.
func Expand(ctx context.Context, templates []Template, modelNames []string) []Job {
	logger := ctxlog.FromContext(ctx)

	jobs := make([]Job, 0, len(templates))
	for i, tmpl := range templates {
		switch tmpl.Type {
		case TypePlotROC:
			for _, name := range modelNames {
				tag := tmpl.TestTag + "_" + name
				jobs = append(jobs, Job{
					Type:        TypePlotROC,
					Description: tmpl.Description,
					OutputName:  tag + ".png",
					PlotTitle:   "ROC - " + name,
					Classes:     classes(tmpl),
					Tests:       []TestRef{{Tag: tag}},
					Extra:       tmpl.Extra.Clone(),
				})
			}
		case TypeAll:
			job := Job{
				Type:        TypePlotROC,
				Description: tmpl.Description,
				OutputName:  tmpl.TestTag + "_all_combined.png",
				PlotTitle:   "ROC - All Tests Combined",
				Classes:     classes(tmpl),
				Extra:       tmpl.Extra.Clone(),
			}
			for _, name := range modelNames {
				job.Tests = append(job.Tests, TestRef{Tag: tmpl.TestTag + "_" + name})
			}
			jobs = append(jobs, job)
		case TypeSummary:
			jobs = append(jobs, Job{
				Type:        TypeSummary,
				Description: tmpl.Description,
				TestTag:     tmpl.TestTag,
				OutputName:  tmpl.OutputName,
				Classes:     tmpl.Classes,
				CSV:         tmpl.CSV,
				Extra:       tmpl.Extra.Clone(),
			})
		default:
			logger.Error("Unsupported report type, dropping report.", "index", i, "type", tmpl.Type)
		}
	}
	return jobs
}

func classes(t Template) string {
	if t.Classes == "" {
		return DefaultClasses
	}
	return t.Classes
}
