package experiment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sbenjam1n/gridrun/internal/configtree"
	"github.com/sbenjam1n/gridrun/internal/ctxlog"
	"github.com/sbenjam1n/gridrun/internal/expand"
	"github.com/sbenjam1n/gridrun/internal/report"
	"github.com/sbenjam1n/gridrun/internal/workspace"
)

const outlineDoc = `{
    "baselineConfig": "cifar_base",
    "tests": [
        {"tag": "Test 1", "datasetPath": "data_sets/cifar_test.json", "classify": 3},
        {"tag": "Test 2", "datasetPath": "data_sets/cifar_val.json"}
    ],
    "reports": [
        {"type": "plotROC", "testTag": "Test 1", "classes": "0,1"},
        {"type": "all", "testTag": "Test 1"},
        {"type": "summary", "outputName": "summary.md"}
    ],
    "variables": [
        {"nickname": "lr", "fieldPath": "pytorch.optimizerArgs.lr", "values": [0.02, 0.01]},
        {"nickname": "lrSched", "fieldPath": "pytorch.lrSchedule", "values": ["A", "B"]},
        {"nickname": "", "fieldPath": "seed", "values": "RANDOM"}
    ]
}`

const baseDoc = `{"seed": 1, "pytorch": {"lrSchedule": "StepLR", "optimizerArgs": {"lr": 0.1}}}`

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func setupWorkspace(t *testing.T) workspace.Layout {
	t.Helper()
	root := t.TempDir()
	layout := workspace.Layout{Root: root}

	os.MkdirAll(layout.ExperimentDir("cifar"), 0755)
	os.WriteFile(layout.OutlinePath("cifar"), []byte(outlineDoc), 0644)
	os.MkdirAll(layout.ModelDir("cifar_base"), 0755)
	os.WriteFile(layout.ModelConfigPath("cifar_base"), []byte(baseDoc), 0644)
	return layout
}

func newTestGenerator() *Generator {
	return &Generator{
		Expander: &expand.Expander{Random: func() uint32 { return 42 }},
		Now:      func() time.Time { return fixedNow },
	}
}

func TestGenerateFromWorkspace(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	layout := setupWorkspace(t)

	res, err := newTestGenerator().GenerateFromWorkspace(ctx, layout, "cifar")
	if err != nil {
		t.Fatalf("GenerateFromWorkspace: %v", err)
	}

	var names []string
	for _, m := range res.Config.Models {
		names = append(names, m.Name)
	}
	want := []string{"cifar/lr_0_lrSched_0", "cifar/lr_0_lrSched_1", "cifar/lr_1_lrSched_0", "cifar/lr_1_lrSched_1"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("model names (-want +got):\n%s", diff)
	}

	wantTests := []TestSpec{
		{Tag: "Test 1_lr_1_lrSched_0", DatasetPath: "data_sets/cifar_test.json", Classify: 3},
		{Tag: "Test 2_lr_1_lrSched_0", DatasetPath: "data_sets/cifar_val.json", Classify: 0},
	}
	if diff := cmp.Diff(wantTests, res.Config.Models[2].Tests); diff != "" {
		t.Errorf("model 2 tests (-want +got):\n%s", diff)
	}

	// 4 per-model ROC jobs, 1 combined, 1 summary.
	if len(res.Config.Reports) != 6 {
		t.Fatalf("reports = %d, want 6", len(res.Config.Reports))
	}
	if res.Config.Reports[4].OutputName != "Test 1_all_combined.png" {
		t.Errorf("combined report = %q", res.Config.Reports[4].OutputName)
	}
	if res.Config.Timestamp != "2026-03-04T05:06:07Z" || res.Config.FormatVersion != FormatVersion {
		t.Errorf("stamp = %q %q", res.Config.Timestamp, res.Config.FormatVersion)
	}

	cfg, err := configtree.Load(layout.ModelConfigPath("cifar/lr_1_lrSched_1"))
	if err != nil {
		t.Fatalf("load generated model: %v", err)
	}
	if lr, _ := cfg.Get(configtree.MustParsePath("pytorch.optimizerArgs.lr")); lr != 0.01 {
		t.Errorf("lr = %v, want 0.01", lr)
	}
	if s, _ := cfg.Get(configtree.MustParsePath("seed")); s != 42 {
		t.Errorf("seed = %v, want 42", s)
	}

	loaded, err := LoadConfig(layout.ExperimentConfigPath("cifar"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(res.Config, loaded); diff != "" {
		t.Errorf("experiment config round trip (-want +got):\n%s", diff)
	}
}

func TestGenerateTestsAreIndependent(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	o := &Outline{
		BaselineConfig: "base",
		Tests:          []TestSpec{{Tag: "T", DatasetPath: "d.json"}},
		Variables:      []expand.Variable{{FieldPath: "x", Values: []any{1, 2}}},
	}
	base := configtree.New()

	res, err := newTestGenerator().Generate(ctx, "exp", o, base)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	res.Models[0].Tests[0].Classify = 9

	if res.Models[1].Tests[0].Classify != 0 || o.Tests[0].Classify != 0 {
		t.Error("test specs shared between models")
	}
	if o.Tests[0].Tag != "T" {
		t.Errorf("outline tag mutated to %q", o.Tests[0].Tag)
	}
}

func TestGenerateFailureWritesNothing(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	layout := setupWorkspace(t)
	bad := strings.Replace(outlineDoc, "pytorch.lrSchedule", "pytorch.missing.lrSchedule", 1)
	os.WriteFile(layout.OutlinePath("cifar"), []byte(bad), 0644)

	if _, err := newTestGenerator().GenerateFromWorkspace(ctx, layout, "cifar"); err == nil {
		t.Fatal("expected error for missing path segment")
	}
	if _, err := os.Stat(layout.ExperimentConfigPath("cifar")); !os.IsNotExist(err) {
		t.Error("experiment config written despite failure")
	}
	if _, err := os.Stat(filepath.Join(layout.Root, "models", "cifar")); !os.IsNotExist(err) {
		t.Error("model configs written despite failure")
	}
}

func TestOutlineValidate(t *testing.T) {
	o := &Outline{
		Tests: []TestSpec{
			{Tag: "A", DatasetPath: "a.json"},
			{Tag: "A"},
		},
		Reports: []report.Template{
			{Type: "plotROC"},
			{Type: "all", TestTag: "nope"},
			{Type: "summary"},
			{Type: "unknown"},
		},
		Variables: []expand.Variable{
			{FieldPath: "", Values: []any{1}},
			{FieldPath: "a..b", Values: []any{1}},
			{FieldPath: "x", Values: []any{}},
		},
	}

	err := o.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"baselineConfig is required",
		`duplicate tag "A"`,
		"datasetPath is required",
		"plotROC: testTag is required",
		`unknown testTag "nope"`,
		"summary: outputName is required",
		"variables[0]: fieldPath is required",
		"empty path segment",
		"values list is empty",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation output missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "unknown\"") {
		t.Errorf("unknown report type should not fail validation:\n%s", msg)
	}
}

func TestGenerateKeepsTestExtraFields(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	layout := setupWorkspace(t)
	doc := `{
    "baselineConfig": "cifar_base",
    "tests": [{"tag": "T", "datasetPath": "d.json", "extra": "keep"}],
    "reports": [],
    "variables": [{"nickname": "x", "fieldPath": "seed", "values": [1, 2]}]
}`
	os.WriteFile(layout.OutlinePath("cifar"), []byte(doc), 0644)

	res, err := newTestGenerator().GenerateFromWorkspace(ctx, layout, "cifar")
	if err != nil {
		t.Fatalf("GenerateFromWorkspace: %v", err)
	}
	for _, m := range res.Config.Models {
		if v, ok := m.Tests[0].Extra.Get("extra"); !ok || v != "keep" {
			t.Errorf("%s: extra = %v, %v", m.Name, v, ok)
		}
	}
	res.Config.Models[0].Tests[0].Extra.Set("extra", "changed")
	if v, _ := res.Config.Models[1].Tests[0].Extra.Get("extra"); v != "keep" {
		t.Errorf("extra fields shared between models: %v", v)
	}

	data, err := os.ReadFile(layout.ExperimentConfigPath("cifar"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{
                    "tag": "T_x_0",
                    "datasetPath": "d.json",
                    "classify": 0,
                    "extra": "keep"
                }`
	if !strings.Contains(string(data), want) {
		t.Errorf("experiment config lost test extras:\n%s", data)
	}
	if !strings.Contains(string(data), `"reports": []`) {
		t.Errorf("empty reports not written as a list:\n%s", data)
	}
}

func TestWriteStagesModelConfigs(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	layout := setupWorkspace(t)

	// A regular file where the last model directory belongs.
	blocked := layout.ModelDir("cifar/lr_1_lrSched_1")
	os.MkdirAll(filepath.Dir(blocked), 0755)
	os.WriteFile(blocked, []byte("x"), 0644)

	if _, err := newTestGenerator().GenerateFromWorkspace(ctx, layout, "cifar"); err == nil {
		t.Fatal("expected error writing into a blocked model dir")
	}
	for _, name := range []string{"cifar/lr_0_lrSched_0", "cifar/lr_0_lrSched_1", "cifar/lr_1_lrSched_0"} {
		if _, err := os.Stat(layout.ModelDir(name)); !os.IsNotExist(err) {
			t.Errorf("%s left behind after failed write", name)
		}
	}
	if _, err := os.Stat(layout.ExperimentConfigPath("cifar")); !os.IsNotExist(err) {
		t.Error("experiment config written despite failure")
	}
	entries, _ := os.ReadDir(filepath.Dir(blocked))
	if len(entries) != 1 {
		t.Errorf("models/cifar holds %d entries, want only the blocking file", len(entries))
	}

	os.Remove(blocked)
	if _, err := newTestGenerator().GenerateFromWorkspace(ctx, layout, "cifar"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(layout.Root, "models", "cifar", "*", ".tmp-*"))
	if len(matches) != 0 {
		t.Errorf("staged files left behind: %v", matches)
	}
	if _, err := os.Stat(layout.ModelConfigPath("cifar/lr_1_lrSched_1")); err != nil {
		t.Errorf("model config missing after retry: %v", err)
	}
}
