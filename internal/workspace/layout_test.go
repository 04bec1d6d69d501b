package workspace

import (
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := Layout{Root: "/ws", DataRoot: "/data"}
	model := ModelName("cifar", "lr_0_lrSched_1")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"model name", model, "cifar/lr_0_lrSched_1"},
		{"outline", l.OutlinePath("cifar"), "/ws/experiments/cifar/experiment_outline.json"},
		{"experiment config", l.ExperimentConfigPath("cifar"), "/ws/experiments/cifar/config.json"},
		{"model config", l.ModelConfigPath(model), "/ws/models/cifar/lr_0_lrSched_1/config.json"},
		{"trained model", l.TrainedModelPath(model), "/ws/models/cifar/lr_0_lrSched_1/model.pt"},
		{"prediction", l.PredictionPath(model, "data_sets/cifar_test.json"), "/ws/models/cifar/lr_0_lrSched_1/predictions_cifar_test.json"},
		{"relative dataset", l.DatasetPath("data_sets/cifar_test.json"), "/ws/data_sets/cifar_test.json"},
		{"absolute dataset", l.DatasetPath("/abs/set.json"), "/abs/set.json"},
		{"report", l.ReportPath("cifar", "Test 1_all_combined.png"), "/ws/experiments/cifar/Test 1_all_combined.png"},
	}

	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestTrainingArtifacts(t *testing.T) {
	l := Layout{Root: "/ws", ModelFile: "model.h5"}
	arts := l.TrainingArtifacts("exp/m")
	if len(arts) != 4 {
		t.Fatalf("len = %d, want 4", len(arts))
	}
	if arts[0] != filepath.FromSlash("/ws/models/exp/m/model.h5") {
		t.Errorf("first artifact = %q, want trained model", arts[0])
	}
}
