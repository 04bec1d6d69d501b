// Package workspace maps experiments, models and their artifacts onto the
// filesystem. The orchestrator, generator and clean mode all resolve paths
// here so that "what a step produces" and "what clean removes" never drift.
package workspace

import (
	"path"
	"path/filepath"
	"strings"
)

const (
	modelsDir      = "models"
	experimentsDir = "experiments"

	// OutlineFile is the outline document inside an experiment directory.
	OutlineFile = "experiment_outline.json"
	// ConfigFile is the config document of a model or an experiment.
	ConfigFile = "config.json"
	// DefaultModelFile is the trained-model artifact the trainer writes.
	DefaultModelFile = "model.pt"
)

// trainingByproducts are written next to the trained model by the trainer.
var trainingByproducts = []string{"output.json", "output.png", "log_train.txt"}

// Layout resolves every workspace path.
type Layout struct {
	Root      string
	DataRoot  string
	ModelFile string
}

// ModelName joins an experiment name and a combination name.
func ModelName(experiment, combo string) string {
	return path.Join(experiment, combo)
}

// ExperimentDir is where outlines, experiment configs and reports live.
func (l Layout) ExperimentDir(experiment string) string {
	return filepath.Join(l.Root, experimentsDir, filepath.FromSlash(experiment))
}

func (l Layout) OutlinePath(experiment string) string {
	return filepath.Join(l.ExperimentDir(experiment), OutlineFile)
}

func (l Layout) ExperimentConfigPath(experiment string) string {
	return filepath.Join(l.ExperimentDir(experiment), ConfigFile)
}

// ModelDir is the directory of a model; generated models are nested under
// their experiment name.
func (l Layout) ModelDir(model string) string {
	return filepath.Join(l.Root, modelsDir, filepath.FromSlash(model))
}

func (l Layout) ModelConfigPath(model string) string {
	return filepath.Join(l.ModelDir(model), ConfigFile)
}

// TrainedModelPath is the artifact whose presence marks training as done.
func (l Layout) TrainedModelPath(model string) string {
	return filepath.Join(l.ModelDir(model), l.modelFile())
}

// TrainingArtifacts lists everything a training step produces.
func (l Layout) TrainingArtifacts(model string) []string {
	out := []string{l.TrainedModelPath(model)}
	for _, f := range trainingByproducts {
		out = append(out, filepath.Join(l.ModelDir(model), f))
	}
	return out
}

// DatasetPath resolves a dataset reference from a test entry. Relative
// references are taken from the workspace root.
func (l Layout) DatasetPath(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(l.Root, filepath.FromSlash(ref))
}

// PredictionPath names a model's predictions for a dataset after the
// dataset's base name.
func (l Layout) PredictionPath(model, datasetRef string) string {
	base := path.Base(filepath.ToSlash(datasetRef))
	stem := strings.TrimSuffix(base, path.Ext(base))
	return filepath.Join(l.ModelDir(model), "predictions_"+stem+".json")
}

// ReportPath places a report output inside the experiment directory.
func (l Layout) ReportPath(experiment, outputName string) string {
	return filepath.Join(l.ExperimentDir(experiment), filepath.FromSlash(outputName))
}

func (l Layout) modelFile() string {
	if l.ModelFile == "" {
		return DefaultModelFile
	}
	return l.ModelFile
}
