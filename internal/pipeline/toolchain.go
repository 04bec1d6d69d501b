package pipeline

import (
	"strconv"
	"strings"
)

// Toolchain knows how to invoke the external trainer, predictor and report
// renderers. Every non-report invocation receives the workspace and data
// root flags.
type Toolchain struct {
	Train     []string
	Predict   []string
	PlotROC   []string
	Summary   []string
	Workspace string
	DataRoot  string
}

func (t Toolchain) rootFlags() []Flag {
	return []Flag{{Name: "-w", Value: t.Workspace}, {Name: "-d", Value: t.DataRoot}}
}

// TrainCommand trains model. workers > 0 is passed to the trainer as its
// data-loader worker count.
func (t Toolchain) TrainCommand(model string, dryRun bool, workers int) Command {
	flags := t.rootFlags()
	if dryRun {
		flags = append(flags, Flag{Name: "--dryrun", Bool: true})
	}
	if workers > 0 {
		flags = append(flags, Flag{Name: "--num-workers", Value: strconv.Itoa(workers)})
	}
	return Command{Op: "train", Program: t.Train, Flags: flags, Args: []string{model}, Preview: dryRun}
}

// PredictCommand produces model's predictions for a dataset, keeping the
// top-k classes.
func (t Toolchain) PredictCommand(model, dataset string, topK int) Command {
	flags := append(t.rootFlags(), Flag{Name: "--topk", Value: strconv.Itoa(topK)})
	return Command{Op: "predict", Program: t.Predict, Flags: flags, Args: []string{model, dataset}}
}

// PlotROCCommand renders one ROC plot over the given prediction files.
func (t Toolchain) PlotROCCommand(predictions []string, classes, title, output string) Command {
	flags := []Flag{
		{Name: "-f", Value: strings.Join(predictions, ",")},
		{Name: "-p", Value: classes},
	}
	if title != "" {
		flags = append(flags, Flag{Name: "-t", Value: title})
	}
	return Command{Op: "plot-roc", Program: t.PlotROC, Flags: flags, Args: []string{output}}
}

// SummaryCommand writes the markdown (and optional CSV) summary.
func (t Toolchain) SummaryCommand(predictions []string, markdown, csv string) Command {
	flags := []Flag{
		{Name: "-f", Value: strings.Join(predictions, ",")},
		{Name: "-md", Value: markdown},
	}
	if csv != "" {
		flags = append(flags, Flag{Name: "-csv", Value: csv})
	}
	return Command{Op: "summary", Program: t.Summary, Flags: flags}
}
