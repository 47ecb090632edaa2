// Package training runs fine-tune and apply-model jobs against the external
// YOLO tool, staging datasets and weights inside the scratch workdir.
package training

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/export"
	"github.com/prernadh/yolo-model-tuner-runner/internal/redact"
	"github.com/prernadh/yolo-model-tuner-runner/internal/runner"
	"github.com/prernadh/yolo-model-tuner-runner/internal/store"
	"github.com/prernadh/yolo-model-tuner-runner/internal/workdir"
)

const defaultTrainTool = "yolo"

// Pipeline executes one job end to end. It does not own job status
// transitions; the queue drives those around Run calls.
type Pipeline struct {
	Store        store.DatasetStore
	Layout       workdir.Layout
	Tool         string
	UsePTY       bool
	OutputWriter io.Writer
	Redact       *redact.Redactor

	// OnStep receives progress events for the job event log.
	OnStep func(eventType, message string, data map[string]any)
}

func (p *Pipeline) toolName() string {
	if strings.TrimSpace(p.Tool) != "" {
		return p.Tool
	}
	return defaultTrainTool
}

func (p *Pipeline) step(eventType, message string, data map[string]any) {
	if p.OnStep != nil {
		p.OnStep(eventType, message, data)
	}
}

// Run dispatches on the job operator.
func (p *Pipeline) Run(ctx context.Context, job domain.Job) (map[string]any, error) {
	switch job.Operator {
	case domain.OperatorFineTune:
		return p.RunFineTune(ctx, job)
	case domain.OperatorApplyModel:
		return p.RunApply(ctx, job)
	default:
		return nil, domain.InvalidArgument(fmt.Sprintf("unknown operator %q", job.Operator))
	}
}

func (p *Pipeline) RunFineTune(ctx context.Context, job domain.Job) (map[string]any, error) {
	params, err := DecodeFineTuneParams(job.Params)
	if err != nil {
		return nil, err
	}
	if err := p.Layout.Ensure(); err != nil {
		return nil, domain.Internal("failed to prepare working directories", err)
	}

	weights, err := p.stageWeights(params.WeightsPath)
	if err != nil {
		return nil, err
	}

	samples, err := p.Store.ListSamples()
	if err != nil {
		return nil, err
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	manifest, err := export.Export(samples, export.Options{
		Dir:     p.Layout.ExportDir(params.Dataset, stamp),
		Classes: params.Classes,
		Splits:  []string{domain.TagTrain, domain.TagVal},
	})
	if err != nil {
		return nil, err
	}
	p.step("dataset_exported", "exported train/val splits", map[string]any{
		"dir":       manifest.Dir,
		"data_yaml": manifest.DataYAML,
		"counts":    manifest.Counts,
		"hash":      manifest.Hash,
	})
	if manifest.Counts[domain.TagTrain] == 0 {
		return nil, domain.FailedPrecondition("no samples tagged train; tag samples before fine-tuning")
	}

	runName := fmt.Sprintf("%s_%s", params.Dataset, stamp)
	args := []string{
		"detect", "train",
		"data=" + manifest.DataYAML,
		"model=" + weights,
		fmt.Sprintf("epochs=%d", params.Epochs),
		fmt.Sprintf("device=%d", params.DeviceIndex),
		"project=" + p.Layout.Projects,
		"name=" + runName,
	}
	p.step("training_started", "launching training tool", map[string]any{
		"tool": p.toolName(),
		"args": strings.Join(args, " "),
	})

	result := runner.Run(ctx, runner.Options{
		Tool:              p.toolName(),
		Args:              args,
		WorkDir:           p.Layout.Root,
		UsePTY:            p.UsePTY,
		CaptureTranscript: true,
		OutputWriter:      p.OutputWriter,
	})
	if result.Err != nil || result.ExitCode != 0 {
		return nil, p.toolError("training", result)
	}

	bestWeights := filepath.Join(p.Layout.Projects, runName, "weights", "best.pt")
	if _, err := os.Stat(bestWeights); err != nil {
		return nil, domain.Internal("training finished but best weights are missing", err)
	}

	exported := ""
	if params.ExportURI != "" {
		exported, err = exportWeights(bestWeights, params.ExportURI)
		if err != nil {
			return nil, err
		}
		p.step("weights_exported", "copied best weights to export destination", map[string]any{
			"export_uri": exported,
		})
	}

	out := map[string]any{
		"det_field":   params.DetField,
		"weights":     bestWeights,
		"data_yaml":   manifest.DataYAML,
		"train_count": manifest.Counts[domain.TagTrain],
		"val_count":   manifest.Counts[domain.TagVal],
		"epochs":      params.Epochs,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if exported != "" {
		out["export_uri"] = exported
	}
	return out, nil
}

func (p *Pipeline) RunApply(ctx context.Context, job domain.Job) (map[string]any, error) {
	params, err := DecodeApplyParams(job.Params)
	if err != nil {
		return nil, err
	}
	if err := p.Layout.Ensure(); err != nil {
		return nil, domain.Internal("failed to prepare working directories", err)
	}

	weights, err := p.stageWeights(params.WeightsPath)
	if err != nil {
		return nil, err
	}

	samples, err := p.Store.ListSamples()
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, domain.FailedPrecondition("dataset has no samples to run inference on")
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	sourceList, err := writeSourceList(p.Layout.ExportDir("apply", stamp), samples)
	if err != nil {
		return nil, err
	}

	runName := "apply_" + stamp
	args := []string{
		"detect", "predict",
		"model=" + weights,
		"source=" + sourceList,
		fmt.Sprintf("conf=%g", params.Confidence),
		fmt.Sprintf("device=%d", params.DeviceIndex),
		"project=" + p.Layout.Projects,
		"name=" + runName,
		"save_txt=True",
	}
	p.step("inference_started", "launching inference tool", map[string]any{
		"tool":    p.toolName(),
		"args":    strings.Join(args, " "),
		"samples": len(samples),
	})

	result := runner.Run(ctx, runner.Options{
		Tool:              p.toolName(),
		Args:              args,
		WorkDir:           p.Layout.Root,
		UsePTY:            p.UsePTY,
		CaptureTranscript: true,
		OutputWriter:      p.OutputWriter,
	})
	if result.Err != nil || result.ExitCode != 0 {
		return nil, p.toolError("inference", result)
	}

	return map[string]any{
		"det_field":    params.DetField,
		"weights":      weights,
		"predictions":  filepath.Join(p.Layout.Projects, runName),
		"sample_count": len(samples),
		"confidence":   params.Confidence,
		"duration_ms":  result.Duration.Milliseconds(),
	}, nil
}

// stageWeights copies user-provided weights into the models directory so the
// tool always reads from a local path. An empty path falls back to the
// default pretrained checkpoint name, which the tool resolves itself.
func (p *Pipeline) stageWeights(weightsPath string) (string, error) {
	if weightsPath == "" {
		return defaultWeightsName, nil
	}
	staged := p.Layout.ModelPath(weightsPath)
	if weightsPath == staged {
		return staged, nil
	}
	if err := copyFile(weightsPath, staged); err != nil {
		return "", domain.InvalidArgument(fmt.Sprintf("weights_path %q is not readable: %v", weightsPath, err))
	}
	p.step("weights_staged", "copied weights into working directory", map[string]any{
		"from": weightsPath,
		"to":   staged,
	})
	return staged, nil
}

func exportWeights(bestWeights, exportURI string) (string, error) {
	destination := exportURI
	if strings.HasSuffix(destination, string(os.PathSeparator)) {
		destination = filepath.Join(destination, filepath.Base(bestWeights))
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", domain.Internal("failed to create export destination", err)
	}
	if err := copyFile(bestWeights, destination); err != nil {
		return "", domain.Internal("failed to export weights", err)
	}
	return destination, nil
}

func writeSourceList(dir string, samples []domain.Sample) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.Internal("failed to create inference source directory", err)
	}
	var lines strings.Builder
	for _, sample := range samples {
		lines.WriteString(sample.Filepath)
		lines.WriteString("\n")
	}
	path := filepath.Join(dir, "sources.txt")
	if err := os.WriteFile(path, []byte(lines.String()), 0o644); err != nil {
		return "", domain.Internal("failed to write inference source list", err)
	}
	return path, nil
}

func copyFile(from, to string) error {
	source, err := os.Open(from)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	destination, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

func (p *Pipeline) toolError(phase string, result runner.Result) error {
	if result.Err != nil {
		return domain.Internal(fmt.Sprintf("%s tool failed", phase), result.Err)
	}
	message := fmt.Sprintf("%s tool exited with status %d", phase, result.ExitCode)
	if tail := transcriptTail(result.Transcript, 500); tail != "" {
		// The tool inherits the server environment; scrub the tail before it
		// lands in job records.
		message += ": " + p.Redact.Apply(tail)
	}
	return domain.Internal(message, nil)
}

func transcriptTail(transcript string, max int) string {
	transcript = strings.TrimSpace(transcript)
	if len(transcript) <= max {
		return transcript
	}
	return transcript[len(transcript)-max:]
}
