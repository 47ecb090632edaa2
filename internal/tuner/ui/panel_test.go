package ui

import (
	"context"
	"testing"

	"github.com/prernadh/yolo-model-tuner-runner/internal/exec"
	"github.com/prernadh/yolo-model-tuner-runner/internal/training"
	tunerconfig "github.com/prernadh/yolo-model-tuner-runner/internal/tuner/config"
	"github.com/prernadh/yolo-model-tuner-runner/internal/tuner/hubclient"
	"github.com/prernadh/yolo-model-tuner-runner/internal/viewfilter"
)

type fakeClient struct {
	counts hubclient.TagCounts
}

func (f *fakeClient) ListTargets(ctx context.Context) ([]exec.Target, error) {
	return []exec.Target{{Name: "local"}}, nil
}

func (f *fakeClient) Execute(ctx context.Context, request exec.Request) exec.Outcome {
	return exec.Immediate(map[string]any{"det_field": "ground_truth"})
}

func (f *fakeClient) GetTagCounts(ctx context.Context) (hubclient.TagCounts, error) {
	return f.counts, nil
}

func (f *fakeClient) Close() error { return nil }

type recordingSink struct {
	stages []viewfilter.Stage
	calls  int
}

func (s *recordingSink) SetStages(stages []viewfilter.Stage) {
	s.stages = stages
	s.calls++
}

func newTestModel(sink viewfilter.Sink) *model {
	cfg := tunerconfig.Default()
	return newModel(Options{
		Config: cfg,
		Client: &fakeClient{},
		Sink:   sink,
	})
}

func TestApplyCategoryPushesStagesAndToggles(t *testing.T) {
	sink := &recordingSink{}
	m := newTestModel(sink)

	m.applyCategory(viewfilter.CategoryTrain)
	if m.category != viewfilter.CategoryTrain {
		t.Fatalf("category = %q, want train", m.category)
	}
	if len(sink.stages) != 1 || sink.stages[0].Kind != viewfilter.KindMatchTag {
		t.Fatalf("sink stages = %+v", sink.stages)
	}

	// Re-selecting the active category clears the filter.
	m.applyCategory(viewfilter.CategoryTrain)
	if m.category != viewfilter.CategoryNone {
		t.Fatalf("category = %q after toggle, want none", m.category)
	}
	if sink.stages != nil {
		t.Fatalf("sink stages = %+v after clear, want nil", sink.stages)
	}
	if sink.calls != 2 {
		t.Fatalf("sink called %d times, want 2", sink.calls)
	}
}

func TestBuildParamsFineTune(t *testing.T) {
	m := newTestModel(nil)
	m.detInput.SetValue("ground_truth")
	m.weightsInput.SetValue("/models/yolov8s.pt")
	m.exportInput.SetValue("/exports/best.pt")
	m.epochsInput.SetValue("25")
	m.deviceInput.SetValue("1")

	params, err := m.buildParams()
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params["det_field"] != "ground_truth" {
		t.Fatalf("det_field = %v", params["det_field"])
	}
	if params["weights_path"] != "/models/yolov8s.pt" {
		t.Fatalf("weights_path = %v", params["weights_path"])
	}
	if params["export_uri"] != "/exports/best.pt" {
		t.Fatalf("export_uri = %v", params["export_uri"])
	}
	if params["epochs"] != 25 {
		t.Fatalf("epochs = %v", params["epochs"])
	}
	if params["target_device_index"] != 1 {
		t.Fatalf("target_device_index = %v", params["target_device_index"])
	}
}

func TestBuildParamsDefaultsDetFieldFromConfig(t *testing.T) {
	m := newTestModel(nil)
	m.detInput.SetValue("  ")

	params, err := m.buildParams()
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params["det_field"] != m.cfg.DetField {
		t.Fatalf("det_field = %v, want config default %q", params["det_field"], m.cfg.DetField)
	}
}

func TestBuildParamsRejectsBadNumbers(t *testing.T) {
	m := newTestModel(nil)
	m.epochsInput.SetValue("ten")
	if _, err := m.buildParams(); err == nil {
		t.Fatalf("expected error for non-numeric epochs")
	}

	m = newTestModel(nil)
	m.operator = operatorApply
	m.confInput.SetValue("high")
	if _, err := m.buildParams(); err == nil {
		t.Fatalf("expected error for non-numeric confidence")
	}
}

func TestSurfacesExposesOverlay(t *testing.T) {
	m := newTestModel(nil)
	surfaces := m.Surfaces()
	if len(surfaces) != 1 {
		t.Fatalf("Surfaces() returned %d, want 1", len(surfaces))
	}
	if surfaces[0].Visible() {
		t.Fatalf("overlay visible before any submission")
	}
}

// asWireMap mimics the struct-value round trip the RPC layer applies, which
// turns every number into a float64 and every string slice into []any.
func asWireMap(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for key, value := range params {
		switch typed := value.(type) {
		case int:
			out[key] = float64(typed)
		case []string:
			items := make([]any, len(typed))
			for i, item := range typed {
				items[i] = item
			}
			out[key] = items
		default:
			out[key] = value
		}
	}
	return out
}

func TestDeviceSelectionSurvivesDecode(t *testing.T) {
	m := newTestModel(nil)
	m.detInput.SetValue("ground_truth")
	m.weightsInput.SetValue("/models/yolov8s.pt")
	m.deviceInput.SetValue("3")

	params, err := m.buildParams()
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	fineTune, err := training.DecodeFineTuneParams(asWireMap(params))
	if err != nil {
		t.Fatalf("DecodeFineTuneParams: %v", err)
	}
	if fineTune.DeviceIndex != 3 {
		t.Fatalf("fine-tune DeviceIndex = %d, want 3", fineTune.DeviceIndex)
	}

	m.operator = operatorApply
	m.confInput.SetValue("0.4")
	params, err = m.buildParams()
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	apply, err := training.DecodeApplyParams(asWireMap(params))
	if err != nil {
		t.Fatalf("DecodeApplyParams: %v", err)
	}
	if apply.DeviceIndex != 3 {
		t.Fatalf("apply DeviceIndex = %d, want 3", apply.DeviceIndex)
	}
}
