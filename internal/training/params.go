package training

import (
	"fmt"
	"strings"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

const (
	defaultWeightsName = "yolov8n.pt"
	defaultEpochs      = 10
	maxEpochs          = 1000
)

// FineTuneParams are the decoded parameters of a model_fine_tuner job. Params
// arrive as a generic map from the RPC layer, so numbers are float64.
type FineTuneParams struct {
	DetField    string
	WeightsPath string
	ExportURI   string
	Epochs      int
	DeviceIndex int
	Dataset     string
	Classes     []string
}

type ApplyParams struct {
	DetField    string
	WeightsPath string
	DeviceIndex int
	Confidence  float64
}

func DecodeFineTuneParams(params map[string]any) (FineTuneParams, error) {
	out := FineTuneParams{
		DetField:    paramString(params, "det_field"),
		WeightsPath: paramString(params, "weights_path"),
		ExportURI:   paramString(params, "export_uri"),
		Epochs:      paramInt(params, "epochs", defaultEpochs),
		DeviceIndex: paramInt(params, "target_device_index", 0),
		Dataset:     paramString(params, "dataset"),
		Classes:     paramStrings(params, "classes"),
	}
	if out.DetField == "" {
		return FineTuneParams{}, domain.InvalidArgument("det_field is required")
	}
	if out.Epochs <= 0 || out.Epochs > maxEpochs {
		return FineTuneParams{}, domain.InvalidArgument(fmt.Sprintf("epochs must be between 1 and %d", maxEpochs))
	}
	if out.DeviceIndex < 0 {
		return FineTuneParams{}, domain.InvalidArgument("target_device_index must be non-negative")
	}
	if out.Dataset == "" {
		out.Dataset = "dataset"
	}
	if len(out.Classes) == 0 {
		out.Classes = []string{out.DetField}
	}
	return out, nil
}

func DecodeApplyParams(params map[string]any) (ApplyParams, error) {
	out := ApplyParams{
		DetField:    paramString(params, "det_field"),
		WeightsPath: paramString(params, "weights_path"),
		DeviceIndex: paramInt(params, "target_device_index", 0),
		Confidence:  paramFloat(params, "confidence", 0.25),
	}
	if out.DetField == "" {
		return ApplyParams{}, domain.InvalidArgument("det_field is required")
	}
	if out.WeightsPath == "" {
		return ApplyParams{}, domain.InvalidArgument("weights_path is required")
	}
	if out.DeviceIndex < 0 {
		return ApplyParams{}, domain.InvalidArgument("target_device_index must be non-negative")
	}
	if out.Confidence <= 0 || out.Confidence > 1 {
		return ApplyParams{}, domain.InvalidArgument("confidence must be in (0, 1]")
	}
	return out, nil
}

func paramString(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func paramInt(params map[string]any, key string, fallback int) int {
	value, ok := params[key]
	if !ok {
		return fallback
	}
	switch number := value.(type) {
	case float64:
		return int(number)
	case int:
		return number
	case int64:
		return int(number)
	}
	return fallback
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	value, ok := params[key]
	if !ok {
		return fallback
	}
	switch number := value.(type) {
	case float64:
		return number
	case int:
		return float64(number)
	}
	return fallback
}

func paramStrings(params map[string]any, key string) []string {
	value, ok := params[key]
	if !ok {
		return nil
	}
	switch list := value.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
				out = append(out, strings.TrimSpace(text))
			}
		}
		return out
	}
	return nil
}
