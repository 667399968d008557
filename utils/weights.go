package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// WeightsVersion tags checkpoints written by this package.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for a layer
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model
type ModelWeights struct {
	Version string                 `json:"version"`
	Model   string                 `json:"model,omitempty"`
	Layers  map[string]LayerWeight `json:"layers"`
}

// LayerWeight contains weights and bias for a layer
type LayerWeight struct {
	Weight *WeightData `json:"weight,omitempty"`
	Bias   *WeightData `json:"bias,omitempty"`
}

// NewModelWeights returns an empty checkpoint for the named model.
func NewModelWeights(model string) *ModelWeights {
	return &ModelWeights{Version: WeightsVersion, Model: model, Layers: map[string]LayerWeight{}}
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// CopyInto overwrites dst with the weight data, which must have the same shape.
func CopyInto(dst *tensor.Tensor, wd *WeightData) error {
	if wd == nil {
		return fmt.Errorf("missing weight data")
	}
	if tensor.Volume(wd.Shape) != len(dst.Data) || len(wd.Data) != len(dst.Data) {
		return fmt.Errorf("%w: %s has shape %v, want %v", tensor.ErrShapeMismatch, wd.Name, wd.Shape, dst.Shape)
	}
	copy(dst.Data, wd.Data)
	return nil
}

// ExportLayer packs a [weight, bias] parameter pair.
func ExportLayer(name string, params []*tensor.Tensor) LayerWeight {
	lw := LayerWeight{}
	if len(params) > 0 {
		lw.Weight = TensorToWeightData(name+".weight", params[0])
	}
	if len(params) > 1 {
		lw.Bias = TensorToWeightData(name+".bias", params[1])
	}
	return lw
}

// ImportLayer copies a LayerWeight into a [weight, bias] parameter pair.
func ImportLayer(lw LayerWeight, params []*tensor.Tensor) error {
	if len(params) > 0 {
		if err := CopyInto(params[0], lw.Weight); err != nil {
			return err
		}
	}
	if len(params) > 1 {
		if err := CopyInto(params[1], lw.Bias); err != nil {
			return err
		}
	}
	return nil
}
