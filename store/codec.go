package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wyndegarde/Maters-Project/snn"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

// CurrentTraceVersion tags trace records written by this package.
const CurrentTraceVersion = 1

var (
	ErrVersionMismatch = errors.New("record version mismatch")
	ErrNilWeights      = errors.New("nil weights checkpoint")
)

// TraceRecord is the flattened form of an snn.Trace. Spikes and Membrane are
// laid out [Steps, Batch, Classes] in row-major order.
type TraceRecord struct {
	Version  int       `json:"version"`
	Steps    int       `json:"steps"`
	Batch    int       `json:"batch"`
	Classes  int       `json:"classes"`
	Spikes   []float64 `json:"spikes"`
	Membrane []float64 `json:"membrane"`
}

// NewTraceRecord copies tr into a record.
func NewTraceRecord(tr *snn.Trace) TraceRecord {
	shape := tr.Spikes.Shape
	return TraceRecord{
		Version:  CurrentTraceVersion,
		Steps:    shape[0],
		Batch:    shape[1],
		Classes:  shape[2],
		Spikes:   append([]float64(nil), tr.Spikes.Data...),
		Membrane: append([]float64(nil), tr.Membrane.Data...),
	}
}

// Trace rebuilds the tensors of the record.
func (r TraceRecord) Trace() (*snn.Trace, error) {
	spikes, err := tensor.FromData(append([]float64(nil), r.Spikes...), r.Steps, r.Batch, r.Classes)
	if err != nil {
		return nil, fmt.Errorf("spikes: %w", err)
	}
	membrane, err := tensor.FromData(append([]float64(nil), r.Membrane...), r.Steps, r.Batch, r.Classes)
	if err != nil {
		return nil, fmt.Errorf("membrane: %w", err)
	}
	return &snn.Trace{Spikes: spikes, Membrane: membrane}, nil
}

func EncodeTrace(r TraceRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTrace(data []byte) (TraceRecord, error) {
	var r TraceRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return TraceRecord{}, err
	}
	if r.Version != CurrentTraceVersion {
		return TraceRecord{}, fmt.Errorf("%w: trace version %d", ErrVersionMismatch, r.Version)
	}
	return r, nil
}

func EncodeWeights(w *utils.ModelWeights) ([]byte, error) {
	if w == nil {
		return nil, ErrNilWeights
	}
	return json.Marshal(w)
}

func DecodeWeights(data []byte) (*utils.ModelWeights, error) {
	var w utils.ModelWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.Version != utils.WeightsVersion {
		return nil, fmt.Errorf("%w: weights version %q", ErrVersionMismatch, w.Version)
	}
	return &w, nil
}
