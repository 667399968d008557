package store

import (
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

func sampleWeights() *utils.ModelWeights {
	mw := utils.NewModelWeights("scnn")
	w, _ := tensor.FromData([]float64{1, 2, 3, 4}, 2, 2)
	b := tensor.NewWithData([]float64{0.5, -0.5})
	mw.Layers["fc3"] = utils.ExportLayer("fc3", []*tensor.Tensor{w, b})
	return mw
}

func sampleTrace() TraceRecord {
	return TraceRecord{
		Version:  CurrentTraceVersion,
		Steps:    2,
		Batch:    1,
		Classes:  3,
		Spikes:   []float64{0, 1, 0, 1, 1, 0},
		Membrane: []float64{0.2, 0, 0.7, 0, 0, 0.9},
	}
}
