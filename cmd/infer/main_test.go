package main

import (
	"math"
	"reflect"
	"testing"
)

func TestTopKIndices(t *testing.T) {
	got := topKIndices([]float64{0.1, 0.7, 0.2, 0.7}, 3)
	if !reflect.DeepEqual(got, []int{1, 3, 2}) {
		t.Errorf("topKIndices = %v", got)
	}
	if got := topKIndices([]float64{1, 2}, 5); len(got) != 2 {
		t.Errorf("k larger than input: %v", got)
	}
}

func TestTopKIndicesWithNaN(t *testing.T) {
	nan := math.NaN()
	got := topKIndices([]float64{nan, 0.4, nan}, 3)
	if !reflect.DeepEqual(got, []int{1, 0, 2}) {
		t.Errorf("topKIndices = %v, want [1 0 2]", got)
	}
	got = topKIndices([]float64{nan, nan}, 2)
	if !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("all NaN: topKIndices = %v, want [0 1]", got)
	}
	showResults([]float64{nan, nan}, 2)
}
