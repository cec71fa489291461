package utils

import (
	"github.com/montanaflynn/stats"
)

// RollingWindow is a fixed size circular buffer of samples. Once full, each new sample
// overwrites the oldest one.
type RollingWindow struct {
	data []float64
	pos  int
}

// NewRollingWindow returns a window holding numSamples samples, all set to fill.
func NewRollingWindow(numSamples int, fill float64) *RollingWindow {
	w := &RollingWindow{data: make([]float64, numSamples)}
	w.Fill(fill)
	return w
}

// NumSamples is the capacity of the window.
func (w *RollingWindow) NumSamples() int {
	return len(w.data)
}

// Add overwrites the oldest sample.
func (w *RollingWindow) Add(x float64) {
	w.data[w.pos] = x
	w.pos++
	if w.pos >= len(w.data) {
		w.pos = 0
	}
}

// Fill resets every slot to x and rewinds the write position.
func (w *RollingWindow) Fill(x float64) {
	for i := range w.data {
		w.data[i] = x
	}
	w.pos = 0
}

// Average is the arithmetic mean of the window. An empty window averages to zero.
func (w *RollingWindow) Average() float64 {
	mean, err := stats.Mean(w.data)
	if err != nil {
		return 0
	}
	return mean
}
