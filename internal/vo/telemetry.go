package vo

import (
	"time"
)

// DefaultTelemetryWindow is the number of recent frames kept for user-facing
// performance feedback.
const DefaultTelemetryWindow = 10

// TelemetryWindow maintains fixed-capacity rolling windows of per-frame
// processing times and observation counts. It is used only for reporting and
// never feeds back into control decisions.
//
// The two windows share one write cursor because entries are always recorded
// together, one pair per frame. Inserts are O(1) with no reallocation; the
// oldest entry is evicted once the window is full.
type TelemetryWindow struct {
	durations []time.Duration
	numObs    []int
	capacity  int
	head      int // Points to next write position
	size      int // Current number of frames stored
}

// NewTelemetryWindow creates a telemetry window with the specified capacity.
func NewTelemetryWindow(capacity int) *TelemetryWindow {
	if capacity < 1 {
		capacity = DefaultTelemetryWindow
	}
	return &TelemetryWindow{
		durations: make([]time.Duration, capacity),
		numObs:    make([]int, capacity),
		capacity:  capacity,
	}
}

// Record appends one frame's processing time and observation count,
// overwriting the oldest entry if at capacity.
func (w *TelemetryWindow) Record(elapsed time.Duration, numObs int) {
	w.durations[w.head] = elapsed
	w.numObs[w.head] = numObs
	w.head = (w.head + 1) % w.capacity
	if w.size < w.capacity {
		w.size++
	}
}

// Len returns the number of frames currently stored.
func (w *TelemetryWindow) Len() int { return w.size }

// Cap returns the fixed capacity of the window.
func (w *TelemetryWindow) Cap() int { return w.capacity }

// Durations returns the stored processing times in insertion order,
// oldest first.
func (w *TelemetryWindow) Durations() []time.Duration {
	out := make([]time.Duration, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.durations[w.index(i)]
	}
	return out
}

// Observations returns the stored observation counts in insertion order,
// oldest first.
func (w *TelemetryWindow) Observations() []int {
	out := make([]int, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.numObs[w.index(i)]
	}
	return out
}

// MeanDuration returns the mean processing time over the stored frames,
// or zero if the window is empty.
func (w *TelemetryWindow) MeanDuration() time.Duration {
	if w.size == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < w.size; i++ {
		sum += w.durations[w.index(i)]
	}
	return sum / time.Duration(w.size)
}

// MeanObservations returns the mean observation count over the stored
// frames, or zero if the window is empty.
func (w *TelemetryWindow) MeanObservations() float64 {
	if w.size == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < w.size; i++ {
		sum += w.numObs[w.index(i)]
	}
	return float64(sum) / float64(w.size)
}

// index maps a logical position (0 = oldest) to a physical slot.
func (w *TelemetryWindow) index(i int) int {
	return (w.head - w.size + i + w.capacity) % w.capacity
}
