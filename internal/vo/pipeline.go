package vo

import (
	"time"
)

// Feature is a single tracked image feature within a frame. For a replayed
// sequence the matching front-end has already run; Disparity carries the
// pixel motion since the previous frame and Depth the triangulated depth
// estimate where one exists (zero means unknown).
type Feature struct {
	ID        int64   `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Disparity float64 `json:"disparity"`
	Depth     float64 `json:"depth,omitempty"`
}

// Frame is one monocular frame delivered to the pipeline.
type Frame struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Features  []Feature `json:"features"`
}

// Pipeline is the stage-specific capability a concrete VO variant plugs in
// under the frame handler. The handler drives it between the BeginFrame and
// FinishFrame gates; implementations get exclusive write access to the map
// for the duration of Process.
type Pipeline interface {
	// Process runs the stage logic for the current stage on one frame,
	// returning the outcome and the number of feature observations used.
	// Tracking failures are reported as ResultFailure, not as errors.
	Process(frame *Frame, m *Map, stage Stage) (UpdateResult, int)

	// OptimizeStructure refines up to maxPoints of the map's 3D points in
	// place, spending at most maxIter iterations per point. Best effort;
	// bounded work; no return value.
	OptimizeStructure(frame *Frame, m *Map, maxPoints, maxIter int)
}
