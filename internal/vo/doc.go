// Package vo owns the supervisory core of the monocular visual-odometry
// pipeline.
//
// Responsibilities: the per-frame stage state machine (paused, first frame,
// second frame, default tracking, relocalizing), deferred start/reset
// command latching, tracking-quality classification, the rolling telemetry
// window, and exclusive lifecycle ownership of the Map.
// Key types: FrameHandler, Map, TelemetryWindow.
//
// Dependency rule: vo never imports concrete pipelines or storage. Concrete
// pipelines implement the Pipeline interface and are driven by the caller
// through the BeginFrame/FinishFrame gates.
package vo
