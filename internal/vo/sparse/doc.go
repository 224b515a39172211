// Package sparse is the concrete sparse-feature VO pipeline variant driven
// by the vo frame handler.
//
// Responsibilities: first-frame bootstrap, two-view initialization gated on
// median disparity, steady-state landmark tracking with keyframe selection,
// relocalization against the established map, and bounded structure
// refinement. The front-end (feature detection and matching) has already
// run: frames arrive with matched feature tracks and depth estimates.
//
// Dependency rule: sparse may depend on vo, never the other way around.
// No SQL/database code is allowed in this package.
package sparse
