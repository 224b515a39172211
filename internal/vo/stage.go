package vo

// Stage represents the pipeline's current phase of operation. Exactly one
// stage is active at a time, and stage changes only happen at frame
// boundaries, never while stage-specific pipeline logic is executing.
type Stage string

const (
	StagePaused       Stage = "paused"        // Not processing; waiting for a start request
	StageFirstFrame   Stage = "first_frame"   // Bootstrapping from the first frame
	StageSecondFrame  Stage = "second_frame"  // Two-view initialization
	StageDefaultFrame Stage = "default_frame" // Steady-state tracking
	StageRelocalizing Stage = "relocalizing"  // Lost tracking, attempting recovery
)

// TrackingQuality is a coarse classification of how reliable the current
// tracking is, derived from observation counts. The values are ordered:
// Insufficient < Bad < Good.
type TrackingQuality int

const (
	QualityInsufficient TrackingQuality = iota // Too few tracked features to trust
	QualityBad                                 // Above the minimum, but lost too many features
	QualityGood
)

// String returns the lowercase name used in logs and the status API.
func (q TrackingQuality) String() string {
	switch q {
	case QualityInsufficient:
		return "insufficient"
	case QualityBad:
		return "bad"
	case QualityGood:
		return "good"
	}
	return "unknown"
}

// UpdateResult describes the outcome of processing one frame. It is produced
// by the concrete pipeline and consumed by the frame handler.
type UpdateResult string

const (
	ResultNotKeyframe UpdateResult = "not_keyframe" // Frame processed, not retained in the map
	ResultIsKeyframe  UpdateResult = "is_keyframe"  // Frame selected as a keyframe
	ResultFailure     UpdateResult = "failure"      // Tracking failed on this frame
)
