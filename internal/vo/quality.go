package vo

// ClassifyQuality maps an observation count to a tracking quality level.
//
// Below minObservations the quality is Insufficient regardless of history.
// A relative drop of more than maxDropFraction compared to the previous
// frame's count (while still above the minimum) is Bad. Everything else is
// Good. lastNumObs of zero means there is no previous frame to compare
// against, so no drop can be detected.
//
// The thresholds are configuration supplied by the concrete pipeline's
// tuning; they are never hard-coded here.
func ClassifyQuality(numObs, lastNumObs, minObservations int, maxDropFraction float64) TrackingQuality {
	if numObs < minObservations {
		return QualityInsufficient
	}
	if lastNumObs > 0 {
		dropped := lastNumObs - numObs
		if float64(dropped) > maxDropFraction*float64(lastNumObs) {
			return QualityBad
		}
	}
	return QualityGood
}

// setTrackingQualityLocked runs the classifier against the stored previous
// count, then records numObs as the new previous count. Caller must hold
// h.mu.
func (h *FrameHandler) setTrackingQualityLocked(numObs int) {
	h.quality = ClassifyQuality(numObs, h.numObsLast, h.cfg.MinObservations, h.cfg.MaxDropFraction)
	if h.quality == QualityBad {
		diagf("[Quality] Lost %d of %d features, tracking degraded", h.numObsLast-numObs, h.numObsLast)
	}
	h.numObsLast = numObs
}
