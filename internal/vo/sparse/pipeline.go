package sparse

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/driftline/odometry.report/internal/vo"
)

// Config holds the tuning for the sparse pipeline.
type Config struct {
	MinInitFeatures    int     // Features required to bootstrap from the first frame
	MinInitDisparity   float64 // Median pixel disparity required for two-view init
	MinTrackedFeatures int     // Below this many tracked landmarks a frame fails
	RelocMinMatches    int     // Map matches required to call relocalization recovered

	KeyframeInterval int     // Regular frames between keyframes
	KeyframeObsRatio float64 // Take a keyframe when observations drop below this fraction of the last keyframe's

	FocalLength float64 // Pixels; projection model for structure refinement

	OptimizeMaxPoints int // Point budget per structure-refinement pass
	OptimizeMaxIter   int // Gauss-Newton iterations per point
}

// DefaultConfig returns production-default sparse pipeline parameters.
func DefaultConfig() Config {
	return Config{
		MinInitFeatures:    80,
		MinInitDisparity:   40.0,
		MinTrackedFeatures: 30,
		RelocMinMatches:    30,
		KeyframeInterval:   20,
		KeyframeObsRatio:   0.5,
		FocalLength:        460.0,
		OptimizeMaxPoints:  50,
		OptimizeMaxIter:    5,
	}
}

// Pipeline implements vo.Pipeline for replayed sparse feature tracks.
type Pipeline struct {
	cfg Config
}

// NewPipeline creates a sparse pipeline with the given configuration.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Process dispatches to the stage-specific logic. The frame handler has
// already admitted the frame; stage transitions are applied by the handler
// from the returned outcome, never here.
func (p *Pipeline) Process(frame *vo.Frame, m *vo.Map, stage vo.Stage) (vo.UpdateResult, int) {
	switch stage {
	case vo.StageFirstFrame:
		return p.processFirstFrame(frame, m)
	case vo.StageSecondFrame:
		return p.processSecondFrame(frame, m)
	case vo.StageDefaultFrame:
		return p.processDefaultFrame(frame, m)
	case vo.StageRelocalizing:
		return p.relocalizeFrame(frame, m)
	}
	return vo.ResultFailure, 0
}

// processFirstFrame bootstraps the map from the first admitted frame. The
// frame becomes the reference keyframe; landmarks are seeded from features
// that already carry a depth estimate.
func (p *Pipeline) processFirstFrame(frame *vo.Frame, m *vo.Map) (vo.UpdateResult, int) {
	if len(frame.Features) < p.cfg.MinInitFeatures {
		diagf("[Sparse] First frame rejected: %d features, need %d", len(frame.Features), p.cfg.MinInitFeatures)
		return vo.ResultFailure, len(frame.Features)
	}

	m.AddKeyframe(frame.ID, frame.Timestamp, len(frame.Features))
	seeded := p.seedPoints(frame, m)
	diagf("[Sparse] Bootstrapped from frame %d: %d features, %d seeded points", frame.ID, len(frame.Features), seeded)
	return vo.ResultIsKeyframe, len(frame.Features)
}

// processSecondFrame attempts two-view initialization. Without enough
// parallax the structure is unobservable, so the attempt fails and the
// stage is retried on the next frame.
func (p *Pipeline) processSecondFrame(frame *vo.Frame, m *vo.Map) (vo.UpdateResult, int) {
	if len(frame.Features) < p.cfg.MinInitFeatures {
		return vo.ResultFailure, len(frame.Features)
	}

	median := medianDisparity(frame.Features)
	if median < p.cfg.MinInitDisparity {
		diagf("[Sparse] Two-view init deferred: median disparity %.1fpx, need %.1fpx", median, p.cfg.MinInitDisparity)
		return vo.ResultFailure, len(frame.Features)
	}

	m.AddKeyframe(frame.ID, frame.Timestamp, len(frame.Features))
	seeded := p.seedPoints(frame, m)
	diagf("[Sparse] Two-view init at frame %d: median disparity %.1fpx, %d points", frame.ID, median, seeded)
	return vo.ResultIsKeyframe, len(frame.Features)
}

// processDefaultFrame tracks established landmarks and decides whether the
// frame becomes a keyframe: either enough regular frames have passed since
// the last one, or the observation count dropped hard against it.
func (p *Pipeline) processDefaultFrame(frame *vo.Frame, m *vo.Map) (vo.UpdateResult, int) {
	numObs := p.updateObservations(frame, m)
	if numObs < p.cfg.MinTrackedFeatures {
		opsf("[Sparse] Tracking lost at frame %d: %d landmarks, need %d", frame.ID, numObs, p.cfg.MinTrackedFeatures)
		return vo.ResultFailure, numObs
	}

	lastKF := m.LastKeyframe()
	needKeyframe := lastKF == nil ||
		frame.ID-lastKF.FrameID >= int64(p.cfg.KeyframeInterval) ||
		float64(numObs) < p.cfg.KeyframeObsRatio*float64(lastKF.NumObservations)
	if !needKeyframe {
		return vo.ResultNotKeyframe, numObs
	}

	m.AddKeyframe(frame.ID, frame.Timestamp, numObs)
	p.seedPoints(frame, m)
	p.OptimizeStructure(frame, m, p.cfg.OptimizeMaxPoints, p.cfg.OptimizeMaxIter)
	tracef("[Sparse] Keyframe at frame %d with %d observations", frame.ID, numObs)
	return vo.ResultIsKeyframe, numObs
}

// relocalizeFrame re-matches the frame's features against the established
// map. Enough matches means tracking has recovered; the handler confirms
// recovery through the quality classifier.
func (p *Pipeline) relocalizeFrame(frame *vo.Frame, m *vo.Map) (vo.UpdateResult, int) {
	matches := 0
	for _, f := range frame.Features {
		if m.Point(f.ID) != nil {
			matches++
		}
	}
	if matches < p.cfg.RelocMinMatches {
		return vo.ResultFailure, matches
	}

	numObs := p.updateObservations(frame, m)
	diagf("[Sparse] Relocalized at frame %d with %d map matches", frame.ID, matches)
	return vo.ResultNotKeyframe, numObs
}

// updateObservations refreshes the map points observed in this frame and
// returns how many landmarks were observed.
func (p *Pipeline) updateObservations(frame *vo.Frame, m *vo.Map) int {
	numObs := 0
	for _, f := range frame.Features {
		if m.Point(f.ID) == nil {
			continue
		}
		numObs++
		if f.Depth > 0 {
			x, y, z := p.backproject(f)
			m.UpsertPoint(f.ID, x, y, z)
		}
	}
	return numObs
}

// seedPoints inserts landmarks for features with a depth estimate that are
// not yet in the map. Returns the number of new points.
func (p *Pipeline) seedPoints(frame *vo.Frame, m *vo.Map) int {
	seeded := 0
	for _, f := range frame.Features {
		if f.Depth <= 0 || m.Point(f.ID) != nil {
			continue
		}
		x, y, z := p.backproject(f)
		m.UpsertPoint(f.ID, x, y, z)
		seeded++
	}
	return seeded
}

// backproject lifts a pixel observation with depth into camera coordinates
// under a pinhole model centred on the principal point.
func (p *Pipeline) backproject(f vo.Feature) (x, y, z float64) {
	z = f.Depth
	x = f.X / p.cfg.FocalLength * z
	y = f.Y / p.cfg.FocalLength * z
	return x, y, z
}

// medianDisparity returns the median per-feature disparity of the frame.
func medianDisparity(features []vo.Feature) float64 {
	if len(features) == 0 {
		return 0
	}
	disparities := make([]float64, len(features))
	for i, f := range features {
		disparities[i] = f.Disparity
	}
	sort.Float64s(disparities)
	return stat.Quantile(0.5, stat.Empirical, disparities, nil)
}
