package sparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/odometry.report/internal/vo"
)

func testPipelineConfig() Config {
	cfg := DefaultConfig()
	cfg.MinInitFeatures = 10
	cfg.MinInitDisparity = 20.0
	cfg.MinTrackedFeatures = 5
	cfg.RelocMinMatches = 5
	cfg.KeyframeInterval = 4
	return cfg
}

// makeFrame builds a synthetic frame with n features whose IDs start at
// firstID. Every feature carries the given disparity and a valid depth.
func makeFrame(id int64, firstID int64, n int, disparity float64) *vo.Frame {
	frame := &vo.Frame{
		ID:        id,
		Timestamp: time.Unix(0, id*33_000_000),
		Features:  make([]vo.Feature, n),
	}
	for i := 0; i < n; i++ {
		frame.Features[i] = vo.Feature{
			ID:        firstID + int64(i),
			X:         float64(i%40)*10 - 200,
			Y:         float64(i/40)*10 - 100,
			Disparity: disparity,
			Depth:     4.0 + float64(i%7)*0.5,
		}
	}
	return frame
}

func TestFirstFrameBootstrap(t *testing.T) {
	t.Parallel()

	t.Run("rejects a frame with too few features", func(t *testing.T) {
		t.Parallel()
		p := NewPipeline(testPipelineConfig())
		m := vo.NewMap()

		res, n := p.Process(makeFrame(1, 1, 3, 0), m, vo.StageFirstFrame)
		assert.Equal(t, vo.ResultFailure, res)
		assert.Equal(t, 3, n)
		assert.True(t, m.Empty())
	})

	t.Run("seeds the map from a good first frame", func(t *testing.T) {
		t.Parallel()
		p := NewPipeline(testPipelineConfig())
		m := vo.NewMap()

		res, n := p.Process(makeFrame(1, 1, 40, 0), m, vo.StageFirstFrame)
		assert.Equal(t, vo.ResultIsKeyframe, res)
		assert.Equal(t, 40, n)
		require.Len(t, m.Keyframes(), 1)
		assert.Len(t, m.Points(), 40)
	})
}

func TestTwoViewInitialization(t *testing.T) {
	t.Parallel()

	t.Run("defers until median disparity is reached", func(t *testing.T) {
		t.Parallel()
		p := NewPipeline(testPipelineConfig())
		m := vo.NewMap()
		p.Process(makeFrame(1, 1, 40, 0), m, vo.StageFirstFrame)

		res, _ := p.Process(makeFrame(2, 1, 40, 5.0), m, vo.StageSecondFrame)
		assert.Equal(t, vo.ResultFailure, res, "insufficient parallax must retry the stage")

		res, _ = p.Process(makeFrame(3, 1, 40, 35.0), m, vo.StageSecondFrame)
		assert.Equal(t, vo.ResultIsKeyframe, res)
		assert.Len(t, m.Keyframes(), 2)
	})
}

func TestDefaultFrameTracking(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*Pipeline, *vo.Map) {
		t.Helper()
		p := NewPipeline(testPipelineConfig())
		m := vo.NewMap()
		res, _ := p.Process(makeFrame(1, 1, 40, 0), m, vo.StageFirstFrame)
		require.Equal(t, vo.ResultIsKeyframe, res)
		res, _ = p.Process(makeFrame(2, 1, 40, 35.0), m, vo.StageSecondFrame)
		require.Equal(t, vo.ResultIsKeyframe, res)
		return p, m
	}

	t.Run("regular frames between keyframes", func(t *testing.T) {
		t.Parallel()
		p, m := setup(t)

		res, n := p.Process(makeFrame(3, 1, 40, 2.0), m, vo.StageDefaultFrame)
		assert.Equal(t, vo.ResultNotKeyframe, res)
		assert.Equal(t, 40, n)
	})

	t.Run("keyframe after the configured interval", func(t *testing.T) {
		t.Parallel()
		p, m := setup(t)

		var res vo.UpdateResult
		for id := int64(3); id <= 6; id++ {
			res, _ = p.Process(makeFrame(id, 1, 40, 2.0), m, vo.StageDefaultFrame)
		}
		// Frame 6 is KeyframeInterval frames past the keyframe at frame 2.
		assert.Equal(t, vo.ResultIsKeyframe, res)
		assert.Len(t, m.Keyframes(), 3)
	})

	t.Run("keyframe on a hard observation drop", func(t *testing.T) {
		t.Parallel()
		p, m := setup(t)

		// Only 15 of 40 landmarks still tracked: below the ratio gate but
		// above the failure threshold.
		res, n := p.Process(makeFrame(3, 1, 15, 2.0), m, vo.StageDefaultFrame)
		assert.Equal(t, vo.ResultIsKeyframe, res)
		assert.Equal(t, 15, n)
	})

	t.Run("failure when tracked landmarks collapse", func(t *testing.T) {
		t.Parallel()
		p, m := setup(t)

		// Feature IDs far outside the map: nothing matches.
		res, n := p.Process(makeFrame(3, 5000, 40, 2.0), m, vo.StageDefaultFrame)
		assert.Equal(t, vo.ResultFailure, res)
		assert.Equal(t, 0, n)
	})
}

func TestRelocalization(t *testing.T) {
	t.Parallel()

	p := NewPipeline(testPipelineConfig())
	m := vo.NewMap()
	p.Process(makeFrame(1, 1, 40, 0), m, vo.StageFirstFrame)
	p.Process(makeFrame(2, 1, 40, 35.0), m, vo.StageSecondFrame)

	t.Run("fails without enough map matches", func(t *testing.T) {
		res, n := p.Process(makeFrame(10, 5000, 40, 2.0), m, vo.StageRelocalizing)
		assert.Equal(t, vo.ResultFailure, res)
		assert.Equal(t, 0, n)
	})

	t.Run("recovers once features re-match the map", func(t *testing.T) {
		res, n := p.Process(makeFrame(11, 1, 40, 2.0), m, vo.StageRelocalizing)
		assert.Equal(t, vo.ResultNotKeyframe, res)
		assert.Equal(t, 40, n)
	})
}

// TestSupervisedRun drives the pipeline through the frame handler end to
// end: start, initialization, steady tracking, loss, relocalization.
func TestSupervisedRun(t *testing.T) {
	cfg := testPipelineConfig()
	p := NewPipeline(cfg)
	h := vo.NewFrameHandler(vo.Config{
		MinObservations: 5,
		MaxDropFraction: 0.9,
		TelemetryWindow: 10,
	})

	process := func(frame *vo.Frame) bool {
		if !h.BeginFrame(frame.Timestamp) {
			return false
		}
		res, n := p.Process(frame, h.Map(), h.Stage())
		h.FinishFrame(frame.ID, res, n)
		return true
	}

	// Paused: frames are skipped wholesale.
	require.False(t, process(makeFrame(1, 1, 40, 0)))

	h.RequestStart()
	require.True(t, process(makeFrame(2, 1, 40, 0)))
	require.Equal(t, vo.StageSecondFrame, h.Stage())

	require.True(t, process(makeFrame(3, 1, 40, 35.0)))
	require.Equal(t, vo.StageDefaultFrame, h.Stage())

	// Steady tracking.
	require.True(t, process(makeFrame(4, 1, 40, 2.0)))
	assert.Equal(t, vo.StageDefaultFrame, h.Stage())
	assert.Equal(t, vo.QualityGood, h.TrackingQuality())

	// Occlusion: no features match the map.
	require.True(t, process(makeFrame(5, 5000, 40, 2.0)))
	assert.Equal(t, vo.StageRelocalizing, h.Stage())
	assert.Equal(t, vo.QualityInsufficient, h.TrackingQuality())

	// Scene returns: relocalization succeeds and tracking resumes.
	require.True(t, process(makeFrame(6, 1, 40, 2.0)))
	assert.Equal(t, vo.StageDefaultFrame, h.Stage())
	assert.Equal(t, vo.QualityGood, h.TrackingQuality())
}
