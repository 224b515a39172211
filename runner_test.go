package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/odometry.report/internal/db"
	"github.com/driftline/odometry.report/internal/replay"
	"github.com/driftline/odometry.report/internal/timeutil"
	"github.com/driftline/odometry.report/internal/vo"
	"github.com/driftline/odometry.report/internal/vo/sparse"
)

func testHandlerConfig() vo.Config {
	return vo.Config{MinObservations: 5, MaxDropFraction: 0.6, TelemetryWindow: 10}
}

func testPipelineConfig() sparse.Config {
	return sparse.Config{
		MinInitFeatures:    10,
		MinInitDisparity:   20.0,
		MinTrackedFeatures: 5,
		RelocMinMatches:    5,
		KeyframeInterval:   4,
		KeyframeObsRatio:   0.5,
		FocalLength:        460.0,
		OptimizeMaxPoints:  10,
		OptimizeMaxIter:    3,
	}
}

// replayFixture encodes a short synthetic sequence as JSONL: one bootstrap
// frame, one frame with enough disparity to finish two-view init, then
// steady tracking over the same feature set.
func replayFixture(t *testing.T, frames int) *replay.Source {
	t.Helper()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	for i := 0; i < frames; i++ {
		disparity := 0.0
		if i > 0 {
			disparity = 30.0
		}
		frame := &vo.Frame{
			ID:        int64(i + 1),
			Timestamp: base.Add(time.Duration(i) * 33 * time.Millisecond),
		}
		for j := 0; j < 20; j++ {
			frame.Features = append(frame.Features, vo.Feature{
				ID:        int64(j + 1),
				X:         float64(j%5) * 40.0,
				Y:         float64(j/5) * 40.0,
				Disparity: disparity,
				Depth:     4.0 + float64(j%7)*0.5,
			})
		}
		line, err := json.Marshal(frame)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return replay.NewReader(&buf)
}

func TestRunnerReplaysToCompletion(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "runner_test.db"))
	require.NoError(t, err)
	defer database.Close()

	session, err := database.CreateSession("synthetic", "{}")
	require.NoError(t, err)

	handler := vo.NewFrameHandler(testHandlerConfig())
	handler.RequestStart()

	runner := &Runner{
		Handler:  handler,
		Pipeline: sparse.NewPipeline(testPipelineConfig()),
		Source:   replayFixture(t, 12),
		DB:       database,
		Session:  session,
	}
	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, vo.StageDefaultFrame, handler.Stage())
	assert.Equal(t, vo.QualityGood, handler.TrackingQuality())

	frames, err := database.RecentFrames(session.SessionID, 100)
	require.NoError(t, err)
	assert.Len(t, frames, 12)
	assert.Equal(t, int64(12), frames[0].FrameID)

	// Bootstrap and two-view init each produce a keyframe; steady tracking
	// adds more on the keyframe interval.
	kfs, err := database.Keyframes(session.SessionID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(kfs), 2)
}

func TestRunnerSkipsFramesWhilePaused(t *testing.T) {
	handler := vo.NewFrameHandler(testHandlerConfig())

	runner := &Runner{
		Handler:  handler,
		Pipeline: sparse.NewPipeline(testPipelineConfig()),
		Source:   replayFixture(t, 5),
	}
	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, vo.StagePaused, handler.Stage())
	assert.True(t, handler.Map().Empty())
}

func TestRunnerStopsOnCancel(t *testing.T) {
	handler := vo.NewFrameHandler(testHandlerConfig())
	handler.RequestStart()

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	runner := &Runner{
		Handler:  handler,
		Pipeline: sparse.NewPipeline(testPipelineConfig()),
		Source:   replayFixture(t, 5),
		Interval: 33 * time.Millisecond,
		Clock:    clock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, runner.Run(ctx))

	// The ticker never fired, so no frame was pulled from the source.
	assert.Equal(t, vo.StagePaused, handler.Stage())
}

func TestRunnerPacedByMockClock(t *testing.T) {
	handler := vo.NewFrameHandler(testHandlerConfig())
	handler.RequestStart()

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	runner := &Runner{
		Handler:  handler,
		Pipeline: sparse.NewPipeline(testPipelineConfig()),
		Source:   replayFixture(t, 3),
		Interval: 33 * time.Millisecond,
		Clock:    clock,
	}

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.Equal(t, vo.StageDefaultFrame, handler.Stage())
			return
		case <-deadline:
			t.Fatal("runner did not drain the source under mock clock pacing")
		default:
			clock.Advance(33 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}
