package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/driftline/odometry.report/internal/db"
	"github.com/driftline/odometry.report/internal/monitoring"
	"github.com/driftline/odometry.report/internal/replay"
	"github.com/driftline/odometry.report/internal/timeutil"
	"github.com/driftline/odometry.report/internal/vo"
)

// Runner owns the dedicated processing goroutine. It pulls frames from the
// replay source and drives each one through the frame handler's gates and
// the pipeline's stage logic, persisting the outcome per frame. This
// goroutine is the only writer of handler state; start/reset requests and
// status reads arrive from the HTTP handlers concurrently.
type Runner struct {
	Handler  *vo.FrameHandler
	Pipeline vo.Pipeline
	Source   *replay.Source
	DB       *db.DB
	Session  *db.Session

	// Interval paces the replay to simulate a live camera. Zero replays as
	// fast as the pipeline can process.
	Interval time.Duration

	// Clock supplies the pacing ticker. Nil means the wall clock.
	Clock timeutil.Clock
}

// Run processes frames until the source is exhausted or the context is
// cancelled. A frame in flight always runs to completion; cancellation and
// reset requests are honoured at the next frame boundary.
func (r *Runner) Run(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var ticker timeutil.Ticker
	if r.Interval > 0 {
		ticker = clock.NewTicker(r.Interval)
		defer ticker.Stop()
	}

	processed := 0
	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C():
			}
		} else if ctx.Err() != nil {
			return nil
		}

		frame, err := r.Source.Next()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("replay complete: %d frames processed", processed)
			return nil
		}
		if err != nil {
			return err
		}

		if !r.Handler.BeginFrame(frame.Timestamp) {
			// Paused with no pending start: skip the frame wholesale.
			continue
		}

		result, numObs := r.Pipeline.Process(frame, r.Handler.Map(), r.Handler.Stage())
		result = r.Handler.FinishFrame(frame.ID, result, numObs)
		processed++

		if err := r.persistFrame(frame, result, numObs); err != nil {
			monitoring.Logf("persist frame %d: %v", frame.ID, err)
		}
	}
}

func (r *Runner) persistFrame(frame *vo.Frame, result vo.UpdateResult, numObs int) error {
	if r.DB == nil || r.Session == nil {
		return nil
	}

	err := r.DB.InsertFrame(&db.FrameRecord{
		SessionID:       r.Session.SessionID,
		FrameID:         frame.ID,
		TSUnixNanos:     frame.Timestamp.UnixNano(),
		Stage:           r.Handler.Stage(),
		Result:          result,
		NumObservations: numObs,
		Processing:      r.Handler.LastProcessingTime(),
		Quality:         r.Handler.TrackingQuality().String(),
	})
	if err != nil {
		return err
	}

	if result == vo.ResultIsKeyframe {
		if kf := r.Handler.Map().LastKeyframe(); kf != nil {
			return r.DB.InsertKeyframe(r.Session.SessionID, kf)
		}
	}
	return nil
}
