package vo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline/odometry.report/internal/timeutil"
)

// Config holds the externally supplied tuning for the frame handler. The
// quality thresholds belong to the concrete pipeline's tuning file; the
// handler never invents its own.
type Config struct {
	MinObservations int     // Below this count a frame's tracking is Insufficient
	MaxDropFraction float64 // Relative feature loss vs. previous frame that flags Bad
	TelemetryWindow int     // Rolling window capacity for performance feedback
}

// DefaultConfig returns handler defaults matching the canonical tuning file.
func DefaultConfig() Config {
	return Config{
		MinObservations: 50,
		MaxDropFraction: 0.6,
		TelemetryWindow: DefaultTelemetryWindow,
	}
}

// FrameHandler is the supervisory state machine above a concrete VO
// pipeline. It coordinates the per-frame lifecycle: which stage is active,
// whether the pipeline should (re)start or reset, how tracking quality is
// classified, and the rolling telemetry window.
//
// One dedicated goroutine runs BeginFrame, the pipeline's stage logic, and
// FinishFrame sequentially per frame. Any other goroutine may call
// RequestStart, RequestReset, or the read-only accessors at any time; reads
// return the most recently committed state and never wait for an in-flight
// frame beyond the short-held lock.
type FrameHandler struct {
	mu    sync.RWMutex
	cfg   Config
	clock timeutil.Clock

	stage         Stage
	quality       TrackingQuality
	numObsLast    int
	regularFrames int // Frames since the last keyframe

	m         *Map
	telemetry *TelemetryWindow

	frameStart     time.Time // Stopwatch start, set by BeginFrame
	lastProcessing time.Duration
	lastFrameTime  time.Time // Timestamp of the most recent frame

	// Deferred commands. Sticky flags, set from any goroutine, consumed
	// exactly once at the next BeginFrame.
	pendingStart atomic.Bool
	pendingReset atomic.Bool
}

// NewFrameHandler creates a handler in the Paused stage with an empty map.
func NewFrameHandler(cfg Config) *FrameHandler {
	return &FrameHandler{
		cfg:       cfg,
		clock:     timeutil.RealClock{},
		stage:     StagePaused,
		quality:   QualityInsufficient,
		m:         NewMap(),
		telemetry: NewTelemetryWindow(cfg.TelemetryWindow),
	}
}

// RequestStart asks the handler to leave Paused when the next frame
// arrives. Safe from any goroutine; never blocks; repeated calls before the
// request is consumed collapse into one.
func (h *FrameHandler) RequestStart() { h.pendingStart.Store(true) }

// RequestReset asks the handler to discard the map and restart from scratch
// as soon as the current frame (if any) is finished. Same latch semantics
// as RequestStart.
func (h *FrameHandler) RequestReset() { h.pendingReset.Store(true) }

// BeginFrame is the entry gate called before any stage-specific work on a
// new frame. It consumes a pending reset first, then a pending start, then
// starts the frame stopwatch. A false return means the frame must be
// skipped entirely: the handler is Paused and no start was requested.
func (h *FrameHandler) BeginFrame(timestamp time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset wins over a simultaneous start; the start is then evaluated
	// against the freshly reset state.
	if h.pendingReset.CompareAndSwap(true, false) {
		h.resetLocked()
	}
	if h.pendingStart.CompareAndSwap(true, false) {
		if h.stage == StagePaused {
			h.stage = StageFirstFrame
			diagf("[Handler] Start consumed, entering first-frame stage")
		}
	}

	if h.stage == StagePaused {
		return false
	}

	h.frameStart = h.clock.Now()
	h.lastFrameTime = timestamp
	return true
}

// FinishFrame is the exit gate called after the stage-specific work for one
// frame. It stops the stopwatch, records telemetry, classifies tracking
// quality, maintains the regular-frame counter, and applies the outcome's
// stage transition. The returned result mirrors the outcome for the
// caller's downstream logic (mapping or loop-closure triggers live outside
// this core).
func (h *FrameHandler) FinishFrame(frameID int64, result UpdateResult, numObs int) UpdateResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastProcessing = h.clock.Since(h.frameStart)
	h.telemetry.Record(h.lastProcessing, numObs)
	h.setTrackingQualityLocked(numObs)

	switch result {
	case ResultIsKeyframe:
		h.regularFrames = 0
	case ResultNotKeyframe:
		h.regularFrames++
	case ResultFailure:
		// Past initialization a failure means tracking is lost against an
		// established map: relocalize. During first/second frame there is
		// nothing to relocalize against, so the stage is retried as-is.
		if h.stage == StageDefaultFrame || h.stage == StageRelocalizing {
			h.stage = StageRelocalizing
			h.quality = QualityInsufficient
		}
		opsf("[Handler] Frame %d failed in stage %s", frameID, h.stage)
	}

	if result != ResultFailure {
		switch h.stage {
		case StageFirstFrame:
			h.stage = StageSecondFrame
		case StageSecondFrame:
			h.stage = StageDefaultFrame
			diagf("[Handler] Two-view initialization complete")
		case StageRelocalizing:
			// Recovery signal: the pipeline produced a usable frame and the
			// classifier no longer flags the observation count.
			if h.quality != QualityInsufficient {
				h.stage = StageDefaultFrame
				diagf("[Handler] Relocalization succeeded at frame %d", frameID)
			}
		}
	}

	tracef("[Handler] Frame %d done: stage=%s result=%s obs=%d quality=%s t=%v",
		frameID, h.stage, result, numObs, h.quality, h.lastProcessing)
	return result
}

// resetLocked discards the map and all per-frame history and returns the
// handler to Paused. Caller must hold h.mu.
func (h *FrameHandler) resetLocked() {
	h.m = NewMap()
	h.stage = StagePaused
	h.quality = QualityInsufficient
	h.numObsLast = 0
	h.regularFrames = 0
	diagf("[Handler] Reset consumed, map recreated")
}

// Stage returns the current pipeline stage.
func (h *FrameHandler) Stage() Stage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stage
}

// TrackingQuality returns the most recently classified tracking quality.
func (h *FrameHandler) TrackingQuality() TrackingQuality {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.quality
}

// LastProcessingTime returns the wall-clock cost of the previous frame.
func (h *FrameHandler) LastProcessingTime() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastProcessing
}

// LastNumObservations returns the observation count of the previous frame.
func (h *FrameHandler) LastNumObservations() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.numObsLast
}

// RegularFrames returns the number of consecutive non-keyframe frames since
// the last keyframe.
func (h *FrameHandler) RegularFrames() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.regularFrames
}

// Map returns the current map. The map itself is safe for concurrent
// readers; it is replaced wholesale on reset, so callers should re-fetch
// rather than cache across frames.
func (h *FrameHandler) Map() *Map {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.m
}

// Telemetry returns the means over the rolling telemetry window.
func (h *FrameHandler) Telemetry() (meanDuration time.Duration, meanObservations float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.telemetry.MeanDuration(), h.telemetry.MeanObservations()
}

// TelemetrySeries returns copies of the telemetry windows in insertion
// order, oldest first.
func (h *FrameHandler) TelemetrySeries() ([]time.Duration, []int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.telemetry.Durations(), h.telemetry.Observations()
}
