package vo

import (
	"sync"
	"time"
)

// MapPoint is a triangulated 3D landmark observed from one or more
// keyframes. Coordinates are in the world frame.
type MapPoint struct {
	ID int64

	X, Y, Z float64

	// Number of keyframes observing this point
	Observations int
}

// Keyframe is a frame retained in the map by pipeline-specific selection
// logic. The supervisory core records the outcome of that selection; it
// never decides it.
type Keyframe struct {
	ID        int64
	FrameID   int64
	Timestamp time.Time

	// Number of feature observations at selection time
	NumObservations int
}

// MapSnapshot is a consistent read-only view of the map's aggregate state.
type MapSnapshot struct {
	KeyframeCount int       `json:"keyframe_count"`
	PointCount    int       `json:"point_count"`
	LastKeyframe  *Keyframe `json:"last_keyframe,omitempty"`
}

// Map is the aggregate of keyframes and map points built by the concrete
// pipeline. The frame handler owns its lifecycle exclusively: it creates the
// map at startup and replaces it on reset. Pipelines append through
// AddKeyframe/UpsertPoint during stage-specific processing; any other
// goroutine may read concurrently.
type Map struct {
	mu        sync.RWMutex
	keyframes []*Keyframe
	points    map[int64]*MapPoint
	nextKFID  int64
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{
		points:   make(map[int64]*MapPoint),
		nextKFID: 1,
	}
}

// AddKeyframe appends a keyframe for the given frame and returns it.
func (m *Map) AddKeyframe(frameID int64, timestamp time.Time, numObs int) *Keyframe {
	m.mu.Lock()
	defer m.mu.Unlock()

	kf := &Keyframe{
		ID:              m.nextKFID,
		FrameID:         frameID,
		Timestamp:       timestamp,
		NumObservations: numObs,
	}
	m.nextKFID++
	m.keyframes = append(m.keyframes, kf)
	return kf
}

// UpsertPoint inserts a map point or, if a point with the same ID exists,
// updates its position and increments its observation count.
func (m *Map) UpsertPoint(id int64, x, y, z float64) *MapPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.points[id]; ok {
		p.X, p.Y, p.Z = x, y, z
		p.Observations++
		return p
	}
	p := &MapPoint{ID: id, X: x, Y: y, Z: z, Observations: 1}
	m.points[id] = p
	return p
}

// Point returns the map point with the given ID, or nil if not present.
func (m *Map) Point(id int64) *MapPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.points[id]
}

// Points returns all map points. The slice is freshly allocated but the
// elements are shared; callers must not mutate them outside frame
// processing.
func (m *Map) Points() []*MapPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*MapPoint, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, p)
	}
	return out
}

// Keyframes returns the retained keyframes in insertion order.
func (m *Map) Keyframes() []*Keyframe {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Keyframe, len(m.keyframes))
	copy(out, m.keyframes)
	return out
}

// LastKeyframe returns the most recently added keyframe, or nil if the map
// is empty.
func (m *Map) LastKeyframe() *Keyframe {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.keyframes) == 0 {
		return nil
	}
	return m.keyframes[len(m.keyframes)-1]
}

// Empty reports whether the map holds no keyframes and no points.
func (m *Map) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keyframes) == 0 && len(m.points) == 0
}

// Snapshot returns a consistent aggregate view for status reporting.
func (m *Map) Snapshot() MapSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MapSnapshot{
		KeyframeCount: len(m.keyframes),
		PointCount:    len(m.points),
	}
	if n := len(m.keyframes); n > 0 {
		kf := *m.keyframes[n-1]
		s.LastKeyframe = &kf
	}
	return s
}
