// Command mkfixture generates a synthetic feature-track replay file
// (JSONL, one frame per line) for the odometry replay daemon. The sequence
// bootstraps, reaches steady tracking, then optionally simulates a full
// occlusion so relocalization and recovery can be exercised.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/driftline/odometry.report/internal/vo"
)

var (
	out         = flag.String("out", "fixtures/frames.jsonl", "Output file path")
	frames      = flag.Int("frames", 90, "Number of frames to generate")
	features    = flag.Int("features", 120, "Features per frame")
	disparity   = flag.Float64("disparity", 45.0, "Per-frame disparity after the first frame")
	occludeFrom = flag.Int("occlude-from", 51, "First occluded frame ID (0 disables occlusion)")
	occludeSpan = flag.Int("occlude-span", 8, "Number of occluded frames")
	intervalMs  = flag.Int("interval-ms", 33, "Timestamp spacing between frames")
)

func main() {
	flag.Parse()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < *frames; i++ {
		id := int64(i + 1)
		frame := &vo.Frame{
			ID:        id,
			Timestamp: base.Add(time.Duration(i) * time.Duration(*intervalMs) * time.Millisecond),
		}

		// During the occlusion window every feature carries fresh IDs, so
		// nothing matches the map and tracking must fail.
		idOffset := int64(0)
		if *occludeFrom > 0 && i+1 >= *occludeFrom && i+1 < *occludeFrom+*occludeSpan {
			idOffset = 100000
		}

		disp := *disparity
		if i == 0 {
			disp = 0
		}
		for j := 0; j < *features; j++ {
			frame.Features = append(frame.Features, vo.Feature{
				ID:        int64(j+1) + idOffset,
				X:         float64(j%12)*25.0 - 137.5,
				Y:         float64(j/12)*25.0 - 112.5,
				Disparity: disp,
				Depth:     3.0 + float64(j%10)*0.4,
			})
		}
		if err := enc.Encode(frame); err != nil {
			log.Fatalf("write frame %d: %v", id, err)
		}
	}
	log.Printf("wrote %d frames to %s", *frames, *out)
}
