package renderer

import "time"

type FrameStats struct {
	// Render time for the most recent frame.
	FrameTime time.Duration

	// Frames blended into the progressive accumulation since the camera
	// last moved. Zero while the rasterized path is active.
	AccumulatedFrames uint32

	// True while the rasterized path is active.
	Rasterized bool
}
