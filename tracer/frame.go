package tracer

import "github.com/skanti/vk-raytracing-tutorial-KHR/types"

// Counter value signalling shaders to restart progressive accumulation.
const FrameResetSentinel int32 = -1

// FrameState tracks the progressive accumulation counter across dispatches.
// The counter is reset to the sentinel whenever the camera view matrix or
// field of view differs from the values recorded at the previous dispatch
// and strictly increments otherwise.
type FrameState struct {
	refView types.Mat4
	refFov  float32
	primed  bool
	counter int32
}

// Advance the frame state for a dispatch with the given camera state and
// return the counter value the dispatch must use. The very first update
// always starts at the sentinel.
func (fs *FrameState) Update(view types.Mat4, fov float32) int32 {
	if !fs.primed || view != fs.refView || fov != fs.refFov {
		fs.refView = view
		fs.refFov = fov
		fs.primed = true
		fs.counter = FrameResetSentinel
		return fs.counter
	}

	fs.counter++
	return fs.counter
}

// Force the next dispatch to restart accumulation regardless of camera
// state. Used when non-camera inputs (lights, clear color) change.
func (fs *FrameState) Reset() {
	fs.primed = false
}

// The counter value of the most recent update.
func (fs *FrameState) Counter() int32 {
	return fs.counter
}
