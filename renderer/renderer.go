package renderer

type Renderer interface {
	// Run the render loop until the window closes or an error occurs.
	Render() error

	// Shutdown renderer and release all device resources.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
