package renderer

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Vertical field of view in degrees.
	FOV float32

	// Directory holding the compiled SPIR-V shaders.
	ShaderDir string

	// Start on the rasterized path instead of the ray traced one.
	StartRasterized bool

	// Device selection.
	ForceDevice string
}
