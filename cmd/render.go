package cmd

import (
	"github.com/urfave/cli"

	"github.com/skanti/vk-raytracing-tutorial-KHR/renderer"
	"github.com/skanti/vk-raytracing-tutorial-KHR/scene"
)

// Render an interactive view of the demo scene. The R key switches
// between the ray traced and rasterized paths, WASD and mouse drag move
// the camera, and Esc exits.
func RenderInteractive(ctx *cli.Context) error {
	setupLogging(ctx)

	opts := renderer.Options{
		FrameW:          uint32(ctx.Int("width")),
		FrameH:          uint32(ctx.Int("height")),
		FOV:             float32(ctx.Float64("fov")),
		ShaderDir:       ctx.String("shader-dir"),
		StartRasterized: ctx.Bool("raster"),
		ForceDevice:     ctx.String("device"),
	}

	sc := scene.Demo(opts.FOV)

	r, err := renderer.NewInteractive(sc, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		return err
	}

	stats := r.Stats()
	logger.Infof("last frame: %s, %d accumulated frame(s)", stats.FrameTime, stats.AccumulatedFrames)
	return nil
}
