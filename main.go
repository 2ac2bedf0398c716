package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/skanti/vk-raytracing-tutorial-KHR/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "vk-raytracing"
	app.Usage = "render scenes with vulkan hardware ray tracing"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available vulkan devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "render",
			Usage: "render interactive view of the demo scene",
			Description: `
Open a window and render the demo scene with hardware ray tracing,
accumulating samples progressively while the camera is still. Press R to
switch between the ray traced and rasterized paths at runtime.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 1280,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 720,
					Usage: "frame height",
				},
				cli.Float64Flag{
					Name:  "fov",
					Value: 65.0,
					Usage: "vertical field of view in degrees",
				},
				cli.StringFlag{
					Name:  "shader-dir",
					Value: "shaders",
					Usage: "directory holding the compiled SPIR-V shaders",
				},
				cli.BoolFlag{
					Name:  "raster",
					Usage: "start on the rasterized path",
				},
				cli.StringFlag{
					Name:  "device, d",
					Usage: "only use a device whose name contains this value",
				},
			},
			Action: cmd.RenderInteractive,
		},
	}

	app.Run(os.Args)
}
