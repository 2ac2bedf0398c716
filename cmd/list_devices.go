package cmd

import (
	"bytes"
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer/vulkan"
)

// List the vulkan devices on this system and whether they support
// hardware ray tracing.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	// A hidden window bootstraps the loader without showing anything.
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("could not initialize glfw: %v", err)
	}
	defer glfw.Terminate()
	if !glfw.VulkanSupported() {
		return fmt.Errorf("no vulkan loader available")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.False)
	window, err := glfw.CreateWindow(1, 1, "list-devices", nil, nil)
	if err != nil {
		return fmt.Errorf("could not create hidden window: %v", err)
	}
	defer window.Destroy()

	if err = vulkan.Bootstrap(glfw.GetVulkanGetInstanceProcAddress()); err != nil {
		return fmt.Errorf("could not initialize vulkan loader: %v", err)
	}

	instance, err := vulkan.NewInstance("list-devices", window.GetRequiredInstanceExtensions())
	if err != nil {
		return err
	}
	defer vk.DestroyInstance(instance, nil)

	devices, err := vulkan.EnumerateDevices(instance)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Device", "Type", "API version", "Ray tracing"})
	for _, device := range devices {
		table.Append([]string{
			device.Name,
			device.Type,
			device.APIVersion,
			fmt.Sprintf("%t", device.RayTracing),
		})
	}
	table.Render()

	logger.Infof("found %d vulkan device(s)\n%s", len(devices), buf.String())
	return nil
}
