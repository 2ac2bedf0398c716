package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// NewInstance creates a Vulkan instance for the given window system
// extensions. The caller must have called Bootstrap first.
func NewInstance(appName string, extensions []string) (vk.Instance, error) {
	terminated := make([]string, len(extensions))
	for idx, ext := range extensions {
		terminated[idx] = safeString(ext)
	}

	appInfo := vk.ApplicationInfo{
		SType:            vk.StructureTypeApplicationInfo,
		PApplicationName: safeString(appName),
		PEngineName:      safeString("no engine"),
		ApiVersion:       vk.MakeVersion(1, 2, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(terminated)),
		PpEnabledExtensionNames: terminated,
	}

	var instance vk.Instance
	if ret := vk.CreateInstance(&createInfo, nil, &instance); ret != vk.Success {
		return nil, fmt.Errorf("vulkan: could not create instance: %s", vk.Error(ret))
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vulkan: could not load instance procs: %v", err)
	}
	if err := loadInstanceProcs(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	return instance, nil
}

// Vulkan expects null-terminated strings.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}
