package vulkan

import "errors"

var (
	ErrNoSuitableDevice  = errors.New("vulkan: no device supports the required ray tracing extensions")
	ErrNoBottomLevel     = errors.New("vulkan: no bottom level structures have been built")
	ErrNoTopLevel        = errors.New("vulkan: top level structure requested before any build")
	ErrEmptyInstanceList = errors.New("vulkan: refusing to build a top level structure with no instances")
	ErrUnknownBlas       = errors.New("vulkan: instance references a bottom level structure that was never built")
	ErrTableNotBuilt     = errors.New("vulkan: shader binding table regions requested before build")
)
