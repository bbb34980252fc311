package core

import (
	"errors"
)

var (
	ErrInstanceCreationFailed  = errors.New("vulkan instance creation failed")
	ErrValidationUnavailable   = errors.New("required validation layer is not available")
	ErrSurfaceCreationFailed   = errors.New("window surface creation failed")
	ErrNoSuitableDevice        = errors.New("no physical device meets the requirements")
	ErrNoSuitableQueue         = errors.New("no queue family supports both graphics and present")
	ErrDeviceCreationFailed    = errors.New("logical device creation failed")
	ErrSwapchainCreationFailed = errors.New("swapchain creation failed")
	ErrShaderModuleFailed      = errors.New("shader module creation failed")
	ErrPipelineCreationFailed  = errors.New("graphics pipeline creation failed")
	ErrBufferCreationFailed    = errors.New("buffer creation failed")
	ErrNoSuitableMemoryType    = errors.New("no suitable memory type")
	ErrCommandRecordingFailed  = errors.New("command buffer recording failed")
	ErrSubmitFailed            = errors.New("queue submit failed")
	ErrPresentFailed           = errors.New("queue present failed")
	ErrDeviceLost              = errors.New("device lost")
	ErrFenceTimeout            = errors.New("timed out waiting on in-flight fence")
	ErrRendererDestroyed       = errors.New("renderer already destroyed")
	ErrUnknown                 = errors.New("unknown")
)
