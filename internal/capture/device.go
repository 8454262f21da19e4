package capture

import "errors"

var (
	// ErrPermissionDenied indicates the user or platform refused device access.
	ErrPermissionDenied = errors.New("capture permission denied")
	// ErrDeviceUnavailable indicates no usable capture device was found.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// DataCallback receives raw s16le PCM from the device. It runs on the device
// thread and must not block.
type DataCallback func(pcm []byte)

// DeviceConfig describes how the microphone should be captured.
type DeviceConfig struct {
	SampleRate int
	Channels   int
}

// Device is an open capture device.
type Device interface {
	Start() error
	Stop()
	Close()
}

// Context creates capture devices.
type Context interface {
	OpenCapture(cfg DeviceConfig, cb DataCallback) (Device, error)
	Close()
}
