package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrCameraUnavailable indicates the camera could not be acquired.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Camera produces one compressed video frame per call.
type Camera interface {
	Grab(ctx context.Context) ([]byte, error)
	Close() error
}

// FFMPEGCamera rasterizes single JPEG frames from a capture device using
// ffmpeg. Each grab is an independent short-lived process; frame delivery is
// lossy by design, so there is nothing to keep warm between grabs.
type FFMPEGCamera struct {
	command string
	format  string
	device  string
}

// NewFFMPEGCamera creates a camera over an ffmpeg capture input
// (e.g. format "v4l2", device "/dev/video0").
func NewFFMPEGCamera(command, format, device string) *FFMPEGCamera {
	if command == "" {
		command = "ffmpeg"
	}
	if format == "" {
		format = "v4l2"
	}
	if device == "" {
		device = "/dev/video0"
	}
	return &FFMPEGCamera{command: command, format: format, device: device}
}

// Grab captures the current frame as JPEG bytes.
func (c *FFMPEGCamera) Grab(ctx context.Context) ([]byte, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.format,
		"-i", c.device,
		"-frames:v", "1",
		"-q:v", "5",
		"-f", "image2",
		"-",
	}
	cmd := exec.CommandContext(ctx, c.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %v: %s", ErrCameraUnavailable, err, detail)
		}
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no frame", ErrCameraUnavailable)
	}
	return stdout.Bytes(), nil
}

// Close releases the camera. Grabs are stateless, so this is a no-op.
func (c *FFMPEGCamera) Close() error {
	return nil
}
