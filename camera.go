// camera.go - Exclusive camera device ownership

package main

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// openCameraDevice opens the V4L2 device node. Holding the descriptor is
// what keeps other processes (and the OS indicator) aware the camera is in
// use; frame capture happens in the renderer backends.
func openCameraDevice(device string) (io.Closer, error) {
	if device == "" {
		device = "/dev/video0"
	}
	return os.OpenFile(device, os.O_RDWR, 0)
}

// CameraManager hands out the single camera handle. Modes that render the
// camera must acquire it on entry and release it on exit; releasing means
// the device handle is closed, not merely paused, so the indicator light
// goes off and other applications can open the device.
type CameraManager struct {
	mu    sync.Mutex
	log   *logrus.Entry
	owner string
	dev   io.Closer

	// open acquires the platform device. Swapped out by tests.
	open func(device string) (io.Closer, error)
}

func NewCameraManager() *CameraManager {
	return &CameraManager{
		log:  componentLog("camera"),
		open: openCameraDevice,
	}
}

// Acquire opens the camera for the named owner. A second owner is refused
// until the first releases; re-acquiring by the current owner is a no-op.
func (c *CameraManager) Acquire(owner, device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		if c.owner == owner {
			return nil
		}
		return &EngineError{Operation: "camera acquire", Details: "device held by " + c.owner}
	}

	dev, err := c.open(device)
	if err != nil {
		return &EngineError{Operation: "camera acquire", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	c.dev = dev
	c.owner = owner
	c.log.WithField("owner", owner).Info("camera acquired")
	return nil
}

// Release closes the device if the named owner holds it.
func (c *CameraManager) Release(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil || c.owner != owner {
		return
	}
	c.dev.Close()
	c.dev = nil
	c.owner = ""
	c.log.WithField("owner", owner).Info("camera released")
}

// ReleaseAll closes the device regardless of owner. Called when the window
// is hidden and at unload.
func (c *CameraManager) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return
	}
	c.dev.Close()
	c.dev = nil
	c.owner = ""
	c.log.Info("camera released (global)")
}

// Held reports the current owner, empty when the device is free.
func (c *CameraManager) Held() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}
