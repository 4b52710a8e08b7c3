package linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jochenvg/go-udev"
	"github.com/sstallion/go-hid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type hidapiDevice struct {
	udev        *udev.Udev
	log         *zap.Logger
	info        hid.DeviceInfo
	readTimeout time.Duration

	// mu guards dev against Close while a read or write is in flight.
	mu     sync.RWMutex
	dev    *hid.Device
	closed atomic.Bool
}

// Acquire detaches the evdev nodes the kernel created for the device, so the
// desktop does not see the same touches twice.
func (h *hidapiDevice) Acquire() (func(), error) {
	hidrawDev := h.udev.NewDeviceFromSubsystemSysname("hidraw", filepath.Base(h.info.Path))
	if hidrawDev == nil {
		return nil, fmt.Errorf("hidraw device %s not found in udev", h.info.Path)
	}
	hidDev := hidrawDev.Parent()
	e := h.udev.NewEnumerate()
	e.AddMatchSubsystem("input")
	e.AddMatchParent(hidDev)
	inputs, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list enumerate devices: %w", err)
	}
	var detachedInputs []string
	for _, inputDev := range inputs {
		syspath := inputDev.Syspath()
		if !strings.HasPrefix(filepath.Base(syspath), "event") {
			continue
		}
		err := os.WriteFile(syspath+"/uevent", []byte("remove"), 0644)
		if err != nil {
			h.log.Error("failed to detach the input", zap.Error(err))
			continue
		}
		h.log.Debug("input detached", zap.String("syspath", syspath))
		detachedInputs = append(detachedInputs, syspath)
	}
	return func() {
		for _, input := range detachedInputs {
			err := os.WriteFile(input+"/uevent", []byte("add"), 0644)
			if err != nil {
				h.log.Error("failed to attach the input", zap.Error(err))
			}
		}
	}, nil
}

// Read waits for the next input report. It polls with a short timeout so
// that Close never races with a blocked read.
func (h *hidapiDevice) Read(buf []byte) (int, error) {
	for {
		if h.closed.Load() {
			return 0, os.ErrClosed
		}
		h.mu.RLock()
		if h.closed.Load() {
			h.mu.RUnlock()
			return 0, os.ErrClosed
		}
		n, err := h.dev.ReadWithTimeout(buf, h.readTimeout)
		h.mu.RUnlock()
		switch {
		case errors.Is(err, hid.ErrTimeout):
			continue
		case err != nil:
			return n, err
		case n > 0:
			return n, nil
		}
	}
}

func (h *hidapiDevice) Write(buf []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed.Load() {
		return 0, os.ErrClosed
	}
	return h.dev.Write(buf)
}

func (h *hidapiDevice) SetFeatureReport(buf []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed.Load() {
		return 0, os.ErrClosed
	}
	return h.dev.SendFeatureReport(buf)
}

func (h *hidapiDevice) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dev.Close()
}
