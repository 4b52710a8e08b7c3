package hidsvc

import (
	"context"
	"io"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/neuroplastio/neio-trackpad/pkg/bus"
)

type (
	BackendBus       = bus.Bus[string, BackendEvent]
	BackendPublisher = bus.Publisher[BackendEvent]
)

type BackendEvent struct {
	InputsChanged *BackendEventInputsChanged
}

type BackendEventInputsChanged struct {
	Connected    []BackendDevice
	Disconnected []string
}

type BackendDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	Path      string `json:"path,omitempty"`
}

// Backend discovers devices on one platform and opens them.
type Backend interface {
	// Start publishes device changes until ctx is done.
	Start(ctx context.Context, pub BackendPublisher) error
	Ready() <-chan struct{}
	OpenInputDevice(id string) (InputDevice, error)
}

// InputDevice is an opened raw HID device. Read returns one input report per
// call, report id first. Write sends an output report.
type InputDevice interface {
	io.ReadWriteCloser
	// Acquire takes the device away from the kernel input layer. The returned
	// function gives it back.
	Acquire() (func(), error)
	SetFeatureReport(data []byte) (int, error)
}

// Emitter forwards processed frames to the host input stack.
type Emitter interface {
	Emit(res trackpad.Result) error
	Close() error
}

// EmitterFactory creates the emitter of a newly started session.
type EmitterFactory func(dev HidInputDevice, cfg Config) (Emitter, error)
