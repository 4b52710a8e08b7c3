package linux

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jochenvg/go-udev"
	"github.com/neuroplastio/neio-trackpad/internal/hidsvc"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"
)

var defaultBackendOptions = backendOptions{
	pollInterval: 1 * time.Second,
	readTimeout:  50 * time.Millisecond,
}

type backendOptions struct {
	pollInterval time.Duration
	readTimeout  time.Duration
}

func WithPollInterval(d time.Duration) Option {
	return func(o *backendOptions) {
		o.pollInterval = d
	}
}

// WithReadTimeout bounds a single hidraw read, which is how long closing a
// device may wait for a pending read.
func WithReadTimeout(d time.Duration) Option {
	return func(o *backendOptions) {
		o.readTimeout = d
	}
}

type Option func(*backendOptions)

// Backend implements the hidsvc.Backend interface for Linux Kernel.
// It uses hidapi and udev to talk to hidraw devices.
type Backend struct {
	log     *zap.Logger
	options backendOptions

	hidDevices *xsync.MapOf[HidAddress, hid.DeviceInfo]
	udev       *udev.Udev

	ready     chan struct{}
	publisher hidsvc.BackendPublisher
}

type HidAddress struct {
	VendorID  uint16
	ProductID uint16
	Interface int
}

func (a HidAddress) String() string {
	return fmt.Sprintf("%04x:%04x:%d", a.VendorID, a.ProductID, a.Interface)
}

func ParseHidAddress(s string) (HidAddress, error) {
	var addr HidAddress
	_, err := fmt.Sscanf(s, "%04x:%04x:%d", &addr.VendorID, &addr.ProductID, &addr.Interface)
	if err != nil {
		return HidAddress{}, fmt.Errorf("invalid hid address %q: %w", s, err)
	}
	return addr, nil
}

func NewBackend(log *zap.Logger, opts ...Option) *Backend {
	options := defaultBackendOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &Backend{
		options:    options,
		log:        log,
		ready:      make(chan struct{}),
		hidDevices: xsync.NewMapOf[HidAddress, hid.DeviceInfo](),
	}
}

func (b *Backend) Ready() <-chan struct{} {
	return b.ready
}

func (b *Backend) Start(ctx context.Context, publisher hidsvc.BackendPublisher) error {
	err := hid.Init()
	if err != nil {
		return fmt.Errorf("failed to initialize hidapi: %w", err)
	}
	b.udev = &udev.Udev{}
	b.publisher = publisher

	b.log.Info("Starting Linux HID backend")
	err = b.refreshHidDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh HID devices: %w", err)
	}

	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
	b.log.Info("Linux HID backend started")

	pollTicker := time.NewTicker(b.options.pollInterval)
	defer pollTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			err := b.refreshHidDevices(ctx)
			if err != nil {
				b.log.Error("failed to refresh HID devices", zap.Error(err))
				continue
			}
		}
	}
}

func (b *Backend) refreshHidDevices(ctx context.Context) error {
	newDevices, err := enumerateHidDevices()
	if err != nil {
		return err
	}
	event := b.diff(newDevices)
	if len(event.Connected) > 0 || len(event.Disconnected) > 0 {
		b.publisher(ctx, hidsvc.BackendEvent{
			InputsChanged: event,
		})
	}
	return nil
}

// diff updates the known device table and returns what changed.
func (b *Backend) diff(newDevices map[HidAddress]hid.DeviceInfo) *hidsvc.BackendEventInputsChanged {
	event := &hidsvc.BackendEventInputsChanged{}
	b.hidDevices.Range(func(addr HidAddress, dev hid.DeviceInfo) bool {
		if _, ok := newDevices[addr]; !ok {
			event.Disconnected = append(event.Disconnected, addr.String())
			b.hidDevices.Delete(addr)
			return true
		}
		delete(newDevices, addr)
		return true
	})

	for addr, device := range newDevices {
		b.hidDevices.Store(addr, device)
		event.Connected = append(event.Connected, hidsvc.BackendDevice{
			ID:        addr.String(),
			Name:      generateName(device),
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
			Path:      device.Path,
		})
	}
	return event
}

func generateName(device hid.DeviceInfo) string {
	var parts []string
	if device.MfrStr != "" {
		parts = append(parts, device.MfrStr)
	}
	if device.ProductStr != "" {
		parts = append(parts, device.ProductStr)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%04x:%04x", device.VendorID, device.ProductID)
	}
	return strings.Join(parts, " ")
}

func enumerateHidDevices() (map[HidAddress]hid.DeviceInfo, error) {
	devices := make(map[HidAddress]hid.DeviceInfo)
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(device *hid.DeviceInfo) error {
		addr := HidAddress{
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
			Interface: device.InterfaceNbr,
		}
		devices[addr] = *device
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}
	return devices, nil
}

func (b *Backend) OpenInputDevice(id string) (hidsvc.InputDevice, error) {
	addr, err := ParseHidAddress(id)
	if err != nil {
		return nil, err
	}

	info, ok := b.hidDevices.Load(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", hidsvc.ErrDeviceNotFound, id)
	}
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", info.Path, err)
	}

	return &hidapiDevice{
		udev:        b.udev,
		log:         b.log.With(zap.String("path", info.Path)),
		info:        info,
		dev:         dev,
		readTimeout: b.options.readTimeout,
	}, nil
}
