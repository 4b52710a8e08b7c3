package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/kenshaw/evdev"
	"github.com/lunixbochs/struc"
	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const DefaultPath = "/dev/uinput"

type InputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// UinputUserDev is struct uinput_user_dev, written once before UI_DEV_CREATE.
type UinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         InputID
	EffectsMax uint32
	AbsMax     [absCnt]int32
	AbsMin     [absCnt]int32
	AbsFuzz    [absCnt]int32
	AbsFlat    [absCnt]int32
}

func toUInputName(name string) [uinputMaxNameSize]byte {
	var fixedSizeName [uinputMaxNameSize]byte
	// keep the trailing NUL
	copy(fixedSizeName[:uinputMaxNameSize-1], name)
	return fixedSizeName
}

func setAxis(dev *UinputUserDev, code uint16, r trackpad.AxisRange) {
	dev.AbsMin[code] = r.Min
	dev.AbsMax[code] = r.Max
	dev.AbsFuzz[code] = r.Fuzz
}

// axes lists every absolute axis the device reports.
func axes() map[uint16]trackpad.AxisRange {
	a := trackpad.Axes
	return map[uint16]trackpad.AxisRange{
		absX:             a.X,
		absY:             a.Y,
		absPressure:      a.SinglePressure,
		absToolWidth:     a.ToolWidth,
		absMTSlot:        {Min: 0, Max: trackpad.MaxContacts - 1},
		absMTTrackingID:  {Min: 0, Max: maxTrackingID},
		absMTPositionX:   a.X,
		absMTPositionY:   a.Y,
		absMTTouchMajor:  a.TouchMajor,
		absMTTouchMinor:  a.TouchMinor,
		absMTOrientation: a.Orientation,
		absMTPressure:    a.Pressure,
	}
}

func keys() []uint16 {
	return append([]uint16{btnLeft, btnMiddle, btnTouch}, toolKeys...)
}

func userDev(name string) UinputUserDev {
	dev := UinputUserDev{
		Name: toUInputName(name),
		ID: InputID{
			BusType: bluetoothBusType,
			Vendor:  trackpad.VendorApple,
			Product: trackpad.ProductMagicTrackpad2,
			Version: deviceVersion,
		},
	}
	for code, r := range axes() {
		setAxis(&dev, code, r)
	}
	return dev
}

func uInputDevToBytes(uiDev UinputUserDev) ([]byte, error) {
	var buf bytes.Buffer
	err := struc.PackWithOptions(&buf, &uiDev, &struc.Options{Order: binary.LittleEndian})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// Device is a virtual touchpad created through uinput. It implements the
// emitter used by hid sessions.
type Device struct {
	log *zap.Logger

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Create registers a new virtual touchpad with the kernel.
func Create(log *zap.Logger, path string, name string) (*Device, error) {
	f, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	err = setup(f, name)
	if err != nil {
		f.Close()
		return nil, err
	}
	log.Info("Virtual touchpad created", zap.String("name", name))
	return &Device{
		log: log,
		f:   f,
	}, nil
}

func setup(f *os.File, name string) error {
	fd := f.Fd()
	for _, ev := range []evdev.EventType{evSyn, evdev.EventKey, evdev.EventAbsolute} {
		if err := ioctl(fd, uiSetEvBit, uintptr(ev)); err != nil {
			return fmt.Errorf("failed to set event bit %d: %w", ev, err)
		}
	}
	for _, k := range keys() {
		if err := ioctl(fd, uiSetKeyBit, uintptr(k)); err != nil {
			return fmt.Errorf("failed to set key bit %#x: %w", k, err)
		}
	}
	for code := range axes() {
		if err := ioctl(fd, uiSetAbsBit, uintptr(code)); err != nil {
			return fmt.Errorf("failed to set abs bit %#x: %w", code, err)
		}
	}
	for _, prop := range []uint16{inputPropPointer, inputPropButtonpad} {
		if err := ioctl(fd, uiSetPropBit, uintptr(prop)); err != nil {
			return fmt.Errorf("failed to set property %d: %w", prop, err)
		}
	}

	data, err := uInputDevToBytes(userDev(name))
	if err != nil {
		return fmt.Errorf("failed to pack device setup: %w", err)
	}
	_, err = f.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write device setup: %w", err)
	}
	err = ioctl(fd, uiDevCreate, 0)
	if err != nil {
		return fmt.Errorf("failed to create uinput device: %w", err)
	}
	return nil
}

func (d *Device) Emit(res trackpad.Result) error {
	data, err := Marshal(Events(res))
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return os.ErrClosed
	}
	_, err = d.f.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := ioctl(d.f.Fd(), uiDevDestroy, 0)
	if err != nil {
		d.log.Warn("failed to destroy uinput device", zap.Error(err))
	}
	return d.f.Close()
}
