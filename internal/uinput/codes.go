package uinput

import (
	"unsafe"

	"github.com/kenshaw/evdev"
)

// Codes missing from evdev, from linux/input-event-codes.h.
const (
	evSyn     evdev.EventType = 0x00
	synReport uint16          = 0x00

	absPressure      uint16 = 0x18
	absToolWidth     uint16 = 0x1c
	absMTTouchMajor  uint16 = 0x30
	absMTTouchMinor  uint16 = 0x31
	absMTOrientation uint16 = 0x34
	absMTPressure    uint16 = 0x3a

	btnMiddle        uint16 = 0x112
	btnToolFinger    uint16 = 0x145
	btnToolQuinttap  uint16 = 0x148
	btnTouch         uint16 = 0x14a
	btnToolDoubletap uint16 = 0x14d
	btnToolTripletap uint16 = 0x14e
	btnToolQuadtap   uint16 = 0x14f

	inputPropPointer   uint16 = 0x00
	inputPropButtonpad uint16 = 0x02
)

const (
	absCnt            = 0x40
	uinputMaxNameSize = 80

	maxTrackingID    int32  = 0xffff
	bluetoothBusType uint16 = 0x05
	deviceVersion    uint16 = 0x01
)

var (
	absX            = uint16(evdev.AbsoluteX)
	absY            = uint16(evdev.AbsoluteY)
	absMTSlot       = uint16(evdev.AbsoluteMTSlot)
	absMTTrackingID = uint16(evdev.AbsoluteMTTrackingID)
	absMTPositionX  = uint16(evdev.AbsoluteMTPositionX)
	absMTPositionY  = uint16(evdev.AbsoluteMTPositionY)
	btnLeft         = uint16(evdev.BtnLeft)
)

// toolKeys are indexed by the number of touching fingers minus one.
var toolKeys = []uint16{btnToolFinger, btnToolDoubletap, btnToolTripletap, btnToolQuadtap, btnToolQuinttap}

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
)

func ioc(dir uint32, typ uint32, nr uint32, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

var (
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
	uiSetEvBit   = ioc(iocWrite, 'U', 100, uint32(unsafe.Sizeof(int32(0))))
	uiSetKeyBit  = ioc(iocWrite, 'U', 101, uint32(unsafe.Sizeof(int32(0))))
	uiSetAbsBit  = ioc(iocWrite, 'U', 103, uint32(unsafe.Sizeof(int32(0))))
	uiSetPropBit = ioc(iocWrite, 'U', 110, uint32(unsafe.Sizeof(int32(0))))
)
