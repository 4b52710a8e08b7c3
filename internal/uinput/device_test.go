package uinput

import (
	"encoding/binary"
	"testing"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserDev(t *testing.T) {
	dev := userDev(trackpad.DeviceName)
	assert.Equal(t, trackpad.DeviceName, string(dev.Name[:len(trackpad.DeviceName)]))
	assert.Equal(t, uint16(trackpad.VendorApple), dev.ID.Vendor)
	assert.Equal(t, uint16(trackpad.ProductMagicTrackpad2), dev.ID.Product)

	assert.Equal(t, int32(-3678), dev.AbsMin[absMTPositionX])
	assert.Equal(t, int32(3934), dev.AbsMax[absMTPositionX])
	assert.Equal(t, int32(4), dev.AbsFuzz[absX])
	assert.Equal(t, int32(trackpad.MaxContacts-1), dev.AbsMax[absMTSlot])
	assert.Equal(t, int32(-trackpad.MaxOrientation), dev.AbsMin[absMTOrientation])
	assert.Equal(t, int32(256), dev.AbsMax[absPressure])
}

func TestUserDevNameIsTerminated(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	dev := userDev(string(long))
	assert.Zero(t, dev.Name[uinputMaxNameSize-1])
}

func TestUserDevLayout(t *testing.T) {
	data, err := uInputDevToBytes(userDev("pad"))
	require.NoError(t, err)
	// name, input_id, ff_effects_max, then four abs tables
	require.Len(t, data, uinputMaxNameSize+8+4+4*absCnt*4)
	assert.Equal(t, uint16(bluetoothBusType), binary.LittleEndian.Uint16(data[uinputMaxNameSize:]))

	absMaxOffset := uinputMaxNameSize + 8 + 4
	x := binary.LittleEndian.Uint32(data[absMaxOffset+4*int(absMTPositionX):])
	assert.Equal(t, int32(3934), int32(x))
}

func TestIoctlNumbers(t *testing.T) {
	assert.Equal(t, uintptr(0x5501), uiDevCreate)
	assert.Equal(t, uintptr(0x5502), uiDevDestroy)
	assert.Equal(t, uintptr(0x40045564), uiSetEvBit)
	assert.Equal(t, uintptr(0x40045565), uiSetKeyBit)
	assert.Equal(t, uintptr(0x40045567), uiSetAbsBit)
	assert.Equal(t, uintptr(0x4004556e), uiSetPropBit)
}
