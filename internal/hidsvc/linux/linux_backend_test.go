package linux

import (
	"testing"

	"github.com/sstallion/go-hid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHidAddress(t *testing.T) {
	addr := HidAddress{VendorID: 0x004c, ProductID: 0x0265, Interface: -1}
	assert.Equal(t, "004c:0265:-1", addr.String())

	parsed, err := ParseHidAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	_, err = ParseHidAddress("not-an-address")
	assert.Error(t, err)
}

func TestGenerateName(t *testing.T) {
	assert.Equal(t, "Apple Inc. Magic Trackpad",
		generateName(hid.DeviceInfo{MfrStr: "Apple Inc.", ProductStr: "Magic Trackpad"}))
	assert.Equal(t, "Magic Trackpad", generateName(hid.DeviceInfo{ProductStr: "Magic Trackpad"}))
	assert.Equal(t, "004c:0265", generateName(hid.DeviceInfo{VendorID: 0x004c, ProductID: 0x0265}))
}

func TestBackendDiff(t *testing.T) {
	b := NewBackend(zap.NewNop())
	trackpadAddr := HidAddress{VendorID: 0x004c, ProductID: 0x0265, Interface: -1}
	keyboardAddr := HidAddress{VendorID: 0x046d, ProductID: 0xc31c, Interface: 0}

	event := b.diff(map[HidAddress]hid.DeviceInfo{
		trackpadAddr: {VendorID: 0x004c, ProductID: 0x0265, Path: "/dev/hidraw3", ProductStr: "Magic Trackpad"},
		keyboardAddr: {VendorID: 0x046d, ProductID: 0xc31c, Path: "/dev/hidraw1"},
	})
	assert.Len(t, event.Connected, 2)
	assert.Empty(t, event.Disconnected)

	event = b.diff(map[HidAddress]hid.DeviceInfo{
		trackpadAddr: {VendorID: 0x004c, ProductID: 0x0265, Path: "/dev/hidraw3", ProductStr: "Magic Trackpad"},
	})
	assert.Empty(t, event.Connected)
	assert.Equal(t, []string{keyboardAddr.String()}, event.Disconnected)

	_, ok := b.hidDevices.Load(keyboardAddr)
	assert.False(t, ok)
	info, ok := b.hidDevices.Load(trackpadAddr)
	require.True(t, ok)
	assert.Equal(t, "/dev/hidraw3", info.Path)
}

func TestOpenUnknownDevice(t *testing.T) {
	b := NewBackend(zap.NewNop())
	_, err := b.OpenInputDevice("004c:0265:-1")
	assert.Error(t, err)
	_, err = b.OpenInputDevice("bogus")
	assert.Error(t, err)
}
