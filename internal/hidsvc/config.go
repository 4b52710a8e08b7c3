package hidsvc

import (
	"errors"
	"fmt"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
)

// Config is the user-editable part of the service, stored in trackpad.yml.
// Threshold changes apply to running sessions; everything else applies to
// devices connected after the change.
type Config struct {
	Devices        []DeviceMatch `json:"devices"`
	ClickThreshold uint8         `json:"clickThreshold"`
	ForceThreshold uint8         `json:"forceThreshold"`
	// InputReportID filters the reports fed to a session. Zero accepts every report.
	InputReportID uint8 `json:"inputReportId"`
	// Initialize sends the multitouch init sequence when a device is opened.
	Initialize bool `json:"initialize"`
	// Haptics enables actuator feedback on click transitions.
	Haptics bool `json:"haptics"`
	// VirtualDeviceName is the name of the emitted input device.
	VirtualDeviceName string `json:"virtualDeviceName"`
}

type DeviceMatch struct {
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
}

func (m DeviceMatch) Matches(dev BackendDevice) bool {
	return m.VendorID == dev.VendorID && m.ProductID == dev.ProductID
}

func (m DeviceMatch) String() string {
	return fmt.Sprintf("%04x:%04x", m.VendorID, m.ProductID)
}

func DefaultConfig() Config {
	return Config{
		Devices: []DeviceMatch{
			{VendorID: trackpad.VendorApple, ProductID: trackpad.ProductMagicTrackpad2},
		},
		ClickThreshold:    trackpad.DefaultClickThreshold,
		ForceThreshold:    trackpad.DefaultForceThreshold,
		InputReportID:     trackpad.InputReportID,
		Initialize:        true,
		Haptics:           true,
		VirtualDeviceName: trackpad.DeviceName,
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func (c Config) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("%w: no devices to match", ErrInvalidConfig)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) Thresholds() trackpad.Thresholds {
	return trackpad.Thresholds{Click: c.ClickThreshold, Force: c.ForceThreshold}
}

// Match reports whether dev is a trackpad this service should drive.
func (c Config) Match(dev BackendDevice) bool {
	for _, m := range c.Devices {
		if m.Matches(dev) {
			return true
		}
	}
	return false
}
