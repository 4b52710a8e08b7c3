package trackpad

const (
	// VendorApple is the Bluetooth vendor id reported by the trackpad.
	VendorApple = 0x004c
	// ProductMagicTrackpad2 is the product id of the Magic Trackpad 2.
	ProductMagicTrackpad2 = 0x0265

	// InputReportID carries the multitouch frames.
	InputReportID = 0x31

	// DeviceName is used for the virtual input device. Desktop input stacks
	// apply their Apple specific rules based on it.
	DeviceName = "Apple Magic Trackpad 2"
)

// InitSequence returns the feature reports that switch the device to host
// controlled clicks and multitouch reporting. The first byte of each report
// is the report id.
func InitSequence() [][]byte {
	return [][]byte{
		{0xf1, 0x01, 0xdb},
		{0xf2, 0x21, 0x01}, // host clicks, disables autonomous clicks
		{0xf1, 0x01, 0xc8},
		{0xf1, 0x02, 0x01}, // multitrack mode
		{0xf1, 0xc8, 0x09}, // empty finger reports
	}
}

// AxisRange describes the limits of a reported axis.
type AxisRange struct {
	Min  int32
	Max  int32
	Fuzz int32
}

// signal-to-noise ratios
const (
	snPressure = 45
	snWidth    = 25
	snOrient   = 10
)

func axis(min, max, snratio int32) AxisRange {
	r := AxisRange{Min: min, Max: max}
	if snratio != 0 {
		r.Fuzz = (max - min) / snratio
	}
	return r
}

// Axes are the ranges of the values produced by Decode.
var Axes = struct {
	X, Y                   AxisRange
	TouchMajor, TouchMinor AxisRange
	Orientation            AxisRange
	Pressure               AxisRange
	SinglePressure         AxisRange
	ToolWidth              AxisRange
}{
	X:              AxisRange{Min: -3678, Max: 3934, Fuzz: 4},
	Y:              AxisRange{Min: -2479, Max: 2586, Fuzz: 4},
	TouchMajor:     axis(0, 2048, snWidth),
	TouchMinor:     axis(0, 2048, snWidth),
	Orientation:    axis(-MaxOrientation, MaxOrientation, snOrient),
	Pressure:       axis(0, 300, snPressure),
	SinglePressure: AxisRange{Min: 0, Max: 256},
	ToolWidth:      AxisRange{Min: 0, Max: 16},
}

// SinglePressureOffset is added to the pressure of the primary contact.
// Some pointer drivers ignore movement below a pressure of about 30.
const SinglePressureOffset = 30
