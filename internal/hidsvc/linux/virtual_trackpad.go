package linux

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/neuroplastio/neio-trackpad/pkg/bits"
	"github.com/psanford/uhid"
	"go.uber.org/zap"
)

// TrackpadDescriptor is a vendor defined report descriptor with the report
// ids the trackpad uses: 0x31 input frames, 0xF1 feature reports and 0xF2
// haptic output reports.
var TrackpadDescriptor = []byte{
	0x06, 0x00, 0xff, // Usage Page (Vendor Defined 0xFF00)
	0x09, 0x01, // Usage (0x01)
	0xa1, 0x01, // Collection (Application)
	0x85, 0x31, //   Report ID (0x31)
	0x09, 0x02, //   Usage (0x02)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xff, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //   Report Size (8)
	0x96, 0x93, 0x00, //   Report Count (147)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x85, 0xf1, //   Report ID (0xF1)
	0x09, 0x03, //   Usage (0x03)
	0x95, 0x02, //   Report Count (2)
	0xb1, 0x02, //   Feature (Data,Var,Abs)
	0x85, 0xf2, //   Report ID (0xF2)
	0x09, 0x04, //   Usage (0x04)
	0x95, 0x0e, //   Report Count (14)
	0x91, 0x02, //   Output (Data,Var,Abs)
	0x09, 0x05, //   Usage (0x05)
	0x95, 0x02, //   Report Count (2)
	0xb1, 0x02, //   Feature (Data,Var,Abs)
	0xc0, // End Collection
}

const bluetoothBus = 0x05

type UhidReportType uint8

const (
	UhidReportTypeFeature UhidReportType = 0
	UhidReportTypeOutput  UhidReportType = 1
	UhidReportTypeInput   UhidReportType = 2
)

type GetReportRequest struct {
	RequestID  uint32
	ReportID   uint8
	ReportType UhidReportType
}

const uhidReportSize = 4096

type GetReportReply struct {
	EventType uhid.EventType
	RequestID uint32
	Error     uint16
	Size      uint16
	Data      [uhidReportSize]byte
}

type SetReportRequest struct {
	RequestID  uint32
	ReportID   uint8
	ReportType UhidReportType
	Size       uint16
	Data       [uhidReportSize]byte
}

type SetReportReply struct {
	EventType uhid.EventType
	RequestID uint32
	Error     uint16
}

type OutputRequest struct {
	Data  [uhidReportSize]byte
	Size  uint16
	RType UhidReportType
}

// VirtualTrackpad is a uhid device that looks like a Magic Trackpad 2 to the
// kernel. Injected frames reach hidraw readers, so the agent can be run
// against recorded captures, and the haptic reports it sends back are
// exposed on Outputs.
type VirtualTrackpad struct {
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	dev    *uhid.Device
	events chan uhid.Event
	done   chan struct{}

	mu        sync.Mutex
	features  map[uint8][]byte
	lastInput []byte

	outputs chan []byte
}

func OpenVirtualTrackpad(ctx context.Context, log *zap.Logger, name string) (*VirtualTrackpad, error) {
	dev, err := uhid.NewDevice(name, TrackpadDescriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to create uhid device: %w", err)
	}
	dev.Data.Bus = bluetoothBus
	dev.Data.VendorID = trackpad.VendorApple
	dev.Data.ProductID = trackpad.ProductMagicTrackpad2

	ctx, cancel := context.WithCancel(ctx)
	events, err := dev.Open(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open uhid device: %w", err)
	}

	v := newVirtualTrackpad(log)
	v.ctx = ctx
	v.cancel = cancel
	v.dev = dev
	v.events = events
	go v.run()
	return v, nil
}

func newVirtualTrackpad(log *zap.Logger) *VirtualTrackpad {
	return &VirtualTrackpad{
		log:      log,
		done:     make(chan struct{}),
		features: make(map[uint8][]byte),
		outputs:  make(chan []byte, 16),
	}
}

// InjectFrame delivers an input report as if the device had sent it.
func (v *VirtualTrackpad) InjectFrame(report []byte) error {
	v.mu.Lock()
	v.lastInput = bytes.Clone(report)
	v.mu.Unlock()
	return v.dev.InjectEvent(report)
}

// Outputs returns the output reports written to the device. Reports are
// dropped when the channel is full.
func (v *VirtualTrackpad) Outputs() <-chan []byte {
	return v.outputs
}

// Feature returns the last value set for a feature report.
func (v *VirtualTrackpad) Feature(reportID uint8) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.features[reportID]
	return bytes.Clone(data), ok
}

func (v *VirtualTrackpad) Close() error {
	v.cancel()
	err := v.dev.Close()
	<-v.done
	return err
}

func (v *VirtualTrackpad) run() {
	defer close(v.done)
	for {
		select {
		case <-v.ctx.Done():
			return
		case event, ok := <-v.events:
			if !ok {
				return
			}
			switch event.Type {
			case uhid.Output:
				data := parseOutput(event.Data)
				select {
				case v.outputs <- data:
				default:
					v.log.Warn("Dropped uhid output event")
				}
			case uhid.GetReport:
				var req GetReportRequest
				err := binary.Read(bytes.NewReader(event.Data), binary.LittleEndian, &req)
				if err != nil {
					v.log.Error("failed to read GetReport request", zap.Error(err))
					continue
				}
				reply := v.getReport(req)
				err = v.dev.WriteEvent(reply)
				if err != nil {
					v.log.Error("failed to write GetReport reply", zap.Error(err))
				}
			case uhid.SetReport:
				var req SetReportRequest
				err := binary.Read(bytes.NewReader(event.Data), binary.LittleEndian, &req)
				if err != nil {
					v.log.Error("failed to read SetReport request", zap.Error(err))
					continue
				}
				reply := v.setReport(req)
				err = v.dev.WriteEvent(reply)
				if err != nil {
					v.log.Error("failed to write SetReport reply", zap.Error(err))
				}
			}
		}
	}
}

func (v *VirtualTrackpad) getReport(req GetReportRequest) GetReportReply {
	v.mu.Lock()
	var (
		data []byte
		ok   bool
	)
	switch req.ReportType {
	case UhidReportTypeFeature:
		data, ok = v.features[req.ReportID]
	case UhidReportTypeInput:
		if req.ReportID == trackpad.InputReportID {
			data = v.lastInput
			if data == nil {
				data = []byte{trackpad.InputReportID, 0, 0, 0}
			}
			ok = true
		}
	}
	v.mu.Unlock()

	reply := GetReportReply{
		EventType: uhid.GetReportReply,
		RequestID: req.RequestID,
	}
	if !ok {
		v.log.Debug("GetReport for unknown report", zap.Uint8("reportID", req.ReportID), zap.Uint8("type", uint8(req.ReportType)))
		reply.Error = 1
		return reply
	}
	reply.Size = uint16(copy(reply.Data[:], data))
	v.log.Debug("GetReport reply", zap.String("data", bits.New(data, 0).Hex()))
	return reply
}

func (v *VirtualTrackpad) setReport(req SetReportRequest) SetReportReply {
	reply := SetReportReply{
		EventType: uhid.SetReportReply,
		RequestID: req.RequestID,
	}
	if req.ReportType != UhidReportTypeFeature || int(req.Size) > uhidReportSize {
		reply.Error = 1
		return reply
	}
	data := make([]byte, req.Size)
	copy(data, req.Data[:])
	v.log.Debug("SetReport request", zap.String("data", bits.New(data, 0).Hex()))

	v.mu.Lock()
	v.features[req.ReportID] = data
	v.mu.Unlock()
	return reply
}

// parseOutput extracts the report from a uhid output request, falling back to
// the raw payload when it does not have the request layout.
func parseOutput(data []byte) []byte {
	var req OutputRequest
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &req)
	if err != nil || int(req.Size) > uhidReportSize {
		return bytes.Clone(data)
	}
	out := make([]byte, req.Size)
	copy(out, req.Data[:])
	return out
}
