package linux

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/psanford/uhid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTrackpadDescriptorReportIDs(t *testing.T) {
	var ids []byte
	for i := 0; i+1 < len(TrackpadDescriptor); i++ {
		if TrackpadDescriptor[i] == 0x85 {
			ids = append(ids, TrackpadDescriptor[i+1])
		}
	}
	assert.Equal(t, []byte{trackpad.InputReportID, 0xf1, trackpad.HapticReportID}, ids)
	assert.Equal(t, byte(0xc0), TrackpadDescriptor[len(TrackpadDescriptor)-1])
}

func TestVirtualTrackpadFeatureReports(t *testing.T) {
	v := newVirtualTrackpad(zap.NewNop())

	reply := v.getReport(GetReportRequest{RequestID: 1, ReportID: 0xf1, ReportType: UhidReportTypeFeature})
	assert.Equal(t, uhid.GetReportReply, reply.EventType)
	assert.Equal(t, uint32(1), reply.RequestID)
	assert.Equal(t, uint16(1), reply.Error)

	set := SetReportRequest{RequestID: 2, ReportID: 0xf1, ReportType: UhidReportTypeFeature, Size: 3}
	copy(set.Data[:], []byte{0xf1, 0x02, 0x01})
	setReply := v.setReport(set)
	assert.Equal(t, uhid.SetReportReply, setReply.EventType)
	assert.Equal(t, uint32(2), setReply.RequestID)
	assert.Zero(t, setReply.Error)

	data, ok := v.Feature(0xf1)
	require.True(t, ok)
	assert.Equal(t, []byte{0xf1, 0x02, 0x01}, data)

	reply = v.getReport(GetReportRequest{RequestID: 3, ReportID: 0xf1, ReportType: UhidReportTypeFeature})
	assert.Zero(t, reply.Error)
	assert.Equal(t, uint16(3), reply.Size)
	assert.Equal(t, []byte{0xf1, 0x02, 0x01}, reply.Data[:reply.Size])

	outputSet := SetReportRequest{RequestID: 4, ReportID: 0xf2, ReportType: UhidReportTypeOutput, Size: 1}
	assert.Equal(t, uint16(1), v.setReport(outputSet).Error)
}

func TestVirtualTrackpadInputReport(t *testing.T) {
	v := newVirtualTrackpad(zap.NewNop())
	reply := v.getReport(GetReportRequest{ReportID: trackpad.InputReportID, ReportType: UhidReportTypeInput})
	assert.Zero(t, reply.Error)
	assert.Equal(t, []byte{trackpad.InputReportID, 0, 0, 0}, reply.Data[:reply.Size])

	reply = v.getReport(GetReportRequest{ReportID: 0x10, ReportType: UhidReportTypeInput})
	assert.Equal(t, uint16(1), reply.Error)
}

func TestParseOutput(t *testing.T) {
	payload := trackpad.HapticButtonDown.Payload()

	req := OutputRequest{Size: uint16(len(payload)), RType: UhidReportTypeOutput}
	copy(req.Data[:], payload)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, req))
	assert.Equal(t, payload, parseOutput(buf.Bytes()))

	assert.Equal(t, payload, parseOutput(payload))
}
