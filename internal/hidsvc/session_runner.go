package hidsvc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/neuroplastio/neio-trackpad/pkg/bits"
	"github.com/neuroplastio/neio-trackpad/pkg/bus"
	"go.uber.org/zap"
)

// readBufferSize fits the largest report of the device: header plus 16 records.
const readBufferSize = 256

type (
	FrameBus       = bus.Bus[Address, FrameEvent]
	FramePublisher = bus.Publisher[FrameEvent]
	FrameMessage   = bus.Message[Address, FrameEvent]
)

// FrameEvent is published for every report processed by a session.
type FrameEvent struct {
	Address Address         `json:"address" yaml:"address"`
	Seq     uint64          `json:"seq" yaml:"seq"`
	Time    time.Time       `json:"time" yaml:"time"`
	Result  trackpad.Result `json:"result" yaml:"result"`
}

// sessionRunner drives one connected trackpad: it owns the device handle,
// the trackpad session and the emitter for as long as the device stays
// connected.
type sessionRunner struct {
	log     *zap.Logger
	device  HidInputDevice
	config  Config
	session *trackpad.Session
	emitter Emitter
	publish FramePublisher
	now     func() time.Time
	seq     uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func newSessionRunner(log *zap.Logger, device HidInputDevice, config Config, emitter Emitter, publish FramePublisher, now func() time.Time) *sessionRunner {
	return &sessionRunner{
		log:     log,
		device:  device,
		config:  config,
		session: trackpad.NewSession(config.Thresholds()),
		emitter: emitter,
		publish: publish,
		now:     now,
		done:    make(chan struct{}),
	}
}

// run blocks until ctx is done or the device stops delivering reports. The
// device is released and closed before run returns.
func (r *sessionRunner) run(ctx context.Context, dev InputDevice) error {
	release, err := dev.Acquire()
	if err != nil {
		dev.Close()
		return fmt.Errorf("failed to acquire input device: %w", err)
	}
	r.log.Info("Input device acquired")

	if r.config.Initialize {
		r.initialize(dev)
	}

	readDone := make(chan error, 1)
	go func() {
		readDone <- r.readLoop(ctx, dev)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-readDone:
		readDone = nil
	}

	release()
	r.log.Info("Input device released")
	dev.Close()
	if readDone != nil {
		<-readDone
	}
	r.log.Info("Input device closed")
	return runErr
}

func (r *sessionRunner) initialize(dev InputDevice) {
	for _, report := range trackpad.InitSequence() {
		_, err := dev.SetFeatureReport(report)
		if err != nil {
			r.log.Warn("Failed to send init report", zap.String("report", bits.New(report, 0).Hex()), zap.Error(err))
		}
	}
}

func (r *sessionRunner) readLoop(ctx context.Context, dev InputDevice) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := dev.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from device: %w", err)
		}
		if n > 0 {
			r.handleReport(ctx, dev, buf[:n])
		}
	}
}

func (r *sessionRunner) handleReport(ctx context.Context, dev io.Writer, report []byte) {
	if id := r.config.InputReportID; id != 0 && report[0] != id {
		r.log.Debug("Skipping report", zap.Uint8("reportId", report[0]))
		return
	}
	res := r.session.Process(report)
	if r.emitter != nil {
		err := r.emitter.Emit(res)
		if err != nil {
			r.log.Error("Failed to emit frame", zap.Error(err))
		}
	}
	if r.config.Haptics && res.Haptic != trackpad.HapticNone {
		_, err := dev.Write(res.Haptic.Payload())
		if err != nil {
			r.log.Error("Failed to send haptic report", zap.Stringer("haptic", res.Haptic), zap.Error(err))
		}
	}
	r.seq++
	r.publish(ctx, FrameEvent{
		Address: r.device.Address,
		Seq:     r.seq,
		Time:    r.now(),
		Result:  res,
	})
}

func (r *sessionRunner) stop() {
	r.cancel()
	<-r.done
}
