package hidsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceFixture struct {
	svc      *Service
	backend  *fakeBackend
	pub      BackendPublisher
	ctx      context.Context
	emitters chan *fakeEmitter
}

func startService(t *testing.T) *serviceFixture {
	t.Helper()
	backend := newFakeBackend()
	emitters := make(chan *fakeEmitter, 4)
	var mu sync.Mutex
	clock := testTime
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	svc := New(openTestDB(t), zap.NewNop(), now,
		WithBackend("test", backend),
		WithBackoffTimeout(10*time.Millisecond),
		WithEmitterFactory(func(dev HidInputDevice, cfg Config) (Emitter, error) {
			e := &fakeEmitter{}
			emitters <- e
			return e, nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	var pub BackendPublisher
	select {
	case pub = <-backend.started:
	case <-time.After(time.Second):
		t.Fatal("backend not started")
	}
	<-svc.Ready()
	return &serviceFixture{
		svc:      svc,
		backend:  backend,
		pub:      pub,
		ctx:      ctx,
		emitters: emitters,
	}
}

var (
	trackpadDevice = BackendDevice{
		ID:        "004c:0265:-1",
		Name:      "Magic Trackpad",
		VendorID:  trackpad.VendorApple,
		ProductID: trackpad.ProductMagicTrackpad2,
	}
	keyboardDevice = BackendDevice{
		ID:        "046d:c31c:0",
		Name:      "Keyboard",
		VendorID:  0x046d,
		ProductID: 0xc31c,
	}
	trackpadAddr = Address{Backend: "test", ID: trackpadDevice.ID}
	keyboardAddr = Address{Backend: "test", ID: keyboardDevice.ID}
)

func (f *serviceFixture) connect(devs ...BackendDevice) {
	f.pub(f.ctx, BackendEvent{InputsChanged: &BackendEventInputsChanged{Connected: devs}})
}

func (f *serviceFixture) disconnect(ids ...string) {
	f.pub(f.ctx, BackendEvent{InputsChanged: &BackendEventInputsChanged{Disconnected: ids}})
}

func TestServiceRunsSessionForMatchingDevices(t *testing.T) {
	f := startService(t)
	dev := f.backend.add(trackpadDevice.ID)
	f.backend.add(keyboardDevice.ID)

	frames := f.svc.SubscribeFrames(f.ctx, trackpadAddr)
	f.connect(trackpadDevice, keyboardDevice)

	require.Eventually(t, func() bool {
		return len(f.svc.Sessions()) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, f.svc.IsInputConnected(keyboardAddr))
	sessions := f.svc.Sessions()
	assert.Equal(t, trackpadAddr, sessions[0].Address)
	assert.Equal(t, "Magic Trackpad", sessions[0].Name)

	dev.reports <- report(3, 100)
	select {
	case msg := <-frames:
		assert.Equal(t, trackpadAddr, msg.Key)
		assert.Equal(t, trackpad.Pressed, msg.Message.Result.State)
		assert.Equal(t, 1, msg.Message.Result.Active)
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}

	var emitter *fakeEmitter
	select {
	case emitter = <-f.emitters:
	default:
		t.Fatal("emitter not created")
	}
	require.Eventually(t, func() bool {
		return len(emitter.Results()) == 1
	}, time.Second, time.Millisecond)

	f.disconnect(trackpadDevice.ID)
	require.Eventually(t, func() bool {
		return len(f.svc.Sessions()) == 0
	}, time.Second, time.Millisecond)
	assert.False(t, f.svc.IsInputConnected(trackpadAddr))
	assert.True(t, dev.released.Load())
	assert.True(t, dev.isClosed())
	assert.True(t, emitter.closed.Load())
}

func TestServiceRegistry(t *testing.T) {
	f := startService(t)
	f.backend.add(trackpadDevice.ID)

	f.connect(keyboardDevice)
	require.Eventually(t, func() bool {
		return f.svc.IsInputConnected(keyboardAddr)
	}, time.Second, time.Millisecond)
	f.disconnect(keyboardDevice.ID)
	f.connect(keyboardDevice)
	require.Eventually(t, func() bool {
		dev, err := f.svc.GetInputDevice(keyboardAddr)
		return err == nil && dev.Connections == 2
	}, time.Second, time.Millisecond)

	dev, err := f.svc.GetInputDevice(keyboardAddr)
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", dev.Name)
	assert.True(t, dev.LastSeenAt.After(dev.FirstSeenAt))
	assert.Equal(t, keyboardDevice, dev.BackendDevice)

	devices, err := f.svc.ListInputDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	_, err = f.svc.GetInputDevice(Address{Backend: "test", ID: "missing"})
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = f.svc.OpenInputDevice(Address{Backend: "nope", ID: "x"})
	assert.ErrorIs(t, err, ErrBackendNotFound)
}

func TestServiceUpdateConfig(t *testing.T) {
	f := startService(t)
	dev := f.backend.add(trackpadDevice.ID)
	f.connect(trackpadDevice)
	require.Eventually(t, func() bool {
		return len(f.svc.Sessions()) == 1
	}, time.Second, time.Millisecond)

	invalid := DefaultConfig()
	invalid.ClickThreshold = 200
	assert.ErrorIs(t, f.svc.UpdateConfig(invalid), ErrInvalidConfig)
	assert.Equal(t, DefaultConfig(), f.svc.Config())

	cfg := DefaultConfig()
	cfg.ClickThreshold = 100
	cfg.ForceThreshold = 200
	require.NoError(t, f.svc.UpdateConfig(cfg))
	assert.Equal(t, cfg, f.svc.Config())

	// 90 is a click with the defaults but not with the new thresholds
	frames := f.svc.SubscribeFrames(f.ctx)
	dev.reports <- report(1, 90)
	select {
	case msg := <-frames:
		assert.Equal(t, trackpad.Idle, msg.Message.Result.State)
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
}
