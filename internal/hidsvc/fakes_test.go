package hidsvc

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func report(id, pressure uint8) []byte {
	return []byte{trackpad.InputReportID, 0, 0, 0, 0, 0, 0, 0, 0x10, 0x08, 0x20, pressure, id}
}

func emptyReport() []byte {
	return []byte{trackpad.InputReportID, 0, 0, 0}
}

type fakeDevice struct {
	reports   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	readErr   error

	mu       sync.Mutex
	features [][]byte
	written  [][]byte

	acquired atomic.Bool
	released atomic.Bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		reports: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (d *fakeDevice) Read(buf []byte) (int, error) {
	select {
	case r, ok := <-d.reports:
		if !ok {
			if d.readErr != nil {
				return 0, d.readErr
			}
			return 0, io.EOF
		}
		return copy(buf, r), nil
	case <-d.closed:
		return 0, os.ErrClosed
	}
}

func (d *fakeDevice) Write(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, append([]byte{}, buf...))
	return len(buf), nil
}

func (d *fakeDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	return nil
}

func (d *fakeDevice) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *fakeDevice) Acquire() (func(), error) {
	d.acquired.Store(true)
	return func() {
		d.released.Store(true)
	}, nil
}

func (d *fakeDevice) SetFeatureReport(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.features = append(d.features, append([]byte{}, data...))
	return len(data), nil
}

func (d *fakeDevice) Written() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte{}, d.written...)
}

func (d *fakeDevice) Features() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte{}, d.features...)
}

type fakeEmitter struct {
	mu      sync.Mutex
	results []trackpad.Result
	closed  atomic.Bool
}

func (e *fakeEmitter) Emit(res trackpad.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, res)
	return nil
}

func (e *fakeEmitter) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *fakeEmitter) Results() []trackpad.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]trackpad.Result{}, e.results...)
}

type fakeBackend struct {
	ready   chan struct{}
	started chan BackendPublisher

	mu      sync.Mutex
	devices map[string]*fakeDevice
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ready:   make(chan struct{}),
		started: make(chan BackendPublisher, 1),
		devices: make(map[string]*fakeDevice),
	}
}

func (b *fakeBackend) Start(ctx context.Context, pub BackendPublisher) error {
	b.started <- pub
	close(b.ready)
	<-ctx.Done()
	return nil
}

func (b *fakeBackend) Ready() <-chan struct{} {
	return b.ready
}

func (b *fakeBackend) OpenInputDevice(id string) (InputDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev, ok := b.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return dev, nil
}

func (b *fakeBackend) add(id string) *fakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev := newFakeDevice()
	b.devices[id] = dev
	return dev
}

type nopBadgerLogger struct{}

func (nopBadgerLogger) Errorf(string, ...any)   {}
func (nopBadgerLogger) Warningf(string, ...any) {}
func (nopBadgerLogger) Infof(string, ...any)    {}
func (nopBadgerLogger) Debugf(string, ...any)   {}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nopBadgerLogger{}
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
