package hidsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-trackpad/internal/configsvc"
	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/neuroplastio/neio-trackpad/pkg/bus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Service tracks HID devices reported by its backends, keeps a registry of
// every device it has seen and runs a trackpad session for each connected
// device matching the config.
type Service struct {
	log        *zap.Logger
	db         *badger.DB
	options    serviceOptions
	now        func() time.Time
	ready      chan struct{}
	backendBus *BackendBus
	frameBus   *FrameBus

	config          atomic.Pointer[Config]
	connectedInputs *xsync.MapOf[Address, HidInputDevice]
	sessions        *xsync.MapOf[Address, *sessionRunner]
}

type serviceOptions struct {
	backends       map[string]Backend
	backoffTimeout time.Duration
	emitterFactory EmitterFactory
	config         Config
	configSvc      *configsvc.Service
	configPath     string
}

type Option func(*serviceOptions)

func WithBackend(name string, backend Backend) Option {
	return func(o *serviceOptions) {
		o.backends[name] = backend
	}
}

func WithBackoffTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.backoffTimeout = d
	}
}

// WithEmitterFactory makes every session forward its frames to an emitter.
func WithEmitterFactory(f EmitterFactory) Option {
	return func(o *serviceOptions) {
		o.emitterFactory = f
	}
}

// WithConfig sets a static config. It is overridden by WithConfigPath.
func WithConfig(cfg Config) Option {
	return func(o *serviceOptions) {
		o.config = cfg
	}
}

// WithConfigPath loads the config from path and follows its changes. The file
// is created with defaults when missing.
func WithConfigPath(svc *configsvc.Service, path string) Option {
	return func(o *serviceOptions) {
		o.configSvc = svc
		o.configPath = path
	}
}

func New(db *badger.DB, log *zap.Logger, now func() time.Time, opts ...Option) *Service {
	options := serviceOptions{
		backends:       make(map[string]Backend),
		backoffTimeout: 5 * time.Second,
		config:         DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	s := &Service{
		db:         db,
		log:        log,
		options:    options,
		now:        now,
		ready:      make(chan struct{}),
		backendBus: bus.NewBus[string, BackendEvent](log.Named("backends")),
		frameBus:   bus.NewBus[Address, FrameEvent](log.Named("frames")),

		connectedInputs: xsync.NewMapOf[Address, HidInputDevice](),
		sessions:        xsync.NewMapOf[Address, *sessionRunner](),
	}
	cfg := options.config
	s.config.Store(&cfg)
	return s
}

func (s *Service) Start(ctx context.Context) error {
	err := s.loadConfig(ctx)
	if err != nil {
		return err
	}

	err = s.backendBus.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start backend bus: %w", err)
	}
	err = s.frameBus.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start frame bus: %w", err)
	}

	consumed := s.consumeEvents(ctx)

	for backendID := range s.options.backends {
		go s.runBackend(ctx, backendID)
	}
	for _, backend := range s.options.backends {
		select {
		case <-ctx.Done():
			<-consumed
			return nil
		case <-backend.Ready():
		}
	}
	close(s.ready)
	s.log.Info("Service started")
	<-ctx.Done()
	<-consumed
	s.stopSessions()
	return nil
}

func (s *Service) loadConfig(ctx context.Context) error {
	if s.options.configSvc == nil {
		return s.UpdateConfig(*s.config.Load())
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.options.configSvc.Ready():
	}
	cfg, err := configsvc.RegisterWriteable(s.options.configSvc, s.options.configPath, DefaultConfig(), s.onConfigChange)
	if err != nil {
		return fmt.Errorf("failed to register trackpad config: %w", err)
	}
	return s.UpdateConfig(cfg)
}

func (s *Service) onConfigChange(cfg Config, err error) {
	if err != nil {
		s.log.Error("Failed to read config, keeping the previous one", zap.Error(err))
		return
	}
	err = s.UpdateConfig(cfg)
	if err != nil {
		s.log.Error("Config rejected, keeping the previous one", zap.Error(err))
	}
}

// UpdateConfig validates and applies cfg. Thresholds of running sessions
// change from their next frame on.
func (s *Service) UpdateConfig(cfg Config) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}
	s.config.Store(&cfg)
	s.sessions.Range(func(addr Address, r *sessionRunner) bool {
		r.session.SetThresholds(cfg.Thresholds())
		return true
	})
	s.log.Info("Config applied",
		zap.Uint8("clickThreshold", cfg.ClickThreshold),
		zap.Uint8("forceThreshold", cfg.ForceThreshold),
		zap.Int("devices", len(cfg.Devices)),
	)
	return nil
}

func (s *Service) Config() Config {
	return *s.config.Load()
}

func (s *Service) consumeEvents(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ch := s.backendBus.Subscribe(ctx)
	go func() {
		defer close(done)
		for msg := range ch {
			s.handleBackendEvent(ctx, msg.Key, msg.Message)
		}
	}()
	return done
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) handleBackendEvent(ctx context.Context, backendID string, event BackendEvent) {
	if event.InputsChanged != nil {
		s.log.Debug("devices changed", zap.String("backend", backendID))
		for _, id := range event.InputsChanged.Disconnected {
			s.onInputDisconnected(backendID, id)
		}
		for _, dev := range event.InputsChanged.Connected {
			s.onInputConnected(ctx, backendID, dev)
		}
	}
}

type HidInputDevice struct {
	Address       Address       `json:"address"`
	BackendDevice BackendDevice `json:"backendDevice"`
	Name          string        `json:"name"`
	Connections   int           `json:"connections"`
	FirstSeenAt   time.Time     `json:"firstSeenAt"`
	LastSeenAt    time.Time     `json:"lastSeenAt"`
}

func (s *Service) onInputDisconnected(backendID, id string) {
	addr := Address{Backend: backendID, ID: id}
	s.connectedInputs.Delete(addr)
	s.log.Debug("input disconnected", zap.Stringer("addr", addr))
	if r, ok := s.sessions.Load(addr); ok {
		r.stop()
		s.log.Info("Trackpad session stopped", zap.Stringer("addr", addr))
	}
}

func (s *Service) onInputConnected(ctx context.Context, backendID string, bdev BackendDevice) {
	dev, err := s.initializeInputDevice(backendID, bdev)
	if err != nil {
		s.log.Error("failed to initialize device", zap.Error(err))
		return
	}
	s.log.Debug("input connected", zap.Stringer("addr", dev.Address), zap.String("name", dev.Name), zap.Time("firstSeenAt", dev.FirstSeenAt))
	s.connectedInputs.Store(dev.Address, dev)

	cfg := s.Config()
	if !cfg.Match(bdev) {
		return
	}
	s.startSession(ctx, dev, cfg)
}

func (s *Service) startSession(ctx context.Context, dev HidInputDevice, cfg Config) {
	log := s.log.Named("session").With(zap.Stringer("addr", dev.Address))
	if _, ok := s.sessions.Load(dev.Address); ok {
		log.Warn("Session already running")
		return
	}
	handle, err := s.OpenInputDevice(dev.Address)
	if err != nil {
		log.Error("Failed to open input device", zap.Error(err))
		return
	}
	var emitter Emitter
	if s.options.emitterFactory != nil {
		emitter, err = s.options.emitterFactory(dev, cfg)
		if err != nil {
			log.Error("Failed to create emitter, frames will only be published", zap.Error(err))
			emitter = nil
		}
	}

	runner := newSessionRunner(log, dev, cfg, emitter, s.frameBus.CreatePublisher(dev.Address), s.now)
	runCtx, cancel := context.WithCancel(ctx)
	runner.cancel = cancel
	s.sessions.Store(dev.Address, runner)
	log.Info("Trackpad session started", zap.String("name", dev.Name))

	go func() {
		defer close(runner.done)
		defer cancel()
		err := runner.run(runCtx, handle)
		if err != nil {
			log.Error("Trackpad session failed", zap.Error(err))
		}
		if emitter != nil {
			err = emitter.Close()
			if err != nil {
				log.Error("Failed to close emitter", zap.Error(err))
			}
		}
		s.sessions.Compute(dev.Address, func(current *sessionRunner, loaded bool) (*sessionRunner, bool) {
			return current, !loaded || current == runner
		})
	}()
}

func (s *Service) stopSessions() {
	s.sessions.Range(func(addr Address, r *sessionRunner) bool {
		r.stop()
		return true
	})
}

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrBackendNotFound = errors.New("backend not found")
)

const inputDevicePrefix = "hid/inputs/"

func (s *Service) inputDeviceKey(address Address) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", inputDevicePrefix, address.Backend, address.ID))
}

func (s *Service) initializeInputDevice(backendID string, bdev BackendDevice) (HidInputDevice, error) {
	var dev HidInputDevice
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		addr := Address{Backend: backendID, ID: bdev.ID}
		key := s.inputDeviceKey(addr)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			dev = HidInputDevice{
				Name: bdev.Name,
			}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device: %w", err)
			}
		}
		dev.Address = addr
		dev.BackendDevice = bdev
		dev.Connections++
		if dev.FirstSeenAt.IsZero() {
			dev.FirstSeenAt = now
		}
		dev.LastSeenAt = now
		b, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("failed to marshal device: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return HidInputDevice{}, fmt.Errorf("failed to fetch device: %w", err)
	}
	return dev, nil
}

func (s *Service) runBackend(ctx context.Context, backendID string) {
	backend := s.options.backends[backendID]
	for {
		err := backend.Start(ctx, s.backendBus.CreatePublisher(backendID))
		if err != nil {
			s.log.Error("failed to start the backend", zap.String("backend", backendID), zap.Error(err))
		}
		t := time.NewTimer(s.options.backoffTimeout)
		// retry after backoff
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		case <-t.C:
		}
	}
}

// ListInputDevices returns every device recorded in the registry, connected
// or not.
func (s *Service) ListInputDevices() ([]HidInputDevice, error) {
	var devices []HidInputDevice
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte(inputDevicePrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			var dev HidInputDevice
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return err
			}
			devices = append(devices, dev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *Service) GetInputDevice(addr Address) (HidInputDevice, error) {
	var dev HidInputDevice
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.inputDeviceKey(addr))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, addr)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dev)
		})
	})
	if err != nil {
		return HidInputDevice{}, fmt.Errorf("failed to get device: %w", err)
	}
	return dev, nil
}

func (s *Service) OpenInputDevice(addr Address) (InputDevice, error) {
	backend, ok := s.options.backends[addr.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, addr.Backend)
	}
	dev, err := backend.OpenInputDevice(addr.ID)
	if err != nil {
		return nil, fmt.Errorf("error opening input device: %w", err)
	}
	return dev, nil
}

func (s *Service) IsInputConnected(addr Address) bool {
	_, ok := s.connectedInputs.Load(addr)
	return ok
}

// SubscribeFrames streams the frames of the given devices, or of every device
// when none is given, until ctx is done.
func (s *Service) SubscribeFrames(ctx context.Context, addrs ...Address) <-chan FrameMessage {
	return s.frameBus.Subscribe(ctx, addrs...)
}

// DroppedFrames counts frame events lost to slow subscribers.
func (s *Service) DroppedFrames() uint64 {
	return s.frameBus.Dropped()
}

type SessionInfo struct {
	Address Address               `json:"address"`
	Name    string                `json:"name"`
	Stats   trackpad.SessionStats `json:"stats"`
}

// Sessions returns the running sessions ordered by address.
func (s *Service) Sessions() []SessionInfo {
	var infos []SessionInfo
	s.sessions.Range(func(addr Address, r *sessionRunner) bool {
		infos = append(infos, SessionInfo{
			Address: addr,
			Name:    r.device.Name,
			Stats:   r.session.Stats(),
		})
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Address.String() < infos[j].Address.String()
	})
	return infos
}
