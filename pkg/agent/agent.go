package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-trackpad/internal/configsvc"
	"github.com/neuroplastio/neio-trackpad/internal/hidsvc"
	"github.com/neuroplastio/neio-trackpad/internal/hidsvc/linux"
	"github.com/neuroplastio/neio-trackpad/internal/uinput"
	"github.com/neuroplastio/neio-trackpad/internal/wsstream"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

type Agent struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	configSvc *configsvc.Service
	hidSvc    *hidsvc.Service
	stream    *wsstream.Server
}

type agentParams struct {
	dig.In

	Config    Config
	Logger    *zap.Logger
	DB        *badger.DB
	ConfigSvc *configsvc.Service
	HID       *hidsvc.Service
	Stream    *wsstream.Server
}

// NewLogger builds the console logger shared by the agent and the CLI.
func NewLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func openDB(config Config, logger *zap.Logger) (*badger.DB, error) {
	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return db, nil
}

func newConfigService(logger *zap.Logger) *configsvc.Service {
	return configsvc.New(logger.Named("config"))
}

func newLinuxBackend(logger *zap.Logger) *linux.Backend {
	return linux.NewBackend(logger.Named("hid.linux"))
}

func newEmitterFactory(config Config, logger *zap.Logger) hidsvc.EmitterFactory {
	if !config.Uinput {
		return nil
	}
	path := config.UinputPath
	if path == "" {
		path = uinput.DefaultPath
	}
	log := logger.Named("uinput")
	return func(dev hidsvc.HidInputDevice, cfg hidsvc.Config) (hidsvc.Emitter, error) {
		return uinput.Create(log.With(zap.Stringer("addr", dev.Address)), path, cfg.VirtualDeviceName)
	}
}

func newHIDService(config Config, db *badger.DB, logger *zap.Logger, configSvc *configsvc.Service, backend *linux.Backend, emitters hidsvc.EmitterFactory) *hidsvc.Service {
	opts := []hidsvc.Option{
		hidsvc.WithBackend("linux", backend),
		hidsvc.WithConfigPath(configSvc, config.TrackpadConfig),
	}
	if emitters != nil {
		opts = append(opts, hidsvc.WithEmitterFactory(emitters))
	}
	return hidsvc.New(db, logger.Named("hid"), time.Now, opts...)
}

func newStreamServer(config Config, logger *zap.Logger, hid *hidsvc.Service) *wsstream.Server {
	return wsstream.NewServer(logger.Named("ws"), config.WSListen, hid)
}

func NewAgent(config Config) (*Agent, error) {
	c := dig.New()
	providers := []any{
		func() Config { return config },
		NewLogger,
		openDB,
		newConfigService,
		newLinuxBackend,
		newEmitterFactory,
		newHIDService,
		newStreamServer,
	}
	for _, p := range providers {
		err := c.Provide(p)
		if err != nil {
			return nil, fmt.Errorf("failed to provide agent component: %w", err)
		}
	}

	var a *Agent
	err := c.Invoke(func(p agentParams) {
		a = &Agent{
			config:    p.Config,
			log:       p.Logger,
			db:        p.DB,
			configSvc: p.ConfigSvc,
			hidSvc:    p.HID,
			stream:    p.Stream,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build agent: %w", dig.RootCause(err))
	}
	return a, nil
}

func (a *Agent) Close() error {
	err := a.db.Close()
	if err != nil {
		err = fmt.Errorf("failed to close badger db: %w", err)
	}
	_ = a.log.Sync()
	return err
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

const gcInterval = 10 * time.Minute

// runGC reclaims badger value log space while the agent is running.
func (a *Agent) runGC(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := a.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				a.log.Warn("badger value log GC failed", zap.Error(err))
			}
		}
	}
}

// Run starts the agent and blocks until the context is cancelled.
// Agent startup will fail if the configuration is not valid.
// In case configuration becomes invalid after the startup, it will remain running with the last valid configuration.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.hidSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.runGC(groupCtx)
	})
	if a.config.WSListen != "" {
		group.Go(func() error {
			return a.stream.Start(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

func (a *Agent) HID() *hidsvc.Service {
	return a.hidSvc
}

func (a *Agent) Logger() *zap.Logger {
	return a.log
}
