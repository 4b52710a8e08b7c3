package agentcli

import (
	"context"
	"fmt"
	"time"

	"github.com/neuroplastio/neio-trackpad/internal/hidsvc/linux"
	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/neuroplastio/neio-trackpad/pkg/agent"
	"github.com/neuroplastio/neio-trackpad/pkg/bits"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewReplay() *cobra.Command {
	var (
		file     string
		interval time.Duration
		linger   time.Duration
		name     string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a capture through a virtual trackpad",
		Long: `Creates a uhid device that looks like a Magic Trackpad 2 and injects the captured reports into it,
so a running driver picks them up like a real device. Haptic reports sent back by the driver are logged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			frames, err := readFrames(in)
			in.Close()
			if err != nil {
				return err
			}

			logger, err := agent.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()
			log := logger.Named("replay")

			ctx := cmd.Context()
			dev, err := linux.OpenVirtualTrackpad(ctx, logger.Named("uhid"), name)
			if err != nil {
				return err
			}
			defer dev.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go logOutputs(ctx, log, dev)

			log.Info("Replaying frames", zap.Int("frames", len(frames)), zap.Duration("interval", interval))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for i, frame := range frames {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				err := dev.InjectFrame(frame)
				if err != nil {
					return fmt.Errorf("failed to inject frame %d: %w", i, err)
				}
			}
			log.Info("Replay finished")

			select {
			case <-ctx.Done():
			case <-time.After(linger):
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "capture file, stdin when empty")
	cmd.Flags().DurationVar(&interval, "interval", 11*time.Millisecond, "delay between frames")
	cmd.Flags().DurationVar(&linger, "linger", time.Second, "how long to keep the device after the last frame")
	cmd.Flags().StringVar(&name, "name", trackpad.DeviceName, "name of the virtual device")
	return cmd
}

func logOutputs(ctx context.Context, log *zap.Logger, dev *linux.VirtualTrackpad) {
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-dev.Outputs():
			if cmd, ok := trackpad.IdentifyHaptic(report); ok {
				log.Info("Haptic feedback", zap.Stringer("command", cmd))
				continue
			}
			log.Info("Output report", zap.String("data", bits.New(report, 0).Hex()))
		}
	}
}
