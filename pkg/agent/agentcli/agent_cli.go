package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/neuroplastio/neio-trackpad/pkg/agent"
	"github.com/spf13/cobra"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "neio-trackpad"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

// agentProvider creates the agent on first use, so commands that work on
// captured frames run without a data directory.
type agentProvider func() (*agent.Agent, error)

func NewRootCmd(configDir string) *cobra.Command {
	cfg := agent.Config{
		DataDir:        filepath.Join(configDir, "data"),
		TrackpadConfig: filepath.Join(configDir, "trackpad.yml"),
	}
	agentCmd := &cobra.Command{
		Use:          "neio-trackpad",
		Short:        "Magic Trackpad 2 userspace driver",
		Long:         `neio-trackpad reads Magic Trackpad 2 reports over hidraw, tracks contacts, drives clicks and haptics, and mirrors the result onto a virtual touchpad.`,
		SilenceUsage: true,
	}
	var a *agent.Agent
	provider := func() (*agent.Agent, error) {
		if a != nil {
			return a, nil
		}
		var err error
		a, err = agent.NewAgent(cfg)
		return a, err
	}
	agentCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	agentCmd.PersistentFlags().StringVar(&cfg.TrackpadConfig, "config", cfg.TrackpadConfig, "trackpad config file")
	agentCmd.PersistentFlags().StringVar(&cfg.WSListen, "ws-listen", cfg.WSListen, "frame stream listen address, empty to disable")
	agentCmd.PersistentFlags().BoolVar(&cfg.Uinput, "uinput", true, "mirror sessions onto a virtual touchpad")
	agentCmd.PersistentFlags().StringVar(&cfg.UinputPath, "uinput-path", "", "uinput device node")
	agentCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if a == nil {
			return nil
		}
		return a.Close()
	}
	agentCmd.AddCommand(NewRun(provider))
	agentCmd.AddCommand(NewListDevices(provider))
	agentCmd.AddCommand(NewDecode())
	agentCmd.AddCommand(NewReplay())
	return agentCmd
}

func NewRun(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trackpad driver",
		Long:  `Runs the driver until interrupted. Matching trackpads get a session as soon as they connect.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := agent()
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func NewListDevices(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List HID devices",
		Long:  `List every HID device the driver has seen, with first and last seen times.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := agent()
			if err != nil {
				return err
			}
			devices, err := a.HID().ListInputDevices()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}
