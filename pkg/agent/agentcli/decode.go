package agentcli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/neuroplastio/neio-trackpad/internal/trackpad"
	"github.com/spf13/cobra"
)

type decodedFrame struct {
	Index  int             `json:"index" yaml:"index"`
	Result trackpad.Result `json:"result" yaml:"result"`
}

func NewDecode() *cobra.Command {
	var (
		file       string
		format     string
		thresholds = trackpad.DefaultThresholds()
	)
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode captured reports",
		Long:  `Runs captured input reports through a fresh session and prints what each frame produced. Reports are read as hex, one per line.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := thresholds.Validate()
			if err != nil {
				return err
			}
			in, err := openInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()
			frames, err := readFrames(in)
			if err != nil {
				return err
			}

			session := trackpad.NewSession(thresholds)
			decoded := make([]decodedFrame, 0, len(frames))
			for i, frame := range frames {
				decoded = append(decoded, decodedFrame{Index: i, Result: session.Process(frame)})
			}
			return writeDecoded(cmd.OutOrStdout(), format, decoded)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "capture file, stdin when empty")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().Uint8Var(&thresholds.Click, "click-threshold", thresholds.Click, "pressure a click must exceed")
	cmd.Flags().Uint8Var(&thresholds.Force, "force-threshold", thresholds.Force, "pressure of a force click")
	return cmd
}

func writeDecoded(out io.Writer, format string, decoded []decodedFrame) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		for _, d := range decoded {
			err := enc.Encode(d)
			if err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		data, err := yaml.Marshal(decoded)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = out.Write(data)
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}
