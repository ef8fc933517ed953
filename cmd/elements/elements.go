// Package elements inspects the element registry and the pipelines built
// from it
package elements

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/streambridge/internal/conf"
	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/pipeline"
)

// Command creates the elements command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "elements",
		Short: "List registered pipeline element factories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range engine.Factories() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.AddCommand(describeCommand(settings))
	return cmd
}

func describeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [destination]",
		Short: "Print the pipeline a session would build",
		Long:  "Print the element chain for the configured session parameters and destination without building it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings.Session
			if len(args) == 1 {
				s.Destination = args[0]
			}
			desc, err := pipeline.Describe(pipeline.Configuration{
				SampleRate:       s.SampleRate,
				Channels:         s.Channels,
				Bitrate:          s.Bitrate,
				Destination:      s.Destination,
				FrameDuration:    s.FrameDuration,
				QueueDuration:    s.QueueDuration,
				SessionID:        "describe",
				FileNameTemplate: s.FileNameTemplate,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), desc.String())
			return err
		},
	}
}
