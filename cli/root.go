// Package cli holds the livelink command tree.
package cli

import (
	"github.com/slighter12/maya-livelink-go/config"
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "livelink",
		Short: "Stream scene subjects to Live Link consumers",
		Long: `livelink serves scene subjects (props, skeletons, cameras and lights)
to Live Link consumers over SSE or WebSocket, converting every transform
into the consumer's coordinate system.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to livelink.json (default: $LIVELINK_CONFIG_PATH, ./config/livelink.json or ~/.maya-livelink/config/livelink.json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInitConfigCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))

	return cmd
}

func (o *RootOptions) resolveConfigPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	return config.ResolveConfigPath()
}
