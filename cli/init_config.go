package cli

import (
	"fmt"
	"os"

	"github.com/slighter12/maya-livelink-go/config"
	"github.com/spf13/cobra"
)

// NewInitConfigCommand creates the init-config command.
func NewInitConfigCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rootOpts.resolveConfigPath()
			if err != nil {
				return err
			}

			if force {
				if err := config.SaveConfig(config.NewConfig(), path); err != nil {
					return err
				}
			} else {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
				}
				if err := config.EnsureDefaultConfig(path); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
