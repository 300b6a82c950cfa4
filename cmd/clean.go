package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/hlsget/internal/output"
	"github.com/tanq16/hlsget/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up leftover segment directories and partial files (stop the daemon first)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := globalConfig.OutputDir
			if len(args) > 0 {
				target = args[0]
			}
			if err := utils.Clean(target); err != nil {
				return fmt.Errorf("error cleaning up temporary files: %w", err)
			}
			if globalConfig.ScratchDir != "" {
				if err := utils.CleanScratch(globalConfig.ScratchDir); err != nil {
					return fmt.Errorf("error cleaning up scratch dir: %w", err)
				}
			}
			output.PrintSuccess("Temporary files cleaned up")
			return nil
		},
	}
}
