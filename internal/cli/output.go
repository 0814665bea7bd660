package cli

import (
	"github.com/dl-alexandre/gdrv-gateway/internal/config"
	"github.com/spf13/cobra"
)

// newOutput returns a formatter bound to the command's writers
func newOutput(cmd *cobra.Command) *config.OutputFormatter {
	format := config.OutputFormatTable
	if jsonOutput {
		format = config.OutputFormatJSON
	}
	return config.NewOutputFormatter(config.OutputOptions{
		Format:      format,
		Quiet:       globalFlags.Quiet,
		Writer:      cmd.OutOrStdout(),
		ErrorWriter: cmd.ErrOrStderr(),
	})
}
