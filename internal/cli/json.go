package cli

import (
	"github.com/moneymapper/authcore/internal/cli/output"
	"github.com/spf13/cobra"
)

func writeJSON(cmd *cobra.Command, v interface{}) error {
	return output.JSON(cmd.OutOrStdout(), v)
}
