package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moneymapper/authcore/internal/app"
	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagJSON bool

	core *app.App

	// openApp is swapped in tests to wire against an in-memory database.
	openApp = app.New
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Operator tool for the MoneyMapper account-security core",
	Long: `authctl talks to the same database and Redis as the auth server and
runs the operator tasks that have no HTTP surface.

Examples:
  authctl jobs run revocation_sweep      Run one maintenance job now
  authctl sessions revoke alice          Sign a user out everywhere
  authctl audit history alice            Show recent security events
  authctl ratelimit clear login alice    Lift a login lockout`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetOutput(os.Stderr)

		var err error
		core, err = openApp(cmd.Context(), config.Load())
		if err != nil {
			return fmt.Errorf("starting core: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeCore()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
}

func closeCore() error {
	if core == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := core.Close(ctx)
	core = nil
	return err
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		// PostRun is skipped when a command fails.
		_ = closeCore()
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
