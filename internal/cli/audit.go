package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/moneymapper/authcore/internal/cli/output"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/spf13/cobra"
)

var (
	flagLimit int
	flagSince time.Duration
	flagIP    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the security audit trail",
}

var auditHistoryCmd = &cobra.Command{
	Use:   "history <username>",
	Short: "Show a user's most recent security events",
	Long: `Show a user's security events, newest first and capped by --limit.
With --since every event inside the window is listed, oldest first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			events []models.SecurityAuditEvent
			err    error
		)
		if flagSince > 0 {
			events, err = core.Audit.RecentEvents(cmd.Context(), args[0], time.Now().Add(-flagSince))
		} else {
			events, err = core.Audit.RecentHistory(cmd.Context(), args[0], flagLimit)
		}
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		if flagJSON {
			return writeJSON(cmd, events)
		}
		output.AuditTable(cmd.OutOrStdout(), events, time.Now())
		return nil
	},
}

type suspicionReport struct {
	Username     string `json:"username"`
	IPAddress    string `json:"ipAddress"`
	Suspicious   bool   `json:"suspicious"`
	FailedLogins int64  `json:"failedLogins"`
	Lookback     string `json:"lookback"`
}

var auditCheckCmd = &cobra.Command{
	Use:   "check <username>",
	Short: "Run the login anomaly check for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		lookback := core.Config.Audit.Lookback

		suspicious, err := core.Audit.IsSuspicious(cmd.Context(), username, flagIP)
		if err != nil {
			return fmt.Errorf("anomaly check: %w", err)
		}
		failed, err := core.Audit.FailedLoginCount(cmd.Context(), username, lookback)
		if err != nil {
			return fmt.Errorf("counting failures: %w", err)
		}

		report := suspicionReport{
			Username:     username,
			IPAddress:    flagIP,
			Suspicious:   suspicious,
			FailedLogins: failed,
			Lookback:     lookback.String(),
		}
		if flagJSON {
			return writeJSON(cmd, report)
		}
		output.KeyValues(cmd.OutOrStdout(), [][2]string{
			{"Username", report.Username},
			{"Suspicious", strconv.FormatBool(report.Suspicious)},
			{"Failed logins", strconv.FormatInt(report.FailedLogins, 10)},
			{"Lookback", report.Lookback},
		})
		return nil
	},
}

func init() {
	auditHistoryCmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of events to show (max 500)")
	auditHistoryCmd.Flags().DurationVar(&flagSince, "since", 0, "List every event in this window instead, e.g. 24h")
	auditCheckCmd.Flags().StringVar(&flagIP, "ip", "", "Address of the sign-in being checked")
	auditCmd.AddCommand(auditHistoryCmd, auditCheckCmd)
	rootCmd.AddCommand(auditCmd)
}
