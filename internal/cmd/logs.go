package cmd

import (
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/core"
	"github.com/keygate/keygate/internal/output"
)

var (
	logsOutputFormat string
	logsLimit        int
	logsOffset       int
	logsService      string
	logsStatusCode   int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recorded request logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(logsOutputFormat)
		if err != nil {
			return err
		}

		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		entries, total, err := st.ListAuditEntries(cmd.Context(), core.AuditFilter{
			Limit:       logsLimit,
			Offset:      logsOffset,
			ServiceName: logsService,
			StatusCode:  logsStatusCode,
		})
		if err != nil {
			return err
		}

		rendered, err := output.FormatAuditEntries(format, entries)
		if err != nil {
			return err
		}
		cmd.Println(rendered)
		if format == output.FormatTable {
			cmd.Printf("Showing %d of %d entries\n", len(entries), total)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate request statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}

		rendered, err := output.FormatJSONValue(stats)
		if err != nil {
			return err
		}
		cmd.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd, statsCmd)

	logsCmd.Flags().StringVarP(&logsOutputFormat, "output", "o", "table", "output format (table, json)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "maximum entries to show")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "entries to skip")
	logsCmd.Flags().StringVar(&logsService, "service", "", "filter by service name")
	logsCmd.Flags().IntVar(&logsStatusCode, "status", 0, "filter by response status code")
}
