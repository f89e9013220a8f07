package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/core"
	"github.com/keygate/keygate/internal/output"
)

var (
	keysOutputFormat string
	keyPerMinute     int
	keyPerHour       int
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(keysOutputFormat)
		if err != nil {
			return err
		}

		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		keys, err := st.ListKeys(cmd.Context())
		if err != nil {
			return err
		}

		rendered, err := output.FormatKeys(format, keys)
		if err != nil {
			return err
		}
		cmd.Println(rendered)
		return nil
	},
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new API key",
	Long: `Create a new API key. The full secret is printed exactly once; store it
safely, listings only show a preview.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		secret, err := core.GenerateKey()
		if err != nil {
			return err
		}

		perMinute := keyPerMinute
		if perMinute <= 0 {
			perMinute = cfg.Gateway.DefaultPerMinute
		}
		perHour := keyPerHour
		if perHour <= 0 {
			perHour = cfg.Gateway.DefaultPerHour
		}

		now := time.Now().UTC()
		cred := &core.Credential{
			ID:                uuid.NewString(),
			Name:              args[0],
			Key:               secret,
			IsActive:          true,
			RequestsPerMinute: perMinute,
			RequestsPerHour:   perHour,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := st.CreateKey(cmd.Context(), cred); err != nil {
			return err
		}

		cmd.Printf("Created API key %q\n", cred.Name)
		cmd.Printf("  ID:          %s\n", cred.ID)
		cmd.Printf("  Key:         %s\n", cred.Key)
		cmd.Printf("  Per minute:  %d\n", cred.RequestsPerMinute)
		cmd.Printf("  Per hour:    %d\n", cred.RequestsPerHour)
		cmd.Println("Store the key now; it will not be shown again.")
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		if err := st.DeleteKey(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("no API key with id %s", args[0])
			}
			return err
		}

		cmd.Printf("Deleted API key %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd, keysCreateCmd, keysDeleteCmd)

	keysListCmd.Flags().StringVarP(&keysOutputFormat, "output", "o", "table", "output format (table, json)")
	keysCreateCmd.Flags().IntVar(&keyPerMinute, "per-minute", 0, "requests per minute quota (default from config)")
	keysCreateCmd.Flags().IntVar(&keyPerHour, "per-hour", 0, "requests per hour quota (default from config)")
}
