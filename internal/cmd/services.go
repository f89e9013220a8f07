package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/core"
	"github.com/keygate/keygate/internal/gateway"
	"github.com/keygate/keygate/internal/output"
)

var (
	servicesOutputFormat string
	serviceTimeout       time.Duration
	serviceHealthPath    string
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Manage downstream services",
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered services",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(servicesOutputFormat)
		if err != nil {
			return err
		}

		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		services, err := st.ListServices(cmd.Context())
		if err != nil {
			return err
		}

		rendered, err := output.FormatServices(format, services)
		if err != nil {
			return err
		}
		cmd.Println(rendered)
		return nil
	},
}

var servicesAddCmd = &cobra.Command{
	Use:   "add <name> <base-url>",
	Short: "Register a downstream service",
	Long: `Register a downstream service. The service is refused by the proxy until
its first successful health probe.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, baseURL := args[0], args[1]
		if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("base url must be absolute: %s", baseURL)
		}

		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		if _, err := st.LookupService(cmd.Context(), name); err == nil {
			return fmt.Errorf("service %q already exists", name)
		} else if !errors.Is(err, core.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		desc := &core.ServiceDescriptor{
			Name:            name,
			BaseURL:         baseURL,
			Timeout:         serviceTimeout,
			IsActive:        true,
			HealthCheckPath: serviceHealthPath,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := st.CreateService(cmd.Context(), desc); err != nil {
			return err
		}

		cmd.Printf("Registered service %q -> %s (timeout %s)\n", name, baseURL, serviceTimeout)
		return nil
	},
}

var servicesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a service registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		if err := st.DeleteService(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("no service named %q", args[0])
			}
			return err
		}

		cmd.Printf("Removed service %q\n", args[0])
		return nil
	},
}

var servicesCheckCmd = &cobra.Command{
	Use:   "check [name]",
	Short: "Probe service health",
	Long: `Probe downstream service health and persist the outcome. With no
argument every active service is probed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		prober := gateway.NewProber(st, nil, cfg.Gateway.ProbeTimeout, 0)

		if len(args) == 1 {
			svc, err := st.LookupService(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return fmt.Errorf("no service named %q", args[0])
				}
				return err
			}

			healthy, message := prober.Probe(cmd.Context(), svc)
			if err := st.SetHealth(cmd.Context(), svc.Name, healthy, time.Now().UTC()); err != nil {
				return err
			}
			cmd.Printf("%s: %s (%s)\n", svc.Name, healthLabel(healthy), message)
			return nil
		}

		results, err := prober.ProbeAll(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range results {
			cmd.Printf("%s: %s (%s)\n", r.Name, healthLabel(r.Healthy), r.Message)
		}
		return nil
	},
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesListCmd, servicesAddCmd, servicesRemoveCmd, servicesCheckCmd)

	servicesListCmd.Flags().StringVarP(&servicesOutputFormat, "output", "o", "table", "output format (table, json)")
	servicesAddCmd.Flags().DurationVar(&serviceTimeout, "timeout", 30*time.Second, "downstream request timeout")
	servicesAddCmd.Flags().StringVar(&serviceHealthPath, "health-path", "", "health check path (default /health)")
}
