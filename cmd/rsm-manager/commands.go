package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rsm-agent/internal/catalog"
	"rsm-agent/internal/config"
	"rsm-agent/internal/ipc"
	"rsm-agent/internal/protocol"
)

// withClient connects for the duration of one command. The service not
// running is an ordinary condition, reported plainly rather than as a dial
// stack trace.
func withClient(fn func(ctx context.Context, c *ipc.Client) error) error {
	c := ipc.NewClient()
	if !c.Connect(ipc.DefaultConnectTimeout) {
		return errors.New("the RSM Agent service is not running")
	}
	defer c.Disconnect()
	return fn(context.Background(), c)
}

func init() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(appsCmd())
	rootCmd.AddCommand(launchCmd())
	rootCmd.AddCommand(setListenerCmd())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *ipc.Client) error {
				resp, err := ipc.Call[*protocol.ServiceStatusResponse](ctx, c, &protocol.ServiceStatusRequest{}, ipc.DefaultRequestTimeout)
				if err != nil {
					return err
				}
				fmt.Printf("running:   %v\n", resp.Running)
				fmt.Printf("version:   %s\n", resp.Version)
				fmt.Printf("started:   %s\n", resp.StartedAt.Format(time.RFC3339))
				fmt.Printf("listener:  %s\n", resp.ListenerState)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show host statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *ipc.Client) error {
				resp, err := ipc.Call[*protocol.GetStatsResponse](ctx, c, &protocol.GetStatsRequest{}, ipc.DefaultRequestTimeout)
				if err != nil {
					return err
				}
				fmt.Printf("hostname:  %s\n", resp.Hostname)
				fmt.Printf("uptime:    %s\n", (time.Duration(resp.UptimeSec) * time.Second).String())
				fmt.Printf("addresses: %s\n", strings.Join(resp.Addresses, ", "))
				fmt.Printf("version:   %s\n", resp.Version)
				return nil
			})
		},
	}
}

func appsCmd() *cobra.Command {
	apps := &cobra.Command{
		Use:   "apps",
		Short: "Manage the app catalog",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *ipc.Client) error {
				resp, err := ipc.Call[*protocol.GetAppsResponse](ctx, c, &protocol.GetAppsRequest{}, ipc.DefaultRequestTimeout)
				if err != nil {
					return err
				}
				if len(resp.Apps) == 0 {
					fmt.Println("catalog is empty")
					return nil
				}
				for _, app := range resp.Apps {
					fmt.Printf("%-8s %-20s %s %s\n", app.Slot, app.Name, app.Path, strings.Join(app.Args, " "))
				}
				return nil
			})
		},
	}

	var app catalog.App
	save := &cobra.Command{
		Use:   "save",
		Short: "Create or replace a catalog entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *ipc.Client) error {
				resp, err := ipc.Call[*protocol.SaveAppResponse](ctx, c, &protocol.SaveAppRequest{App: app}, ipc.DefaultRequestTimeout)
				if err != nil {
					return err
				}
				if !resp.Saved {
					return errors.New("the service did not save the app")
				}
				fmt.Printf("saved %s\n", app.Slot)
				return nil
			})
		},
	}
	save.Flags().StringVar(&app.Slot, "slot", "", "catalog slot (required)")
	save.Flags().StringVar(&app.Name, "name", "", "display name")
	save.Flags().StringVar(&app.Path, "path", "", "executable path (required)")
	save.Flags().StringSliceVar(&app.Args, "args", nil, "launch arguments")
	_ = save.MarkFlagRequired("slot")
	_ = save.MarkFlagRequired("path")

	apps.AddCommand(list, save)
	return apps
}

func launchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch <slot>",
		Short: "Launch a catalog app on the service host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *ipc.Client) error {
				resp, err := ipc.Call[*protocol.LaunchAppResponse](ctx, c, &protocol.LaunchAppRequest{Slot: args[0]}, ipc.DefaultRequestTimeout)
				if err != nil {
					return err
				}
				if !resp.Launched {
					return fmt.Errorf("the service did not launch %s", args[0])
				}
				fmt.Printf("launched %s\n", args[0])
				return nil
			})
		},
	}
}

func setListenerCmd() *cobra.Command {
	var settings config.ListenerSettings
	cmd := &cobra.Command{
		Use:   "set-listener",
		Short: "Replace the remote listener configuration",
		Long: `Replaces the listener settings; the service rebinds without a restart.
All settings are replaced at once, so pass every flag that should stay set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *ipc.Client) error {
				_, err := ipc.Call[*protocol.SaveRsmConfigResponse](ctx, c, &protocol.SaveRsmConfigRequest{Settings: settings}, ipc.DefaultRequestTimeout)
				if err != nil {
					return err
				}
				fmt.Println("listener configuration saved")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&settings.BindAddress, "bind", "0.0.0.0", "bind address")
	cmd.Flags().IntVar(&settings.Port, "port", 0, "listener port (required)")
	cmd.Flags().StringVar(&settings.Secret, "secret", "", "shared secret; empty disables authentication")
	cmd.Flags().BoolVar(&settings.UseTLS, "tls", false, "serve TLS")
	cmd.Flags().StringVar(&settings.CertificatePath, "cert", "", "certificate path (.pfx/.p12 or PEM bundle)")
	cmd.Flags().StringVar(&settings.CertificatePassword, "cert-password", "", "certificate password")
	cmd.Flags().StringVar(&settings.WolMAC, "wol-mac", "", "wake-on-LAN target MAC")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}
