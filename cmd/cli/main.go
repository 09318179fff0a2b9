package main

import (
	"log"
	"time"

	"github.com/absmach/fledge"
	"github.com/absmach/fledge/cli"
	"github.com/absmach/fledge/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	defTimeout    = 10 * time.Second
	defConfigFile = "config.toml"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fledge-cli",
		Short: "Fledge CLI",
		Long:  `Fledge CLI inspects and controls a running federated learning client.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("client-url") {
				if cfg, err := fledge.LoadConfig(defConfigFile); err == nil && cfg.Client.ClientURL != "" {
					cli.DefClientURL = cfg.Client.ClientURL
				}
			}
			s := sdk.NewSDK(sdk.Config{
				ClientURL:       cli.DefClientURL,
				TLSVerification: cli.DefTLSVerification,
				Timeout:         defTimeout,
			})
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(
		&cli.DefClientURL,
		"client-url",
		"u",
		cli.DefClientURL,
		"Client API URL",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&cli.DefTLSVerification,
		"tls-verification",
		"v",
		cli.DefTLSVerification,
		"TLS Verification",
	)

	rootCmd.AddCommand(cli.NewRoundsCmd())
	rootCmd.AddCommand(cli.NewStatusCmd())
	rootCmd.AddCommand(cli.NewStopCmd())
	rootCmd.AddCommand(cli.NewConfigureCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
