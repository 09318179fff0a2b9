package cli

import (
	"errors"
	"os"
	"strconv"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fledge"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	configPath = "config.toml"
	namegen    = namegenerator.NewGenerator()

	errEmptyValue = errors.New("value must not be empty")
	errEpochs     = errors.New("epochs must be a positive integer")
)

func defaultConfig() fledge.Config {
	return fledge.Config{
		Client: fledge.ClientConfig{
			ClientID:  namegen.Generate(),
			Server:    "127.0.0.1:9092",
			ClientURL: DefClientURL,
			Epochs:    5,
		},
		MQTT: fledge.MQTTConfig{
			Address: "tcp://localhost:1883",
		},
	}
}

func notEmpty(s string) error {
	if s == "" {
		return errEmptyValue
	}

	return nil
}

func positive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errEpochs
	}

	return nil
}

func configForm(cfg *fledge.Config, epochs *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Client name").
				Value(&cfg.Client.ClientID).
				Validate(notEmpty),
			huh.NewInput().
				Title("Server address").
				Description("host:port of the federated server").
				Value(&cfg.Client.Server).
				Validate(notEmpty),
			huh.NewInput().
				Title("Data slice").
				Value(&cfg.Client.Slice),
			huh.NewInput().
				Title("Default local epochs").
				Value(epochs).
				Validate(positive),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Client API URL").
				Value(&cfg.Client.ClientURL).
				Validate(notEmpty),
			huh.NewInput().
				Title("MQTT address").
				Description("leave empty to disable progress publishing").
				Value(&cfg.MQTT.Address),
		),
	)
}

func NewConfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure client",
		Long:  `Interactively write the client configuration file.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := defaultConfig()
			if _, err := os.Stat(configPath); err == nil {
				existing, err := fledge.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				cfg = *existing
			}

			epochs := strconv.Itoa(cfg.Client.Epochs)
			if err := configForm(&cfg, &epochs).Run(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			cfg.Client.Epochs, _ = strconv.Atoi(epochs)

			if err := fledge.SaveConfig(configPath, cfg); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Successfully wrote "+configPath)
		},
	}

	cmd.Flags().StringVarP(
		&configPath,
		"config",
		"c",
		configPath,
		"Config file path",
	)

	return cmd
}
