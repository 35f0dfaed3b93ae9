/*
Copyright © 2021 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"strings"

	devConfig "github.com/Daskott/sentinel/dev/config"
	"github.com/Daskott/sentinel/server"
	"github.com/Daskott/sentinel/shared"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serverConfigFile string

func createServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start a sentinel server",
		Long: `The sentinel server is the backend every client talks to. It stores
contacts, settings & sos alerts, streams new alerts to listening contacts,
texts them via twilio and hosts the AI functions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := serverConfig()
			if err != nil {
				return err
			}

			server.Start(*config, isDevEnv)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverConfigFile, "sconfig", "", "config for server (not needed with --dev)")

	return cmd
}

// serverConfig reads the server config from --sconfig, or the bundled dev config
// when running with --dev. Any key can be overridden with an env var
// e.g. SENTINEL_TWILIO_AUTHTOKEN for twilio.authToken
func serverConfig() (*shared.ServerConfig, error) {
	config := viper.New()
	config.SetConfigType("yaml")
	config.SetEnvPrefix("SENTINEL")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	// Secrets can come from the usual env vars instead of the yaml file
	config.BindEnv("google.applicationCredentials", "GOOGLE_APPLICATION_CREDENTIALS")
	config.BindEnv("openai.apiKey", "OPENAI_API_KEY")

	var err error
	switch {
	case serverConfigFile != "":
		config.SetConfigFile(serverConfigFile)
		err = config.ReadInConfig()
	case isDevEnv:
		err = config.ReadConfig(strings.NewReader(devConfig.SERVER_YML))
	default:
		return nil, formattedError("--sconfig is required when not running with --dev")
	}

	if err != nil {
		return nil, formattedError("error reading server config: %v", err)
	}

	serverConfig := shared.ServerConfig{}
	if err = config.Unmarshal(&serverConfig); err != nil {
		return nil, formattedError("unable to decode server config: %v", err)
	}

	if err = server.ValidateConfig(serverConfig); err != nil {
		return nil, formattedError("invalid server config: %v", err)
	}

	return &serverConfig, nil
}
