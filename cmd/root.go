/*
Copyright © 2021 Edmond Cotterell

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/Daskott/sentinel/colors"
	devConfig "github.com/Daskott/sentinel/dev/config"
	"github.com/Daskott/sentinel/logger"
	"github.com/Daskott/sentinel/shared"
	"github.com/Daskott/sentinel/utils"
	"github.com/Daskott/sentinel/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/go-playground/validator"
)

// Backend is everything the cli needs from the sentinel backend
type Backend interface {
	backend.Gateway
	session.Authenticator
	SetAccessToken(token string)
	CurrentAccount(ctx context.Context) (*backend.Account, error)
	UploadRecording(ctx context.Context, fileName string, content io.Reader) (string, error)
}

var (
	cfgFile      string
	config       *viper.Viper
	clientConfig shared.ClientConfig

	// api & currentSession are set up by initClient, tests stub out api
	api            Backend
	currentSession *session.Session

	isDevEnv  bool
	isTestEnv bool

	validate = validator.New()
	logg     = logger.Named("cmd")
)

// rootCmd represents the base command when called without any subcommands
var rootCmd *cobra.Command

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd = createRootCmd()
	rootCmd.Version = fmt.Sprintf("v%s", version.Version)

	rootCmd.AddCommand(
		createServerCmd(),
		createSignUpCmd(),
		createLoginCmd(),
		createLogoutCmd(),
		createWhoamiCmd(),
		createContactsCmd(),
		createMessageCmd(),
		createSosCmd(),
		createListenCmd(),
		createRouteCmd(),
		createShareCmd(),
	)
}

func createRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "sentinel",
		Short: `sentinel is a personal safety CLI.

Tap 'sentinel sos' once to send your pre-written message, with your location,
to every emergency contact. Tap twice to have it rewritten by AI first.
Keep 'sentinel listen' running to be alerted when one of your contacts needs help.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sentinel.yaml)")
	cmd.PersistentFlags().BoolVarP(&isDevEnv, "dev", "", false, "run in development mode")
	cmd.PersistentFlags().BoolVarP(&isTestEnv, "test", "", false, "run in test mode")

	return cmd
}

// initClient loads the client config & restores the saved session.
// It is the PersistentPreRunE of every command that talks to the backend.
func initClient(cmd *cobra.Command, args []string) error {
	err := initConfig()
	if err != nil {
		return err
	}

	// No need to use a real backend in tests
	if !isTestEnv || api == nil {
		client, err := backend.NewClient(clientConfig.Backend.URL)
		if err != nil {
			return err
		}
		api = client
	}

	identity := session.Identity{
		UserID:      clientConfig.Session.UserID,
		Name:        clientConfig.Session.Name,
		AccessToken: clientConfig.Session.AccessToken,
	}
	api.SetAccessToken(identity.AccessToken)

	currentSession = session.New(identity)
	currentSession.OnChange(persistSession)

	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	config = viper.New()

	if cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(cfgFile)
	} else {
		configName, configDir, err := defaultCfgNameAndDir()
		if err != nil {
			return err
		}

		// If config file is not found, create one using DEFAULT_CLIENT_YML
		configFilePath := filepath.Join(configDir, configName)
		if !utils.FileExist(configFilePath) {
			err = os.WriteFile(configFilePath, []byte(devConfig.DEFAULT_CLIENT_YML), 0600)
			if err != nil {
				return err
			}
		}

		config.SetConfigFile(configFilePath)
	}

	// FYI: The env var overrides whatever is in the config file
	config.BindEnv("backend.url", "SENTINEL_BACKEND_URL")
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		return formattedError("error reading config file: %v", err)
	}
	logg.Debugf("using config file: %s", config.ConfigFileUsed())

	clientConfig = shared.ClientConfig{}
	if err := config.Unmarshal(&clientConfig); err != nil {
		return formattedError("unable to decode %s: %v", config.ConfigFileUsed(), err)
	}

	if err := validate.Struct(clientConfig); err != nil {
		return formattedError("invalid config in %s: %v", config.ConfigFileUsed(), err)
	}

	return nil
}

// persistSession keeps the config file in step with the session so the next
// command starts signed in as the same user
func persistSession(identity session.Identity) {
	api.SetAccessToken(identity.AccessToken)

	config.Set("session.userId", identity.UserID)
	config.Set("session.name", identity.Name)
	config.Set("session.accessToken", identity.AccessToken)

	if err := config.WriteConfig(); err != nil {
		logg.Errorf("unable to save session to %s: %v", config.ConfigFileUsed(), err)
	}
}

func defaultCfgNameAndDir() (configName string, configDir string, err error) {
	configName = ".sentinel.yaml"

	// Use home directory for production
	configDir, err = os.UserHomeDir()
	if err != nil {
		return "", "", err
	}

	if isDevEnv {
		configName = ".sentinel.dev.yaml"
		configDir, err = os.Getwd()
		if err != nil {
			return "", "", err
		}
	}

	return configName, configDir, err
}

// signalContext is cancelled on ctrl+c so long running commands can release
// their subscriptions before exiting
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func requireIdentity() (session.Identity, error) {
	identity, err := currentSession.Require()
	if err != nil {
		return session.Identity{}, formattedError("%v", err)
	}
	return identity, nil
}

func formattedError(format string, a ...interface{}) error {
	return fmt.Errorf(colors.Red(format), a...)
}
