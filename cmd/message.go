package cmd

import (
	"strings"

	"github.com/Daskott/sentinel/client/settings"
	"github.com/Daskott/sentinel/colors"
	"github.com/spf13/cobra"
)

func createMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "message",
		Short:             "View or change the pre-written message sent with every sos",
		PersistentPreRunE: initClient,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print your pre-written message",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				userSettings, err := loadSettings(cmd)
				if err != nil {
					return err
				}

				if userSettings.Message() == "" {
					cmd.Printf("%s No pre-written message saved, sos alerts will only carry your location\n", colors.Warning)
					return nil
				}

				cmd.Println(userSettings.Message())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <message>",
			Short: "Save the pre-written message",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				userSettings, err := loadSettings(cmd)
				if err != nil {
					return err
				}

				userSettings.SetMessage(strings.Join(args, " "))
				if err = userSettings.Save(cmd.Context()); err != nil {
					return formattedError("unable to save message: %v", err)
				}

				cmd.Printf("%s Message saved\n", colors.Green("✔"))
				return nil
			},
		},
	)

	return cmd
}

func loadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	identity, err := requireIdentity()
	if err != nil {
		return nil, err
	}

	userSettings := settings.New(api, identity)
	if err = userSettings.Load(cmd.Context()); err != nil {
		return nil, formattedError("unable to load settings: %v", err)
	}

	return userSettings, nil
}
