package cmd

import (
	"github.com/Daskott/sentinel/client/whatsapp"
	"github.com/spf13/cobra"
)

func createShareCmd() *cobra.Command {
	var (
		phone    string
		lat, lon float64
	)

	cmd := &cobra.Command{
		Use:               "share",
		Short:             "Print a whatsapp link that shares your location with someone",
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			locator, err := locationProvider(cmd, lat, lon)
			if err != nil {
				return err
			}

			position, err := locator.CurrentPosition(cmd.Context())
			if err != nil {
				return formattedError("unable to get your location: %v", err)
			}

			link, err := whatsapp.Link(phone, position, currentSession.Identity().DisplayName())
			if err != nil {
				return formattedError("%v", err)
			}

			cmd.Println(link)
			return nil
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "phone number to share with, separators are ignored")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude to share instead of looking up the current position")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude to share instead of looking up the current position")

	cmd.MarkFlagRequired("phone")

	return cmd
}
