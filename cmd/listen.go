package cmd

import (
	"github.com/Daskott/sentinel/client/alerts"
	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/whatsapp"
	"github.com/Daskott/sentinel/colors"
	"github.com/spf13/cobra"
)

func createListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "listen",
		Short:             "Wait for sos alerts from people who added you as a contact",
		Long:              `Shows an alert banner for every sos addressed to you until interrupted with ctrl+c.`,
		PersistentPreRunE: initClient,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := requireIdentity()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			listener := alerts.NewListener(api, identity)
			listener.OnAlert = func(alert backend.SosAlert) {
				printAlert(cmd, alert)
			}

			cmd.Printf("Listening for sos alerts as %s, press ctrl+c to stop\n", identity.DisplayName())
			if err = listener.Run(ctx); err != nil {
				return formattedError("unable to listen for alerts: %v", err)
			}

			return nil
		},
	}
}

func printAlert(cmd *cobra.Command, alert backend.SosAlert) {
	cmd.Printf("\n%s %s\n", colors.Alert(" SOS "), colors.Bold(alert.SenderName+" needs help"))
	if alert.Message != "" {
		cmd.Printf("%s\n", alert.Message)
	}
	cmd.Printf("%s %s\n", colors.Faint("Location:"), whatsapp.MapsURL(alert.Location))
	if alert.HasRecording() {
		cmd.Printf("%s %s\n", colors.Faint("Recording:"), alert.MediaURL)
	}
	if alert.CreatedAt != nil {
		cmd.Printf("%s %s\n", colors.Faint("Sent at:"), alert.CreatedAt.Local().Format("Jan 2 15:04:05"))
	}
}
