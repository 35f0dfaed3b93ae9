package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/location"
	"github.com/Daskott/sentinel/client/sos"
	"github.com/Daskott/sentinel/client/whatsapp"
	"github.com/Daskott/sentinel/colors"
	"github.com/spf13/cobra"
)

const (
	DEFAULT_LOCATION_TIMEOUT = 10 * time.Second
	DEFAULT_LOOKUP_URL       = "http://ip-api.com/json"
)

func createSosCmd() *cobra.Command {
	var (
		taps          int
		lat, lon      float64
		recordingFile string
	)

	cmd := &cobra.Command{
		Use:   "sos",
		Short: "Alert all your emergency contacts",
		Long: `Sends an sos alert, with your current location, to every emergency contact.

One tap (the default) sends your pre-written message as is.
Two taps (--taps 2) have the message rewritten by AI to be more urgent first.`,
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			if taps != 1 && taps != 2 {
				return formattedError("invalid argument \"%v\", --taps should be 1 or 2", taps)
			}

			identity, err := requireIdentity()
			if err != nil {
				return err
			}

			locator, err := locationProvider(cmd, lat, lon)
			if err != nil {
				return err
			}

			userSettings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			mediaURL := ""
			if recordingFile != "" {
				mediaURL, err = uploadRecording(cmd, recordingFile)
				if err != nil {
					return err
				}
			}

			reporter := newSosReporter(cmd)
			dispatcher := sos.NewDispatcher(sos.Options{
				Gateway:  api,
				Locator:  locator,
				Messages: userSettings,
				Identity: identity,
				Reporter: reporter,
				MediaURL: mediaURL,
			})
			defer dispatcher.Close()

			ctx, stop := signalContext(cmd)
			defer stop()

			for i := 0; i < taps; i++ {
				dispatcher.RegisterTap()
			}

			select {
			case err = <-reporter.done:
				return err
			case <-ctx.Done():
				return formattedError("sos cancelled")
			}
		},
	}

	cmd.Flags().IntVarP(&taps, "taps", "t", 1, "1 sends the pre-written message, 2 sends an AI elaborated one")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude to send instead of looking up the current position")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude to send instead of looking up the current position")
	cmd.Flags().StringVarP(&recordingFile, "recording", "r", "", "audio/video file to attach to the alert")

	return cmd
}

// sosReporter prints the outcome of a dispatch & hands it back to the command
type sosReporter struct {
	cmd  *cobra.Command
	done chan error
}

func newSosReporter(cmd *cobra.Command) *sosReporter {
	return &sosReporter{cmd: cmd, done: make(chan error, 1)}
}

func (r *sosReporter) Sent(dispatch sos.Dispatch) {
	r.cmd.Printf("%s SOS sent to %v contact(s)\n", colors.Green("✔"), dispatch.Recipients)
	if dispatch.UsedAI {
		r.cmd.Printf("%s %s\n", colors.Faint("AI message:"), dispatch.Message)
	} else if dispatch.Message != "" {
		r.cmd.Printf("%s %s\n", colors.Faint("Message:"), dispatch.Message)
	}
	r.cmd.Printf("%s %s\n", colors.Faint("Location:"), whatsapp.MapsURL(dispatch.Location))

	r.done <- nil
}

func (r *sosReporter) Failed(err error) {
	if errors.Is(err, sos.ErrNoContacts) {
		r.done <- formattedError("sos not sent: %v, add one with 'sentinel contacts add'", err)
		return
	}
	r.done <- formattedError("sos not sent: %v", err)
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

// locationProvider prefers --lat/--lon, then the position saved in the config,
// then an ip based lookup
func locationProvider(cmd *cobra.Command, lat, lon float64) (location.Provider, error) {
	latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if latSet != lonSet {
		return nil, formattedError("--lat and --lon must be set together")
	}

	if latSet {
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, formattedError("invalid position %v,%v", lat, lon)
		}
		return location.Static{Location: backend.Location{Lat: lat, Lon: lon}}, nil
	}

	saved := clientConfig.Location
	if saved.Lat != nil && saved.Lon != nil {
		return location.Static{Location: backend.Location{Lat: *saved.Lat, Lon: *saved.Lon}}, nil
	}

	timeout := DEFAULT_LOCATION_TIMEOUT
	if saved.TimeoutSeconds > 0 {
		timeout = time.Duration(saved.TimeoutSeconds) * time.Second
	}

	lookupURL := saved.LookupURL
	if lookupURL == "" {
		lookupURL = DEFAULT_LOOKUP_URL
	}

	return location.WithTimeout(location.IPLookup{URL: lookupURL}, timeout), nil
}

func uploadRecording(cmd *cobra.Command, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", formattedError("unable to open recording: %v", err)
	}
	defer file.Close()

	mediaURL, err := api.UploadRecording(cmd.Context(), filepath.Base(filePath), file)
	if err != nil {
		return "", formattedError("unable to upload recording: %v", err)
	}

	cmd.Printf("%s Recording uploaded\n", colors.Green("✔"))
	return mediaURL, nil
}
