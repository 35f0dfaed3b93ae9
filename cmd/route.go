package cmd

import (
	"errors"

	"github.com/Daskott/sentinel/client/routing"
	"github.com/Daskott/sentinel/colors"
	"github.com/spf13/cobra"
)

func createRouteCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:               "route",
		Short:             "Get safety focused directions between two places",
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireIdentity(); err != nil {
				return err
			}

			description, err := routing.SafeRoute(cmd.Context(), api, start, end)
			if errors.Is(err, routing.ErrMissingLocation) {
				return formattedError("%v, set --start and --end", err)
			}
			if err != nil {
				return formattedError("unable to generate route: %v", err)
			}

			cmd.Printf("%s %s → %s\n\n%s\n", colors.Bold("Safe route"), start, end, description)
			return nil
		},
	}

	cmd.Flags().StringVarP(&start, "start", "s", "", "where you are leaving from")
	cmd.Flags().StringVarP(&end, "end", "e", "", "where you are going")

	return cmd
}
