package cmd

import (
	"bufio"
	"os"
	"strings"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/colors"
	"github.com/spf13/cobra"
)

const PASSWORD_ENV_VAR = "SENTINEL_PASSWORD"

func createSignUpCmd() *cobra.Command {
	var name, email, phone, password string

	cmd := &cobra.Command{
		Use:               "signup",
		Short:             "Create a sentinel account & sign into it",
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, password)
			if err != nil {
				return err
			}

			request := backend.SignUpRequest{
				Credentials: backend.Credentials{Email: strings.TrimSpace(email), Password: password},
				Name:        strings.TrimSpace(name),
				PhoneNumber: strings.TrimSpace(phone),
			}

			if err = currentSession.SignUp(cmd.Context(), api, request); err != nil {
				return formattedError("unable to sign up: %v", err)
			}

			identity := currentSession.Identity()
			cmd.Printf("%s Welcome %s! Share your id with the people you trust so they can add you:\n%s\n",
				colors.Green("✔"), identity.DisplayName(), colors.Bold(identity.UserID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "your name, shown to contacts on alerts")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email to sign in with")
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "phone number in E.164 format e.g. +14165550100")
	cmd.Flags().StringVar(&password, "password", "", "password, read from $"+PASSWORD_ENV_VAR+" or stdin when not set")

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")

	return cmd
}

func createLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:               "login",
		Short:             "Sign into your sentinel account",
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, password)
			if err != nil {
				return err
			}

			credentials := backend.Credentials{Email: strings.TrimSpace(email), Password: password}
			if err = currentSession.SignIn(cmd.Context(), api, credentials); err != nil {
				return formattedError("unable to sign in: %v", err)
			}

			cmd.Printf("%s Signed in as %s\n", colors.Green("✔"), currentSession.Identity().DisplayName())
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email to sign in with")
	cmd.Flags().StringVar(&password, "password", "", "password, read from $"+PASSWORD_ENV_VAR+" or stdin when not set")

	cmd.MarkFlagRequired("email")

	return cmd
}

func createLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "logout",
		Short:             "Sign out & forget the saved session",
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentSession.SignOut()
			cmd.Println("Signed out")
			return nil
		},
	}
}

func createWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "whoami",
		Short:             "Show the signed in account",
		PersistentPreRunE: initClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireIdentity(); err != nil {
				return err
			}

			account, err := api.CurrentAccount(cmd.Context())
			if err != nil {
				return formattedError("unable to fetch account: %v", err)
			}

			cmd.Printf("%s <%s>\nid: %s\n", colors.Bold(account.Name), account.Email, account.ID)
			if account.PhoneNumber != "" {
				cmd.Printf("phone: %s\n", account.PhoneNumber)
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

// readPassword prefers the flag, then the env var, then the first line of stdin
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if password := os.Getenv(PASSWORD_ENV_VAR); password != "" {
		return password, nil
	}

	cmd.Print("Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", formattedError("unable to read password: %v", err)
		}
		return "", formattedError("password is required")
	}

	return line, nil
}
