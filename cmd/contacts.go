package cmd

import (
	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/contacts"
	"github.com/Daskott/sentinel/colors"
	"github.com/spf13/cobra"
)

func createContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "contacts",
		Short:             "Manage the emergency contacts who receive your sos alerts",
		PersistentPreRunE: initClient,
	}

	cmd.AddCommand(createContactsListCmd(), createContactsAddCmd(), createContactsDeleteCmd())

	return cmd
}

func createContactsListCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your emergency contacts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := contactStore(cmd)
			if err != nil {
				return err
			}

			printContacts(cmd, store.Contacts())
			if !watch {
				return nil
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			store.OnChange = func(list []backend.Contact) {
				cmd.Println(colors.Faint("-- contacts changed --"))
				printContacts(cmd, list)
			}

			if err = store.Watch(ctx); err != nil {
				return formattedError("unable to watch contacts: %v", err)
			}
			defer store.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep the list open & reprint it on every change")

	return cmd
}

func createContactsAddCmd() *cobra.Command {
	var name, contactUserID, phone string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an emergency contact by their sentinel user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := contactStore(cmd)
			if err != nil {
				return err
			}

			contact, err := store.Add(cmd.Context(), name, contactUserID, phone)
			if err != nil {
				return formattedError("unable to add contact: %v", err)
			}

			cmd.Printf("%s %s will be alerted when you send an sos\n", colors.Green("✔"), contact.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "contact's name")
	cmd.Flags().StringVarP(&contactUserID, "id", "i", "", "contact's sentinel user id")
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "contact's phone number for sms alerts e.g. +14165550100")

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("id")

	return cmd
}

func createContactsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contact id>",
		Short: "Remove an emergency contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := contactStore(cmd)
			if err != nil {
				return err
			}

			if err = store.Delete(cmd.Context(), args[0]); err != nil {
				return formattedError("unable to delete contact: %v", err)
			}

			cmd.Printf("%s Contact removed\n", colors.Green("✔"))
			return nil
		},
	}
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func contactStore(cmd *cobra.Command) (*contacts.Store, error) {
	identity, err := requireIdentity()
	if err != nil {
		return nil, err
	}

	store := contacts.NewStore(api, identity)
	if err = store.Refresh(cmd.Context()); err != nil {
		return nil, formattedError("unable to fetch contacts: %v", err)
	}

	return store, nil
}

func printContacts(cmd *cobra.Command, list []backend.Contact) {
	if len(list) == 0 {
		cmd.Printf("%s You have no emergency contacts yet, add one with 'sentinel contacts add'\n", colors.Warning)
		return
	}

	for _, contact := range list {
		cmd.Printf("%-20s %-38s %s\n", colors.Bold(contact.Name), contact.ContactUserID, colors.Faint(contact.ID))
	}
}
