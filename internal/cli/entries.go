package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/recipients"
)

func newEntriesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entries",
		Aliases: []string{"entry"},
		Short:   "Add campaign recipients",
		Long: `
Usage: emstore entries <subcommand> [options]

  Add a single recipient:

      $ emstore entries add --name Bob --email bob@example.com --client-email me@example.com

  Upload a CSV with the columns name, email and client_email:

      $ emstore entries upload recipients.csv --campaign <id>
`,
	}
	cmd.AddCommand(newEntryAddCmd(e), newEntryUploadCmd(e))
	return cmd
}

func newEntryAddCmd(e *env) *cobra.Command {
	var req authsdk.EmailEntryRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Email = strings.ToLower(strings.TrimSpace(req.Email))
			req.ClientEmail = strings.ToLower(strings.TrimSpace(req.ClientEmail))
			if !recipients.ValidEmail(req.Email) {
				return fmt.Errorf("invalid email format: %q", req.Email)
			}
			if req.ClientEmail != "" && !recipients.ValidEmail(req.ClientEmail) {
				return fmt.Errorf("invalid client email format: %q", req.ClientEmail)
			}

			res, err := e.client.SubmitEmailEntry(cmd.Context(), req)
			if errors.Is(err, authsdk.ErrConflict) {
				return fmt.Errorf("%s is already a recipient", req.Email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", res.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Recipient name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Recipient email")
	cmd.Flags().StringVar(&req.ClientEmail, "client-email", "", "Client email the recipient belongs to")
	cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "Campaign ID")
	return cmd
}

func newEntryUploadCmd(e *env) *cobra.Command {
	var campaignID string

	cmd := &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload recipients from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer fh.Close()

			parsed, err := recipients.Parse(fh)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if dups := recipients.Duplicates(parsed); len(dups) > 0 {
				return fmt.Errorf("%s repeats addresses: %s", args[0], strings.Join(dups, ", "))
			}

			batch := make([]authsdk.EmailEntryRequest, len(parsed))
			for i, r := range parsed {
				batch[i] = authsdk.EmailEntryRequest{
					Name:        r.Name,
					Email:       r.Email,
					ClientEmail: r.ClientEmail,
					CampaignID:  campaignID,
				}
			}

			res, err := e.client.SubmitEmailEntries(cmd.Context(), campaignID, batch)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed %d, created %d\n", res.TotalProcessed, res.Created)
			if len(res.DuplicateEmails) > 0 {
				fmt.Fprintf(out, "Skipped existing: %s\n", strings.Join(res.DuplicateEmails, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "Campaign ID")
	return cmd
}
