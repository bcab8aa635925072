package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/emstore/pkg/authsdk"
)

func newCampaignsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "campaigns",
		Aliases: []string{"campaign"},
		Short:   "Manage email campaigns",
		Long: `
Usage: emstore campaigns <subcommand> [options]

  Create a campaign:

      $ emstore campaigns create --name spring --email me@example.com --password-stdin

  Attach files to it:

      $ emstore campaigns attach <id> brochure.pdf price-list.xlsx
`,
	}
	cmd.AddCommand(
		newCampaignCreateCmd(e),
		newCampaignListCmd(e),
		newCampaignShowCmd(e),
		newCampaignSummaryCmd(e),
		newCampaignAttachCmd(e),
	)
	return cmd
}

func newCampaignCreateCmd(e *env) *cobra.Command {
	var (
		req           authsdk.CampaignRequest
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Name == "" || req.Email == "" {
				return errors.New("name and email are required")
			}
			pw, err := resolvePassword(cmd.InOrStdin(), req.Password, passwordStdin)
			if err != nil {
				return err
			}
			req.Password = pw

			c, err := e.client.CreateCampaign(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created campaign %s (%s)\n", c.Name, c.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "Campaign name")
	f.StringVar(&req.Subject, "subject", "", "Email subject")
	f.StringVar(&req.Body, "body", "", "Email body")
	f.StringVar(&req.Email, "email", "", "Sending mailbox address")
	f.StringVar(&req.Password, "password", "", "Mailbox password (prefer --password-stdin)")
	f.BoolVar(&passwordStdin, "password-stdin", false, "Read the mailbox password from stdin")
	f.StringVar(&req.Provider, "provider", "", "Mail provider label")
	f.StringVar(&req.IMAPHost, "imap-host", "", "IMAP host")
	f.IntVar(&req.IMAPPort, "imap-port", 0, "IMAP port")
	f.StringVar(&req.SMTPHost, "smtp-host", "", "SMTP host")
	f.IntVar(&req.SMTPPort, "smtp-port", 0, "SMTP port")
	f.BoolVar(&req.UseSSL, "ssl", true, "Use TLS for mailbox connections")
	f.StringVar(&req.Notes, "notes", "", "Free-form notes")
	return cmd
}

func newCampaignListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			campaigns, err := e.client.ListCampaigns(cmd.Context())
			if err != nil {
				return err
			}
			if len(campaigns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No campaigns found.")
				return nil
			}

			data := make([][]any, 0, len(campaigns))
			for _, c := range campaigns {
				data = append(data, []any{c.ID, c.Name, c.Email, len(c.Attachments), c.CreatedAt.Format("2006-01-02")})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Email", "Files", "Created"}, data)
			return nil
		},
	}
}

func newCampaignShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.client.GetCampaign(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printFields(out, [][2]string{
				{"ID", c.ID},
				{"Name", c.Name},
				{"Subject", c.Subject},
				{"Email", c.Email},
				{"Provider", c.Provider},
				{"IMAP", hostPort(c.IMAPHost, c.IMAPPort)},
				{"SMTP", hostPort(c.SMTPHost, c.SMTPPort)},
				{"SSL", strconv.FormatBool(c.UseSSL)},
				{"Notes", c.Notes},
			})
			if len(c.Attachments) > 0 {
				fmt.Fprintln(out)
				data := make([][]any, 0, len(c.Attachments))
				for _, a := range c.Attachments {
					data = append(data, []any{a.ID, a.Filename, a.ContentType, a.Size})
				}
				printTable(out, []string{"ID", "File", "Type", "Size"}, data)
			}
			return nil
		},
	}
}

func newCampaignSummaryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Report whether any campaigns exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := e.client.CheckUserCampaigns(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d campaign(s)\n", s.Count)
			return nil
		},
	}
}

func newCampaignAttachCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <file>...",
		Short: "Upload attachments to a campaign",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]authsdk.File, 0, len(args)-1)
			for _, path := range args[1:] {
				fh, err := os.Open(filepath.Clean(path))
				if err != nil {
					return err
				}
				defer fh.Close()
				files = append(files, authsdk.File{
					Name:        filepath.Base(path),
					ContentType: mime.TypeByExtension(filepath.Ext(path)),
					Content:     fh,
				})
			}

			uploaded, err := e.client.UploadAttachments(cmd.Context(), args[0], files...)
			if err != nil {
				return err
			}
			for _, a := range uploaded {
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\n", a.Filename, a.Size)
			}
			return nil
		},
	}
}

func hostPort(host string, port int) string {
	switch {
	case host == "":
		return ""
	case port == 0:
		return host
	default:
		return host + ":" + strconv.Itoa(port)
	}
}
