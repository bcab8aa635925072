package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/emstore/pkg/authsdk"
)

var errNotLoggedIn = errors.New("not logged in, run \"emstore login\" first")

func newLoginCmd(e *env) *cobra.Command {
	var (
		username      string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store credentials locally",
		Long: `
Usage: emstore login --username <name> [--password-stdin]

  Logs in and keeps the resulting credentials in the credentials file. The
  server and scheme used are saved to the profile so later commands reuse
  them.

      $ echo "$PASSWORD" | emstore login --username alice --password-stdin
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("username is required. Use --username")
			}
			pw, err := resolvePassword(cmd.InOrStdin(), password, passwordStdin)
			if err != nil {
				return err
			}

			u, err := e.client.Login(cmd.Context(), username, pw)
			if err != nil {
				return err
			}
			if err := e.profile.Save(e.configPath); err != nil {
				e.logger.Warn("could not save profile", "path", e.configPath, "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", u.DisplayName())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newRegisterCmd(e *env) *cobra.Command {
	var (
		req           authsdk.RegisterRequest
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Username == "" || req.Email == "" {
				return errors.New("username and email are required")
			}
			pw, err := resolvePassword(cmd.InOrStdin(), req.Password, passwordStdin)
			if err != nil {
				return err
			}
			req.Password, req.Password2 = pw, pw

			u, err := e.client.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := e.profile.Save(e.configPath); err != nil {
				e.logger.Warn("could not save profile", "path", e.configPath, "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", u.DisplayName())
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Local state is cleared even when the server call fails.
			if err := e.client.Logout(cmd.Context()); err != nil {
				e.logger.Warn("server logout failed", "error", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := e.client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			if u == nil {
				return errNotLoggedIn
			}
			printFields(cmd.OutOrStdout(), [][2]string{
				{"ID", u.ID},
				{"Username", u.Username},
				{"Email", u.Email},
				{"Name", strings.TrimSpace(u.FirstName + " " + u.LastName)},
			})
			return nil
		},
	}
}

func resolvePassword(in io.Reader, flag string, fromStdin bool) (string, error) {
	if !fromStdin {
		if flag == "" {
			return "", errors.New("password is required. Use --password or --password-stdin")
		}
		return flag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("empty password on stdin")
	}
	return pw, nil
}
