// Package cli implements the emstore command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/credstore"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// Version is overridden at build time via ldflags.
var Version = "v0.1.0"

// env carries what every subcommand needs once flags have been parsed.
type env struct {
	configPath string
	server     string
	scheme     string
	debug      bool

	profile Profile
	creds   *credstore.FileStorage
	client  *authsdk.Client
	logger  *slog.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "emstore",
		Short: "Command line client for the emstore campaign API",
		Long: `
Usage: emstore <command> [options]

  Talks to an emstore server. Credentials obtained by "emstore login" are
  kept in a local file and refreshed transparently.

  Log in and list campaigns:

      $ emstore login --username alice
      $ emstore campaigns list

  Upload recipients from a CSV file:

      $ emstore entries upload recipients.csv --campaign <id>
`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: e.setup,
	}

	root.PersistentFlags().StringVar(&e.configPath, "config", DefaultConfigPath(), "Path to the profile file")
	root.PersistentFlags().StringVar(&e.server, "server", "", "Server base URL (overrides "+EnvServer+")")
	root.PersistentFlags().StringVar(&e.scheme, "scheme", "", "Authentication scheme: bearer or cookie+csrf")
	root.PersistentFlags().BoolVar(&e.debug, "debug", false, "Log every HTTP request to stderr")

	root.AddCommand(
		newLoginCmd(e),
		newRegisterCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
		newCampaignsCmd(e),
		newEntriesCmd(e),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	p, err := LoadProfile(e.configPath)
	if err != nil {
		return err
	}
	if e.server != "" {
		p.Server = e.server
	}
	if e.scheme != "" {
		p.Scheme = e.scheme
	}
	e.profile = p

	level := "warn"
	if e.debug {
		level = "debug"
	}
	e.logger = slogx.New(slogx.Config{
		Service: "emstore",
		Version: Version,
		Level:   level,
		Format:  "text",
		Output:  cmd.ErrOrStderr(),
	})

	jar, err := authsdk.NewCookieJar()
	if err != nil {
		return err
	}
	hc := &http.Client{Jar: jar}
	if e.debug {
		hc.Transport = slogx.NewTransport(nil, e.logger)
	}

	e.creds = credstore.NewFile(p.CredentialsFile)
	e.client, err = authsdk.New(authsdk.Config{
		BaseURL:        p.Server,
		Scheme:         authsdk.Scheme(p.Scheme),
		RequestTimeout: p.Timeout,
		Credentials:    e.creds,
		HTTPClient:     hc,
		Logger:         e.logger,
	})
	return err
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

// describe turns client errors into something a person can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, authsdk.ErrReauthenticationRequired):
		return "session expired, run \"emstore login\" again"
	case errors.Is(err, authsdk.ErrNetwork):
		return "cannot reach server: " + err.Error()
	default:
		return err.Error()
	}
}
