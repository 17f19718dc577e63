package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inbleach/internal/google"
	"github.com/teemow/inbleach/internal/logging"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize inbleach to access Gmail from the command line",
		Long: `Print the Google consent URL, read the authorization code (or the full
URL Google redirected to) from stdin and save the resulting credentials in the
configured token store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			auth, err := newAuthenticator(cfg)
			if err != nil {
				return err
			}
			store, err := newTokenStore(cfg)
			if err != nil {
				return err
			}
			return runLogin(ctx, auth, store, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved Google credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newTokenStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Delete(); err != nil {
				return fmt.Errorf("failed to delete credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials removed.")
			return nil
		},
	}
}

func runLogin(ctx context.Context, auth *google.Authenticator, store google.TokenStore, in io.Reader, out io.Writer) error {
	authURL, state, err := auth.AuthURL()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Visit this URL to authorize inbleach:\n\n%s\n\n", authURL)
	fmt.Fprint(out, "Paste the authorization code or the URL you were redirected to: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}

	code, err := parseAuthInput(line, state)
	if err != nil {
		return err
	}

	creds, err := auth.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if err := store.Save(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(out, "\nLogin successful, access token %s saved.\n", logging.SanitizeToken(creds.Token))
	return nil
}

// parseAuthInput accepts either a bare authorization code or the redirect
// URL carrying code and state. A URL must carry the expected state.
func parseAuthInput(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("no authorization code given")
	}

	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if q.Get("state") != state {
		return "", fmt.Errorf("state parameter does not match this login attempt")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL carries no authorization code")
	}
	return code, nil
}
