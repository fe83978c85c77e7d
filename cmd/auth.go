package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arakabCL/TheNotch/internal/auth"
)

var authStatusOnly bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to Google Calendar",
	Long: `Sign in to Google Calendar using the OAuth 2.0 authorization-code flow
with PKCE. A browser window opens for consent; the redirect is caught on a
temporary loopback listener.

Examples:
  notchd auth            # interactive sign-in
  notchd auth --status   # check authentication status`,
	RunE: runAuth,
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Clear stored credentials",
	RunE:  runSignout,
}

func init() {
	authCmd.Flags().BoolVar(&authStatusOnly, "status", false, "check authentication status only")
}

func runAuth(cmd *cobra.Command, args []string) error {
	tokens, err := newTokenManager()
	if err != nil {
		return err
	}

	if authStatusOnly {
		if tokens.IsSignedIn() {
			if email := tokens.UserEmail(); email != "" {
				fmt.Printf("Signed in as %s\n", email)
			} else {
				fmt.Println("Signed in")
			}
		} else {
			fmt.Println("Not signed in. Run 'notchd auth' to sign in.")
		}
		return nil
	}

	if cfg.OAuth.ClientID == "" {
		return fmt.Errorf("no OAuth client id configured: set oauth.client_id or NOTCHD_CLIENT_ID")
	}

	authenticator := auth.NewAuthenticator(tokens,
		cfg.OAuth.ClientID, cfg.OAuth.ClientSecret,
		cfg.OAuth.CallbackPort, cfg.OAuth.CallbackPath)

	fmt.Println("Opening your browser to sign in to Google Calendar...")
	if err := authenticator.SignIn(cmd.Context()); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if email := tokens.UserEmail(); email != "" {
		fmt.Printf("Signed in as %s\n", email)
	} else {
		fmt.Println("Signed in")
	}
	return nil
}

func runSignout(cmd *cobra.Command, args []string) error {
	tokens, err := newTokenManager()
	if err != nil {
		return err
	}

	if err := tokens.SignOut(); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	fmt.Println("Signed out")
	return nil
}
