// Hearthctl is the operator console for a running Hearth Core daemon.
//
// It talks to the daemon's REST API and covers the day-to-day inbox
// workflow: list what discovery found, approve or ignore entries, trigger
// scans, and manage registered things and rules.
//
// Usage:
//
//	hearthctl [command] [flags]
//
// Authentication: run 'hearthctl login' to obtain a token, then pass it
// via --token or the HEARTHCTL_TOKEN environment variable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// Persistent flags shared by every command.
var (
	serverURL string
	authToken string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hearthctl",
	Short: "Hearth Core operator console",
	Long: `Command line console for a running Hearth Core daemon.

Covers the discovery inbox workflow (list, approve, ignore, remove),
on-demand scans, and thing and rule management. All commands go through
the daemon's REST API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://127.0.0.1:8080", "Base URL of the Hearth Core API")
	rootCmd.PersistentFlags().StringVar(&authToken, "token",
		"", "Access token (defaults to HEARTHCTL_TOKEN)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(discoveryCmd)
	rootCmd.AddCommand(thingsCmd)
	rootCmd.AddCommand(rulesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("hearthctl %s (commit: %s)\n", version, commit)
	},
}

// Login command flags
var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an access token",
	Long: `Authenticate against the daemon and print an access token.

The token is short-lived. Export it for subsequent commands:

  export HEARTHCTL_TOKEN=$(hearthctl login -u admin -p ...)`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "admin", "Admin username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Admin password (defaults to HEARTH_ADMIN_PASSWORD)")
}

func runLogin(_ *cobra.Command, _ []string) error {
	password := loginPassword
	if password == "" {
		password = os.Getenv("HEARTH_ADMIN_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("password is required (use --password or HEARTH_ADMIN_PASSWORD)")
	}

	client := newClient()
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := client.post("/auth/login", map[string]string{
		"username": loginUsername,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Println(resp.AccessToken)
	return nil
}
