package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API access token",
	}

	cmd.AddCommand(newAuthTokenCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthWhoamiCmd())

	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var username, secret string
	var ttl time.Duration
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token with the server's shared secret",
		Long: `Signs an HS256 access token with the server's JWT_SECRET and stores it
in the CLI config. The secret is read from --secret, SECWATCH_JWT_SECRET or
an interactive prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = promptInput("Username: ")
			}
			if secret == "" {
				secret = viper.GetString("jwt_secret")
			}
			if secret == "" {
				secret = promptPassword("JWT secret: ")
			}
			if username == "" || secret == "" {
				return fmt.Errorf("username and secret are required")
			}

			token, err := auth.MintToken(username, secret, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			if printOnly {
				fmt.Println(token)
				return nil
			}

			viper.Set("auth.token", token)
			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			fmt.Printf("Token for %s stored (expires %s)\n", username, time.Now().Add(ttl).Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "identity to put in the token")
	cmd.Flags().StringVar(&secret, "secret", "", "server JWT secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the token instead of storing it")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("auth.token", "")

			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to clear token: %w", err)
			}

			fmt.Println("Token cleared")
			return nil
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity in the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := viper.GetString("auth.token")
			if token == "" {
				return fmt.Errorf("no token stored")
			}

			claims, err := auth.PeekClaims(token)
			if err != nil {
				return fmt.Errorf("stored token is unreadable: %w", err)
			}

			info := map[string]interface{}{
				"identity": claims.Identity(),
			}
			if claims.ExpiresAt != nil {
				info["expires_at"] = claims.ExpiresAt.Time
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(info)
			}

			fmt.Printf("Identity: %s\n", claims.Identity())
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time
				state := "valid"
				if time.Now().After(exp) {
					state = "expired"
				}
				fmt.Printf("Expires:  %s (%s)\n", exp.Format("2006-01-02 15:04:05"), state)
			}
			return nil
		},
	}
}

func promptInput(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptPassword(prompt string) string {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(password)
}
