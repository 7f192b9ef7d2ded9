package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pratik-mahalle/secwatch/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// clientAnnotation marks how a command talks to the server
const clientAnnotation = "secwatch/client"

const (
	clientNone   = "none"
	clientAnon   = "anonymous"
	defaultURL   = "http://localhost:8080"
	defaultLimit = 30 * time.Second
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
	timeout      time.Duration
	apiClient    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "secwatch",
	Short: "secwatch CLI - security alert dispatch",
	Long: `secwatch CLI sends alerts to a secwatch server, replays Alertmanager
webhooks, browses the alert history and checks server health.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch clientMode(cmd) {
		case clientNone:
			return nil
		case clientAnon:
			return initClient()
		}
		return initAuthenticatedClient()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.secwatch/config.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	flags.StringVar(&serverURL, "server", "", "server URL (overrides config)")
	flags.DurationVar(&timeout, "timeout", defaultLimit, "request timeout")

	_ = viper.BindPFlag("output", flags.Lookup("output"))
	_ = viper.BindPFlag("server_url", flags.Lookup("server"))

	rootCmd.AddCommand(
		withClient(newAuthCmd(), clientNone),
		withClient(newConfigCmd(), clientNone),
		withClient(newStatusCmd(), clientAnon),
		newAlertCmd(),
	)
}

// withClient annotates cmd and its subcommands with a client mode
func withClient(cmd *cobra.Command, mode string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[clientAnnotation] = mode
	return cmd
}

// clientMode returns the nearest annotated mode, defaulting to an
// authenticated client
func clientMode(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if mode, ok := c.Annotations[clientAnnotation]; ok {
			return mode
		}
	}
	return ""
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".secwatch"), nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := configDir(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}

	viper.SetEnvPrefix("SECWATCH")
	viper.AutomaticEnv()
	viper.SetDefault("server_url", defaultURL)
	viper.SetDefault("output", "table")

	_ = viper.ReadInConfig()
}

func initClient() error {
	url := viper.GetString("server_url")
	if serverURL != "" {
		url = serverURL
	}
	if err := validateServerURL(url); err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	apiClient = client.NewClient(client.Config{
		BaseURL: url,
		Timeout: timeout,
	})
	return nil
}

func initAuthenticatedClient() error {
	if err := initClient(); err != nil {
		return err
	}

	token := viper.GetString("auth.token")
	if token == "" {
		return fmt.Errorf("no access token. Run 'secwatch auth token' first")
	}
	apiClient.SetToken(token)
	return nil
}

func getOutputFormat() string {
	if outputFormat != "" && outputFormat != "table" {
		return outputFormat
	}
	return viper.GetString("output")
}
