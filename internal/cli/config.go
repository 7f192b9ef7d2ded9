package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configKeys lists the settings the CLI reads, each with a validator
var configKeys = map[string]func(string) error{
	"server_url": validateServerURL,
	"output":     validateOutputFormat,
	"jwt_secret": nonEmpty,
	"auth.token": nonEmpty,
}

// sensitiveKeys are never echoed by config get and list
var sensitiveKeys = map[string]bool{
	"auth":       true,
	"auth.token": true,
	"jwt_secret": true,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigListCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive first-time setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := promptInput("Server URL [http://localhost:8080]: ")
			if server == "" {
				server = "http://localhost:8080"
			}
			if err := validateServerURL(server); err != nil {
				return err
			}

			format := promptInput("Default output format (table/json/yaml) [table]: ")
			if format == "" {
				format = "table"
			}
			if err := validateOutputFormat(format); err != nil {
				return err
			}

			viper.Set("server_url", server)
			viper.Set("output", format)
			if secret := promptPassword("Shared JWT secret (leave empty to skip): "); secret != "" {
				viper.Set("jwt_secret", secret)
			}

			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Println("Configuration saved")
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := strings.ToLower(args[0]), args[1]
			if err := validateSetting(key, value); err != nil {
				return err
			}
			viper.Set(key, value)
			if err := writeConfig(); err != nil {
				return err
			}
			fmt.Printf("Set %s = %s\n", key, displayValue(key, value))
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])
			fmt.Printf("%s: %s\n", key, displayValue(key, viper.Get(key)))
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all configuration values",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := viper.AllSettings()
			keys := make([]string, 0, len(settings))
			for key := range settings {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			for _, key := range keys {
				fmt.Printf("%s: %s\n", key, displayValue(key, settings[key]))
			}
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Printf("\n(from %s)\n", used)
			}
			return nil
		},
	}
}

func validateSetting(key, value string) error {
	validate, ok := configKeys[key]
	if !ok {
		known := make([]string, 0, len(configKeys))
		for k := range configKeys {
			known = append(known, k)
		}
		sort.Strings(known)
		return fmt.Errorf("unknown key %q, valid keys: %s", key, strings.Join(known, ", "))
	}
	if err := validate(value); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

func displayValue(key string, val interface{}) string {
	switch {
	case val == nil:
		return "(not set)"
	case sensitiveKeys[key]:
		return "(set)"
	}
	return fmt.Sprint(val)
}

func validateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}

func validateOutputFormat(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func nonEmpty(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("value is empty")
	}
	return nil
}

func writeConfig() error {
	if cfgFile != "" {
		return viper.WriteConfigAs(cfgFile)
	}
	dir, err := configDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(dir, "config.yaml"))
}
