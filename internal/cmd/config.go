package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect foreman configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := config.Load(); err != nil {
			return err
		}
		data, err := yaml.Marshal(viper.AllSettings())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where configuration and state are read from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		used := viper.ConfigFileUsed()
		if used == "" {
			used = config.ConfigFile() + " (not found, using defaults)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config: %s\nstate:  %s\n", used, config.StateDir())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd)
}
