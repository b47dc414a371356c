// Package cmd implements the foreman command line.
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Staged multi-session build orchestrator",
	Long: `Foreman turns a design document into a plan of stacked stages and
builds each stage in its own git worktree with a detached coding-agent
session, then iterates on the resulting pull requests until every review
item is addressed and CI passes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/foreman/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "echo each session's final output")
	rootCmd.PersistentFlags().Bool("dry-run", false, "show what would run without starting sessions")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FOREMAN")
	// FOREMAN_FIX_MAX_ITERATIONS for fix.max_iterations
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}
