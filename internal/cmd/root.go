package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mikeyhodl/quote-bot/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "quote-bot",
	Short: "Single-host chat bot with a self-scaling worker pool",
	Long: `Quote-bot runs a master process that routes chat updates to a pool
of worker subprocesses. The pool resizes itself from host CPU and queue
pressure, replaces crashed workers in place, and keeps per-sender
ordering by hashing each update's sender onto a stable worker slot.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/quote-bot/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
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
	viper.SetEnvPrefix("QUOTEBOT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., QUOTEBOT_DISPATCH_CAPACITY for dispatch.capacity
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
