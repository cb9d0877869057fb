package main

import (
	"fmt"
	"os"

	"hkms/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const serviceName = "room-service"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Housekeeping room lifecycle service",
	Long:          "Tracks room cleaning status, times cleaning sessions and pushes every change to connected staff devices.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("db-dsn", "", "postgres DSN; empty runs on the in-memory store")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "json", "json or console")
	flags.String("migrations-dir", "migrations", "directory holding *.sql migrations")

	_ = viper.BindPFlag(config.KeyDatabaseURL, flags.Lookup("db-dsn"))
	_ = viper.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = viper.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	_ = viper.BindPFlag(config.KeyMigrationsDir, flags.Lookup("migrations-dir"))

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// initConfig layers defaults, an optional config file and the environment.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}
