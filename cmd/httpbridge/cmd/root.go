// Package cmd provides the CLI commands for httpbridge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/httpbridge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "httpbridge",
	Short: "httpbridge - HTTP request bridge with sessions",
	Long: `httpbridge turns HTTP requests into request contexts bound to their
connection and session, dispatches them through a static route table, and
expires idle sessions in the background.

Quick start:
  1. Create a config file: httpbridge.yaml
  2. Run: httpbridge start

Configuration:
  Config is loaded from httpbridge.yaml in the current directory,
  $HOME/.httpbridge/, or /etc/httpbridge/.

  Environment variables can override config values with the HTTPBRIDGE_ prefix.
  Example: HTTPBRIDGE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the server
  stop        Stop the running server
  routes      Print the effective route table
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./httpbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "", "PID file (default: ~/.httpbridge/server.pid)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
