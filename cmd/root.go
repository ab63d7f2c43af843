// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the rowbase CLI. It
// queries tables over the REST API, watches them over the realtime socket and
// can mirror the change stream into a local Postgres database.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	showVersion bool
	logLevel    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "rowbase",
	Short:         "Query and watch rowbase tables from the terminal",
	Long:          `rowbase is a command-line client for the rowbase API. It runs filtered table queries and streams live row changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !showVersion {
			return cmd.Help()
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		backendVersion := "unknown"
		if s, err := newSession(ctx, false); err == nil {
			if v, err := s.client.Version(ctx); err == nil {
				backendVersion = v
			} else {
				s.log.Debug("version lookup failed", s.log.Args("error", err))
			}
		}
		fmt.Printf("rowbase %s\nbackend %s\n", Version, backendVersion)
		return nil
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Fprintln(os.Stderr, pterm.Red("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI and backend version information")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error or off (overrides config)")
}
