// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"rowbase/cli/internal/auth"
	"rowbase/cli/internal/keychain"
)

var logoutKeepSink bool

// logoutCmd removes saved secrets from the OS keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove saved credentials",
	Long: `The logout command removes the API key and the sink database DSN from the OS
keychain. Environment overrides are not touched.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			pterm.Warning.Println("Secure storage is not available; nothing to remove.")
			return nil
		}
		if logoutKeepSink {
			km.ClearAPIKey()
		} else {
			km.ClearAll()
		}

		pterm.Success.Println("Saved credentials have been removed")
		for _, env := range []string{auth.EnvAPIKey, auth.EnvSinkDSN} {
			if strings.TrimSpace(os.Getenv(env)) != "" {
				pterm.Info.Println(env + " is still set in your environment")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&logoutKeepSink, "keep-sink", false, "Keep the saved sink database DSN")
}
