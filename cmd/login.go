// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"rowbase/cli/internal/auth"
	"rowbase/cli/internal/httperrors"
	"rowbase/cli/internal/keychain"
	"rowbase/cli/internal/logging"
	"rowbase/cli/internal/terminal"
	rberrors "rowbase/cli/pkg/errors"
)

var loginKey string

// loginCmd stores a project API key in the OS keychain after checking it
// against the API.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Save a project API key",
	Long: `The login command asks for a rowbase project API key, verifies it against the
API and stores it in the OS keychain. Pass --key to skip the prompt, or pipe the
key on stdin.

In CI, set ROWBASE_API_KEY instead of logging in.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		key, err := readAPIKey()
		if err != nil {
			return err
		}
		if err := auth.CheckAPIKey(key); err != nil {
			return err
		}

		s, err := newSession(ctx, false)
		if err != nil {
			return err
		}
		c, err := s.clientWithKey(key)
		if err != nil {
			return err
		}

		spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Verifying API key")
		version, err := c.Version(ctx)
		if spinner != nil {
			_ = spinner.Stop()
		}
		if err != nil {
			if rberrors.Is(err, rberrors.Server) || rberrors.Is(err, rberrors.Transport) {
				return httperrors.Report(err, "verifying the API key")
			}
			return err
		}

		km, err := keychain.GetManager()
		if err != nil {
			pterm.Error.Println("Secure storage is not available on this system.")
			pterm.Println("   Set " + auth.EnvAPIKey + " in your environment instead.")
			return err
		}
		if err := km.SaveAPIKey(key); err != nil {
			pterm.Error.Println("Failed to save the API key securely.")
			return err
		}

		pterm.Success.Printfln("Logged in to %s (backend %s) with key %s", s.cfg.APIURL, version, logging.MaskKey(key))
		if s.key.Source == auth.SourceEnv {
			pterm.Warning.Println(auth.EnvAPIKey + " is set and takes precedence over the saved key.")
		}
		return nil
	},
}

// readAPIKey takes the key from --key, a masked prompt, or one line of stdin.
func readAPIKey() (string, error) {
	if loginKey != "" {
		return strings.TrimSpace(loginKey), nil
	}
	if terminal.IsInteractive() {
		key, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("API key")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(key), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read API key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginKey, "key", "", "API key to save (skips the prompt)")
}
