// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"rowbase/cli/internal/auth"
	"rowbase/cli/internal/dsn"
	"rowbase/cli/internal/logging"
)

// statusCmd shows which project and credentials the CLI would use.
var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"whoami"},
	Short:   "Show endpoints, credentials and backend version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		s, err := newSession(ctx, false)
		if err != nil {
			return err
		}

		key := pterm.Yellow("not set (run 'rowbase login')")
		if s.key.Value != "" {
			key = logging.MaskKey(s.key.Value) + pterm.Gray(" from "+string(s.key.Source))
		}

		sinkDSN := pterm.Gray("not configured")
		if c, err := auth.SinkDSN(); err == nil {
			if info, perr := dsn.Parse(c.Value); perr == nil {
				sinkDSN = info.Masked() + pterm.Gray(" from "+string(c.Source))
			} else {
				sinkDSN = pterm.Red("invalid: ") + perr.Error()
			}
		}

		backend := pterm.Gray("unreachable")
		if v, err := s.client.Version(ctx); err == nil {
			backend = v
		} else {
			s.log.Debug("version lookup failed", s.log.Args("error", logging.Mask(err.Error())))
		}

		data := pterm.TableData{
			{"Setting", "Value"},
			{"API URL", s.cfg.APIURL},
			{"Realtime URL", s.realtimeURL()},
			{"API key", key},
			{"Backend version", backend},
			{"Sink table", s.cfg.Sink.Table},
			{"Sink database", sinkDSN},
			{"CLI version", Version},
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
