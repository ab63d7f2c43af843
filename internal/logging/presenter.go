// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"

	rberrors "rowbase/cli/pkg/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// FormatConnectionError explains why a realtime session ended, chosen by the
// error's kind rather than by matching its text.
func FormatConnectionError(err error) string {
	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Realtime connection closed"))
	b.WriteString("\n\n")

	kind := rberrors.KindOf(err)
	switch kind {
	case rberrors.Authentication:
		b.WriteString("The realtime service rejected the API key.\n")
		b.WriteString("This usually means:\n")
		b.WriteString("  • The key was revoked or rotated\n")
		b.WriteString("  • The key belongs to a different project\n")
	case rberrors.Transport:
		b.WriteString("The connection could not be re-established.\n")
		b.WriteString("Please check:\n")
		b.WriteString("  • Your internet connection\n")
		b.WriteString("  • That the realtime URL is reachable from your network\n")
		b.WriteString("  • Proxy or firewall rules for WebSocket traffic\n")
	case rberrors.Subscription:
		b.WriteString("The server refused the subscription.\n")
		b.WriteString("Check that the table exists and the key may read it.\n")
	default:
		b.WriteString("The session ended unexpectedly.\n")
	}
	b.WriteString("\n")

	if kind == rberrors.Authentication {
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'rowbase login' with a valid key and try again"))
	} else {
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'rowbase watch' again once the service is reachable"))
	}
	b.WriteString("\n")

	if err != nil {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}
	return b.String()
}

// PresentConnectionError prints FormatConnectionError to stderr.
func PresentConnectionError(err error) {
	pterm.Fprintln(os.Stderr)
	pterm.Fprintln(os.Stderr, FormatConnectionError(err))
}
