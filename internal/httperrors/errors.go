// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors turns failures of one-shot REST calls into messages a
// terminal user can act on.
package httperrors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"rowbase/cli/internal/logging"
	rberrors "rowbase/cli/pkg/errors"
)

type problem int

const (
	generic problem = iota
	invalidInput
	timeout
	dns
	refused
	tls
	unauthorized
	notFound
	rateLimited
	serverFault
	rejected
)

// Report prints a user-friendly explanation of err to stderr and returns err
// unchanged so callers can still return it from a command.
func Report(err error, context string) error {
	if err == nil {
		return nil
	}
	render(os.Stderr, err, context)
	return err
}

func render(w io.Writer, err error, context string) {
	p := func(format string, a ...any) { pterm.Fprint(w, fmt.Sprintf(format, a...)) }
	host := hostOf(err)

	switch classify(err) {
	case invalidInput:
		p("✖ Invalid request while %s\n\n", context)
		p("  %s\n\n", logging.Mask(err.Error()))
		p("Fix the arguments and try again. Nothing was sent to the server.\n\n")
		return
	case timeout:
		p("⏱️  Connection timeout while %s\n\n", context)
		p("The server took too long to respond. This could mean:\n")
		p("  • Slow internet connection\n")
		p("  • Server is under heavy load\n")
		p("  • Network firewall is blocking the connection\n\n")
		p("Please try again in a few moments, or raise http_timeout in the config.\n\n")
	case dns:
		p("🌐 Cannot resolve server address while %s\n\n", context)
		p("Unable to look up %s. Please check:\n", host)
		p("  • Your internet connection is working\n")
		p("  • api_url in the rowbase config is spelled correctly\n")
		p("  • No DNS-level blocking (corporate firewall, VPN)\n\n")
	case refused:
		p("🚫 Connection refused while %s\n\n", context)
		p("%s is not accepting connections. This could mean:\n", host)
		p("  • The project is paused or being restarted\n")
		p("  • Wrong server address or port\n\n")
	case tls:
		p("🔒 Secure connection failed while %s\n\n", context)
		p("Cannot establish a secure HTTPS connection. This could mean:\n")
		p("  • SSL/TLS certificate issue\n")
		p("  • Network proxy interfering with HTTPS\n")
		p("  • System clock is incorrect\n\n")
	case unauthorized:
		p("🔑 The API key was rejected while %s\n\n", context)
		p("Run 'rowbase login' with a key for this project, or set ROWBASE_API_KEY.\n\n")
	case notFound:
		p("❓ Not found while %s\n\n", context)
		p("Check the table name and row id. Table names are case-sensitive.\n\n")
	case rateLimited:
		p("🐢 Rate limited while %s\n\n", context)
		p("The project is receiving too many requests. Wait a moment and retry.\n\n")
	case serverFault:
		p("⚠️  Server error while %s\n\n", context)
		p("The rowbase API encountered an internal error.\n")
		p("This is not a problem with your query. Please try again in a few minutes.\n\n")
	case rejected:
		p("✖ The server rejected the request while %s\n\n", context)
	default:
		p("❌ Cannot reach the rowbase API while %s\n\n", context)
		p("Please check:\n")
		p("  • Your internet connection\n")
		p("  • Whether %s is accessible from your network\n", host)
		p("  • Firewall settings that might block HTTPS requests\n\n")
	}

	details := logging.Mask(err.Error())
	if len(details) > 200 {
		details = details[:200] + "..."
	}
	p("%s\n\n", pterm.NewStyle(pterm.FgGray).Sprint("Technical details: "+details))
}

func classify(err error) problem {
	var e *rberrors.E
	if errors.As(err, &e) {
		switch e.Kind {
		case rberrors.Validation:
			return invalidInput
		case rberrors.Authentication:
			return unauthorized
		case rberrors.Server:
			switch {
			case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
				return unauthorized
			case e.Status == http.StatusNotFound:
				return notFound
			case e.Status == http.StatusTooManyRequests:
				return rateLimited
			case e.Status >= 500:
				return serverFault
			case e.Status != 0:
				return rejected
			}
		}
	}

	switch {
	case isTimeoutError(err):
		return timeout
	case isDNSError(err):
		return dns
	case isConnectionRefusedError(err):
		return refused
	case isTLSError(err):
		return tls
	}
	return generic
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isTLSError(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "tls") ||
		strings.Contains(lower, "x509") ||
		strings.Contains(lower, "certificate")
}

// hostOf digs the request host out of a *url.Error in err's chain.
func hostOf(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil && u.Host != "" {
			return u.Host
		}
	}
	return "the server"
}
