// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"strings"
	"testing"

	rberrors "rowbase/cli/pkg/errors"
)

func TestFormatConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "authentication",
			err:  rberrors.New(rberrors.Authentication, "invalid api key"),
			want: "rowbase login",
		},
		{
			name: "transport",
			err:  rberrors.Wrap(rberrors.Transport, "gave up after 10 connection attempts", errors.New("connection refused")),
			want: "could not be re-established",
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: "ended unexpectedly",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatConnectionError(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Errorf("FormatConnectionError() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestFormatConnectionError_MasksDetails(t *testing.T) {
	err := rberrors.Wrap(rberrors.Transport, "dial wss://x.test/realtime?apikey=rb_live_secret", errors.New("refused"))
	if got := FormatConnectionError(err); strings.Contains(got, "rb_live_secret") {
		t.Errorf("API key leaked: %q", got)
	}
}

func TestPresentError(t *testing.T) {
	if got := PresentError("connect", nil); got != "" {
		t.Errorf("PresentError(nil) = %q", got)
	}
	got := PresentError("sink", errors.New("dial postgres://u:p@h/db failed"))
	if got != "sink: dial postgres://*:*@h/db failed" {
		t.Errorf("PresentError() = %q", got)
	}
}
