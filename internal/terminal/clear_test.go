// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"bytes"
	"strings"
	"testing"
)

func TestLinesFor(t *testing.T) {
	tests := []struct {
		length, width, want int
	}{
		{0, 80, 2},
		{10, 80, 2},
		{80, 80, 2},
		{81, 80, 3},
		{200, 40, 6},
		{10, 0, 2},
	}
	for _, tt := range tests {
		if got := linesFor(tt.length, tt.width); got != tt.want {
			t.Errorf("linesFor(%d, %d) = %d, want %d", tt.length, tt.width, got, tt.want)
		}
	}
}

func TestClearLines(t *testing.T) {
	var buf bytes.Buffer
	clearLines(&buf, 3)
	out := buf.String()
	if n := strings.Count(out, "\x1b[2K"); n != 3 {
		t.Errorf("cleared %d lines, want 3", n)
	}
	if n := strings.Count(out, "\x1b[1A"); n != 2 {
		t.Errorf("moved up %d times, want 2", n)
	}
}
