// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"sync"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

// statusLine keeps a one-line connection status pinned below streamed
// output. When the output is not a terminal it degrades to plain lines.
type statusLine struct {
	mu      sync.Mutex
	w       io.Writer
	live    bool
	text    string
	visible bool
}

func newStatusLine(w io.Writer, live bool) *statusLine {
	if live {
		cursor.Hide()
	}
	return &statusLine{w: w, live: live}
}

func (s *statusLine) clear() {
	if s.visible {
		cursor.StartOfLine()
		cursor.ClearLine()
		s.visible = false
	}
}

func (s *statusLine) draw() {
	if s.live && s.text != "" {
		fmt.Fprint(s.w, s.text)
		s.visible = true
	}
}

// Set replaces the status text.
func (s *statusLine) Set(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		if text != s.text {
			pterm.Fprintln(s.w, text)
		}
		s.text = text
		return
	}
	s.clear()
	s.text = text
	s.draw()
}

// Println prints a line above the status.
func (s *statusLine) Println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	fmt.Fprintln(s.w, line)
	s.draw()
}

// Stop removes the status and restores the cursor.
func (s *statusLine) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		s.clear()
		cursor.Show()
	}
}
