// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the rowbase CLI.
package main

import (
	"rowbase/cli/cmd"
)

func main() {
	cmd.Execute()
}
