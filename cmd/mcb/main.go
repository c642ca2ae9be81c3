// Package main provides the entry point for the mcb CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/mcb/cmd/mcb/cmd"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, mcberrors.FormatForCLI(err))
		os.Exit(1)
	}
}
