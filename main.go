package main

import (
	"fmt"
	"os"

	"github.com/conneroisu/quill/cmd"
	"github.com/conneroisu/quill/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errors.FormatError(err))
		os.Exit(1)
	}
}
