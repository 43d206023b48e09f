package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "clipforge",
		Short:         "Local AI video editing agent",
		Long:          "clipforge runs the AI video editing session engine: a local HTTP API\nfor interactive sessions and a one-shot pipeline runner for scripting.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newProcessCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
