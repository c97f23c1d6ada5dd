// Command pkginstall drives the content-addressed package installer
// core from the command line: install runs the full Orchestrator
// pipeline, gc reclaims dead install directories without a full
// reinstall, and cat-blob is a debug helper over the
// content-addressed store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distribution/pkginstall/version"
)

var (
	cfgFile     string
	showVersion bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pkginstall",
		Short: "content-addressed package installer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				version.PrintVersion()
				return nil
			}
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a pkginstall configuration file")
	root.Flags().BoolVar(&showVersion, "version", false, "show the version and exit")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newGCCmd())
	root.AddCommand(newCatBlobCmd())

	return root
}
