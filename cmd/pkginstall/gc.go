package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/distribution/pkginstall/deptree"
	"github.com/distribution/pkginstall/lockfile"
	"github.com/distribution/pkginstall/pkgmap"
	"github.com/distribution/pkginstall/reclaim"
)

const packageMapFilename = ".package-map.json"

func newGCCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "reclaim install directories no longer represented in .package-map.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				var err error
				prefix, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			return runGC(cmd, prefix)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "install prefix; defaults to the current directory")
	return cmd
}

func runGC(cmd *cobra.Command, prefix string) error {
	root, _, err := lockfile.BuildTree(prefix)
	if err != nil {
		return fmt.Errorf("gc: building dependency tree: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(prefix, packageMapFilename))
	if err != nil {
		return fmt.Errorf("gc: reading %s: %w", packageMapFilename, err)
	}
	var m pkgmap.Map
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("gc: parsing %s: %w", packageMapFilename, err)
	}

	dead := deadNodes(root, &m)
	purged, err := reclaim.Sweep(cmd.Context(), root, prefix, dead, osRemover{})
	if err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	for path := range purged {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "gc: purged %d directories\n", len(purged))
	return nil
}

// deadNodes treats reclaim.Sweep's "failed but optional" input set as
// "any non-root node no longer present in the persisted package map",
// letting gc reuse the same mark-and-sweep pass an install run uses
// for optional-dependency failures.
func deadNodes(root *deptree.Node, m *pkgmap.Map) map[*deptree.Node]bool {
	dead := map[*deptree.Node]bool{}
	var walk func(n *deptree.Node)
	walk = func(n *deptree.Node) {
		if !n.IsRoot && !m.Has(n.Address) {
			dead[n] = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return dead
}
