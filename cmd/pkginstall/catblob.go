package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distribution/pkginstall/digest"
	"github.com/distribution/pkginstall/storagedriver/filesystem"
	"github.com/distribution/pkginstall/store"
)

func newCatBlobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat-blob <cache> <digest>",
		Short: "write a content-addressed blob's bytes to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cacheDir, rawDigest := args[0], args[1]

			dgst, err := digest.Parse(rawDigest)
			if err != nil {
				return fmt.Errorf("cat-blob: %w", err)
			}

			st := store.New(filesystem.New(cacheDir), nil)
			body, err := st.Get(cmd.Context(), dgst)
			if err != nil {
				return fmt.Errorf("cat-blob: %w", err)
			}

			_, err = os.Stdout.Write(body)
			return err
		},
	}
}
