package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/phobologic/cladeguess/internal/discover"
)

// newLCACmd implements `cladeguess lca`, which answers a single round of the
// game: the deepest clade shared by the given species.
func newLCACmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "lca <dataset> <label> [label...]",
		Short: "Print the lowest common ancestor of species",
		Long: `Print the lowest common ancestor of the given species labels followed by
its lineage from the root. Exclusion patterns are not applied.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd, nil)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, opts, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			d, err := discover.Resolve(cfg.InputDir, args[0], "")
			if err != nil {
				return err
			}
			tree, err := loadTaxonomy(d, false, logger.Named(d.Name))
			if err != nil {
				return err
			}
			n, err := tree.LCAOf(args[1:]...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, n.Name)
			_, _ = fmt.Fprintln(stdout, tree.Lineage(n))
			return nil
		},
	}
}
