package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phobologic/cladeguess/internal/config"
)

// newInitCmd implements `cladeguess init`, which writes the default
// configuration file.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun, force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Long: `Write the default cladeguess configuration as YAML. path defaults to
./` + config.DefaultPath + `. An existing file is left alone unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.DefaultConfig().Marshal()
			if err != nil {
				return err
			}
			if dryRun {
				_, err := stdout.Write(data)
				return err
			}

			path := config.DefaultPath
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stderr, "wrote default config to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the config instead of writing it")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
