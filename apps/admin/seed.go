package main

import (
	"context"
	"fmt"

	"github.com/trezcool/carematrix/storage/yamlfile"
)

// seed creates or updates the canonical directory from a YAML file.
// Courses whose validity was locked by an override keep it.
func (cli *commandLine) seed(args []string) error {
	cmd := cli.newFlagSet("seed")
	file := cmd.String("file", "", "The YAML directory file.")
	if err := parse(cmd, args); err != nil {
		return err
	}
	if *file == "" {
		cmd.Usage()
		return errHelp
	}

	data, err := yamlfile.LoadFile(*file, cli.validate)
	if err != nil {
		return err
	}
	if err = cli.store.ImportDirectory(context.Background(), data); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "imported %d staff, %d courses and %d locations\n", len(data.Staff), len(data.Courses), len(data.Locations))
	return nil
}
