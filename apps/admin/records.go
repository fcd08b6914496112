package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

func (cli *commandLine) recordKey(cmd *flag.FlagSet, args []string, extra func(*flag.FlagSet)) (training.Key, error) {
	location := cmd.String("location", "", "The location ID or code.")
	staff := cmd.String("staff", "", "The staff member ID.")
	course := cmd.String("course", "", "The course ID.")
	if extra != nil {
		extra(cmd)
	}
	if err := parse(cmd, args); err != nil {
		return training.Key{}, err
	}
	if *location == "" || *staff == "" || *course == "" {
		cmd.Usage()
		return training.Key{}, errHelp
	}

	locationID, err := cli.locationID(context.Background(), *location)
	if err != nil {
		return training.Key{}, err
	}
	return training.Key{StaffID: core.CleanString(*staff), CourseID: core.CleanString(*course), LocationID: locationID}, nil
}

// archive hides a training record from reconciliation; matrix data for it is reported
// instead of applied.
func (cli *commandLine) archive(args []string) error {
	cmd := cli.newFlagSet("archive")
	var reason *string
	key, err := cli.recordKey(cmd, args, func(fs *flag.FlagSet) {
		reason = fs.String("reason", "", "Why the record is archived.")
	})
	if err != nil {
		return err
	}
	if core.CleanString(*reason) == "" {
		cmd.Usage()
		return errHelp
	}

	if err = cli.store.ArchiveRecord(context.Background(), key, *reason); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "archived %s\n", key)
	return nil
}

func (cli *commandLine) restore(args []string) error {
	cmd := cli.newFlagSet("restore")
	key, err := cli.recordKey(cmd, args, nil)
	if err != nil {
		return err
	}

	if err = cli.store.RestoreRecord(context.Background(), key); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "restored %s\n", key)
	return nil
}
