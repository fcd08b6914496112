package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/reconcile"
	"github.com/trezcool/carematrix/core/training"
)

var (
	confirmFunc = confirm // mockable

	errHelp       = errors.New("help provided")
	errAborted    = errors.New("aborted")
	errNoTerminal = errors.New("no terminal to confirm on, pass -yes")
)

type store interface {
	training.Store
	training.DirectoryImporter
}

type commandLine struct {
	db       *sqlx.DB
	store    store
	validate *validator.Validate
	logger   core.Logger
	recorder reconcile.Recorder
	notifier *reconcile.ReviewNotifier
	conf     core.ReconcileConfig
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose command (up, down, status, redo...)")
	fmt.Fprintln(cli.out, "  seed -file FILE                                         - import staff, courses and locations from a YAML file")
	fmt.Fprintln(cli.out, "  reconcile [-dry-run] [-json] [LOCATION=]FILE...         - reconcile matrix exports; LOCATION defaults to the file name")
	fmt.Fprintln(cli.out, "  setvalidity -course ID (-months N | -never) -reviewer NAME [-yes]")
	fmt.Fprintln(cli.out, "                                                          - lock a course's validity and re-derive expiries")
	fmt.Fprintln(cli.out, "  archive -location LOC -staff ID -course ID -reason TEXT  - archive a training record")
	fmt.Fprintln(cli.out, "  restore -location LOC -staff ID -course ID              - restore an archived training record")
	fmt.Fprintln(cli.out, "  anomalies [-location LOC] [-kind KIND] [-run ID] [-course ID] [-ordering FIELDS] [-json]")
	fmt.Fprintln(cli.out, "                                                          - list anomalies awaiting review")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seed":
		return cli.seed(args[2:])
	case "reconcile":
		return cli.reconcile(args[2:])
	case "setvalidity":
		return cli.setValidity(args[2:])
	case "archive":
		return cli.archive(args[2:])
	case "restore":
		return cli.restore(args[2:])
	case "anomalies":
		return cli.anomalies(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

// locationID accepts a location ID or code.
func (cli *commandLine) locationID(ctx context.Context, s string) (string, error) {
	locs, err := cli.store.ListLocations(ctx)
	if err != nil {
		return "", err
	}
	s = core.CleanString(s)
	for _, loc := range locs {
		if loc.ID == s || strings.EqualFold(loc.Code, s) {
			return loc.ID, nil
		}
	}
	return "", errors.Wrapf(training.ErrNotFound, "location %q", s)
}

// confirm asks a yes/no question on the controlling terminal.
func confirm(prompt string) (bool, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return false, errNoTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return false, err
	}
	defer func() { _ = term.Restore(fd, state) }()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "")
	fmt.Fprintf(t, "%s [y/N] ", prompt)
	line, err := t.ReadLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
