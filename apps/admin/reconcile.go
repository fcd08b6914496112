package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core/matrix"
	"github.com/trezcool/carematrix/core/reconcile"
)

func (cli *commandLine) reconcile(args []string) error {
	cmd := cli.newFlagSet("reconcile")
	dryRun := cmd.Bool("dry-run", false, "Report what would change without writing anything.")
	asJSON := cmd.Bool("json", false, "Print the full run result as JSON.")
	if err := parse(cmd, args); err != nil {
		return err
	}
	if cmd.NArg() == 0 {
		cmd.Usage()
		return errHelp
	}

	inputs := make([]reconcile.MatrixInput, 0, cmd.NArg())
	for _, arg := range cmd.Args() {
		in, err := readMatrix(arg)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	p := reconcile.NewPipeline(cli.store, cli.logger, cli.recorder, cli.conf).NotifyReviewers(cli.notifier)
	res, err := p.Run(context.Background(), inputs, reconcile.RunOptions{DryRun: *dryRun})
	if res != nil {
		if *asJSON {
			enc := json.NewEncoder(cli.out)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
		} else {
			printRunResult(cli, res)
		}
	}
	return err
}

// readMatrix reads a "[LOCATION=]FILE" argument.
func readMatrix(arg string) (reconcile.MatrixInput, error) {
	location, path := "", arg
	if i := strings.Index(arg, "="); i > 0 {
		location, path = arg[:i], arg[i+1:]
	}
	if location == "" {
		location = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return reconcile.MatrixInput{}, errors.Wrap(err, "reading matrix")
	}
	grid, err := matrix.ReadCSV(data)
	if err != nil {
		return reconcile.MatrixInput{}, errors.Wrapf(err, "reading %s", path)
	}
	return reconcile.MatrixInput{Location: location, Grid: grid, Source: filepath.Base(path)}, nil
}

func printRunResult(cli *commandLine, res *reconcile.RunResult) {
	mode := ""
	if res.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(cli.out, "run %s%s: %d writes applied, %d held, %d anomalies\n",
		res.RunID, mode, res.WritesApplied, res.Held, len(res.Anomalies))

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INPUT\tLOCATION\tSTATUS\tCELLS\tPLANNED\tAPPLIED\tHELD\tUNCHANGED\tANOMALIES")
	for _, lr := range res.Locations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			lr.Input, lr.LocationID, lr.Status, lr.Cells, lr.WritesPlanned, lr.WritesApplied, lr.Held, lr.Unchanged, lr.Anomalies)
	}
	_ = w.Flush()
}
