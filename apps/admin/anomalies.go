package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

func (cli *commandLine) anomalies(args []string) error {
	cmd := cli.newFlagSet("anomalies")
	location := cmd.String("location", "", "Only anomalies of this location (ID or code).")
	kind := cmd.String("kind", "", "Only anomalies of this kind.")
	run := cmd.String("run", "", "Only anomalies raised by this run.")
	course := cmd.String("course", "", "Only anomalies of this course.")
	ordering := cmd.String("ordering", "", `Comma separated fields to order by, "-" prefix for descending.`)
	asJSON := cmd.Bool("json", false, "Print anomalies as JSON.")
	if err := parse(cmd, args); err != nil {
		return err
	}

	ctx := context.Background()
	filter := training.AnomalyFilter{RunID: *run, Kind: training.AnomalyKind(*kind), CourseID: *course}
	if *location != "" {
		id, err := cli.locationID(ctx, *location)
		if err != nil {
			return err
		}
		filter.LocationID = id
	}

	anomalies, err := cli.store.QueryAnomalies(ctx, filter, core.ParseOrdering(*ordering))
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(anomalies)
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tKIND\tLOCATION\tROW\tCOL\tRAW\tDETAIL")
	for _, a := range anomalies {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			a.CreatedAt.Format("2006-01-02 15:04"), a.Kind, a.LocationID, a.Row, a.Column, a.Raw, a.Detail)
	}
	return w.Flush()
}
