package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/trezcool/carematrix/core/reconcile"
)

// setValidity locks a course's validity period after human review and re-derives the
// expiry of all its records.
func (cli *commandLine) setValidity(args []string) error {
	cmd := cli.newFlagSet("setvalidity")
	course := cmd.String("course", "", "The course ID.")
	months := cmd.Int("months", 0, "The reviewed validity period, in months.")
	never := cmd.Bool("never", false, "The course never expires.")
	reviewer := cmd.String("reviewer", "", "Who reviewed the validity period.")
	yes := cmd.Bool("yes", false, "Do not ask for confirmation.")
	if err := parse(cmd, args); err != nil {
		return err
	}

	ov := reconcile.ValidityOverride{CourseID: *course, Never: *never, ReviewedBy: *reviewer}
	cmd.Visit(func(f *flag.Flag) {
		if f.Name == "months" {
			ov.Months = months
		}
	})
	if err := cli.validate.Struct(ov); err != nil {
		cmd.Usage()
		return err
	}

	if !*yes {
		period := "never expires"
		if ov.Months != nil {
			period = fmt.Sprintf("%d months", *ov.Months)
		}
		ok, err := confirmFunc(fmt.Sprintf("Lock %s at %s and re-derive the expiry of all its records?", ov.CourseID, period))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	o := reconcile.NewOverrider(cli.store, cli.validate, cli.logger, cli.conf)
	res, err := o.Override(context.Background(), ov)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %d records examined, %d updated, %d anomalies\n", res.CourseID, res.Examined, res.Updated, len(res.Anomalies))
	for _, a := range res.Anomalies {
		fmt.Fprintf(cli.out, "  %s %s/%s/%s: %s\n", a.Kind, a.LocationID, a.StaffID, a.CourseID, a.Detail)
	}
	return nil
}
