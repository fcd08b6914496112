package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/carematrix/core/identity"
	"github.com/trezcool/carematrix/core/matrix"
	"github.com/trezcool/carematrix/core/training"
)

// Cell is a parsed cell whose staff and course names resolved to canonical IDs.
type Cell struct {
	matrix.ParsedCell
	Key training.Key
}

// Resolution is a parsed matrix mapped onto canonical identities.
type Resolution struct {
	LocationID   string
	Cells        []Cell
	Observations []training.ValidityObservation
	Anomalies    []training.Anomaly
}

// Resolve maps every parsed cell through the location's resolver. Cells with a staff
// or course name that does not resolve are dropped; each distinct failing name is
// reported once, at its first occurrence.
func Resolve(parsed *matrix.ParseResult, r *identity.Resolver, now time.Time) *Resolution {
	locationID := r.LocationID()
	res := &Resolution{LocationID: locationID}
	reported := make(map[string]bool)

	report := func(what, raw string, out identity.Result, row, col int) {
		key := what + "\x00" + raw
		if reported[key] {
			return
		}
		reported[key] = true

		a := training.Anomaly{
			Kind:        training.AnomalyUnresolvedIdentity,
			LocationID:  locationID,
			Row:         row,
			Column:      col,
			Raw:         raw,
			Detail:      unresolvedDetail(what, out),
			Suggestions: out.Suggestions,
		}
		if what == "staff" {
			a.StaffName = raw
		} else {
			a.CourseName = raw
		}
		res.Anomalies = append(res.Anomalies, a)
	}

	for _, pc := range parsed.Entries {
		staff := r.ResolveStaff(pc.StaffNameRaw)
		if !staff.OK() {
			report("staff", pc.StaffNameRaw, staff, pc.Row, 1)
		}
		course := r.ResolveCourse(pc.CourseNameRaw)
		if !course.OK() {
			report("course", pc.CourseNameRaw, course, parsed.HeaderRow, pc.Column)
		}
		if !staff.OK() || !course.OK() {
			continue
		}
		res.Cells = append(res.Cells, Cell{
			ParsedCell: pc,
			Key:        training.Key{StaffID: staff.ID, CourseID: course.ID, LocationID: locationID},
		})
	}

	seenCourse := make(map[string]bool)
	for _, vc := range parsed.Validity {
		course := r.ResolveCourse(vc.CourseNameRaw)
		if !course.OK() {
			report("course", vc.CourseNameRaw, course, parsed.HeaderRow, vc.Column)
			continue
		}
		// columns of one course stating the same period collapse; differing ones are all kept
		seen := course.ID + "\x00" + monthsString(vc.Months)
		if seenCourse[seen] {
			continue
		}
		seenCourse[seen] = true
		res.Observations = append(res.Observations, training.ValidityObservation{
			LocationID: locationID,
			CourseID:   course.ID,
			Months:     vc.Months,
			Raw:        vc.Raw,
			ObservedAt: now,
		})
	}

	for _, w := range parsed.Warnings {
		a := training.Anomaly{
			LocationID: locationID,
			Row:        w.Row,
			Column:     w.Column,
			Raw:        w.Raw,
			Detail:     w.Message,
		}
		switch w.Kind {
		case matrix.WarnUnreadableValidity:
			a.Kind = training.AnomalyUnparsedCell
		default:
			a.Kind = training.AnomalySkippedRow
		}
		res.Anomalies = append(res.Anomalies, a)
	}
	return res
}

func unresolvedDetail(what string, out identity.Result) string {
	switch out.Outcome {
	case identity.Ambiguous:
		return fmt.Sprintf("ambiguous %s name (%s rule matches %s)", what, out.Rule, strings.Join(out.Candidates, ", "))
	case identity.NotProvisioned:
		return fmt.Sprintf("%s %s is not linked to this location", what, strings.Join(out.Candidates, ", "))
	default:
		return fmt.Sprintf("unknown %s name", what)
	}
}
