package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core/training"
)

// ValidityCheck is the outcome of comparing the validity periods locations state.
type ValidityCheck struct {
	// Held holds the IDs of courses whose completion and expiry writes wait for a
	// human-reviewed validity override.
	Held      map[string]bool
	Anomalies []training.Anomaly
}

func (vc ValidityCheck) IsHeld(courseID string) bool { return vc.Held[courseID] }

// CheckValidity compares, per course, the validity periods stated by every location.
// current holds this run's observations; stored holds earlier runs', where an entry for
// a (location, course) observed again in current is superseded. A course with more than
// one distinct period yields exactly one ConflictingValidityPeriod anomaly and is held,
// unless a human already locked its validity. Nothing is ever picked automatically.
func CheckValidity(snap *training.Snapshot, current, stored []training.ValidityObservation) ValidityCheck {
	type locCourse struct{ location, course string }

	fresh := make(map[locCourse]bool, len(current))
	for _, o := range current {
		fresh[locCourse{o.LocationID, o.CourseID}] = true
	}
	merged := append([]training.ValidityObservation(nil), current...)
	for _, o := range stored {
		if !fresh[locCourse{o.LocationID, o.CourseID}] {
			merged = append(merged, o)
		}
	}

	// course -> period -> locations
	periods := make(map[string]map[string]map[string]bool)
	for _, o := range merged {
		byPeriod, ok := periods[o.CourseID]
		if !ok {
			byPeriod = make(map[string]map[string]bool)
			periods[o.CourseID] = byPeriod
		}
		p := monthsString(o.Months)
		if byPeriod[p] == nil {
			byPeriod[p] = make(map[string]bool)
		}
		byPeriod[p][o.LocationID] = true
	}

	courseIDs := make([]string, 0, len(periods))
	for id := range periods {
		courseIDs = append(courseIDs, id)
	}
	sort.Strings(courseIDs)

	check := ValidityCheck{Held: make(map[string]bool)}
	for _, id := range courseIDs {
		byPeriod := periods[id]
		if len(byPeriod) < 2 {
			continue
		}
		course, ok := snap.Course(id)
		if !ok || course.ValidityLocked {
			continue
		}

		check.Held[id] = true
		check.Anomalies = append(check.Anomalies, training.Anomaly{
			Kind:       training.AnomalyConflictingValidityPeriod,
			CourseID:   id,
			CourseName: course.Name,
			Detail: fmt.Sprintf(
				"locations disagree on the validity period (%s); catalog has %s, writes are held until reviewed",
				describePeriods(snap, byPeriod), monthsString(course.ValidityMonths),
			),
		})
	}
	return check
}

func describePeriods(snap *training.Snapshot, byPeriod map[string]map[string]bool) string {
	keys := make([]string, 0, len(byPeriod))
	for p := range byPeriod {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, p := range keys {
		var locs []string
		for id := range byPeriod[p] {
			if l, ok := snap.Location(id); ok && l.Code != "" {
				id = l.Code
			}
			locs = append(locs, id)
		}
		sort.Strings(locs)
		parts = append(parts, fmt.Sprintf("%s at %s", p, strings.Join(locs, ", ")))
	}
	return strings.Join(parts, "; ")
}

func monthsString(months null.Int) string {
	if !months.Valid {
		return "never expires"
	}
	return fmt.Sprintf("%d months", months.Int)
}
