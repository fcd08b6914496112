package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/matrix"
	"github.com/trezcool/carematrix/core/training"
)

type Options struct {
	WriteConcurrency int
	WriteRetries     int
	RetryBackoff     time.Duration
	WritesPerSecond  float64 // 0: unpaced
}

func OptionsFromConfig(conf core.ReconcileConfig) Options {
	return Options{
		WriteConcurrency: conf.WriteConcurrency,
		WriteRetries:     conf.WriteRetries,
		RetryBackoff:     conf.RetryBackoff,
		WritesPerSecond:  conf.WritesPerSecond,
	}
}

// Plan is what one location's matrix asks of the store.
type Plan struct {
	LocationID string
	Writes     []Write
	Anomalies  []training.Anomaly
	// Held counts completion writes withheld for courses awaiting a validity review.
	Held int
	// Unchanged counts keys whose stored record already agrees with the matrix.
	Unchanged int
}

// Engine decides and applies TrainingRecord writes. Safe for concurrent use;
// its write pacing is shared by every location it serves.
type Engine struct {
	writer *writer
	now    func() time.Time
}

func NewEngine(store training.RecordStore, logger core.Logger, opts Options) *Engine {
	return &Engine{
		writer: newWriter(store, logger, opts),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Decide compares the resolved cells of one location with its stored records.
// It has no side effects.
func (e *Engine) Decide(locationID string, cells []Cell, stored []training.TrainingRecord, snap *training.Snapshot, check ValidityCheck) *Plan {
	plan := &Plan{LocationID: locationID}
	now := e.now()

	records := make(map[training.Key]training.TrainingRecord, len(stored))
	for _, rec := range stored {
		records[rec.Key] = rec
	}

	// cells per key, in first-seen order
	var keys []training.Key
	byKey := make(map[training.Key][]Cell)
	for _, c := range cells {
		if _, ok := byKey[c.Key]; !ok {
			keys = append(keys, c.Key)
		}
		byKey[c.Key] = append(byKey[c.Key], c)
	}

	for _, key := range keys {
		var dates, statuses []Cell
		for _, c := range byKey[key] {
			switch c.Value.Kind {
			case matrix.CellDate:
				dates = append(dates, c)
			case matrix.CellStatus:
				statuses = append(statuses, c)
			case matrix.CellUnrecognized:
				plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyUnparsedCell, c,
					fmt.Sprintf("%q is neither a day/month/year date nor a known status", c.Value.Raw)))
			}
		}

		rec, exists := records[key]
		course, _ := snap.Course(key.CourseID)
		switch {
		case len(dates) > 0:
			e.decideDate(plan, dates, rec, exists, course, check.IsHeld(key.CourseID), now)
		case len(statuses) > 0:
			e.decideStatus(plan, statuses, rec, exists, now)
		}
	}
	return plan
}

// decideDate: dates win over statuses for one key; two different dates are a conflict.
func (e *Engine) decideDate(plan *Plan, cells []Cell, rec training.TrainingRecord, exists bool, course training.Course, held bool, now time.Time) {
	c := cells[0]
	d := c.Value.Date
	for _, other := range cells[1:] {
		if other.Value.Date != d {
			plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyDateConflict, c,
				fmt.Sprintf("matrix holds several completion dates for this key: %s", joinDates(cells))))
			return
		}
	}

	if !d.IsValid() {
		plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyInvalidDate, c,
			fmt.Sprintf("%s is not a calendar date", d.DMY())))
		return
	}
	if exists && rec.IsArchived() {
		plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyArchivedRecord, c,
			"record is archived; restore it before importing"))
		return
	}
	if exists && rec.CompletionDate.Valid && rec.CompletionDate.Date != d {
		plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyDateConflict, c,
			fmt.Sprintf("stored completion date %s differs from matrix date %s; stored date kept", rec.CompletionDate.Date.DMY(), d.DMY())))
		return
	}

	expiry, err := training.Expiry(d, course.ValidityMonths)
	if err != nil {
		plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyInvalidDate, c,
			fmt.Sprintf("cannot derive expiry: %v", err)))
		return
	}

	completion := training.DateFrom(d)
	if exists && rec.CompletionDate.Equal(completion) && rec.ExpiryDate.Equal(expiry) && rec.Status == training.StatusCompleted {
		plan.Unchanged++
		return
	}
	if held {
		plan.Held++
		return
	}

	reason := "completion"
	if exists && rec.CompletionDate.Valid {
		reason = "expiry re-derivation"
	}
	plan.Writes = append(plan.Writes, cellWrite(c, reason, training.TrainingRecord{
		Key:            c.Key,
		CompletionDate: completion,
		ExpiryDate:     expiry,
		Status:         training.StatusCompleted,
		UpdatedAt:      now,
	}))
}

// decideStatus: a recorded completion supersedes any scheduling status.
func (e *Engine) decideStatus(plan *Plan, cells []Cell, rec training.TrainingRecord, exists bool, now time.Time) {
	c := cells[0] // first status wins among duplicates
	status := c.Value.Status

	if exists && rec.IsArchived() {
		plan.Anomalies = append(plan.Anomalies, cellAnomaly(training.AnomalyArchivedRecord, c,
			"record is archived; restore it before importing"))
		return
	}
	if exists && (rec.CompletionDate.Valid || rec.Status == status) {
		plan.Unchanged++
		return
	}
	plan.Writes = append(plan.Writes, cellWrite(c, "status", training.TrainingRecord{
		Key:       c.Key,
		Status:    status,
		UpdatedAt: now,
	}))
}

// Apply issues the plan's writes. ctx should not carry the run deadline: decided
// writes are always attempted so that no key is left half-applied.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (int, []training.Anomaly) {
	if len(plan.Writes) == 0 {
		return 0, nil
	}
	return e.writer.apply(ctx, plan.LocationID, plan.Writes)
}

func cellWrite(c Cell, reason string, rec training.TrainingRecord) Write {
	return Write{
		Kind:       WriteUpsert,
		Record:     rec,
		Reason:     reason,
		StaffName:  c.StaffNameRaw,
		CourseName: c.CourseNameRaw,
		Row:        c.Row,
		Column:     c.Column,
	}
}

func cellAnomaly(kind training.AnomalyKind, c Cell, detail string) training.Anomaly {
	return training.Anomaly{
		Kind:       kind,
		LocationID: c.Key.LocationID,
		StaffID:    c.Key.StaffID,
		CourseID:   c.Key.CourseID,
		StaffName:  c.StaffNameRaw,
		CourseName: c.CourseNameRaw,
		Row:        c.Row,
		Column:     c.Column,
		Raw:        c.Value.Raw,
		Detail:     detail,
	}
}

func joinDates(cells []Cell) string {
	parts := make([]string, 0, len(cells))
	for _, c := range cells {
		parts = append(parts, c.Value.Date.DMY())
	}
	return strings.Join(parts, ", ")
}
