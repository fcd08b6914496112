package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

// ValidityOverride is a human-reviewed decision on a course's validity period.
// Exactly one of Months and Never is set.
type ValidityOverride struct {
	CourseID   string `json:"-" validate:"required"`
	Months     *int   `json:"months" validate:"required_without=Never,excluded_with=Never,omitempty,min=1,max=600"`
	Never      bool   `json:"never"`
	ReviewedBy string `json:"reviewed_by" validate:"required,notblank,max=100"`
}

func (ov ValidityOverride) validityMonths() null.Int {
	if ov.Never || ov.Months == nil {
		return null.Int{}
	}
	return null.IntFrom(*ov.Months)
}

type RederiveResult struct {
	RunID          string             `json:"run_id"`
	CourseID       string             `json:"course_id"`
	ValidityMonths null.Int           `json:"validity_months"`
	Examined       int                `json:"examined"`
	Updated        int                `json:"updated"`
	Anomalies      []training.Anomaly `json:"anomalies"`
}

// Overrider applies validity overrides.
type Overrider struct {
	store    training.Store
	validate *validator.Validate
	engine   *Engine
	logger   core.Logger
	now      func() time.Time
}

func NewOverrider(store training.Store, validate *validator.Validate, logger core.Logger, conf core.ReconcileConfig) *Overrider {
	return &Overrider{
		store:    store,
		validate: validate,
		engine:   NewEngine(store, logger, OptionsFromConfig(conf)),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Override sets and locks the canonical validity of a course, then re-derives the
// expiry of every record of that course, across all locations and archived ones
// included. Only records whose expiry changes are written.
func (o *Overrider) Override(ctx context.Context, ov ValidityOverride) (*RederiveResult, error) {
	if err := o.validate.Struct(ov); err != nil {
		return nil, err
	}
	if _, err := o.store.GetCourse(ctx, ov.CourseID); err != nil {
		return nil, err
	}

	months := ov.validityMonths()
	if err := o.store.SetCourseValidity(ctx, ov.CourseID, months, true); err != nil {
		return nil, errors.Wrap(err, "setting course validity")
	}
	o.logger.Info("course validity overridden", map[string]interface{}{
		"course":     ov.CourseID,
		"months":     monthsString(months),
		"reviewedBy": ov.ReviewedBy,
	})

	return o.Rederive(ctx, ov.CourseID, months)
}

// Rederive recomputes the expiry of every record of a course from its completion date.
func (o *Overrider) Rederive(ctx context.Context, courseID string, months null.Int) (*RederiveResult, error) {
	records, err := o.store.ListRecordsByCourse(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing training records")
	}

	res := &RederiveResult{RunID: uuid.NewString(), CourseID: courseID, ValidityMonths: months, Examined: len(records)}
	now := o.now()

	var writes []Write
	for _, rec := range records {
		expiry, err := training.ExpiryFor(rec.CompletionDate, months)
		if err != nil {
			res.Anomalies = append(res.Anomalies, training.Anomaly{
				Kind:       training.AnomalyInvalidDate,
				LocationID: rec.LocationID,
				StaffID:    rec.StaffID,
				CourseID:   rec.CourseID,
				Raw:        rec.CompletionDate.String(),
				Detail:     fmt.Sprintf("cannot derive expiry: %v", err),
			})
			continue
		}
		if rec.ExpiryDate.Equal(expiry) {
			continue
		}
		rec.ExpiryDate = expiry
		rec.UpdatedAt = now
		writes = append(writes, Write{Kind: WriteExpiry, Record: rec, Reason: "expiry re-derivation"})
	}

	if len(writes) > 0 {
		applied, failed := o.engine.writer.apply(context.WithoutCancel(ctx), "", writes)
		res.Updated = applied
		res.Anomalies = append(res.Anomalies, failed...)
	}

	if len(res.Anomalies) > 0 {
		for i := range res.Anomalies {
			res.Anomalies[i].ID = uuid.NewString()
			res.Anomalies[i].RunID = res.RunID
			res.Anomalies[i].CreatedAt = now
		}
		if err := o.store.SaveAnomalies(context.WithoutCancel(ctx), res.Anomalies); err != nil {
			return res, errors.Wrap(err, "saving anomalies")
		}
	}
	return res, nil
}
