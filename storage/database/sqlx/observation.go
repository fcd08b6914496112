package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

type observationRow struct {
	LocationID string    `db:"location_id"`
	CourseID   string    `db:"course_id"`
	Months     null.Int  `db:"months"`
	Raw        string    `db:"raw"`
	ObservedAt time.Time `db:"observed_at"`
}

type ObservationRepository struct {
	repo
}

var _ training.ObservationStore = (*ObservationRepository)(nil)

func NewObservationRepository(db core.DB) *ObservationRepository {
	return &ObservationRepository{repo{db: db}}
}

func (r *ObservationRepository) SaveValidityObservations(ctx context.Context, obs []training.ValidityObservation) error {
	if len(obs) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx core.DBExecutor) error {
		q := tx.Rebind(`INSERT INTO validity_observation (location_id, course_id, months, raw, observed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (location_id, course_id) DO UPDATE SET
				months = excluded.months, raw = excluded.raw, observed_at = excluded.observed_at`)
		for _, o := range obs {
			if _, err := tx.ExecContext(ctx, q, o.LocationID, o.CourseID, o.Months, o.Raw, o.ObservedAt.UTC()); err != nil {
				return errors.Wrapf(err, "saving validity observation of %s at %s", o.CourseID, o.LocationID)
			}
		}
		return nil
	})
}

func (r *ObservationRepository) ListValidityObservations(ctx context.Context) ([]training.ValidityObservation, error) {
	var rows []observationRow
	q := "SELECT location_id, course_id, months, raw, observed_at FROM validity_observation ORDER BY course_id, location_id"
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, wrapDBErr(err, "selecting validity observations")
	}

	obs := make([]training.ValidityObservation, 0, len(rows))
	for _, row := range rows {
		obs = append(obs, training.ValidityObservation{
			LocationID: row.LocationID,
			CourseID:   row.CourseID,
			Months:     row.Months,
			Raw:        row.Raw,
			ObservedAt: row.ObservedAt.UTC(),
		})
	}
	return obs, nil
}
