package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

const anomalyColumns = `id, run_id, kind, location_id, staff_name, course_name, staff_id, course_id,
	row_num, col_num, raw, detail, suggestions, created_at`

// anomaly ordering fields to columns
var anomalyOrderColumns = map[string]string{
	"created_at":  "created_at",
	"kind":        "kind",
	"location_id": "location_id",
	"course_id":   "course_id",
	"staff_id":    "staff_id",
	"row":         "row_num",
}

type anomalyRow struct {
	ID          string    `db:"id"`
	RunID       string    `db:"run_id"`
	Kind        string    `db:"kind"`
	LocationID  string    `db:"location_id"`
	StaffName   string    `db:"staff_name"`
	CourseName  string    `db:"course_name"`
	StaffID     string    `db:"staff_id"`
	CourseID    string    `db:"course_id"`
	Row         int       `db:"row_num"`
	Column      int       `db:"col_num"`
	Raw         string    `db:"raw"`
	Detail      string    `db:"detail"`
	Suggestions string    `db:"suggestions"` // JSON array
	CreatedAt   time.Time `db:"created_at"`
}

func boilAnomaly(a training.Anomaly) (anomalyRow, error) {
	suggestions := a.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	sugg, err := json.Marshal(suggestions)
	if err != nil {
		return anomalyRow{}, err
	}
	return anomalyRow{
		ID:          a.ID,
		RunID:       a.RunID,
		Kind:        string(a.Kind),
		LocationID:  a.LocationID,
		StaffName:   a.StaffName,
		CourseName:  a.CourseName,
		StaffID:     a.StaffID,
		CourseID:    a.CourseID,
		Row:         a.Row,
		Column:      a.Column,
		Raw:         a.Raw,
		Detail:      a.Detail,
		Suggestions: string(sugg),
		CreatedAt:   a.CreatedAt.UTC(),
	}, nil
}

func (row anomalyRow) unboil() training.Anomaly {
	a := training.Anomaly{
		ID:         row.ID,
		RunID:      row.RunID,
		Kind:       training.AnomalyKind(row.Kind),
		LocationID: row.LocationID,
		StaffName:  row.StaffName,
		CourseName: row.CourseName,
		StaffID:    row.StaffID,
		CourseID:   row.CourseID,
		Row:        row.Row,
		Column:     row.Column,
		Raw:        row.Raw,
		Detail:     row.Detail,
		CreatedAt:  row.CreatedAt.UTC(),
	}
	_ = json.Unmarshal([]byte(row.Suggestions), &a.Suggestions)
	if len(a.Suggestions) == 0 {
		a.Suggestions = nil
	}
	return a
}

type AnomalyRepository struct {
	repo
}

var _ training.AnomalyStore = (*AnomalyRepository)(nil)

func NewAnomalyRepository(db core.DB) *AnomalyRepository {
	return &AnomalyRepository{repo{db: db}}
}

func (r *AnomalyRepository) SaveAnomalies(ctx context.Context, anomalies []training.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx core.DBExecutor) error {
		q := `INSERT INTO anomaly (` + anomalyColumns + `) VALUES (
			:id, :run_id, :kind, :location_id, :staff_name, :course_name, :staff_id, :course_id,
			:row_num, :col_num, :raw, :detail, :suggestions, :created_at)`
		for _, a := range anomalies {
			row, err := boilAnomaly(a)
			if err != nil {
				return errors.Wrapf(err, "encoding anomaly %s", a.ID)
			}
			if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
				return errors.Wrapf(err, "inserting anomaly %s", a.ID)
			}
		}
		return nil
	})
}

// QueryAnomalies returns the anomalies matching filter, oldest first unless ordering
// says otherwise. Unknown ordering fields are ignored.
func (r *AnomalyRepository) QueryAnomalies(ctx context.Context, filter training.AnomalyFilter, ordering []core.DBOrdering) ([]training.Anomaly, error) {
	var (
		where []string
		args  []interface{}
	)
	for _, cond := range []struct {
		col, val string
	}{
		{"run_id", filter.RunID},
		{"location_id", filter.LocationID},
		{"kind", string(filter.Kind)},
		{"course_id", filter.CourseID},
	} {
		if cond.val != "" {
			where = append(where, cond.col+" = ?")
			args = append(args, cond.val)
		}
	}

	q := "SELECT " + anomalyColumns + " FROM anomaly"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderList := make([]string, 0, len(ordering)+2)
	for _, ord := range ordering {
		if col, ok := anomalyOrderColumns[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	orderList = append(orderList, "created_at ASC", "row_num ASC", "id ASC")
	q += " ORDER BY " + strings.Join(orderList, ", ")

	var rows []anomalyRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "selecting anomalies")
	}
	anomalies := make([]training.Anomaly, 0, len(rows))
	for _, row := range rows {
		anomalies = append(anomalies, row.unboil())
	}
	return anomalies, nil
}
