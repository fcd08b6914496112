package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

type anomalyRepository struct {
	db *anomalyTable
}

var _ training.AnomalyStore = (*anomalyRepository)(nil)

func NewAnomalyRepository(db *DB) *anomalyRepository {
	return &anomalyRepository{db: db.anomaly}
}

func (repo *anomalyRepository) SaveAnomalies(_ context.Context, anomalies []training.Anomaly) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range anomalies {
		a.Suggestions = append([]string(nil), a.Suggestions...)
		repo.db.t = append(repo.db.t, a)
	}
	return nil
}

// QueryAnomalies returns the anomalies matching filter, in insertion order unless
// ordering says otherwise. Unknown ordering fields are ignored.
func (repo *anomalyRepository) QueryAnomalies(_ context.Context, filter training.AnomalyFilter, ordering []core.DBOrdering) ([]training.Anomaly, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]training.Anomaly, 0)
	for _, a := range repo.db.t {
		if filter.RunID != "" && a.RunID != filter.RunID ||
			filter.LocationID != "" && a.LocationID != filter.LocationID ||
			filter.Kind != "" && a.Kind != filter.Kind ||
			filter.CourseID != "" && a.CourseID != filter.CourseID {
			continue
		}
		res = append(res, a)
	}

	var ords []core.DBOrdering
	for _, ord := range ordering {
		if training.AnomalyOrderingFields[ord.Field] {
			ords = append(ords, ord)
		}
	}
	if len(ords) > 0 {
		sort.SliceStable(res, func(i, j int) bool {
			for _, ord := range ords {
				c := compareAnomalies(res[i], res[j], ord.Field)
				if c == 0 {
					continue
				}
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	return res, nil
}

func compareAnomalies(a, b training.Anomaly, field string) int {
	switch field {
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
		return 0
	case "row":
		return a.Row - b.Row
	case "kind":
		return strings.Compare(string(a.Kind), string(b.Kind))
	case "location_id":
		return strings.Compare(a.LocationID, b.LocationID)
	case "course_id":
		return strings.Compare(a.CourseID, b.CourseID)
	case "staff_id":
		return strings.Compare(a.StaffID, b.StaffID)
	}
	return 0
}
