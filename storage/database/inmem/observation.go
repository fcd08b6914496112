package inmemdb

import (
	"context"

	"github.com/trezcool/carematrix/core/training"
)

type observationRepository struct {
	db *observationTable
}

var _ training.ObservationStore = (*observationRepository)(nil)

func NewObservationRepository(db *DB) *observationRepository {
	return &observationRepository{db: db.observation}
}

func (repo *observationRepository) SaveValidityObservations(_ context.Context, obs []training.ValidityObservation) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, o := range obs {
		key := observationKey{locationID: o.LocationID, courseID: o.CourseID}
		if _, ok := repo.db.t[key]; !ok {
			repo.db.order = append(repo.db.order, key)
		}
		repo.db.t[key] = o
	}
	return nil
}

func (repo *observationRepository) ListValidityObservations(context.Context) ([]training.ValidityObservation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	obs := make([]training.ValidityObservation, 0, len(repo.db.order))
	for _, key := range repo.db.order {
		obs = append(obs, repo.db.t[key])
	}
	return obs, nil
}
