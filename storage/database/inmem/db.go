package inmemdb

import (
	"sync"

	"github.com/trezcool/carematrix/core/training"
)

type (
	DB struct {
		directory   *directoryTable
		record      *recordTable
		observation *observationTable
		anomaly     *anomalyTable
	}

	directoryTable struct {
		mutex      sync.RWMutex
		staff      []training.Staff
		courses    []training.Course
		aliases    []training.CourseAlias
		locations  []training.Location
		provisions []training.Provision
		roster     []training.Provision
	}

	recordTable struct {
		mutex sync.RWMutex
		order []training.Key
		t     map[training.Key]*training.TrainingRecord
	}

	observationKey struct {
		locationID string
		courseID   string
	}

	observationTable struct {
		mutex sync.RWMutex
		order []observationKey
		t     map[observationKey]training.ValidityObservation
	}

	anomalyTable struct {
		mutex sync.RWMutex
		t     []training.Anomaly
	}
)

func Open() (*DB, error) {
	db := &DB{
		directory:   &directoryTable{},
		record:      &recordTable{t: make(map[training.Key]*training.TrainingRecord)},
		observation: &observationTable{t: make(map[observationKey]training.ValidityObservation)},
		anomaly:     &anomalyTable{},
	}
	return db, nil
}

// store gathers every repository over one DB.
type store struct {
	*directoryRepository
	*recordRepository
	*observationRepository
	*anomalyRepository
}

var _ training.Store = (*store)(nil) // interface compliance check

// NewStore returns a training.Store kept in memory; used for dry runs and tests.
func NewStore(db *DB) training.Store {
	return &store{
		directoryRepository:   NewDirectoryRepository(db),
		recordRepository:      NewRecordRepository(db),
		observationRepository: NewObservationRepository(db),
		anomalyRepository:     NewAnomalyRepository(db),
	}
}
