package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core/training"
)

type recordRepository struct {
	db *recordTable
}

var _ training.RecordStore = (*recordRepository)(nil)

func NewRecordRepository(db *DB) *recordRepository {
	return &recordRepository{db: db.record}
}

func (repo *recordRepository) query(match func(rec *training.TrainingRecord) bool) []training.TrainingRecord {
	records := make([]training.TrainingRecord, 0)
	for _, key := range repo.db.order {
		if rec := repo.db.t[key]; match(rec) {
			records = append(records, *rec)
		}
	}
	return records
}

func (repo *recordRepository) ListRecordsByLocation(_ context.Context, locationID string) ([]training.TrainingRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(func(rec *training.TrainingRecord) bool { return rec.LocationID == locationID }), nil
}

func (repo *recordRepository) ListRecordsByCourse(_ context.Context, courseID string) ([]training.TrainingRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(func(rec *training.TrainingRecord) bool { return rec.CourseID == courseID }), nil
}

func (repo *recordRepository) UpsertRecord(_ context.Context, rec training.TrainingRecord) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.t[rec.Key]
	if !ok {
		rec.ArchivedAt = null.Time{}
		rec.ArchiveReason = ""
		repo.db.t[rec.Key] = &rec
		repo.db.order = append(repo.db.order, rec.Key)
		return nil
	}
	if stored.IsArchived() || (stored.CompletionDate.Valid && !stored.CompletionDate.Equal(rec.CompletionDate)) {
		return training.ErrWriteConflict
	}
	stored.CompletionDate = rec.CompletionDate
	stored.ExpiryDate = rec.ExpiryDate
	stored.Status = rec.Status
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}

func (repo *recordRepository) UpdateExpiry(_ context.Context, key training.Key, completion, expiry training.NullDate) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.t[key]
	if !ok {
		return training.ErrNotFound
	}
	if !stored.CompletionDate.Equal(completion) {
		return training.ErrWriteConflict
	}
	stored.ExpiryDate = expiry
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *recordRepository) ArchiveRecord(_ context.Context, key training.Key, reason string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.t[key]
	if !ok {
		return training.ErrNotFound
	}
	now := time.Now().UTC()
	stored.ArchivedAt = null.TimeFrom(now)
	stored.ArchiveReason = strings.TrimSpace(reason)
	stored.UpdatedAt = now
	return nil
}

func (repo *recordRepository) RestoreRecord(_ context.Context, key training.Key) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.t[key]
	if !ok {
		return training.ErrNotFound
	}
	stored.ArchivedAt = null.Time{}
	stored.ArchiveReason = ""
	stored.UpdatedAt = time.Now().UTC()
	return nil
}
