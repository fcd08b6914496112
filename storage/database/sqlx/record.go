package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

const recordColumns = `staff_id, course_id, location_id, completion_date, expiry_date, status,
	updated_at, archived_at, archive_reason`

type recordRow struct {
	StaffID        string      `db:"staff_id"`
	CourseID       string      `db:"course_id"`
	LocationID     string      `db:"location_id"`
	CompletionDate null.String `db:"completion_date"`
	ExpiryDate     null.String `db:"expiry_date"`
	Status         string      `db:"status"`
	UpdatedAt      time.Time   `db:"updated_at"`
	ArchivedAt     null.Time   `db:"archived_at"`
	ArchiveReason  string      `db:"archive_reason"`
}

func (row recordRow) unboil() (training.TrainingRecord, error) {
	rec := training.TrainingRecord{
		Key:           training.Key{StaffID: row.StaffID, CourseID: row.CourseID, LocationID: row.LocationID},
		Status:        training.Status(row.Status),
		UpdatedAt:     row.UpdatedAt.UTC(),
		ArchiveReason: row.ArchiveReason,
	}
	if row.ArchivedAt.Valid {
		rec.ArchivedAt = null.TimeFrom(row.ArchivedAt.Time.UTC())
	}

	var err error
	if rec.CompletionDate, err = unboilDate(row.CompletionDate); err != nil {
		return rec, errors.Wrapf(err, "record %s completion date", rec.Key)
	}
	if rec.ExpiryDate, err = unboilDate(row.ExpiryDate); err != nil {
		return rec, errors.Wrapf(err, "record %s expiry date", rec.Key)
	}
	return rec, nil
}

type RecordRepository struct {
	repo
}

var _ training.RecordStore = (*RecordRepository)(nil)

func NewRecordRepository(db core.DB) *RecordRepository {
	return &RecordRepository{repo{db: db}}
}

func (r *RecordRepository) list(ctx context.Context, where string, arg interface{}) ([]training.TrainingRecord, error) {
	var rows []recordRow
	q := r.db.Rebind("SELECT " + recordColumns + " FROM training_record WHERE " + where + " ORDER BY staff_id, course_id, location_id")
	if err := r.db.SelectContext(ctx, &rows, q, arg); err != nil {
		return nil, wrapDBErr(err, "selecting training records")
	}

	records := make([]training.TrainingRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.unboil()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *RecordRepository) ListRecordsByLocation(ctx context.Context, locationID string) ([]training.TrainingRecord, error) {
	return r.list(ctx, "location_id = ?", locationID)
}

func (r *RecordRepository) ListRecordsByCourse(ctx context.Context, courseID string) ([]training.TrainingRecord, error) {
	return r.list(ctx, "course_id = ?", courseID)
}

// UpsertRecord is a single conditional statement: the update only happens while the stored
// record is active and has no completion date or the same one, so concurrent writers cannot
// overwrite a recorded completion.
func (r *RecordRepository) UpsertRecord(ctx context.Context, rec training.TrainingRecord) error {
	q := r.db.Rebind(`INSERT INTO training_record (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, '')
		ON CONFLICT (staff_id, course_id, location_id) DO UPDATE SET
			completion_date = excluded.completion_date,
			expiry_date = excluded.expiry_date,
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE training_record.archived_at IS NULL
			AND (training_record.completion_date IS NULL OR training_record.completion_date = excluded.completion_date)`)

	updatedAt := rec.UpdatedAt.UTC()
	if rec.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		rec.StaffID, rec.CourseID, rec.LocationID,
		boilDate(rec.CompletionDate), boilDate(rec.ExpiryDate), string(rec.Status), updatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting training record %s", rec.Key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(err, "upserting training record")
	}
	if n == 0 {
		return training.ErrWriteConflict
	}
	return nil
}

func (r *RecordRepository) UpdateExpiry(ctx context.Context, key training.Key, completion, expiry training.NullDate) error {
	q := `UPDATE training_record SET expiry_date = ?, updated_at = ?
		WHERE staff_id = ? AND course_id = ? AND location_id = ? AND `
	args := []interface{}{boilDate(expiry), time.Now().UTC(), key.StaffID, key.CourseID, key.LocationID}
	if completion.Valid {
		q += "completion_date = ?"
		args = append(args, boilDate(completion))
	} else {
		q += "completion_date IS NULL"
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return errors.Wrapf(err, "updating expiry of %s", key)
	}
	if n, err := res.RowsAffected(); err != nil {
		return wrapDBErr(err, "updating expiry")
	} else if n == 0 {
		return r.missingOrConflict(ctx, key)
	}
	return nil
}

func (r *RecordRepository) ArchiveRecord(ctx context.Context, key training.Key, reason string) error {
	now := time.Now().UTC()
	q := r.db.Rebind(`UPDATE training_record SET archived_at = ?, archive_reason = ?, updated_at = ?
		WHERE staff_id = ? AND course_id = ? AND location_id = ?`)
	return r.update(ctx, q, "archiving", key, now, strings.TrimSpace(reason), now, key.StaffID, key.CourseID, key.LocationID)
}

func (r *RecordRepository) RestoreRecord(ctx context.Context, key training.Key) error {
	q := r.db.Rebind(`UPDATE training_record SET archived_at = NULL, archive_reason = '', updated_at = ?
		WHERE staff_id = ? AND course_id = ? AND location_id = ?`)
	return r.update(ctx, q, "restoring", key, time.Now().UTC(), key.StaffID, key.CourseID, key.LocationID)
}

func (r *RecordRepository) update(ctx context.Context, q, what string, key training.Key, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrapf(err, "%s training record %s", what, key)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return training.ErrNotFound
	}
	return nil
}

func (r *RecordRepository) missingOrConflict(ctx context.Context, key training.Key) error {
	var n int
	q := r.db.Rebind("SELECT COUNT(*) FROM training_record WHERE staff_id = ? AND course_id = ? AND location_id = ?")
	if err := r.db.GetContext(ctx, &n, q, key.StaffID, key.CourseID, key.LocationID); err != nil {
		return wrapDBErr(err, "checking training record")
	}
	if n == 0 {
		return training.ErrNotFound
	}
	return training.ErrWriteConflict
}
