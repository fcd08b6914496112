package training

import (
	"context"
	"errors"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
)

var (
	// errors
	ErrNotFound      = errors.New("not found")
	ErrInvalidDate   = errors.New("invalid calendar date")
	ErrInvalidMonths = errors.New("validity months must be positive")
	// ErrWriteConflict is returned by a conditional upsert whose stored state no longer
	// allows the write: a different completion date is recorded, or the record is archived.
	ErrWriteConflict = errors.New("stored record conflicts with write")
)

type (
	// Directory is the read interface over the canonical staff, course and location catalogs.
	Directory interface {
		ListStaff(ctx context.Context) ([]Staff, error)
		ListCourses(ctx context.Context) ([]Course, error)
		ListCourseAliases(ctx context.Context) ([]CourseAlias, error)
		ListLocations(ctx context.Context) ([]Location, error)
		// ListCourseProvisions lists which courses are provisioned per location.
		ListCourseProvisions(ctx context.Context) ([]Provision, error)
		// ListStaffRoster lists which staff members belong to each location.
		ListStaffRoster(ctx context.Context) ([]Provision, error)
	}

	// CourseCatalog changes canonical course data; only used for human-reviewed overrides.
	CourseCatalog interface {
		GetCourse(ctx context.Context, id string) (Course, error)
		SetCourseValidity(ctx context.Context, courseID string, months null.Int, locked bool) error
	}

	DirectoryImporter interface {
		// ImportDirectory creates or updates every entity and link of data.
		ImportDirectory(ctx context.Context, data DirectoryData) error
	}

	// RecordStore persists TrainingRecords. There is no hard delete.
	RecordStore interface {
		// ListRecordsByLocation lists all records of a location, archived ones included.
		ListRecordsByLocation(ctx context.Context, locationID string) ([]TrainingRecord, error)
		// ListRecordsByCourse lists all records of a course across locations, archived ones included.
		ListRecordsByCourse(ctx context.Context, courseID string) ([]TrainingRecord, error)
		// UpsertRecord creates or updates rec by key. The write only applies when the stored
		// record is not archived and has no completion date or the same one as rec;
		// otherwise ErrWriteConflict is returned and nothing changes.
		UpsertRecord(ctx context.Context, rec TrainingRecord) error
		// UpdateExpiry rewrites the expiry of a record, archived ones included, provided its
		// completion date is still completion; otherwise ErrWriteConflict is returned.
		UpdateExpiry(ctx context.Context, key Key, completion, expiry NullDate) error
		ArchiveRecord(ctx context.Context, key Key, reason string) error
		RestoreRecord(ctx context.Context, key Key) error
	}

	ObservationStore interface {
		// SaveValidityObservations replaces the stored observation of each (location, course).
		SaveValidityObservations(ctx context.Context, obs []ValidityObservation) error
		ListValidityObservations(ctx context.Context) ([]ValidityObservation, error)
	}

	AnomalyStore interface {
		SaveAnomalies(ctx context.Context, anomalies []Anomaly) error
		QueryAnomalies(ctx context.Context, filter AnomalyFilter, ordering []core.DBOrdering) ([]Anomaly, error)
	}

	// Store gathers everything the reconciliation pipeline reads and writes.
	Store interface {
		Directory
		CourseCatalog
		RecordStore
		ObservationStore
		AnomalyStore
	}
)
