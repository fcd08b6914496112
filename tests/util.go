package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
	"github.com/trezcool/carematrix/storage/database"
)

// Logger discards every message.
type Logger struct{}

var _ core.Logger = Logger{}

func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}

// PrepareDB opens a migrated in-memory SQLite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := &core.Config{Database: core.DatabaseConfig{Engine: database.SQLite, Name: ":memory:"}}

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// Directory returns two locations with their staff and courses:
// Oak House (OAK) runs Fire Safety, First Aid and Moving & Handling; Elm Court (ELM)
// runs Fire Safety and First Aid.
func Directory() training.DirectoryData {
	return training.DirectoryData{
		Staff: []training.Staff{
			{ID: "amy", Name: "Amy Pond"},
			{ID: "jane", Name: "Jane Smith"},
			{ID: "john", Name: "John Doe"},
		},
		Courses: []training.Course{
			{ID: "aid", Name: "First Aid", ValidityMonths: null.IntFrom(36)},
			{ID: "fire", Name: "Fire Safety", ValidityMonths: null.IntFrom(12)},
			{ID: "mh", Name: "Moving & Handling"},
		},
		CourseAliases: []training.CourseAlias{
			{CourseID: "mh", Alias: "Manual Handling"},
		},
		Locations: []training.Location{
			{ID: "elm", Code: "ELM", Name: "Elm Court"},
			{ID: "oak", Code: "OAK", Name: "Oak House"},
		},
		CourseProvisions: []training.Provision{
			{LocationID: "elm", EntityID: "aid"},
			{LocationID: "elm", EntityID: "fire"},
			{LocationID: "oak", EntityID: "aid"},
			{LocationID: "oak", EntityID: "fire"},
			{LocationID: "oak", EntityID: "mh"},
		},
		StaffRoster: []training.Provision{
			{LocationID: "elm", EntityID: "amy"},
			{LocationID: "oak", EntityID: "jane"},
			{LocationID: "oak", EntityID: "john"},
		},
	}
}

// SeedDirectory imports Directory().
func SeedDirectory(t *testing.T, importer training.DirectoryImporter) training.DirectoryData {
	t.Helper()
	data := Directory()
	if err := importer.ImportDirectory(context.Background(), data); err != nil {
		t.Fatalf("SeedDirectory() failed: %v", err)
	}
	return data
}

func CreateRecord(t *testing.T, store training.RecordStore, rec training.TrainingRecord) training.TrainingRecord {
	t.Helper()
	if err := store.UpsertRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}

func Date(y, m, d int) training.NullDate {
	return training.DateFrom(training.NewDate(y, time.Month(m), d))
}
