package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
	"github.com/trezcool/carematrix/tests"
)

func setup(t *testing.T) *Store {
	t.Helper()
	store := NewStore(testutil.PrepareDB(t))
	testutil.SeedDirectory(t, store.DirectoryRepository)
	return store
}

func TestDirectoryRepository(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	want := testutil.Directory()

	snap, err := training.LoadSnapshot(ctx, store)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if diff := cmp.Diff(want.Courses, snap.AllCourses()); diff != "" {
		t.Errorf("AllCourses() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Staff, snap.AllStaff()); diff != "" {
		t.Errorf("AllStaff() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Locations, snap.AllLocations()); diff != "" {
		t.Errorf("AllLocations() mismatch (-want +got):\n%s", diff)
	}
	if !snap.CourseProvisioned("oak", "mh") || snap.CourseProvisioned("elm", "mh") || !snap.StaffAssigned("elm", "amy") {
		t.Error("provisions or roster not loaded")
	}
	if got := snap.CourseAliases("mh"); len(got) != 1 || got[0] != "Manual Handling" {
		t.Errorf("CourseAliases() = %v", got)
	}

	// re-import is idempotent and keeps a locked validity
	if err = store.SetCourseValidity(ctx, "fire", null.IntFrom(24), true); err != nil {
		t.Fatalf("SetCourseValidity() error = %v", err)
	}
	testutil.SeedDirectory(t, store)
	course, err := store.GetCourse(ctx, "fire")
	if err != nil {
		t.Fatalf("GetCourse() error = %v", err)
	}
	if course.ValidityMonths != null.IntFrom(24) || !course.ValidityLocked {
		t.Errorf("GetCourse() = %+v, want locked 24 months", course)
	}
	if provs, _ := store.ListCourseProvisions(ctx); len(provs) != len(want.CourseProvisions) {
		t.Errorf("ListCourseProvisions() got %d, want %d", len(provs), len(want.CourseProvisions))
	}

	if _, err = store.GetCourse(ctx, "nope"); !errors.Is(err, training.ErrNotFound) {
		t.Errorf("GetCourse() error = %v, want %v", err, training.ErrNotFound)
	}
	if err = store.SetCourseValidity(ctx, "nope", null.IntFrom(1), true); !errors.Is(err, training.ErrNotFound) {
		t.Errorf("SetCourseValidity() error = %v, want %v", err, training.ErrNotFound)
	}
}

func TestRecordRepository_UpsertRecord(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	key := training.Key{StaffID: "jane", CourseID: "fire", LocationID: "oak"}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	booked := training.TrainingRecord{Key: key, Status: training.StatusBooked, UpdatedAt: now}
	completed := training.TrainingRecord{
		Key: key, CompletionDate: testutil.Date(2024, 3, 15), ExpiryDate: testutil.Date(2025, 3, 15),
		Status: training.StatusCompleted, UpdatedAt: now,
	}
	other := completed
	other.CompletionDate = testutil.Date(2024, 4, 1)

	steps := []struct {
		name    string
		rec     training.TrainingRecord
		wantErr error
	}{
		{name: "insert status", rec: booked},
		{name: "complete", rec: completed},
		{name: "same completion", rec: completed},
		{name: "different completion", rec: other, wantErr: training.ErrWriteConflict},
		{name: "back to status", rec: booked, wantErr: training.ErrWriteConflict},
	}
	for _, step := range steps {
		if err := store.UpsertRecord(ctx, step.rec); !errors.Is(err, step.wantErr) {
			t.Errorf("%s: UpsertRecord() error = %v, wantErr %v", step.name, err, step.wantErr)
		}
	}

	got, err := store.ListRecordsByLocation(ctx, "oak")
	if err != nil {
		t.Fatalf("ListRecordsByLocation() error = %v", err)
	}
	if diff := cmp.Diff([]training.TrainingRecord{completed}, got); diff != "" {
		t.Errorf("ListRecordsByLocation() mismatch (-want +got):\n%s", diff)
	}

	// archived records refuse upserts but accept expiry re-derivation
	if err = store.ArchiveRecord(ctx, key, " left "); err != nil {
		t.Fatalf("ArchiveRecord() error = %v", err)
	}
	if err = store.UpsertRecord(ctx, completed); !errors.Is(err, training.ErrWriteConflict) {
		t.Errorf("UpsertRecord() on archived error = %v, want %v", err, training.ErrWriteConflict)
	}
	if err = store.UpdateExpiry(ctx, key, completed.CompletionDate, testutil.Date(2026, 3, 15)); err != nil {
		t.Errorf("UpdateExpiry() error = %v", err)
	}
	if err = store.UpdateExpiry(ctx, key, other.CompletionDate, testutil.Date(2026, 4, 1)); !errors.Is(err, training.ErrWriteConflict) {
		t.Errorf("UpdateExpiry() with stale completion error = %v, want %v", err, training.ErrWriteConflict)
	}

	byCourse, _ := store.ListRecordsByCourse(ctx, "fire")
	if len(byCourse) != 1 || !byCourse[0].IsArchived() || byCourse[0].ArchiveReason != "left" ||
		!byCourse[0].ExpiryDate.Equal(testutil.Date(2026, 3, 15)) {
		t.Errorf("ListRecordsByCourse() = %+v", byCourse)
	}

	if err = store.RestoreRecord(ctx, key); err != nil {
		t.Fatalf("RestoreRecord() error = %v", err)
	}
	if err = store.UpsertRecord(ctx, completed); err != nil {
		t.Errorf("UpsertRecord() after restore error = %v", err)
	}
}

func TestRecordRepository_missing(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	key := training.Key{StaffID: "jane", CourseID: "fire", LocationID: "oak"}

	if err := store.ArchiveRecord(ctx, key, "x"); !errors.Is(err, training.ErrNotFound) {
		t.Errorf("ArchiveRecord() error = %v, want %v", err, training.ErrNotFound)
	}
	if err := store.RestoreRecord(ctx, key); !errors.Is(err, training.ErrNotFound) {
		t.Errorf("RestoreRecord() error = %v, want %v", err, training.ErrNotFound)
	}
	if err := store.UpdateExpiry(ctx, key, training.NullDate{}, training.NullDate{}); !errors.Is(err, training.ErrNotFound) {
		t.Errorf("UpdateExpiry() error = %v, want %v", err, training.ErrNotFound)
	}
}

func TestObservationRepository(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_ = store.SaveValidityObservations(ctx, []training.ValidityObservation{
		{LocationID: "oak", CourseID: "fire", Months: null.IntFrom(12), Raw: "1 year", ObservedAt: at},
		{LocationID: "elm", CourseID: "fire", Months: null.IntFrom(24), Raw: "2 years", ObservedAt: at},
	})
	if err := store.SaveValidityObservations(ctx, []training.ValidityObservation{
		{LocationID: "elm", CourseID: "fire", Raw: "never", ObservedAt: at.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("SaveValidityObservations() error = %v", err)
	}

	got, err := store.ListValidityObservations(ctx)
	if err != nil {
		t.Fatalf("ListValidityObservations() error = %v", err)
	}
	want := []training.ValidityObservation{
		{LocationID: "elm", CourseID: "fire", Raw: "never", ObservedAt: at.Add(time.Hour)},
		{LocationID: "oak", CourseID: "fire", Months: null.IntFrom(12), Raw: "1 year", ObservedAt: at},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListValidityObservations() mismatch (-want +got):\n%s", diff)
	}
}

func TestAnomalyRepository(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	saved := []training.Anomaly{
		{
			ID: "a1", RunID: "r1", Kind: training.AnomalyUnresolvedIdentity, LocationID: "oak",
			StaffName: "Jayne Smith", Row: 7, Column: 1, Raw: "Jayne Smith", Detail: "unknown staff name",
			Suggestions: []string{"Jane Smith"}, CreatedAt: t0,
		},
		{ID: "a2", RunID: "r1", Kind: training.AnomalyDateConflict, LocationID: "elm", StaffID: "amy", CourseID: "fire", Row: 3, Column: 2, CreatedAt: t0},
		{ID: "a3", RunID: "r2", Kind: training.AnomalyConflictingValidityPeriod, CourseID: "fire", CreatedAt: t0.Add(time.Hour)},
	}
	if err := store.SaveAnomalies(ctx, saved); err != nil {
		t.Fatalf("SaveAnomalies() error = %v", err)
	}

	tests := []struct {
		name     string
		filter   training.AnomalyFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "default order", want: []string{"a2", "a1", "a3"}},
		{name: "by run", filter: training.AnomalyFilter{RunID: "r1"}, want: []string{"a2", "a1"}},
		{name: "by course", filter: training.AnomalyFilter{CourseID: "fire"}, want: []string{"a2", "a3"}},
		{name: "by kind", filter: training.AnomalyFilter{Kind: training.AnomalyUnresolvedIdentity}, want: []string{"a1"}},
		{name: "newest first", ordering: []core.DBOrdering{{Field: "created_at"}, {Field: "row"}}, want: []string{"a3", "a1", "a2"}},
		{name: "unknown field ignored", ordering: []core.DBOrdering{{Field: "detail; DROP TABLE anomaly"}}, want: []string{"a2", "a1", "a3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryAnomalies(ctx, tt.filter, tt.ordering)
			if err != nil {
				t.Fatalf("QueryAnomalies() error = %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("QueryAnomalies() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got, _ := store.QueryAnomalies(ctx, training.AnomalyFilter{Kind: training.AnomalyUnresolvedIdentity}, nil)
	if diff := cmp.Diff(saved[:1], got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("stored anomaly mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_closedDatabase(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	store := NewStore(db)
	testutil.SeedDirectory(t, store)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err := training.LoadSnapshot(ctx, store)
	if !core.IsShutdown(err) {
		t.Errorf("LoadSnapshot() error = %v, want a shutdown error", err)
	}
	if _, err = store.GetCourse(ctx, "fire"); !core.IsShutdown(err) {
		t.Errorf("GetCourse() error = %v, want a shutdown error", err)
	}
	if _, err = store.QueryAnomalies(ctx, training.AnomalyFilter{}, nil); !core.IsShutdown(err) {
		t.Errorf("QueryAnomalies() error = %v, want a shutdown error", err)
	}

	// a live database never reports one
	if _, err = setup(t).GetCourse(ctx, "nope"); core.IsShutdown(err) {
		t.Errorf("GetCourse() error = %v, want no shutdown error", err)
	}
}
