package reconcile

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/goleak"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
	inmemdb "github.com/trezcool/carematrix/storage/database/inmem"
	"github.com/trezcool/carematrix/tests"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() core.ReconcileConfig {
	return core.ReconcileConfig{
		Deadline:            time.Minute,
		LocationConcurrency: 2,
		WriteConcurrency:    4,
		WriteRetries:        2,
		RetryBackoff:        time.Millisecond,
		HeaderScanRows:      15,
	}
}

func newTestStore(t *testing.T) training.Store {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store := inmemdb.NewStore(db)
	testutil.SeedDirectory(t, store.(training.DirectoryImporter))
	return store
}

func oakGrid() [][]string {
	return [][]string{
		{"Oak House Training Matrix"},
		{},
		{"Staff Name", "Fire Safety", "First Aid", "Moving & Handling"},
		{"Date valid for", "1 year", "3 years", "never"},
		{"Management"},
		{"Jane Smith", "15/03/2024", "01/02/2023", "Booked"},
		{"Carers"},
		{"John Doe", "Booked", "", ""},
	}
}

func elmGrid(fireValidity string) [][]string {
	return [][]string{
		{"Staff Name", "Fire Safety", "First Aid"},
		{"Date valid for", fireValidity, "3 years"},
		{"Amy Pond", "10/01/2024", "20/06/2022"},
	}
}

func countKind(anomalies []training.Anomaly, kind training.AnomalyKind) int {
	var n int
	for _, a := range anomalies {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func records(t *testing.T, store training.Store, locationID string) map[training.Key]training.TrainingRecord {
	t.Helper()
	recs, err := store.ListRecordsByLocation(context.Background(), locationID)
	if err != nil {
		t.Fatalf("ListRecordsByLocation() error = %v", err)
	}
	res := make(map[training.Key]training.TrainingRecord, len(recs))
	for _, r := range recs {
		res[r.Key] = r
	}
	return res
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := NewPipeline(store, testutil.Logger{}, nil, testConfig())

	inputs := []MatrixInput{{Location: "OAK", Grid: oakGrid(), Source: "oak.csv"}}
	res, err := p.Run(ctx, inputs, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.WritesApplied != 4 || len(res.Anomalies) != 0 {
		t.Fatalf("Run() applied %d writes, %d anomalies %+v; want 4, 0", res.WritesApplied, len(res.Anomalies), res.Anomalies)
	}
	if got := res.Locations[0]; got.Status != StatusReconciled || got.LocationID != "oak" || got.Cells != 4 {
		t.Errorf("Locations[0] = %+v", got)
	}

	got := records(t, store, "oak")
	want := map[training.Key]struct {
		completion, expiry training.NullDate
		status             training.Status
	}{
		{StaffID: "jane", CourseID: "fire", LocationID: "oak"}: {testutil.Date(2024, 3, 15), testutil.Date(2025, 3, 15), training.StatusCompleted},
		{StaffID: "jane", CourseID: "aid", LocationID: "oak"}:  {testutil.Date(2023, 2, 1), testutil.Date(2026, 2, 1), training.StatusCompleted},
		{StaffID: "jane", CourseID: "mh", LocationID: "oak"}:   {training.NullDate{}, training.NullDate{}, training.StatusBooked},
		{StaffID: "john", CourseID: "fire", LocationID: "oak"}: {training.NullDate{}, training.NullDate{}, training.StatusBooked},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for key, w := range want {
		rec := got[key]
		if !rec.CompletionDate.Equal(w.completion) || !rec.ExpiryDate.Equal(w.expiry) || rec.Status != w.status {
			t.Errorf("record %s = %v %v %s, want %v %v %s", key, rec.CompletionDate, rec.ExpiryDate, rec.Status, w.completion, w.expiry, w.status)
		}
	}

	obs, _ := store.ListValidityObservations(ctx)
	if len(obs) != 3 {
		t.Errorf("ListValidityObservations() got %d, want 3", len(obs))
	}

	// same input again changes nothing
	res, err = p.Run(ctx, inputs, RunOptions{})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.WritesApplied != 0 || res.Locations[0].WritesPlanned != 0 || res.Locations[0].Unchanged != 4 {
		t.Errorf("second Run() = %+v, want no writes and 4 unchanged", res.Locations[0])
	}
}

func TestPipeline_Run_neverOverwritesCompletion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := training.Key{StaffID: "jane", CourseID: "fire", LocationID: "oak"}
	stored := training.TrainingRecord{Key: key, CompletionDate: testutil.Date(2024, 1, 2), ExpiryDate: testutil.Date(2025, 1, 2), Status: training.StatusCompleted}
	if err := store.UpsertRecord(ctx, stored); err != nil {
		t.Fatalf("UpsertRecord() error = %v", err)
	}

	res, _ := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(ctx, []MatrixInput{{Location: "oak", Grid: oakGrid()}}, RunOptions{})

	if n := countKind(res.Anomalies, training.AnomalyDateConflict); n != 1 {
		t.Fatalf("got %d DateConflict anomalies, want 1: %+v", n, res.Anomalies)
	}
	a := res.Anomalies[0]
	if a.StaffID != "jane" || a.CourseID != "fire" || a.Row != 6 || a.Column != 2 || a.RunID != res.RunID || a.ID == "" {
		t.Errorf("anomaly = %+v", a)
	}
	if rec := records(t, store, "oak")[key]; !rec.CompletionDate.Equal(stored.CompletionDate) || !rec.ExpiryDate.Equal(stored.ExpiryDate) {
		t.Errorf("stored record changed to %v %v", rec.CompletionDate, rec.ExpiryDate)
	}

	saved, _ := store.QueryAnomalies(ctx, training.AnomalyFilter{RunID: res.RunID}, nil)
	if len(saved) != len(res.Anomalies) {
		t.Errorf("saved %d anomalies, want %d", len(saved), len(res.Anomalies))
	}
}

func TestPipeline_Run_conflictingValidityHoldsWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	inputs := []MatrixInput{
		{Location: "oak", Grid: oakGrid()},
		{Location: "elm", Grid: elmGrid("2 years")},
	}

	res, err := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(ctx, inputs, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := countKind(res.Anomalies, training.AnomalyConflictingValidityPeriod); n != 1 {
		t.Fatalf("got %d ConflictingValidityPeriod anomalies, want 1: %+v", n, res.Anomalies)
	}
	a := res.Anomalies[0]
	if a.CourseID != "fire" || !strings.Contains(a.Detail, "12 months at OAK") || !strings.Contains(a.Detail, "24 months at ELM") {
		t.Errorf("anomaly = %+v", a)
	}
	if res.Held != 2 {
		t.Errorf("Held = %d, want 2", res.Held)
	}

	fire, _ := store.ListRecordsByCourse(ctx, "fire")
	for _, rec := range fire {
		if rec.CompletionDate.Valid || rec.ExpiryDate.Valid {
			t.Errorf("held course written: %+v", rec)
		}
	}
	// other courses are not held
	if rec := records(t, store, "elm")[training.Key{StaffID: "amy", CourseID: "aid", LocationID: "elm"}]; !rec.ExpiryDate.Equal(testutil.Date(2025, 6, 20)) {
		t.Errorf("amy/aid expiry = %v, want 2025-06-20", rec.ExpiryDate)
	}

	// an export on its own still conflicts with the stored observation of the other location
	res, _ = NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(ctx, inputs[1:], RunOptions{})
	if n := countKind(res.Anomalies, training.AnomalyConflictingValidityPeriod); n != 1 {
		t.Errorf("got %d ConflictingValidityPeriod anomalies on rerun, want 1", n)
	}
}

func TestPipeline_Run_agreeingValidity(t *testing.T) {
	store := newTestStore(t)
	inputs := []MatrixInput{
		{Location: "oak", Grid: oakGrid()},
		{Location: "elm", Grid: elmGrid("12 months")},
	}
	res, _ := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(context.Background(), inputs, RunOptions{})
	if n := countKind(res.Anomalies, training.AnomalyConflictingValidityPeriod); n != 0 || res.Held != 0 {
		t.Errorf("got %d conflicts and %d held, want none", n, res.Held)
	}
}

func TestPipeline_Run_dryRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	grid := append(oakGrid(), []string{"Rory Williams", "01/01/2024"})

	res, err := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(ctx, []MatrixInput{{Location: "oak", Grid: grid}}, RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.DryRun || res.WritesApplied != 0 || res.Locations[0].WritesPlanned != 4 {
		t.Errorf("Run() = %+v", res.Locations[0])
	}
	if n := countKind(res.Anomalies, training.AnomalyUnresolvedIdentity); n != 1 {
		t.Errorf("got %d UnresolvedIdentity anomalies, want 1", n)
	}
	if recs := records(t, store, "oak"); len(recs) != 0 {
		t.Errorf("dry run wrote %d records", len(recs))
	}
	if obs, _ := store.ListValidityObservations(ctx); len(obs) != 0 {
		t.Errorf("dry run saved %d observations", len(obs))
	}
	if saved, _ := store.QueryAnomalies(ctx, training.AnomalyFilter{}, nil); len(saved) != 0 {
		t.Errorf("dry run saved %d anomalies", len(saved))
	}
}

func TestPipeline_Run_locationFailures(t *testing.T) {
	store := newTestStore(t)
	inputs := []MatrixInput{
		{Location: "Birch Lodge", Grid: oakGrid()},
		{Location: "elm", Grid: [][]string{{"nothing"}, {"to", "see"}}},
		{Location: "oak", Grid: oakGrid()},
		{Location: "Oak House", Grid: oakGrid()},
	}
	res, err := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(context.Background(), inputs, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantStatus := []LocationStatus{StatusFailed, StatusFailed, StatusReconciled, StatusFailed}
	for i, lr := range res.Locations {
		if lr.Status != wantStatus[i] {
			t.Errorf("Locations[%d].Status = %s, want %s (%s)", i, lr.Status, wantStatus[i], lr.Error)
		}
	}
	if n := countKind(res.Anomalies, training.AnomalyHeaderNotFound); n != 1 {
		t.Errorf("got %d HeaderNotFound anomalies, want 1", n)
	}
	if n := countKind(res.Anomalies, training.AnomalyLocationFailed); n != 2 {
		t.Errorf("got %d LocationFailed anomalies, want 2", n)
	}
	if res.WritesApplied != 4 {
		t.Errorf("WritesApplied = %d, want 4", res.WritesApplied)
	}
}

type failingStore struct {
	training.Store
	calls int32
}

func (s *failingStore) UpsertRecord(context.Context, training.TrainingRecord) error {
	atomic.AddInt32(&s.calls, 1)
	return errors.New("connection reset")
}

func TestPipeline_Run_writeFailure(t *testing.T) {
	store := &failingStore{Store: newTestStore(t)}
	grid := [][]string{
		{"Staff Name", "Fire Safety"},
		{"Jane Smith", "15/03/2024"},
	}

	res, err := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(context.Background(), []MatrixInput{{Location: "oak", Grid: grid}}, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := atomic.LoadInt32(&store.calls); got != 3 {
		t.Errorf("UpsertRecord called %d times, want 3", got)
	}
	if n := countKind(res.Anomalies, training.AnomalyWriteFailure); n != 1 {
		t.Fatalf("got %d WriteFailure anomalies, want 1: %+v", n, res.Anomalies)
	}
	if a := res.Anomalies[0]; a.StaffID != "jane" || !strings.Contains(a.Detail, "after 3 attempts") {
		t.Errorf("anomaly = %+v", a)
	}
	if res.Locations[0].Status != StatusReconciled || res.WritesApplied != 0 {
		t.Errorf("Locations[0] = %+v", res.Locations[0])
	}
}

type slowStore struct {
	training.Store
	delay time.Duration
}

// UpsertRecord ignores ctx so that a write outlives the run deadline.
func (s *slowStore) UpsertRecord(_ context.Context, rec training.TrainingRecord) error {
	time.Sleep(s.delay)
	return s.Store.UpsertRecord(context.Background(), rec)
}

func TestPipeline_Run_deadline(t *testing.T) {
	store := &slowStore{Store: newTestStore(t), delay: 300 * time.Millisecond}
	conf := testConfig()
	conf.Deadline = 100 * time.Millisecond
	conf.LocationConcurrency = 1
	conf.WriteConcurrency = 1

	inputs := []MatrixInput{
		{Location: "oak", Grid: [][]string{{"Staff Name", "Fire Safety"}, {"Jane Smith", "15/03/2024"}}},
		{Location: "elm", Grid: [][]string{{"Staff Name", "Fire Safety"}, {"Amy Pond", "10/01/2024"}}},
	}
	res, err := NewPipeline(store, testutil.Logger{}, nil, conf).Run(context.Background(), inputs, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if lr := res.Locations[0]; lr.Status != StatusReconciled || lr.WritesApplied != 1 {
		t.Errorf("Locations[0] = %+v, want reconciled with 1 write", lr)
	}
	if lr := res.Locations[1]; lr.Status != StatusNotProcessed {
		t.Errorf("Locations[1] = %+v, want not processed", lr)
	}
	if n := countKind(res.Anomalies, training.AnomalyNotProcessed); n != 1 {
		t.Errorf("got %d NotProcessed anomalies, want 1", n)
	}
	if recs := records(t, store, "elm"); len(recs) != 0 {
		t.Errorf("not processed location has %d records", len(recs))
	}
}

type recorderSpy struct {
	nopRecorder
	runs      int32
	locations int32
}

func (r *recorderSpy) RunFinished(bool, time.Duration)         { atomic.AddInt32(&r.runs, 1) }
func (r *recorderSpy) LocationFinished(string, LocationStatus) { atomic.AddInt32(&r.locations, 1) }

func TestPipeline_Run_recorder(t *testing.T) {
	spy := &recorderSpy{}
	inputs := []MatrixInput{{Location: "oak", Grid: oakGrid()}, {Location: "elm", Grid: elmGrid("1 year")}}
	_, _ = NewPipeline(newTestStore(t), testutil.Logger{}, spy, testConfig()).Run(context.Background(), inputs, RunOptions{})

	if spy.runs != 1 || spy.locations != 2 {
		t.Errorf("recorder got %d runs and %d locations, want 1 and 2", spy.runs, spy.locations)
	}
}

func TestPipeline_Run_staffFromOtherLocation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	// Jane Doe works at Elm Court and shares her first name with Oak's Jane Smith
	if err := store.(training.DirectoryImporter).ImportDirectory(ctx, training.DirectoryData{
		Staff:       []training.Staff{{ID: "jdoe", Name: "Jane Doe"}},
		StaffRoster: []training.Provision{{LocationID: "elm", EntityID: "jdoe"}},
	}); err != nil {
		t.Fatalf("ImportDirectory() error = %v", err)
	}

	grid := append(oakGrid(), []string{"Jane Doe", "01/01/2020", "", "Awaiting"})
	res, err := NewPipeline(store, testutil.Logger{}, nil, testConfig()).Run(ctx, []MatrixInput{{Location: "oak", Grid: grid}}, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var unresolved []training.Anomaly
	for _, a := range res.Anomalies {
		if a.Kind == training.AnomalyUnresolvedIdentity {
			unresolved = append(unresolved, a)
		}
	}
	if len(unresolved) != 1 || unresolved[0].StaffName != "Jane Doe" || !strings.Contains(unresolved[0].Detail, "not linked") {
		t.Errorf("UnresolvedIdentity anomalies = %+v, want Jane Doe not linked to oak", unresolved)
	}
	if n := countKind(res.Anomalies, training.AnomalyDateConflict); n != 0 {
		t.Errorf("got %d DateConflict anomalies, want 0", n)
	}

	recs := records(t, store, "oak")
	jane := recs[training.Key{StaffID: "jane", CourseID: "fire", LocationID: "oak"}]
	if !jane.CompletionDate.Equal(testutil.Date(2024, 3, 15)) {
		t.Errorf("Jane Smith completion = %v, want 2024-03-15", jane.CompletionDate)
	}
	if mh := recs[training.Key{StaffID: "jane", CourseID: "mh", LocationID: "oak"}]; mh.Status != training.StatusBooked {
		t.Errorf("Jane Smith Moving & Handling status = %q, want booked", mh.Status)
	}
	for key := range recs {
		if key.StaffID == "jdoe" {
			t.Errorf("record written for Jane Doe: %v", key)
		}
	}
}
