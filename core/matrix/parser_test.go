package matrix

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core/training"
)

func sampleGrid() [][]string {
	return [][]string{
		{"Oak House Training Matrix"},
		{"Updated", "01/05/2024"},
		{},
		{"Staff Name", "Fire Safety", "First Aid\n(Redcrier)", "", "Moving & Handling", "fire  safety"},
		{"Date valid for", "1 year", "3 years", "", "6 months", "whenever"},
		{"Management"},
		{"Jane Smith", "15/03/2024", "Booked", "ignored", "", "15/03/2024"},
		{"Team Leaders", "15/03/2024", "01/01/2024"},
		{"John  Doe", "lol", "", "", "n/a"},
		{"Carers"},
		{"Amy Pond", "31/02/2024"}, // short row
		{"Notes", "see HR"},
		{"Cher", "01/01/2024"},
		{"", "", "Awaiting"},
		{"Rory Williams", "01/02/2024", "02/02/2024", "", "03/02/2024", "04/02/2024", "beyond header"},
	}
}

func TestParser_Parse(t *testing.T) {
	res, err := NewParser(10).Parse(sampleGrid())
	if err != nil {
		t.Fatalf("Parse() unexpected error = %v", err)
	}

	if res.HeaderRow != 4 {
		t.Errorf("HeaderRow = %d, want 4", res.HeaderRow)
	}

	wantCourses := []string{"Fire Safety", "First Aid\n(Redcrier)", "Moving & Handling"}
	if diff := cmp.Diff(wantCourses, res.CourseNames); diff != "" {
		t.Errorf("CourseNames mismatch (-want +got):\n%s", diff)
	}

	wantSections := []SectionEntry{
		{Kind: SectionDivider, Label: "Management", Row: 6},
		{Kind: SectionStaff, Label: "Jane Smith", Row: 7},
		{Kind: SectionDivider, Label: "Team Leaders", Row: 8},
		{Kind: SectionStaff, Label: "John  Doe", Row: 9},
		{Kind: SectionDivider, Label: "Carers", Row: 10},
		{Kind: SectionStaff, Label: "Amy Pond", Row: 11},
		{Kind: SectionStaff, Label: "Rory Williams", Row: 15},
	}
	if diff := cmp.Diff(wantSections, res.SectionOrder); diff != "" {
		t.Errorf("SectionOrder mismatch (-want +got):\n%s", diff)
	}

	type cell struct {
		staff, course string
		kind          CellKind
		row, col      int
	}
	var got []cell
	for _, e := range res.Entries {
		got = append(got, cell{e.StaffNameRaw, e.CourseNameRaw, e.Value.Kind, e.Row, e.Column})
	}
	want := []cell{
		{"Jane Smith", "Fire Safety", CellDate, 7, 2},
		{"Jane Smith", "First Aid\n(Redcrier)", CellStatus, 7, 3},
		{"Jane Smith", "fire  safety", CellDate, 7, 6},
		{"John  Doe", "Fire Safety", CellUnrecognized, 9, 2},
		{"John  Doe", "Moving & Handling", CellStatus, 9, 5},
		{"Amy Pond", "Fire Safety", CellDate, 11, 2},
		{"Rory Williams", "Fire Safety", CellDate, 15, 2},
		{"Rory Williams", "First Aid\n(Redcrier)", CellDate, 15, 3},
		{"Rory Williams", "Moving & Handling", CellDate, 15, 5},
		{"Rory Williams", "fire  safety", CellDate, 15, 6},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(cell{})); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}

	wantValidity := []ValidityCell{
		{CourseNameRaw: "Fire Safety", Months: null.IntFrom(12), Raw: "1 year", Row: 5, Column: 2},
		{CourseNameRaw: "First Aid\n(Redcrier)", Months: null.IntFrom(36), Raw: "3 years", Row: 5, Column: 3},
		{CourseNameRaw: "Moving & Handling", Months: null.IntFrom(6), Raw: "6 months", Row: 5, Column: 5},
	}
	if diff := cmp.Diff(wantValidity, res.Validity); diff != "" {
		t.Errorf("Validity mismatch (-want +got):\n%s", diff)
	}

	wantWarnings := []WarningKind{WarnUnreadableValidity, WarnSkippedRow, WarnSkippedRow}
	var gotWarnings []WarningKind
	for _, w := range res.Warnings {
		gotWarnings = append(gotWarnings, w.Kind)
	}
	if diff := cmp.Diff(wantWarnings, gotWarnings); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_ParseDividerRowYieldsNoCells(t *testing.T) {
	grid := [][]string{
		{"Staff Name", "Fire Safety", "First Aid"},
		{"Team Leaders", "01/01/2024", "Booked"},
	}
	res, err := NewParser(0).Parse(grid)
	if err != nil {
		t.Fatalf("Parse() unexpected error = %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("Parse() Entries = %v, want none", res.Entries)
	}
	want := []SectionEntry{{Kind: SectionDivider, Label: "Team Leaders", Row: 2}}
	if diff := cmp.Diff(want, res.SectionOrder); diff != "" {
		t.Errorf("SectionOrder mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_ParseCellValues(t *testing.T) {
	grid := [][]string{
		{"STAFF NAME:", "First Aid"},
		{"Jane Smith", "28/02/2023"},
	}
	res, err := NewParser(0).Parse(grid)
	if err != nil {
		t.Fatalf("Parse() unexpected error = %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("Parse() Entries = %v, want 1", res.Entries)
	}
	if got, want := res.Entries[0].Value.Date, training.NewDate(2023, time.February, 28); got != want {
		t.Errorf("Entries[0].Value.Date = %v, want %v", got, want)
	}
}

func TestParser_ParseHeaderNotFound(t *testing.T) {
	tests := []struct {
		name string
		grid [][]string
	}{
		{name: "nil grid", grid: nil},
		{name: "empty rows", grid: [][]string{{}, {}, {}}},
		{name: "marker not in first cell", grid: [][]string{{"", "Staff Name", "Fire Safety"}}},
		{name: "marker beyond bound", grid: append(make([][]string, 3), []string{"Staff Name", "Fire Safety"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(3).Parse(tt.grid)
			if errors.Cause(err) != ErrHeaderNotFound {
				t.Errorf("Parse() error = %v, wantErr %v", err, ErrHeaderNotFound)
			}
		})
	}
}
