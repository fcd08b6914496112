package matrix

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core/identity"
)

// DefaultHeaderScanRows bounds the search for the anchor row.
const DefaultHeaderScanRows = 15

// Section kinds
const (
	SectionStaff SectionKind = iota + 1
	SectionDivider
)

// Warning kinds
const (
	WarnSkippedRow WarningKind = iota + 1
	WarnUnreadableValidity
)

// ErrHeaderNotFound means no anchor row was found within the scan bound.
// Column alignment depends on the anchor, so no fallback row is guessed.
var ErrHeaderNotFound = errors.New("header row not found")

type (
	SectionKind int
	WarningKind int

	// SectionEntry keeps the display order of staff rows and dividers.
	SectionEntry struct {
		Kind  SectionKind
		Label string
		Row   int
	}

	// ParsedCell is one non-empty (staff, course) pairing of a matrix.
	// Row and Column are 1-indexed positions in the grid.
	ParsedCell struct {
		StaffNameRaw  string
		CourseNameRaw string
		Value         CellValue
		Row           int
		Column        int
	}

	// ValidityCell is the validity period the matrix states for a course column.
	ValidityCell struct {
		CourseNameRaw string
		Months        null.Int // null: never expires
		Raw           string
		Row           int
		Column        int
	}

	ParseWarning struct {
		Kind    WarningKind
		Row     int
		Column  int
		Raw     string
		Message string
	}

	ParseResult struct {
		HeaderRow    int
		CourseNames  []string // de-duplicated, first-seen order
		Entries      []ParsedCell
		SectionOrder []SectionEntry
		Validity     []ValidityCell
		Warnings     []ParseWarning
	}
)

// Parser reads the "staff-name row header, course-name header, data rows" matrix layout.
type Parser struct {
	HeaderScanRows int
}

func NewParser(headerScanRows int) *Parser {
	return &Parser{HeaderScanRows: headerScanRows}
}

// Parse reads one location's grid. Grid rows may be of any length. Only a missing
// anchor row is an error; everything else unreadable becomes a warning or an
// unrecognized cell.
func (p *Parser) Parse(grid [][]string) (*ParseResult, error) {
	scan := p.HeaderScanRows
	if scan <= 0 {
		scan = DefaultHeaderScanRows
	}

	anchor := -1
	for i := 0; i < len(grid) && i < scan; i++ {
		if len(grid[i]) > 0 && headerMarkers.has(grid[i][0]) {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return nil, errors.Wrapf(ErrHeaderNotFound, "within the first %d rows", scan)
	}

	header := grid[anchor]
	res := &ParseResult{HeaderRow: anchor + 1}

	// column index -> course name as written in that column
	columns := make(map[int]string)
	seen := make(map[string]bool)
	for c := 1; c < len(header); c++ {
		name := header[c]
		if strings.TrimSpace(name) == "" {
			continue
		}
		columns[c] = name
		if n := identity.Normalize(name); !seen[n] {
			seen[n] = true
			res.CourseNames = append(res.CourseNames, name)
		}
	}

	for r := anchor + 1; r < len(grid); r++ {
		row := grid[r]
		first := ""
		if len(row) > 0 {
			first = strings.TrimSpace(row[0])
		}

		switch {
		case first == "":
			if c, raw, ok := firstDataCell(row, columns); ok {
				res.warn(WarnSkippedRow, r, c, raw, "row carries data but no staff name")
			}

		case dividerLabels.has(first):
			res.SectionOrder = append(res.SectionOrder, SectionEntry{Kind: SectionDivider, Label: first, Row: r + 1})

		case isValidityLabel(first):
			res.readValidity(row, r, columns)

		case nonDataLabels.has(first):
			// skip

		case len(strings.Fields(first)) >= 2:
			res.SectionOrder = append(res.SectionOrder, SectionEntry{Kind: SectionStaff, Label: first, Row: r + 1})
			for c := 1; c < len(row); c++ {
				course, ok := columns[c]
				if !ok || strings.TrimSpace(row[c]) == "" {
					continue
				}
				res.Entries = append(res.Entries, ParsedCell{
					StaffNameRaw:  first,
					CourseNameRaw: course,
					Value:         Classify(row[c]),
					Row:           r + 1,
					Column:        c + 1,
				})
			}

		default:
			if _, raw, ok := firstDataCell(row, columns); ok {
				res.warn(WarnSkippedRow, r, 0, first, fmt.Sprintf("%q does not look like a staff name (first data at %q)", first, raw))
			}
		}
	}
	return res, nil
}

func (res *ParseResult) readValidity(row []string, r int, columns map[int]string) {
	for c := 1; c < len(row); c++ {
		course, ok := columns[c]
		if !ok || strings.TrimSpace(row[c]) == "" {
			continue
		}
		months, ok := ParseValidity(row[c])
		if !ok {
			res.warn(WarnUnreadableValidity, r, c, row[c], fmt.Sprintf("unreadable validity period for %q", course))
			continue
		}
		res.Validity = append(res.Validity, ValidityCell{
			CourseNameRaw: course,
			Months:        months,
			Raw:           row[c],
			Row:           r + 1,
			Column:        c + 1,
		})
	}
}

// warn takes 0-indexed grid positions.
func (res *ParseResult) warn(kind WarningKind, r, c int, raw, msg string) {
	res.Warnings = append(res.Warnings, ParseWarning{Kind: kind, Row: r + 1, Column: c + 1, Raw: raw, Message: msg})
}

func firstDataCell(row []string, columns map[int]string) (int, string, bool) {
	for c := 1; c < len(row); c++ {
		if _, ok := columns[c]; ok && strings.TrimSpace(row[c]) != "" {
			return c, row[c], true
		}
	}
	return 0, "", false
}
