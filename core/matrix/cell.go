package matrix

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/carematrix/core/training"
)

// Cell kinds
const (
	CellEmpty CellKind = iota
	CellDate
	CellStatus
	CellUnrecognized
)

var cellKindNames = [...]string{"empty", "date", "status", "unrecognized"}

var (
	// d/m/yyyy, separated by '/', '.' or '-', with the midnight time spreadsheets append on export
	dmyRe = regexp.MustCompile(`^(\d{1,2})([/.\-])(\d{1,2})([/.\-])(\d{4})(?:\s+00:00(?::00)?)?$`)
	isoRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[ T]00:00(?::00)?)?$`)
)

// statusVocabulary is checked in order; first containment wins.
var statusVocabulary = []struct {
	needle string
	status training.Status
}{
	{needle: "booked", status: training.StatusBooked},
	{needle: "awaiting", status: training.StatusAwaiting},
	{needle: "not yet due", status: training.StatusAwaiting},
	{needle: "n/a", status: training.StatusNotApplicable},
}

type CellKind int

func (k CellKind) String() string {
	if k < 0 || int(k) >= len(cellKindNames) {
		return "unknown"
	}
	return cellKindNames[k]
}

// CellValue is the structured reading of one raw matrix cell.
// Date is set for CellDate and may not be a real calendar day (31/02/2024);
// Status is set for CellStatus.
type CellValue struct {
	Kind   CellKind
	Date   training.Date
	Status training.Status
	Raw    string
}

func (v CellValue) String() string {
	switch v.Kind {
	case CellDate:
		return "date(" + v.Date.String() + ")"
	case CellStatus:
		return "status(" + string(v.Status) + ")"
	case CellUnrecognized:
		return "unrecognized(" + strconv.Quote(v.Raw) + ")"
	default:
		return "empty"
	}
}

// Classify reads one raw cell. Dates are day/month/year; two-digit years are not guessed.
func Classify(raw string) CellValue {
	s := strings.TrimSpace(raw)
	if s == "" {
		return CellValue{Kind: CellEmpty, Raw: raw}
	}
	if d, ok := parseCellDate(s); ok {
		return CellValue{Kind: CellDate, Date: d, Raw: raw}
	}

	lower := strings.ToLower(s)
	for _, v := range statusVocabulary {
		if strings.Contains(lower, v.needle) {
			return CellValue{Kind: CellStatus, Status: v.status, Raw: raw}
		}
	}
	return CellValue{Kind: CellUnrecognized, Raw: raw}
}

func parseCellDate(s string) (training.Date, bool) {
	var day, month, year int
	if m := dmyRe.FindStringSubmatch(s); m != nil {
		if m[2] != m[4] {
			return training.Date{}, false
		}
		day, month, year = atoi(m[1]), atoi(m[3]), atoi(m[5])
	} else if m := isoRe.FindStringSubmatch(s); m != nil {
		year, month, day = atoi(m[1]), atoi(m[2]), atoi(m[3])
	} else {
		return training.Date{}, false
	}

	if day < 1 || day > 31 || month < 1 || month > 12 {
		return training.Date{}, false
	}
	return training.NewDate(year, time.Month(month), day), true
}

// atoi is only called on regexp-checked digit runs.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
