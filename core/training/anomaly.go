package training

import "time"

// Anomaly kinds
const (
	AnomalyHeaderNotFound            AnomalyKind = "HeaderNotFound"
	AnomalyUnresolvedIdentity        AnomalyKind = "UnresolvedIdentity"
	AnomalyDateConflict              AnomalyKind = "DateConflict"
	AnomalyConflictingValidityPeriod AnomalyKind = "ConflictingValidityPeriod"
	AnomalyUnparsedCell              AnomalyKind = "UnparsedCell"
	AnomalyWriteFailure              AnomalyKind = "WriteFailure"
	AnomalyInvalidDate               AnomalyKind = "InvalidDate"
	AnomalyArchivedRecord            AnomalyKind = "ArchivedRecord"
	AnomalySkippedRow                AnomalyKind = "SkippedRow"
	AnomalyNotProcessed              AnomalyKind = "NotProcessed"
	AnomalyLocationFailed            AnomalyKind = "LocationFailed"
)

type AnomalyKind string

// Anomaly is a disagreement or unreadable input the pipeline declined to resolve.
// Anomalies are persisted for asynchronous human review.
type Anomaly struct {
	ID          string      `json:"id"`
	RunID       string      `json:"run_id"`
	Kind        AnomalyKind `json:"kind"`
	LocationID  string      `json:"location_id,omitempty"`
	StaffName   string      `json:"staff_name,omitempty"`
	CourseName  string      `json:"course_name,omitempty"`
	StaffID     string      `json:"staff_id,omitempty"`
	CourseID    string      `json:"course_id,omitempty"`
	Row         int         `json:"row,omitempty"`    // 1-indexed matrix row, 0 if not cell bound
	Column      int         `json:"column,omitempty"` // 1-indexed matrix column
	Raw         string      `json:"raw,omitempty"`
	Detail      string      `json:"detail"`
	Suggestions []string    `json:"suggestions,omitempty"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
}

type AnomalyFilter struct {
	RunID      string      `query:"run"`
	LocationID string      `query:"location"`
	Kind       AnomalyKind `query:"kind"`
	CourseID   string      `query:"course"`
}

func (f AnomalyFilter) IsEmpty() bool {
	return f.RunID == "" && f.LocationID == "" && f.Kind == "" && f.CourseID == ""
}

// AnomalyOrderingFields are the fields anomalies can be ordered by.
var AnomalyOrderingFields = map[string]bool{
	"created_at":  true,
	"kind":        true,
	"location_id": true,
	"course_id":   true,
	"staff_id":    true,
	"row":         true,
}
