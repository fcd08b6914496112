package training

import (
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

// Statuses
const (
	StatusCompleted     Status = "completed"
	StatusBooked        Status = "booked"
	StatusAwaiting      Status = "awaiting"
	StatusNotApplicable Status = "na"
)

var AllStatuses = []Status{StatusCompleted, StatusBooked, StatusAwaiting, StatusNotApplicable}

type Status string

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type Staff struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Course struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// ValidityMonths is null for courses that never expire.
	ValidityMonths null.Int `json:"validity_months" yaml:"-"`
	// ValidityLocked is set once a human reviewed the validity period;
	// disagreeing exports no longer hold expiry writes for the course.
	ValidityLocked bool `json:"validity_locked" yaml:"validity_locked"`
}

type CourseAlias struct {
	CourseID string `json:"course_id" yaml:"course_id"`
	Alias    string `json:"alias" yaml:"alias"`
}

type Location struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// Provision links an entity (course or staff member) to a location.
type Provision struct {
	LocationID string `json:"location_id" yaml:"location_id"`
	EntityID   string `json:"entity_id" yaml:"entity_id"`
}

// Key uniquely identifies a TrainingRecord.
type Key struct {
	StaffID    string `json:"staff_id"`
	CourseID   string `json:"course_id"`
	LocationID string `json:"location_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.LocationID, k.StaffID, k.CourseID)
}

type TrainingRecord struct {
	Key
	CompletionDate NullDate  `json:"completion_date"`
	ExpiryDate     NullDate  `json:"expiry_date"`
	Status         Status    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"` // UTC
	ArchivedAt     null.Time `json:"archived_at"`
	ArchiveReason  string    `json:"archive_reason,omitempty"`
}

func (r TrainingRecord) IsArchived() bool { return r.ArchivedAt.Valid }

// ValidityObservation is the validity period a location's matrix states for a course.
type ValidityObservation struct {
	LocationID string    `json:"location_id"`
	CourseID   string    `json:"course_id"`
	Months     null.Int  `json:"months"` // null: never expires
	Raw        string    `json:"raw"`
	ObservedAt time.Time `json:"observed_at"` // UTC
}

// DirectoryData is the whole canonical directory, as loaded from a seed file.
type DirectoryData struct {
	Staff            []Staff
	Courses          []Course
	CourseAliases    []CourseAlias
	Locations        []Location
	CourseProvisions []Provision
	StaffRoster      []Provision
}
