package training

import (
	"context"

	"github.com/pkg/errors"
)

// Snapshot is an immutable copy of the canonical directory taken once per run,
// so that a run is reproducible from its inputs alone. Safe for concurrent reads.
type Snapshot struct {
	staff     map[string]Staff
	courses   map[string]Course
	locations map[string]Location

	staffOrder    []string
	courseOrder   []string
	locationOrder []string

	courseAliases map[string][]string        // courseID -> aliases
	courseProv    map[string]map[string]bool // locationID -> courseIDs
	staffRoster   map[string]map[string]bool // locationID -> staffIDs
}

// LoadSnapshot reads the whole directory.
func LoadSnapshot(ctx context.Context, dir Directory) (*Snapshot, error) {
	var (
		data DirectoryData
		err  error
	)
	if data.Staff, err = dir.ListStaff(ctx); err != nil {
		return nil, errors.Wrap(err, "listing staff")
	}
	if data.Courses, err = dir.ListCourses(ctx); err != nil {
		return nil, errors.Wrap(err, "listing courses")
	}
	if data.CourseAliases, err = dir.ListCourseAliases(ctx); err != nil {
		return nil, errors.Wrap(err, "listing course aliases")
	}
	if data.Locations, err = dir.ListLocations(ctx); err != nil {
		return nil, errors.Wrap(err, "listing locations")
	}
	if data.CourseProvisions, err = dir.ListCourseProvisions(ctx); err != nil {
		return nil, errors.Wrap(err, "listing course provisions")
	}
	if data.StaffRoster, err = dir.ListStaffRoster(ctx); err != nil {
		return nil, errors.Wrap(err, "listing staff roster")
	}
	return NewSnapshot(data), nil
}

// NewSnapshot indexes data. Later duplicates of an ID replace earlier ones.
func NewSnapshot(data DirectoryData) *Snapshot {
	snap := &Snapshot{
		staff:         make(map[string]Staff, len(data.Staff)),
		courses:       make(map[string]Course, len(data.Courses)),
		locations:     make(map[string]Location, len(data.Locations)),
		courseAliases: make(map[string][]string),
		courseProv:    make(map[string]map[string]bool),
		staffRoster:   make(map[string]map[string]bool),
	}
	for _, s := range data.Staff {
		if _, ok := snap.staff[s.ID]; !ok {
			snap.staffOrder = append(snap.staffOrder, s.ID)
		}
		snap.staff[s.ID] = s
	}
	for _, c := range data.Courses {
		if _, ok := snap.courses[c.ID]; !ok {
			snap.courseOrder = append(snap.courseOrder, c.ID)
		}
		snap.courses[c.ID] = c
	}
	for _, l := range data.Locations {
		if _, ok := snap.locations[l.ID]; !ok {
			snap.locationOrder = append(snap.locationOrder, l.ID)
		}
		snap.locations[l.ID] = l
	}
	for _, a := range data.CourseAliases {
		snap.courseAliases[a.CourseID] = append(snap.courseAliases[a.CourseID], a.Alias)
	}
	link := func(m map[string]map[string]bool, p Provision) {
		if m[p.LocationID] == nil {
			m[p.LocationID] = make(map[string]bool)
		}
		m[p.LocationID][p.EntityID] = true
	}
	for _, p := range data.CourseProvisions {
		link(snap.courseProv, p)
	}
	for _, p := range data.StaffRoster {
		link(snap.staffRoster, p)
	}
	return snap
}

func (s *Snapshot) Staff(id string) (Staff, bool) {
	st, ok := s.staff[id]
	return st, ok
}

func (s *Snapshot) Course(id string) (Course, bool) {
	c, ok := s.courses[id]
	return c, ok
}

func (s *Snapshot) Location(id string) (Location, bool) {
	l, ok := s.locations[id]
	return l, ok
}

// AllStaff returns staff members in directory order.
func (s *Snapshot) AllStaff() []Staff {
	res := make([]Staff, 0, len(s.staffOrder))
	for _, id := range s.staffOrder {
		res = append(res, s.staff[id])
	}
	return res
}

// AllCourses returns courses in directory order.
func (s *Snapshot) AllCourses() []Course {
	res := make([]Course, 0, len(s.courseOrder))
	for _, id := range s.courseOrder {
		res = append(res, s.courses[id])
	}
	return res
}

// AllLocations returns locations in directory order.
func (s *Snapshot) AllLocations() []Location {
	res := make([]Location, 0, len(s.locationOrder))
	for _, id := range s.locationOrder {
		res = append(res, s.locations[id])
	}
	return res
}

// CourseAliases returns a copy of the known aliases of a course.
func (s *Snapshot) CourseAliases(courseID string) []string {
	return append([]string(nil), s.courseAliases[courseID]...)
}

func (s *Snapshot) CourseProvisioned(locationID, courseID string) bool {
	return s.courseProv[locationID][courseID]
}

func (s *Snapshot) StaffAssigned(locationID, staffID string) bool {
	return s.staffRoster[locationID][staffID]
}
