package inmemdb

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core/training"
)

type directoryRepository struct {
	db *directoryTable
}

var (
	_ training.Directory         = (*directoryRepository)(nil)
	_ training.CourseCatalog     = (*directoryRepository)(nil)
	_ training.DirectoryImporter = (*directoryRepository)(nil)
)

func NewDirectoryRepository(db *DB) *directoryRepository {
	return &directoryRepository{db: db.directory}
}

func (repo *directoryRepository) ListStaff(context.Context) ([]training.Staff, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]training.Staff(nil), repo.db.staff...), nil
}

func (repo *directoryRepository) ListCourses(context.Context) ([]training.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]training.Course(nil), repo.db.courses...), nil
}

func (repo *directoryRepository) ListCourseAliases(context.Context) ([]training.CourseAlias, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]training.CourseAlias(nil), repo.db.aliases...), nil
}

func (repo *directoryRepository) ListLocations(context.Context) ([]training.Location, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]training.Location(nil), repo.db.locations...), nil
}

func (repo *directoryRepository) ListCourseProvisions(context.Context) ([]training.Provision, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]training.Provision(nil), repo.db.provisions...), nil
}

func (repo *directoryRepository) ListStaffRoster(context.Context) ([]training.Provision, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]training.Provision(nil), repo.db.roster...), nil
}

func (repo *directoryRepository) GetCourse(_ context.Context, id string) (training.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.db.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return training.Course{}, training.ErrNotFound
}

func (repo *directoryRepository) SetCourseValidity(_ context.Context, courseID string, months null.Int, locked bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.courses {
		if repo.db.courses[i].ID == courseID {
			repo.db.courses[i].ValidityMonths = months
			repo.db.courses[i].ValidityLocked = locked
			return nil
		}
	}
	return training.ErrNotFound
}

// ImportDirectory upserts entities by ID and adds links not yet known.
// A locked course keeps its validity period.
func (repo *directoryRepository) ImportDirectory(_ context.Context, data training.DirectoryData) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range data.Staff {
		if i := indexOf(len(repo.db.staff), func(i int) bool { return repo.db.staff[i].ID == s.ID }); i >= 0 {
			repo.db.staff[i] = s
		} else {
			repo.db.staff = append(repo.db.staff, s)
		}
	}
	for _, c := range data.Courses {
		if i := indexOf(len(repo.db.courses), func(i int) bool { return repo.db.courses[i].ID == c.ID }); i >= 0 {
			if repo.db.courses[i].ValidityLocked {
				c.ValidityMonths = repo.db.courses[i].ValidityMonths
				c.ValidityLocked = true
			}
			repo.db.courses[i] = c
		} else {
			repo.db.courses = append(repo.db.courses, c)
		}
	}
	for _, l := range data.Locations {
		if i := indexOf(len(repo.db.locations), func(i int) bool { return repo.db.locations[i].ID == l.ID }); i >= 0 {
			repo.db.locations[i] = l
		} else {
			repo.db.locations = append(repo.db.locations, l)
		}
	}
	for _, a := range data.CourseAliases {
		if indexOf(len(repo.db.aliases), func(i int) bool { return repo.db.aliases[i] == a }) < 0 {
			repo.db.aliases = append(repo.db.aliases, a)
		}
	}
	for _, p := range data.CourseProvisions {
		if indexOf(len(repo.db.provisions), func(i int) bool { return repo.db.provisions[i] == p }) < 0 {
			repo.db.provisions = append(repo.db.provisions, p)
		}
	}
	for _, p := range data.StaffRoster {
		if indexOf(len(repo.db.roster), func(i int) bool { return repo.db.roster[i] == p }) < 0 {
			repo.db.roster = append(repo.db.roster, p)
		}
	}
	return nil
}

func indexOf(n int, match func(i int) bool) int {
	for i := 0; i < n; i++ {
		if match(i) {
			return i
		}
	}
	return -1
}
