package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

type courseRow struct {
	ID             string   `db:"id"`
	Name           string   `db:"name"`
	ValidityMonths null.Int `db:"validity_months"`
	ValidityLocked bool     `db:"validity_locked"`
}

func (r courseRow) unboil() training.Course {
	return training.Course{ID: r.ID, Name: r.Name, ValidityMonths: r.ValidityMonths, ValidityLocked: r.ValidityLocked}
}

type aliasRow struct {
	CourseID string `db:"course_id"`
	Alias    string `db:"alias"`
}

type linkRow struct {
	LocationID string `db:"location_id"`
	EntityID   string `db:"entity_id"`
}

func unboilLinks(rows []linkRow) []training.Provision {
	links := make([]training.Provision, 0, len(rows))
	for _, row := range rows {
		links = append(links, training.Provision{LocationID: row.LocationID, EntityID: row.EntityID})
	}
	return links
}

type DirectoryRepository struct {
	repo
}

var (
	_ training.Directory         = (*DirectoryRepository)(nil)
	_ training.CourseCatalog     = (*DirectoryRepository)(nil)
	_ training.DirectoryImporter = (*DirectoryRepository)(nil)
)

func NewDirectoryRepository(db core.DB) *DirectoryRepository {
	return &DirectoryRepository{repo{db: db}}
}

func (r *DirectoryRepository) ListStaff(ctx context.Context) ([]training.Staff, error) {
	staff := make([]training.Staff, 0)
	if err := r.db.SelectContext(ctx, &staff, "SELECT id, name FROM staff ORDER BY id"); err != nil {
		return nil, wrapDBErr(err, "selecting staff")
	}
	return staff, nil
}

func (r *DirectoryRepository) ListCourses(ctx context.Context) ([]training.Course, error) {
	var rows []courseRow
	q := "SELECT id, name, validity_months, validity_locked FROM course ORDER BY id"
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, wrapDBErr(err, "selecting courses")
	}
	courses := make([]training.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.unboil())
	}
	return courses, nil
}

func (r *DirectoryRepository) ListCourseAliases(ctx context.Context) ([]training.CourseAlias, error) {
	var rows []aliasRow
	if err := r.db.SelectContext(ctx, &rows, "SELECT course_id, alias FROM course_alias ORDER BY course_id, alias"); err != nil {
		return nil, wrapDBErr(err, "selecting course aliases")
	}
	aliases := make([]training.CourseAlias, 0, len(rows))
	for _, row := range rows {
		aliases = append(aliases, training.CourseAlias{CourseID: row.CourseID, Alias: row.Alias})
	}
	return aliases, nil
}

func (r *DirectoryRepository) ListLocations(ctx context.Context) ([]training.Location, error) {
	locations := make([]training.Location, 0)
	if err := r.db.SelectContext(ctx, &locations, "SELECT id, code, name FROM location ORDER BY id"); err != nil {
		return nil, wrapDBErr(err, "selecting locations")
	}
	return locations, nil
}

func (r *DirectoryRepository) ListCourseProvisions(ctx context.Context) ([]training.Provision, error) {
	var rows []linkRow
	q := "SELECT location_id, course_id AS entity_id FROM course_provision ORDER BY location_id, course_id"
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, wrapDBErr(err, "selecting course provisions")
	}
	return unboilLinks(rows), nil
}

func (r *DirectoryRepository) ListStaffRoster(ctx context.Context) ([]training.Provision, error) {
	var rows []linkRow
	q := "SELECT location_id, staff_id AS entity_id FROM staff_roster ORDER BY location_id, staff_id"
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, wrapDBErr(err, "selecting staff roster")
	}
	return unboilLinks(rows), nil
}

func (r *DirectoryRepository) GetCourse(ctx context.Context, id string) (training.Course, error) {
	var row courseRow
	q := r.db.Rebind("SELECT id, name, validity_months, validity_locked FROM course WHERE id = ?")
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return training.Course{}, trapNoRowsErr(err, "finding course by ID")
	}
	return row.unboil(), nil
}

func (r *DirectoryRepository) SetCourseValidity(ctx context.Context, courseID string, months null.Int, locked bool) error {
	q := r.db.Rebind("UPDATE course SET validity_months = ?, validity_locked = ? WHERE id = ?")
	res, err := r.db.ExecContext(ctx, q, months, locked, courseID)
	if err != nil {
		return wrapDBErr(err, "updating course validity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return training.ErrNotFound
	}
	return nil
}

// ImportDirectory upserts entities by ID and adds links not yet known, in one transaction.
// A locked course keeps its validity period.
func (r *DirectoryRepository) ImportDirectory(ctx context.Context, data training.DirectoryData) error {
	return r.inTx(ctx, func(tx core.DBExecutor) error {
		for _, s := range data.Staff {
			q := "INSERT INTO staff (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name"
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), s.ID, s.Name); err != nil {
				return errors.Wrapf(err, "importing staff %s", s.ID)
			}
		}
		for _, c := range data.Courses {
			q := `INSERT INTO course (id, name, validity_months, validity_locked) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					name = excluded.name,
					validity_months = CASE WHEN course.validity_locked THEN course.validity_months ELSE excluded.validity_months END,
					validity_locked = course.validity_locked OR excluded.validity_locked`
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), c.ID, c.Name, c.ValidityMonths, c.ValidityLocked); err != nil {
				return errors.Wrapf(err, "importing course %s", c.ID)
			}
		}
		for _, l := range data.Locations {
			q := "INSERT INTO location (id, code, name) VALUES (?, ?, ?) ON CONFLICT (id) DO UPDATE SET code = excluded.code, name = excluded.name"
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), l.ID, l.Code, l.Name); err != nil {
				return errors.Wrapf(err, "importing location %s", l.ID)
			}
		}
		for _, a := range data.CourseAliases {
			q := "INSERT INTO course_alias (course_id, alias) VALUES (?, ?) ON CONFLICT DO NOTHING"
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), a.CourseID, a.Alias); err != nil {
				return errors.Wrapf(err, "importing alias %q", a.Alias)
			}
		}
		for _, p := range data.CourseProvisions {
			q := "INSERT INTO course_provision (location_id, course_id) VALUES (?, ?) ON CONFLICT DO NOTHING"
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), p.LocationID, p.EntityID); err != nil {
				return errors.Wrapf(err, "provisioning course %s at %s", p.EntityID, p.LocationID)
			}
		}
		for _, p := range data.StaffRoster {
			q := "INSERT INTO staff_roster (location_id, staff_id) VALUES (?, ?) ON CONFLICT DO NOTHING"
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), p.LocationID, p.EntityID); err != nil {
				return errors.Wrapf(err, "assigning staff %s to %s", p.EntityID, p.LocationID)
			}
		}
		return nil
	})
}
