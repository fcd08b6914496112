// Package yamlfile reads the canonical directory from a YAML seed file.
package yamlfile

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/carematrix/core/training"
)

var ErrInvalidDirectory = errors.New("invalid directory file")

type (
	document struct {
		Staff     []staff    `yaml:"staff" validate:"dive"`
		Courses   []course   `yaml:"courses" validate:"dive"`
		Locations []location `yaml:"locations" validate:"dive"`
	}

	staff struct {
		ID   string `yaml:"id" validate:"required,max=64"`
		Name string `yaml:"name" validate:"required,notblank,max=200"`
	}

	course struct {
		ID   string `yaml:"id" validate:"required,max=64"`
		Name string `yaml:"name" validate:"required,notblank,max=200"`
		// omitted or null: never expires
		ValidityMonths *int     `yaml:"validity_months" validate:"omitempty,min=1,max=600"`
		Aliases        []string `yaml:"aliases" validate:"dive,required,notblank"`
	}

	location struct {
		ID      string   `yaml:"id" validate:"required,max=64"`
		Code    string   `yaml:"code" validate:"required,location_code,max=32"`
		Name    string   `yaml:"name" validate:"required,notblank,max=200"`
		Courses []string `yaml:"courses"`
		Staff   []string `yaml:"staff"`
	}
)

// LoadFile reads the directory seed file at path.
func LoadFile(path string, validate *validator.Validate) (training.DirectoryData, error) {
	f, err := os.Open(path)
	if err != nil {
		return training.DirectoryData{}, errors.Wrap(err, "opening directory file")
	}
	defer func() { _ = f.Close() }()
	return Load(f, validate)
}

// Load decodes a directory seed. Unknown keys, duplicate IDs and links to
// undeclared staff or courses are rejected.
func Load(r io.Reader, validate *validator.Validate) (training.DirectoryData, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return training.DirectoryData{}, errors.Wrap(err, "decoding directory file")
	}
	if err := validate.Struct(doc); err != nil {
		return training.DirectoryData{}, errors.Wrap(ErrInvalidDirectory, err.Error())
	}
	return doc.toData()
}

func (doc document) toData() (training.DirectoryData, error) {
	var data training.DirectoryData
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrap(ErrInvalidDirectory, fmt.Sprintf(format, args...))
	}

	staffIDs := make(map[string]bool, len(doc.Staff))
	for _, s := range doc.Staff {
		if staffIDs[s.ID] {
			return data, invalid("duplicate staff id %q", s.ID)
		}
		staffIDs[s.ID] = true
		data.Staff = append(data.Staff, training.Staff{ID: s.ID, Name: s.Name})
	}

	courseIDs := make(map[string]bool, len(doc.Courses))
	for _, c := range doc.Courses {
		if courseIDs[c.ID] {
			return data, invalid("duplicate course id %q", c.ID)
		}
		courseIDs[c.ID] = true
		data.Courses = append(data.Courses, training.Course{ID: c.ID, Name: c.Name, ValidityMonths: null.IntFromPtr(c.ValidityMonths)})
		for _, alias := range c.Aliases {
			data.CourseAliases = append(data.CourseAliases, training.CourseAlias{CourseID: c.ID, Alias: alias})
		}
	}

	locationIDs := make(map[string]bool, len(doc.Locations))
	codes := make(map[string]bool, len(doc.Locations))
	for _, l := range doc.Locations {
		if locationIDs[l.ID] {
			return data, invalid("duplicate location id %q", l.ID)
		}
		if codes[l.Code] {
			return data, invalid("duplicate location code %q", l.Code)
		}
		locationIDs[l.ID], codes[l.Code] = true, true
		data.Locations = append(data.Locations, training.Location{ID: l.ID, Code: l.Code, Name: l.Name})

		for _, id := range l.Courses {
			if !courseIDs[id] {
				return data, invalid("location %q lists unknown course %q", l.ID, id)
			}
			data.CourseProvisions = append(data.CourseProvisions, training.Provision{LocationID: l.ID, EntityID: id})
		}
		for _, id := range l.Staff {
			if !staffIDs[id] {
				return data, invalid("location %q lists unknown staff %q", l.ID, id)
			}
			data.StaffRoster = append(data.StaffRoster, training.Provision{LocationID: l.ID, EntityID: id})
		}
	}
	return data, nil
}
