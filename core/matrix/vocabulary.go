package matrix

import (
	"strings"

	"github.com/trezcool/carematrix/core/identity"
)

// first-cell texts of the anchor row
var headerMarkers = newVocabulary(
	"staff name",
	"staff names",
	"name of staff",
	"employee name",
)

// team/role section labels interleaved with staff rows
var dividerLabels = newVocabulary(
	"management",
	"managers",
	"team leaders",
	"senior carers",
	"senior care assistants",
	"carers",
	"care assistants",
	"care staff",
	"nurses",
	"nursing",
	"night staff",
	"day staff",
	"bank staff",
	"domestic",
	"domestics",
	"housekeeping",
	"laundry",
	"kitchen",
	"catering",
	"maintenance",
	"activities",
	"administration",
	"admin",
	"ancillary",
	"support staff",
)

// rows that are part of the sheet but carry no staff data
var nonDataLabels = newVocabulary(
	"notes",
	validityLabel,
	"valid for",
	"key",
	"total",
	"totals",
	"compliance",
	"percentage",
	"expired",
	"due",
	"comments",
)

const validityLabel = "date valid for"

type vocabulary map[string]struct{}

func newVocabulary(words ...string) vocabulary {
	v := make(vocabulary, len(words))
	for _, w := range words {
		v[identity.Normalize(w)] = struct{}{}
	}
	return v
}

// has matches the normalized label, ignoring a trailing colon ("Notes:").
func (v vocabulary) has(label string) bool {
	n := strings.TrimSpace(strings.TrimSuffix(identity.Normalize(label), ":"))
	_, ok := v[n]
	return ok
}

func isValidityLabel(label string) bool {
	n := strings.TrimSpace(strings.TrimSuffix(identity.Normalize(label), ":"))
	return n == validityLabel || n == "valid for"
}
