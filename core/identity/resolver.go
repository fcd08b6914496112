package identity

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/carematrix/core/training"
)

// Outcomes
const (
	Resolved Outcome = iota
	Unresolved
	Ambiguous
	// NotProvisioned: the entity exists in the catalog but is not linked to the location.
	NotProvisioned
)

const (
	maxSuggestions    = 3
	minSuggestionRate = .5
)

type Outcome int

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	case NotProvisioned:
		return "not provisioned"
	default:
		return "unresolved"
	}
}

// Result of one resolution. ID is only set when Outcome is Resolved.
type Result struct {
	ID      string
	Outcome Outcome
	Rule    string // name of the ladder rung that matched
	// Candidates are the IDs a failed resolution matched: several when Ambiguous,
	// the catalog entities when NotProvisioned.
	Candidates []string
	// Suggestions are the closest canonical names, for the reviewer only.
	Suggestions []string
}

func (r Result) OK() bool { return r.Outcome == Resolved }

// query and candidate carry the precomputed comparison forms.
type (
	query struct {
		norm     string
		stripped string
		first    string
	}

	candidate struct {
		id       string
		name     string
		forms    []string // name and aliases, normalized
		stripped []string
		first    string
	}

	rule struct {
		name  string
		match func(q query, c candidate) bool
		// strict rungs must match exactly one entity of the whole catalog;
		// others settle several matches on the single one linked to the location.
		strict bool
	}
)

// Ladders, climbed against the whole catalog: the first rung with any match wins.
var (
	staffLadder = []rule{
		{name: "exact", match: exactMatch},
		{name: "first name", match: firstTokenMatch, strict: true},
	}
	courseLadder = []rule{
		{name: "exact", match: exactMatch},
		{name: "provider suffix", match: providerSuffixMatch},
	}
	locationLadder = []rule{
		{name: "exact", match: exactMatch},
	}
)

func exactMatch(q query, c candidate) bool {
	for _, f := range c.forms {
		if q.norm == f {
			return true
		}
	}
	return false
}

// providerSuffixMatch compares suffix-stripped raw against exact forms and exact raw
// against suffix-stripped forms.
func providerSuffixMatch(q query, c candidate) bool {
	for i, f := range c.forms {
		if q.stripped == f || q.norm == c.stripped[i] {
			return true
		}
	}
	return false
}

func firstTokenMatch(q query, c candidate) bool {
	return q.first != "" && q.first == c.first
}

func newQuery(raw string) query {
	return query{norm: Normalize(raw), stripped: StripProviderSuffix(raw), first: FirstToken(raw)}
}

func newCandidate(id, name string, aliases ...string) candidate {
	c := candidate{id: id, name: name, first: FirstToken(name)}
	for _, form := range append([]string{name}, aliases...) {
		if n := Normalize(form); n != "" {
			c.forms = append(c.forms, n)
			c.stripped = append(c.stripped, StripProviderSuffix(form))
		}
	}
	return c
}

// Resolver maps raw matrix names to canonical IDs for one location.
// It is not safe for concurrent use.
type Resolver struct {
	locationID string

	staff, courses           []candidate     // whole catalog
	localStaff, localCourses map[string]bool // IDs linked to locationID
	staffCache, courseCache  map[string]Result
}

func NewResolver(snap *training.Snapshot, locationID string) *Resolver {
	r := &Resolver{
		locationID:   locationID,
		localStaff:   make(map[string]bool),
		localCourses: make(map[string]bool),
		staffCache:   make(map[string]Result),
		courseCache:  make(map[string]Result),
	}
	for _, s := range snap.AllStaff() {
		c := newCandidate(s.ID, s.Name)
		r.staff = append(r.staff, c)
		r.localStaff[s.ID] = snap.StaffAssigned(locationID, s.ID)
	}
	for _, crs := range snap.AllCourses() {
		c := newCandidate(crs.ID, crs.Name, snap.CourseAliases(crs.ID)...)
		r.courses = append(r.courses, c)
		r.localCourses[crs.ID] = snap.CourseProvisioned(locationID, crs.ID)
	}
	return r
}

func (r *Resolver) LocationID() string { return r.locationID }

func (r *Resolver) ResolveStaff(raw string) Result {
	if res, ok := r.staffCache[raw]; ok {
		return res
	}
	res := resolve(staffLadder, newQuery(raw), r.staff, r.localStaff)
	r.staffCache[raw] = res
	return res
}

func (r *Resolver) ResolveCourse(raw string) Result {
	if res, ok := r.courseCache[raw]; ok {
		return res
	}
	res := resolve(courseLadder, newQuery(raw), r.courses, r.localCourses)
	r.courseCache[raw] = res
	return res
}

// ResolveLocation matches raw against location codes and names.
func ResolveLocation(snap *training.Snapshot, raw string) Result {
	var cands []candidate
	all := make(map[string]bool)
	for _, l := range snap.AllLocations() {
		cands = append(cands, newCandidate(l.ID, l.Name, l.Code))
		all[l.ID] = true
	}
	return resolve(locationLadder, newQuery(raw), cands, all)
}

// resolve climbs the ladder against the whole catalog, so a name matching someone
// elsewhere never falls through to a looser rung here. The matched entity must then
// be linked to the location.
func resolve(ladder []rule, q query, catalog []candidate, local map[string]bool) Result {
	if q.norm == "" {
		return Result{Outcome: Unresolved}
	}

	matched, rl := climb(ladder, q, catalog)
	if len(matched) == 0 {
		pool := linked(catalog, local)
		if len(pool) == 0 {
			pool = catalog
		}
		return Result{Outcome: Unresolved, Suggestions: suggest(q.norm, pool)}
	}

	here := linked(matched, local)
	switch {
	case len(matched) > 1 && rl.strict:
		return Result{Outcome: Ambiguous, Rule: rl.name, Candidates: ids(matched), Suggestions: names(matched)}
	case len(here) == 1:
		return Result{ID: here[0].id, Outcome: Resolved, Rule: rl.name}
	case len(here) == 0:
		return Result{Outcome: NotProvisioned, Rule: rl.name, Candidates: ids(matched), Suggestions: suggest(q.norm, linked(catalog, local))}
	default:
		return Result{Outcome: Ambiguous, Rule: rl.name, Candidates: ids(here), Suggestions: names(here)}
	}
}

func climb(ladder []rule, q query, cands []candidate) ([]candidate, rule) {
	for _, rl := range ladder {
		var matched []candidate
		for _, c := range cands {
			if rl.match(q, c) {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			return matched, rl
		}
	}
	return nil, rule{}
}

func linked(cands []candidate, local map[string]bool) []candidate {
	var res []candidate
	for _, c := range cands {
		if local[c.id] {
			res = append(res, c)
		}
	}
	return res
}

// suggest ranks candidate names by similarity to norm.
func suggest(norm string, cands []candidate) []string {
	type scored struct {
		name  string
		ratio float64
	}
	a := strings.Split(norm, "")
	var ranked []scored
	for _, c := range cands {
		best := 0.
		for _, f := range c.forms {
			if ratio := difflib.NewMatcher(a, strings.Split(f, "")).Ratio(); ratio > best {
				best = ratio
			}
		}
		if best >= minSuggestionRate {
			ranked = append(ranked, scored{name: c.name, ratio: best})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ratio > ranked[j].ratio })

	var res []string
	for i := 0; i < len(ranked) && i < maxSuggestions; i++ {
		res = append(res, ranked[i].name)
	}
	return res
}

func ids(cands []candidate) []string {
	res := make([]string, 0, len(cands))
	for _, c := range cands {
		res = append(res, c.id)
	}
	return res
}

func names(cands []candidate) []string {
	res := make([]string, 0, len(cands))
	for _, c := range cands {
		res = append(res, c.name)
	}
	return res
}
